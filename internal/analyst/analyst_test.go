package analyst

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePacket() map[string]any {
	return map[string]any{
		"meta": map[string]any{"user_id": "user-1"},
		"circadian_profile": map[string]any{
			"peak_hour":    10.5,
			"fitted_curve": []any{1.0, 2.0, 3.0},
		},
		"sleep_sessions": map[string]any{
			"nights":            []any{map[string]any{"night": "2025-03-01"}},
			"sleep_performance": map[string]any{"avg_efficiency": 91.2},
		},
	}
}

func TestSlimPacketStripsCurveAndNights(t *testing.T) {
	pkt := samplePacket()
	slim := slimPacket(pkt)

	circ, ok := slim["circadian_profile"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, circ, "fitted_curve")
	assert.Equal(t, 10.5, circ["peak_hour"])

	ss, ok := slim["sleep_sessions"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, ss, "nights")
	assert.Contains(t, ss, "sleep_performance")

	assert.Equal(t, map[string]any{"user_id": "user-1"}, slim["meta"])
}

func TestSlimPacketDoesNotMutateInput(t *testing.T) {
	pkt := samplePacket()
	_ = slimPacket(pkt)

	circ := pkt["circadian_profile"].(map[string]any)
	assert.Contains(t, circ, "fitted_curve")
	ss := pkt["sleep_sessions"].(map[string]any)
	assert.Contains(t, ss, "nights")
}

func TestParseBriefingPlainJSON(t *testing.T) {
	b := parseBriefing(`{"briefing_version": "1.0", "headline": "recovered"}`)
	assert.Equal(t, "recovered", b["headline"])
	assert.NotContains(t, b, "error")
}

func TestParseBriefingFencedJSON(t *testing.T) {
	raw := "```json\n{\"briefing_version\": \"1.0\", \"headline\": \"recovered\"}\n```"
	b := parseBriefing(raw)
	assert.Equal(t, "recovered", b["headline"])
	assert.NotContains(t, b, "error")
}

func TestParseBriefingFenceWithoutClose(t *testing.T) {
	raw := "```json\n{\"headline\": \"recovered\"}"
	b := parseBriefing(raw)
	assert.Equal(t, "recovered", b["headline"])
	assert.NotContains(t, b, "error")
}

func TestParseBriefingNonJSON(t *testing.T) {
	b := parseBriefing("Here is your briefing: all good.")
	assert.Equal(t, BriefingVersion, b["briefing_version"])
	assert.Equal(t, "model response was not valid JSON", b["error"])
	assert.Equal(t, "Here is your briefing: all good.", b["raw_response"])
}

func TestErrorBriefingTruncatesRaw(t *testing.T) {
	raw := strings.Repeat("x", maxRawResponse+500)
	b := ErrorBriefing("model response was not valid JSON", raw)
	assert.Len(t, b["raw_response"], maxRawResponse)
}

func TestErrorBriefingOmitsEmptyRaw(t *testing.T) {
	b := ErrorBriefing("briefing request failed: api unavailable", "")
	assert.Equal(t, BriefingVersion, b["briefing_version"])
	assert.NotContains(t, b, "raw_response")
}

func TestNewAppliesConfigGuards(t *testing.T) {
	a := New(Config{Model: "claude-sonnet-4-5", MaxTokens: 512}, zerolog.Nop())
	assert.Equal(t, DefaultConfig().RequestsPerMin, a.config.RequestsPerMin)
	assert.Equal(t, 60*time.Second, a.config.Timeout)
}
