package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalrun/vitalrun/internal/config"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testsFixture(t *testing.T, dir string) string {
	rows := "type,score,created_at,is_baseline,device_timezone\n"
	for day := 1; day <= 7; day++ {
		rows += fmt.Sprintf("READY,%d,2025-03-%02dT09:00:00Z,false,UTC\n", 160+day, day)
		rows += fmt.Sprintf("AGILITY,%d,2025-03-%02dT10:00:00Z,false,UTC\n", 85+day, day)
	}
	rows += "READY,175,2025-02-20T09:00:00Z,true,UTC\n"
	return writeFixture(t, dir, "tests.csv", rows)
}

func sessionsFixture(t *testing.T, dir string) string {
	rows := "sleep_start_u_t_c,sleep_end_u_t_c,time_zone,total_session_time_min,total_sleep_time_min,total_wake_time_min,total_light,total_deep,total_rem,recovery_score,sleep_debt_min,sleep_needed_min\n"
	for day := 1; day <= 5; day++ {
		start := time.Date(2025, 3, day, 23, 0, 0, 0, time.UTC)
		end := start.Add(7 * time.Hour)
		rows += fmt.Sprintf("%d,%d,UTC,440,420,20,230,75,95,78,30,450\n", start.Unix(), end.Unix())
	}
	return writeFixture(t, dir, "sessions.csv", rows)
}

type stubBriefer struct {
	briefing map[string]any
	err      error
	got      map[string]any
}

func (s *stubBriefer) Brief(_ context.Context, pkt map[string]any) (map[string]any, error) {
	s.got = pkt
	return s.briefing, s.err
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")

	p := New(config.Default(), zerolog.Nop(), nil, nil)
	summary, err := p.Run(context.Background(), Options{
		TestsCSV:    testsFixture(t, dir),
		SessionsCSV: sessionsFixture(t, dir),
		OutputDir:   outDir,
		GraphsDir:   "graphs",
	})
	require.NoError(t, err)

	assert.Equal(t, 15, summary.TestRows)
	assert.Equal(t, 5, summary.SessionRows)
	assert.NotEmpty(t, summary.RunID)
	require.Len(t, summary.Artifacts, 2)

	var packet map[string]any
	data, err := os.ReadFile(filepath.Join(outDir, "analysis_output.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &packet))
	assert.Contains(t, packet, "meta")
	assert.Contains(t, packet, "daily_summaries")
	assert.Contains(t, packet, "sleep_sessions")

	var payload map[string]any
	data, err = os.ReadFile(filepath.Join(outDir, "agent_payload.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, "3.0", payload["schema_version"])
	assert.Contains(t, payload, "agent_state")
}

func TestRun_NoInputs(t *testing.T) {
	p := New(config.Default(), zerolog.Nop(), nil, nil)
	_, err := p.Run(context.Background(), Options{OutputDir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no input files")
}

func TestRun_BadFileSkippedNotFatal(t *testing.T) {
	dir := t.TempDir()
	bad := writeFixture(t, dir, "bad.csv", "foo,bar\n1,2\n")

	p := New(config.Default(), zerolog.Nop(), nil, nil)
	summary, err := p.Run(context.Background(), Options{
		TestsCSV:  testsFixture(t, dir),
		EpochsCSV: bad,
		OutputDir: filepath.Join(dir, "out"),
		GraphsDir: "graphs",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.EpochRows)
	assert.Equal(t, 15, summary.TestRows)
}

func TestRun_AllInputsUnusable(t *testing.T) {
	dir := t.TempDir()
	bad := writeFixture(t, dir, "bad.csv", "foo,bar\n1,2\n")

	p := New(config.Default(), zerolog.Nop(), nil, nil)
	_, err := p.Run(context.Background(), Options{TestsCSV: bad, OutputDir: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable rows")
}

func TestRun_BrieferWritesBriefing(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	briefer := &stubBriefer{briefing: map[string]any{
		"briefing_version": "1.0",
		"headline":         "Readiness trending up.",
	}}

	p := New(config.Default(), zerolog.Nop(), nil, briefer)
	summary, err := p.Run(context.Background(), Options{
		TestsCSV:  testsFixture(t, dir),
		OutputDir: outDir,
		GraphsDir: "graphs",
	})
	require.NoError(t, err)
	require.Len(t, summary.Artifacts, 3)

	var briefing map[string]any
	data, err := os.ReadFile(filepath.Join(outDir, "agent_briefing.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &briefing))
	assert.Equal(t, "Readiness trending up.", briefing["headline"])

	// The briefer sees the analysis packet, not the agent payload.
	assert.Contains(t, briefer.got, "meta")
	assert.Contains(t, briefer.got, "daily_summaries")
	assert.NotContains(t, briefer.got, "schema_version")
}

func TestRun_BrieferFailureWritesErrorBriefing(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	briefer := &stubBriefer{err: errors.New("api unavailable")}

	p := New(config.Default(), zerolog.Nop(), nil, briefer)
	summary, err := p.Run(context.Background(), Options{
		TestsCSV:  testsFixture(t, dir),
		OutputDir: outDir,
		GraphsDir: "graphs",
	})
	require.NoError(t, err)
	require.Len(t, summary.Artifacts, 3)

	var briefing map[string]any
	data, err := os.ReadFile(filepath.Join(outDir, "agent_briefing.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &briefing))
	assert.Equal(t, "1.0", briefing["briefing_version"])
	assert.Contains(t, briefing["error"], "api unavailable")
}

func TestRun_Deterministic(t *testing.T) {
	dir := t.TempDir()
	tests := testsFixture(t, dir)
	sessions := sessionsFixture(t, dir)

	readNormalized := func(t *testing.T, outDir, name string) map[string]any {
		t.Helper()
		data, err := os.ReadFile(filepath.Join(outDir, name))
		require.NoError(t, err)
		var doc map[string]any
		require.NoError(t, json.Unmarshal(data, &doc))
		if meta, ok := doc["meta"].(map[string]any); ok {
			delete(meta, "analysis_generated_at")
		}
		return doc
	}

	outA := filepath.Join(dir, "out-a")
	outB := filepath.Join(dir, "out-b")
	for _, outDir := range []string{outA, outB} {
		p := New(config.Default(), zerolog.Nop(), nil, nil)
		_, err := p.Run(context.Background(), Options{
			TestsCSV:    tests,
			SessionsCSV: sessions,
			OutputDir:   outDir,
			GraphsDir:   "graphs",
		})
		require.NoError(t, err)
	}

	assert.Equal(t,
		readNormalized(t, outA, "analysis_output.json"),
		readNormalized(t, outB, "analysis_output.json"))
	assert.Equal(t,
		readNormalized(t, outA, "agent_payload.json"),
		readNormalized(t, outB, "agent_payload.json"))
}
