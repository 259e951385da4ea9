package payload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalrun/vitalrun/internal/packet"
	"github.com/vitalrun/vitalrun/internal/sessions"
	"github.com/vitalrun/vitalrun/internal/strain"
)

func testTime() time.Time {
	return time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
}

func TestStripNulls(t *testing.T) {
	in := map[string]any{
		"keep":      1.0,
		"drop_nil":  nil,
		"nested":    map[string]any{"a": nil, "b": "x"},
		"empty_map": map[string]any{"inner": nil},
		"list":      []any{nil, "a", map[string]any{}},
	}

	got, ok := StripNulls(in).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, 1.0, got["keep"])
	assert.NotContains(t, got, "drop_nil")
	assert.NotContains(t, got, "empty_map")
	assert.Equal(t, map[string]any{"b": "x"}, got["nested"])
	assert.Equal(t, []any{"a"}, got["list"])
}

func TestStripNulls_AllEmptyBecomesNil(t *testing.T) {
	in := map[string]any{"a": nil, "b": map[string]any{"c": nil}}
	assert.Nil(t, StripNulls(in))
}

func TestReadinessRegime(t *testing.T) {
	assert.Equal(t, "red", readinessRegime("red", 0))
	assert.Equal(t, "yellow", readinessRegime("yellow", 1))
	assert.Equal(t, "chronic_yellow", readinessRegime("yellow", 3))
	assert.Equal(t, "green", readinessRegime("green", 0))
	assert.Equal(t, "green", readinessRegime("", -1))
}

func TestCountOverreach(t *testing.T) {
	daily := []strain.DailyStrain{
		{StrainScore: 19}, {StrainScore: 12}, {StrainScore: 18}, {StrainScore: 20},
	}
	assert.Equal(t, 2, countOverreach(daily))
	assert.Equal(t, 0, countOverreach(nil))
	assert.Equal(t, 0, countOverreach([]strain.DailyStrain{{StrainScore: 10}}))
}

func TestDaysSinceRest(t *testing.T) {
	t.Run("rest day found", func(t *testing.T) {
		daily := []strain.DailyStrain{
			{StrainScore: 4}, {StrainScore: 12}, {StrainScore: 15},
		}
		got := daysSinceRest(daily)
		require.NotNil(t, got)
		assert.Equal(t, 2, *got)
	})

	t.Run("no rest day in window", func(t *testing.T) {
		daily := []strain.DailyStrain{{StrainScore: 12}, {StrainScore: 15}}
		got := daysSinceRest(daily)
		require.NotNil(t, got)
		assert.Equal(t, 2, *got)
	})

	t.Run("no data", func(t *testing.T) {
		assert.Nil(t, daysSinceRest(nil))
	})
}

func TestStrainCeiling(t *testing.T) {
	assert.Equal(t, 8, strainCeiling("red", 0))
	assert.Equal(t, 14, strainCeiling("yellow", 0))
	assert.Equal(t, 10, strainCeiling("yellow", 2))
	assert.Equal(t, 8, strainCeiling("yellow", 5))
	assert.Equal(t, 18, strainCeiling("green", 0))
	assert.Equal(t, 14, strainCeiling("green", 2))
	assert.Equal(t, 10, strainCeiling("green", 5))
}

func TestDeepWorkCapacity(t *testing.T) {
	assert.Equal(t, "low", deepWorkCapacity(8, false, false))
	assert.Equal(t, "low", deepWorkCapacity(18, true, true))
	assert.Equal(t, "moderate", deepWorkCapacity(12, false, false))
	assert.Equal(t, "moderate", deepWorkCapacity(18, true, false))
	assert.Equal(t, "moderate", deepWorkCapacity(18, false, true))
	assert.Equal(t, "high", deepWorkCapacity(18, false, false))
}

func TestNapWindow(t *testing.T) {
	peak := "10:00-12:00"
	assert.Equal(t, "14:00-15:00", napWindow(&peak))

	late := "14:00-18:00"
	assert.Equal(t, "16:00-17:00", napWindow(&late))

	assert.Equal(t, "13:00-15:00", napWindow(nil))

	bad := "whenever"
	assert.Equal(t, "13:00-15:00", napWindow(&bad))
}

func TestPeakConfidence(t *testing.T) {
	assert.Equal(t, "high", peakConfidence(35, "green"))
	assert.Equal(t, "high", peakConfidence(35, ""))
	assert.Equal(t, "medium", peakConfidence(35, "red"))
	assert.Equal(t, "medium", peakConfidence(20, "green"))
	assert.Equal(t, "low", peakConfidence(5, "green"))
}

func TestBuild_StripsEmptySections(t *testing.T) {
	pkt := packet.Build(packet.Sources{}, packet.Results{}, "graphs", testTime())
	got := Build(pkt, packet.Results{})

	require.NotNil(t, got)
	assert.Equal(t, SchemaVersion, got["schema_version"])
	assert.Contains(t, got, "agent_state")
	assert.NotContains(t, got, "recovery")
	assert.NotContains(t, got, "sleep_debt")
	assert.NotContains(t, got, "strain")
}

func TestBuild_RecoverySectionSurvives(t *testing.T) {
	res := packet.Results{
		Sessions: &sessions.Result{
			Nights: []sessions.NightSummary{},
			Recovery: &sessions.RecoverySummary{
				Latest:       30,
				Zone:         "red",
				PersonalMean: 55,
				Trend:        "declining",
			},
		},
	}
	pkt := packet.Build(packet.Sources{}, res, "graphs", testTime())
	got := Build(pkt, res)

	require.Contains(t, got, "agent_state")
	state, ok := got["agent_state"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "red", state["readiness_regime"])
	assert.Equal(t, float64(8), state["recommended_strain_ceiling"])
}
