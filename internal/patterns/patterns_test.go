package patterns

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalrun/vitalrun/internal/frame"
	"github.com/vitalrun/vitalrun/internal/hrv"
	"github.com/vitalrun/vitalrun/internal/performance"
	"github.com/vitalrun/vitalrun/internal/sessions"
	"github.com/vitalrun/vitalrun/internal/sleepdetect"
)

func findPattern(patterns []Pattern, name string) *Pattern {
	for i := range patterns {
		if patterns[i].Pattern == name {
			return &patterns[i]
		}
	}
	return nil
}

func dailyPoints(means []float64) []performance.DailyPoint {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]performance.DailyPoint, len(means))
	for i, m := range means {
		out[i] = performance.DailyPoint{Date: frame.DateKey(base.AddDate(0, 0, i)), Mean: m}
	}
	return out
}

func TestReadinessDebt(t *testing.T) {
	d := NewDetector(DefaultConfig())

	t.Run("steady decline fires", func(t *testing.T) {
		perf := &performance.Result{
			DailyReady:    dailyPoints([]float64{160, 155, 148, 140, 135}),
			ReadyBaseline: frame.Float(170),
		}
		got := d.Detect(Inputs{Performance: perf})

		p := findPattern(got, "compounding_readiness_debt")
		require.NotNil(t, p)
		assert.Equal(t, SeverityWarning, p.Severity)
		assert.Contains(t, p.Description, "25 points")
		assert.Contains(t, p.Description, "5 days")
		require.NotNil(t, p.FirstDetected)
		assert.Equal(t, "2025-03-05", *p.FirstDetected)
	})

	t.Run("too few days stays quiet", func(t *testing.T) {
		perf := &performance.Result{DailyReady: dailyPoints([]float64{160, 150, 140})}
		got := d.Detect(Inputs{Performance: perf})
		assert.Nil(t, findPattern(got, "compounding_readiness_debt"))
	})

	t.Run("recovering trajectory stays quiet", func(t *testing.T) {
		perf := &performance.Result{DailyReady: dailyPoints([]float64{140, 150, 155, 160, 165})}
		got := d.Detect(Inputs{Performance: perf})
		assert.Nil(t, findPattern(got, "compounding_readiness_debt"))
	})
}

func TestRMSSDDeclining(t *testing.T) {
	d := NewDetector(DefaultConfig())

	got := d.Detect(Inputs{HRV: &hrv.Result{RMSSD7DSlope: frame.Float(-3.5)}})
	p := findPattern(got, "rmssd_declining")
	require.NotNil(t, p)
	assert.Contains(t, p.Description, "-3.5")

	got = d.Detect(Inputs{HRV: &hrv.Result{RMSSD7DSlope: frame.Float(-1)}})
	assert.Nil(t, findPattern(got, "rmssd_declining"))
}

func TestSleepPatterns(t *testing.T) {
	d := NewDetector(DefaultConfig())

	nights := []sleepdetect.Night{
		{NightDate: "2025-03-01", DurationMin: 300, WakeEpisodes: 6},
		{NightDate: "2025-03-02", DurationMin: 340, WakeEpisodes: 5},
		{NightDate: "2025-03-03", DurationMin: 430, WakeEpisodes: 1},
	}
	got := d.Detect(Inputs{Sleep: &sleepdetect.Result{Nights: nights}})

	frag := findPattern(got, "sleep_fragmentation")
	require.NotNil(t, frag)
	assert.Equal(t, "2025-03-01", *frag.FirstDetected)

	debt := findPattern(got, "sleep_debt")
	require.NotNil(t, debt)
	assert.Contains(t, debt.Description, "2 nights")
}

func TestStressSleepinessCompound(t *testing.T) {
	d := NewDetector(DefaultConfig())
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	var tests []frame.TestResult
	for i := 0; i < 3; i++ {
		tests = append(tests, frame.TestResult{
			Type:       performance.TypeReady,
			Score:      130,
			HasScore:   true,
			Local:      base.AddDate(0, 0, i),
			Stress:     frame.Float(7),
			Sleepiness: frame.Float(6),
		})
	}

	got := d.Detect(Inputs{Tests: tests})
	p := findPattern(got, "stress_sleepiness_compounding")
	require.NotNil(t, p)
	assert.Contains(t, p.Description, "3 occasions")
	assert.Equal(t, "2025-03-01", *p.FirstDetected)

	// Two occurrences are not enough.
	got = d.Detect(Inputs{Tests: tests[:2]})
	assert.Nil(t, findPattern(got, "stress_sleepiness_compounding"))
}

func TestSubjectiveMismatch(t *testing.T) {
	d := NewDetector(DefaultConfig())
	day := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)

	tests := []frame.TestResult{
		{Type: performance.TypeReady, Score: 135, HasScore: true, Local: day, Sharpness: frame.Float(8)},
		{Type: performance.TypeReady, Score: 120, HasScore: true, Local: day.AddDate(0, 0, 1), Sharpness: frame.Float(9)},
	}

	got := d.Detect(Inputs{Tests: tests})
	p := findPattern(got, "subjective_objective_mismatch")
	require.NotNil(t, p)
	assert.Equal(t, SeverityInfo, p.Severity)
	// The worst (lowest Ready) occurrence is reported.
	assert.Contains(t, p.Description, "Ready 120")
}

func TestPostMealDip(t *testing.T) {
	d := NewDetector(DefaultConfig())
	day := time.Date(2025, 3, 4, 13, 0, 0, 0, time.UTC)

	tests := []frame.TestResult{
		{Type: performance.TypeReady, Score: 140, HasScore: true, Local: day, ContextNote: "after lunch"},
		{Type: performance.TypeReady, Score: 144, HasScore: true, Local: day.AddDate(0, 0, 1), ContextNote: "heavy meal"},
		{Type: performance.TypeReady, Score: 170, HasScore: true, Local: day.AddDate(0, 0, 2)},
	}
	perf := &performance.Result{ReadyBaseline: frame.Float(170)}

	got := d.Detect(Inputs{Tests: tests, Performance: perf})
	p := findPattern(got, "post_meal_dip_detected")
	require.NotNil(t, p)
	assert.Contains(t, p.Description, "142")
	assert.Contains(t, p.Description, "28 points below baseline")
}

func TestSessionPatterns(t *testing.T) {
	d := NewDetector(DefaultConfig())

	nights := []sessions.NightSummary{
		{NightDate: "2025-03-01", TotalSleepMin: 400, SessionTimeMin: 480, DeepPct: 10, REMPct: 12, EfficiencyPct: 80, RecoveryScore: frame.Float(30), CircadianCompliance: frame.Float(40)},
		{NightDate: "2025-03-02", TotalSleepMin: 390, SessionTimeMin: 470, DeepPct: 11, REMPct: 14, EfficiencyPct: 82, RecoveryScore: frame.Float(28), CircadianCompliance: frame.Float(45)},
	}
	sess := &sessions.Result{
		Nights:    nights,
		SleepDebt: &sessions.DebtSummary{CurrentDebtMin: 180},
	}

	got := d.Detect(Inputs{Sessions: sess})

	require.NotNil(t, findPattern(got, "chronic_sleep_debt"))
	assert.Contains(t, findPattern(got, "chronic_sleep_debt").Description, "3h")

	require.NotNil(t, findPattern(got, "deep_sleep_deficit"))
	require.NotNil(t, findPattern(got, "rem_sleep_deficit"))
	require.NotNil(t, findPattern(got, "low_recovery"))
	require.NotNil(t, findPattern(got, "sleep_efficiency_low"))
	require.NotNil(t, findPattern(got, "circadian_misalignment"))
}

func TestDetect_EmptyInputs(t *testing.T) {
	d := NewDetector(DefaultConfig())
	got := d.Detect(Inputs{})
	assert.Empty(t, got)
}
