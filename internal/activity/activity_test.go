package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalrun/vitalrun/internal/frame"
)

func wearEpoch(ts time.Time, energy, hr float64) frame.Epoch {
	return frame.Epoch{Timestamp: ts, Local: ts, WearOn: true, AccEnergy: energy, HeartRate: hr}
}

func TestClassifyEpoch(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	cases := []struct {
		energy float64
		hr     float64
		want   Level
	}{
		{20, 62, Sedentary},
		{20, 95, Light},       // low energy but elevated HR
		{150, 70, Light},
		{400, 70, Moderate},
		{900, 90, Moderate},   // high energy saved by moderate HR band
		{900, 140, Vigorous},
		{30, 0, Sedentary},    // missing HR falls back to resting
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, c.ClassifyEpoch(tc.energy, tc.hr), "energy=%v hr=%v", tc.energy, tc.hr)
	}
}

func TestAnalyze_DailyAggregation(t *testing.T) {
	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	var epochs []frame.Epoch
	// Two hours sedentary, one hour moderate walking.
	for i := 0; i < 240; i++ {
		epochs = append(epochs, wearEpoch(base.Add(time.Duration(i)*30*time.Second), 20, 62))
	}
	for i := 0; i < 120; i++ {
		e := wearEpoch(base.Add(2*time.Hour).Add(time.Duration(i)*30*time.Second), 400, 90)
		e.Steps = float64(1000 + i*20)
		e.Calories = float64(300 + i)
		epochs = append(epochs, e)
	}

	res := NewClassifier(DefaultConfig()).Analyze(epochs)
	require.Len(t, res.DailyActivity, 1)

	day := res.DailyActivity[0]
	assert.Equal(t, "2025-04-01", day.Date)
	assert.Equal(t, 240, day.SedentaryEpochs)
	assert.Equal(t, 120, day.ModerateEpochs)
	assert.Equal(t, 360, day.TotalEpochs)
	assert.Equal(t, 60.0, day.ModerateVigorousMin)
	assert.Equal(t, 400.0*120, day.PhysicalLoad)
	assert.Equal(t, "high", day.ExerciseLoad)
	// Steps and calories are cumulative counters; the daily total is the span.
	assert.Equal(t, 119.0*20, day.Steps)
	assert.Equal(t, 119.0, day.Calories)
}

func TestAnalyze_IgnoresWearOff(t *testing.T) {
	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	epochs := []frame.Epoch{
		{Timestamp: base, Local: base, WearOn: false, AccEnergy: 900, HeartRate: 150},
	}

	res := NewClassifier(DefaultConfig()).Analyze(epochs)
	assert.Empty(t, res.DailyActivity)
	assert.Empty(t, res.ExerciseSessions)
}

func TestAnalyze_DetectsExerciseSession(t *testing.T) {
	base := time.Date(2025, 4, 1, 18, 0, 0, 0, time.UTC)
	var epochs []frame.Epoch
	// 30-minute run: 60 epochs above the HR and energy floors.
	for i := 0; i < 60; i++ {
		epochs = append(epochs, wearEpoch(base.Add(time.Duration(i)*30*time.Second), 1200, 145))
	}

	res := NewClassifier(DefaultConfig()).Analyze(epochs)
	require.Len(t, res.ExerciseSessions, 1)

	s := res.ExerciseSessions[0]
	assert.Equal(t, base, s.Start)
	assert.Equal(t, 29.5, s.DurationMin)
	assert.Equal(t, 145.0, s.AvgHR)
}

func TestAnalyze_ShortBurstNotASession(t *testing.T) {
	base := time.Date(2025, 4, 1, 18, 0, 0, 0, time.UTC)
	var epochs []frame.Epoch
	for i := 0; i < 3; i++ {
		epochs = append(epochs, wearEpoch(base.Add(time.Duration(i)*30*time.Second), 1200, 145))
	}

	res := NewClassifier(DefaultConfig()).Analyze(epochs)
	assert.Empty(t, res.ExerciseSessions)
}

func TestAnalyze_SessionToleratesShortGaps(t *testing.T) {
	base := time.Date(2025, 4, 1, 18, 0, 0, 0, time.UTC)
	var epochs []frame.Epoch
	for i := 0; i < 20; i++ {
		hr, energy := 145.0, 1200.0
		if i == 10 {
			// One recovery epoch inside the workout.
			hr, energy = 95, 100
		}
		epochs = append(epochs, wearEpoch(base.Add(time.Duration(i)*30*time.Second), energy, hr))
	}

	res := NewClassifier(DefaultConfig()).Analyze(epochs)
	require.Len(t, res.ExerciseSessions, 1)
	assert.Equal(t, 9.5, res.ExerciseSessions[0].DurationMin)
}

func TestLoadLabel(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	assert.Equal(t, "low", c.loadLabel(0))
	assert.Equal(t, "low", c.loadLabel(499))
	assert.Equal(t, "moderate", c.loadLabel(500))
	assert.Equal(t, "high", c.loadLabel(5000))
}
