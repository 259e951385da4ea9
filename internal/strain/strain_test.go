package strain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalrun/vitalrun/internal/frame"
)

func makeEpochs(day time.Time, n int, hr, energy float64) []frame.Epoch {
	epochs := make([]frame.Epoch, 0, n)
	for i := 0; i < n; i++ {
		ts := day.Add(time.Duration(i) * 30 * time.Second)
		epochs = append(epochs, frame.Epoch{
			Timestamp: ts,
			Local:     ts,
			WearOn:    true,
			HeartRate: hr,
			AccEnergy: energy,
		})
	}
	return epochs
}

func TestAnalyze_ScoreStaysBounded(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	day := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	// A full day of near-max heart rate and heavy motion.
	epochs := makeEpochs(day, 2880, 185, 500)
	res := scorer.Analyze(epochs)

	require.Len(t, res.DailyStrain, 1)
	d := res.DailyStrain[0]
	assert.GreaterOrEqual(t, d.StrainScore, 0.0)
	assert.LessOrEqual(t, d.StrainScore, 21.0)
	assert.LessOrEqual(t, d.CardiovascularStrain, 21.0)
	assert.LessOrEqual(t, d.MuscularStrain, 21.0)
	assert.Equal(t, "2025-03-10", d.Date)
}

func TestAnalyze_SedentaryDayScoresLow(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	day := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	// Resting heart rate all day, no motion above baseline.
	epochs := makeEpochs(day, 960, 62, 0)
	res := scorer.Analyze(epochs)

	require.Len(t, res.DailyStrain, 1)
	d := res.DailyStrain[0]
	assert.Less(t, d.StrainScore, 6.0)
	assert.Equal(t, 0, d.SleepNeedAdjustMin)
}

func TestAnalyze_IntenseDayRaisesSleepNeed(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	day := time.Date(2025, 3, 11, 6, 0, 0, 0, time.UTC)

	// Two hours in zone 5 with high accelerometer energy, rest of the day easy.
	epochs := makeEpochs(day, 240, 180, 300)
	epochs = append(epochs, makeEpochs(day.Add(3*time.Hour), 960, 70, 0)...)

	res := scorer.Analyze(epochs)
	require.Len(t, res.DailyStrain, 1)
	d := res.DailyStrain[0]
	assert.Greater(t, d.StrainScore, 8.0)
	assert.Greater(t, d.SleepNeedAdjustMin, 0)
}

func TestAnalyze_IgnoresWearOff(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	day := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

	epochs := makeEpochs(day, 100, 150, 200)
	for i := range epochs {
		epochs[i].WearOn = false
	}

	res := scorer.Analyze(epochs)
	assert.Empty(t, res.DailyStrain)
	assert.Nil(t, res.MaxHREst)
}

func TestEstimateMaxHR(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	day := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	t.Run("floored at minimum", func(t *testing.T) {
		epochs := makeEpochs(day, 50, 120, 0)
		assert.Equal(t, 150.0, scorer.EstimateMaxHR(epochs))
	})

	t.Run("no readings uses fallback", func(t *testing.T) {
		epochs := makeEpochs(day, 50, 0, 0)
		assert.Equal(t, 190.0, scorer.EstimateMaxHR(epochs))
	})

	t.Run("high readings raise the estimate", func(t *testing.T) {
		epochs := makeEpochs(day, 200, 188, 0)
		assert.InDelta(t, 188.0, scorer.EstimateMaxHR(epochs), 0.5)
	})
}

func TestClassifyZone(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	maxHR := 200.0

	cases := []struct {
		hr   float64
		zone int
	}{
		{80, 0},   // 40% of max
		{110, 1},  // 55%
		{130, 2},  // 65%
		{150, 3},  // 75%
		{170, 4},  // 85%
		{190, 5},  // 95%
		{210, 5},  // above max
	}
	for _, c := range cases {
		assert.Equal(t, c.zone, scorer.ClassifyZone(c.hr, maxHR), "hr=%v", c.hr)
	}
}

func TestStrainLevels(t *testing.T) {
	scorer := NewScorer(DefaultConfig())

	assert.Equal(t, "minimal", scorer.label(2))
	assert.Equal(t, "light", scorer.label(5))
	assert.Equal(t, "moderate", scorer.label(10))
	assert.Equal(t, "high", scorer.label(15))
	assert.Equal(t, "overreaching", scorer.label(19))
}
