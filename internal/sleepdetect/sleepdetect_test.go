package sleepdetect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalrun/vitalrun/internal/frame"
)

// syntheticNight builds a wear-on epoch stream: awake from 20:00, asleep
// 23:00-06:00 with a low heart rate, then sustained wake after 06:00.
func syntheticNight(day time.Time) []frame.Epoch {
	var epochs []frame.Epoch
	start := day.Add(20 * time.Hour)
	for i := 0; i < 1440; i++ { // 12 hours of 30s epochs
		ts := start.Add(time.Duration(i) * 30 * time.Second)
		h := ts.Hour()
		e := frame.Epoch{
			Timestamp: ts,
			Local:     ts,
			WearOn:    true,
		}
		switch {
		case h >= 23 || h < 6:
			e.HeartRate = 52
			e.RMSSD = 85
		default:
			e.HeartRate = 78
			e.AccEnergy = 50
		}
		epochs = append(epochs, e)
	}
	return epochs
}

func TestAnalyze_DetectsNight(t *testing.T) {
	d := NewDetector(DefaultConfig())
	day := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	res := d.Analyze(syntheticNight(day))

	require.Len(t, res.Nights, 1)
	n := res.Nights[0]

	assert.Equal(t, "2025-05-01", n.NightDate)
	assert.Equal(t, 23, n.SleepOnset.Hour())
	assert.Equal(t, 6, n.SleepOffset.Hour())
	assert.InDelta(t, 420, n.DurationMin, 5)
	assert.Equal(t, 0, n.WakeEpisodes)
	assert.Equal(t, 1.0, n.ContinuityScore)

	require.NotNil(t, n.HRNadirBPM)
	assert.InDelta(t, 52, *n.HRNadirBPM, 1)

	require.NotNil(t, res.LatestNight)
	assert.Equal(t, n.NightDate, res.LatestNight.NightDate)
}

func TestAnalyze_WakeEpisodesLowerContinuity(t *testing.T) {
	d := NewDetector(DefaultConfig())
	day := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)

	epochs := syntheticNight(day)
	// Two separated mid-sleep arousals with motion and elevated heart rate.
	for i := 500; i < 503; i++ {
		epochs[i].HeartRate = 88
		epochs[i].AccEnergy = 900
	}
	for i := 700; i < 703; i++ {
		epochs[i].HeartRate = 88
		epochs[i].AccEnergy = 900
	}

	res := d.Analyze(epochs)
	require.Len(t, res.Nights, 1)
	n := res.Nights[0]

	assert.Equal(t, 2, n.WakeEpisodes)
	assert.Less(t, n.ContinuityScore, 1.0)
}

func TestAnalyze_ShortPeriodSkipped(t *testing.T) {
	d := NewDetector(DefaultConfig())
	day := time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC)

	// Asleep for 30 minutes only, then sustained wake.
	var epochs []frame.Epoch
	start := day.Add(23 * time.Hour)
	for i := 0; i < 240; i++ {
		ts := start.Add(time.Duration(i) * 30 * time.Second)
		hr := 52.0
		if i >= 60 {
			hr = 85
		}
		epochs = append(epochs, frame.Epoch{
			Timestamp: ts,
			Local:     ts,
			WearOn:    true,
			HeartRate: hr,
			RMSSD:     85,
		})
	}

	res := d.Analyze(epochs)
	assert.Empty(t, res.Nights)
	assert.Nil(t, res.LatestNight)
}

func TestAnalyze_IgnoresWearOff(t *testing.T) {
	d := NewDetector(DefaultConfig())
	day := time.Date(2025, 5, 4, 0, 0, 0, 0, time.UTC)

	epochs := syntheticNight(day)
	for i := range epochs {
		epochs[i].WearOn = false
	}

	res := d.Analyze(epochs)
	assert.Empty(t, res.Nights)
}

func TestFindOnset_FallbackWithoutRMSSD(t *testing.T) {
	d := NewDetector(DefaultConfig())
	day := time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)

	// Heart rate between the strict and fallback thresholds, no RMSSD anywhere.
	var epochs []frame.Epoch
	start := day.Add(22 * time.Hour)
	for i := 0; i < 120; i++ {
		ts := start.Add(time.Duration(i) * 30 * time.Second)
		epochs = append(epochs, frame.Epoch{Timestamp: ts, Local: ts, WearOn: true, HeartRate: 67})
	}

	idx, ok := d.findOnset(epochs)
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestAnalyze_MultipleNights(t *testing.T) {
	d := NewDetector(DefaultConfig())
	base := time.Date(2025, 5, 6, 0, 0, 0, 0, time.UTC)

	var epochs []frame.Epoch
	for day := 0; day < 3; day++ {
		epochs = append(epochs, syntheticNight(base.AddDate(0, 0, day))...)
	}

	res := d.Analyze(epochs)
	require.Len(t, res.Nights, 3)
	assert.Equal(t, "2025-05-06", res.Nights[0].NightDate)
	assert.Equal(t, "2025-05-08", res.Nights[2].NightDate)
	assert.Equal(t, "2025-05-08", res.LatestNight.NightDate)
}
