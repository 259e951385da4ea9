package packet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalrun/vitalrun/internal/frame"
	"github.com/vitalrun/vitalrun/internal/performance"
	"github.com/vitalrun/vitalrun/internal/readiness"
	"github.com/vitalrun/vitalrun/internal/sleepdetect"
	"github.com/vitalrun/vitalrun/internal/strain"
)

var buildTime = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

func TestBuild_Meta(t *testing.T) {
	day := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	src := Sources{
		Tests: []frame.TestResult{
			{Type: "READY", CreatedAt: day, Local: day, UserID: "user-1"},
			{Type: "READY", CreatedAt: day.AddDate(0, 0, 4), Local: day.AddDate(0, 0, 4)},
		},
	}

	p := Build(src, Results{}, "graphs", buildTime)

	assert.Equal(t, "2025-08-01T12:00:00Z", p.Meta.GeneratedAt)
	assert.Equal(t, "user-1", p.Meta.UserID)
	assert.Equal(t, "graphs", p.Meta.GraphsDirectory)

	span, ok := p.Meta.DataCoverage["test_results"]
	require.True(t, ok)
	assert.Equal(t, "2025-03-01T09:00:00Z", span.From)
	assert.Equal(t, "2025-03-05T09:00:00Z", span.To)
	assert.Equal(t, 2, span.Total)
}

func TestBuild_DailySummariesJoin(t *testing.T) {
	perf := &performance.Result{
		ReadyBaseline: frame.Float(170),
		DailyReady: []performance.DailyPoint{
			{Date: "2025-03-01", Mean: 153, Count: 2},
			{Date: "2025-03-02", Mean: 161.5, Count: 1},
		},
		DailyAgility: []performance.DailyPoint{
			{Date: "2025-03-01", Mean: 85, Count: 1},
		},
		DailySelfReport: []performance.DailySelfReport{
			{Date: "2025-03-01", Stress: frame.Float(6)},
		},
	}
	rdy := &readiness.Result{
		TiersByDate: map[string]readiness.DailyTier{
			"2025-03-01": {Tier: "Good", Color: "blue"},
		},
	}
	slp := &sleepdetect.Result{
		Nights: []sleepdetect.Night{
			{NightDate: "2025-03-01", DurationMin: 412, WakeEpisodes: 2},
		},
	}

	p := Build(Sources{}, Results{Performance: perf, Readiness: rdy, Sleep: slp}, "graphs", buildTime)
	require.Len(t, p.DailySummaries, 2)

	d1 := p.DailySummaries[0]
	assert.Equal(t, "2025-03-01", d1.Date)
	assert.Equal(t, "Good", d1.ReadinessTier)
	require.NotNil(t, d1.ReadyMean)
	assert.Equal(t, 153.0, *d1.ReadyMean)
	require.NotNil(t, d1.ReadyPctBaseline)
	assert.Equal(t, 90.0, *d1.ReadyPctBaseline)
	require.NotNil(t, d1.SelfReport.Stress)
	require.NotNil(t, d1.Sleep.DurationMin)
	assert.Equal(t, 412.0, *d1.Sleep.DurationMin)

	d2 := p.DailySummaries[1]
	assert.Equal(t, "Unknown", d2.ReadinessTier)
	assert.Nil(t, d2.Sleep.DurationMin)

	require.NotNil(t, p.LatestDay)
	assert.Equal(t, "2025-03-02", p.LatestDay.Date)
}

func TestBuild_Trends(t *testing.T) {
	cases := []struct {
		slope     float64
		direction string
	}{
		{-2.0, "declining"},
		{0.2, "stable"},
		{1.1, "improving"},
	}
	for _, c := range cases {
		perf := &performance.Result{ReadySlope7d: frame.Float(c.slope)}
		p := Build(Sources{}, Results{Performance: perf}, "graphs", buildTime)
		assert.Equal(t, c.direction, p.Trends.ReadyTrendDirection, "slope=%v", c.slope)
	}
}

func TestBuild_WeeklyDeltaUsesPriorWeek(t *testing.T) {
	perf := &performance.Result{
		Weekly: []performance.WeeklyPoint{
			{WeekLabel: "2025-W09", ReadyMean: 150, TestCount: 4},
			{WeekLabel: "2025-W10", ReadyMean: 165, TestCount: 5},
		},
	}

	p := Build(Sources{}, Results{Performance: perf}, "graphs", buildTime)
	require.Len(t, p.WeeklySummaries, 2)

	assert.Nil(t, p.WeeklySummaries[0].VsPriorWeek)
	require.NotNil(t, p.WeeklySummaries[1].VsPriorWeek)
	require.NotNil(t, p.WeeklySummaries[1].VsPriorWeek.ReadyChangePct)
	assert.Equal(t, 10.0, *p.WeeklySummaries[1].VsPriorWeek.ReadyChangePct)
}

func TestBuild_Insights(t *testing.T) {
	perf := &performance.Result{
		ReadyBaseline: frame.Float(170),
		DailyReady:    []performance.DailyPoint{{Date: "2025-03-01", Mean: 153}},
		ReadySlope7d:  frame.Float(-1.2),
	}
	st := &strain.Result{
		DailyStrain: []strain.DailyStrain{
			{Date: "2025-03-01", StrainScore: 15.5, StrainLevel: "high", SleepNeedAdjustMin: 30},
		},
	}

	p := Build(Sources{}, Results{Performance: perf, Strain: st}, "graphs", buildTime)

	require.NotEmpty(t, p.Insights)
	assert.Contains(t, p.Insights[0], "Ready baseline is 170")
	assert.Contains(t, p.Insights[0], "90.0% of baseline")

	joined := ""
	for _, s := range p.Insights {
		joined += s + "\n"
	}
	assert.Contains(t, joined, "7-day Ready trend is declining")
	assert.Contains(t, joined, "Yesterday's strain was 15.5 (high)")
	assert.Contains(t, joined, "increased by ~30 minutes")
}

func TestGraphManifest(t *testing.T) {
	entries := GraphManifest()
	assert.Len(t, entries, 12)
	assert.Equal(t, "ready_score_trajectory.png", entries[0].Filename)
}

func TestBuild_EmptyInputs(t *testing.T) {
	p := Build(Sources{}, Results{}, "graphs", buildTime)

	assert.Empty(t, p.DailySummaries)
	assert.Nil(t, p.LatestDay)
	assert.Empty(t, p.PatternsDetected)
	assert.Equal(t, "stable", p.Trends.ReadyTrendDirection)
	assert.Len(t, p.Graphs, 12)
}
