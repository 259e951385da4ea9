// Package packet assembles every module's output into the full analysis
// packet written to analysis_output.json.
package packet

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/vitalrun/vitalrun/internal/activity"
	"github.com/vitalrun/vitalrun/internal/circadian"
	"github.com/vitalrun/vitalrun/internal/frame"
	"github.com/vitalrun/vitalrun/internal/hrv"
	"github.com/vitalrun/vitalrun/internal/patterns"
	"github.com/vitalrun/vitalrun/internal/performance"
	"github.com/vitalrun/vitalrun/internal/readiness"
	"github.com/vitalrun/vitalrun/internal/sessions"
	"github.com/vitalrun/vitalrun/internal/sleepdetect"
	"github.com/vitalrun/vitalrun/internal/stats"
	"github.com/vitalrun/vitalrun/internal/strain"
)

// CoverageSpan describes the time range of one input frame.
type CoverageSpan struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Total int    `json:"total"`
}

// Meta carries generation metadata and input coverage.
type Meta struct {
	GeneratedAt     string                  `json:"analysis_generated_at"`
	DataCoverage    map[string]CoverageSpan `json:"data_coverage"`
	GraphsDirectory string                  `json:"graphs_directory"`
	UserID          string                  `json:"user_id,omitempty"`
}

// Baseline holds the personal reference values trends are read against.
type Baseline struct {
	ReadyScore     *float64 `json:"ready_score"`
	AgilityPeak    *float64 `json:"agility_peak"`
	FocusPeak      *float64 `json:"focus_peak"`
	RMSSDSleepPeak *float64 `json:"rmssd_sleep_peak_ms"`
	HRNadirBPM     *float64 `json:"hr_nadir_bpm"`
}

// SelfReportBlock is the per-day mean of parsed ratings.
type SelfReportBlock struct {
	Stress     *float64 `json:"stress"`
	Sleepiness *float64 `json:"sleepiness"`
	Sharpness  *float64 `json:"sharpness"`
}

// HRVBlock is the per-day HRV slice of a daily summary.
type HRVBlock struct {
	MorningRMSSD     *float64 `json:"morning_rmssd_ms"`
	RMSSDPctBaseline *float64 `json:"rmssd_pct_baseline"`
}

// SleepBlock is the per-day detected-sleep slice of a daily summary.
type SleepBlock struct {
	DurationMin  *float64 `json:"duration_min"`
	WakeEpisodes *int     `json:"wake_episodes"`
	HRNadirBPM   *float64 `json:"hr_nadir_bpm"`
}

// ActivityBlock is the per-day movement slice of a daily summary.
type ActivityBlock struct {
	ExerciseLoad *string `json:"exercise_load"`
	Steps        float64 `json:"steps"`
	Calories     float64 `json:"calories"`
}

// StrainBlock is the per-day strain slice of a daily summary.
type StrainBlock struct {
	Score                  float64 `json:"score"`
	Level                  string  `json:"level"`
	SleepNeedAdjustmentMin int     `json:"sleep_need_adjustment_min"`
}

// DailySummary is one calendar day joined across every module.
type DailySummary struct {
	Date             string          `json:"date"`
	ReadinessTier    string          `json:"readiness_tier"`
	ReadyMean        *float64        `json:"ready_mean"`
	ReadyPctBaseline *float64        `json:"ready_pct_baseline"`
	AgilityMean      *float64        `json:"agility_mean"`
	AgilityPctPeak   *float64        `json:"agility_pct_peak"`
	FocusMean        *float64        `json:"focus_mean"`
	SelfReport       SelfReportBlock `json:"self_report"`
	HRV              HRVBlock        `json:"hrv"`
	Sleep            SleepBlock      `json:"sleep"`
	Activity         ActivityBlock   `json:"activity"`
	Strain           *StrainBlock    `json:"strain"`
	ContextNotes     []string        `json:"context_notes"`
}

// DateRange is an inclusive from/to date pair.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// WeekDelta compares a week against the prior one.
type WeekDelta struct {
	ReadyChangePct   *float64 `json:"ready_change_pct"`
	AgilityChangePct *float64 `json:"agility_change_pct"`
	StressChange     *float64 `json:"stress_change"`
}

// WeeklySummary is one ISO week of joined results.
type WeeklySummary struct {
	WeekLabel            string          `json:"week_label"`
	DateRange            DateRange       `json:"date_range"`
	ReadyWeekMean        *float64        `json:"ready_week_mean"`
	ReadyWeekPctBaseline *float64        `json:"ready_week_pct_baseline"`
	AgilityWeekMean      *float64        `json:"agility_week_mean"`
	FocusWeekMean        *float64        `json:"focus_week_mean"`
	SelfReportMeans      SelfReportBlock `json:"self_report_means"`
	TestCount            int             `json:"test_count"`
	VsPriorWeek          *WeekDelta      `json:"vs_prior_week,omitempty"`
}

// Trends carries the headline slope directions.
type Trends struct {
	Ready7dSlope        *float64 `json:"ready_7d_slope"`
	ReadyTrendDirection string   `json:"ready_trend_direction"`
	RMSSD7dSlope        *float64 `json:"rmssd_7d_slope"`
	AgilityTrend        string   `json:"agility_trend"`
}

// CircadianProfile is the packet-level circadian section.
type CircadianProfile struct {
	EstimatedPeakWindow    *string  `json:"estimated_peak_window"`
	CosinorAcrophaseHour   *float64 `json:"cosinor_acrophase_hour"`
	CosinorAmplitude       *float64 `json:"cosinor_amplitude"`
	WorstWindow            *string  `json:"worst_window"`
	CosinorN               int      `json:"cosinor_n"`
	PeakScoreVariance      *float64 `json:"peak_score_variance"`
	NaturalSleepOnsetLocal *string  `json:"natural_sleep_onset_local"`
	NaturalWakeLocal       *string  `json:"natural_wake_local"`
	BedtimeVarianceMin     *float64 `json:"bedtime_variance_min"`
	ChronotypeEstimate     *string  `json:"chronotype_estimate"`
}

// SleepSessionsSection is the logged-session slice of the packet.
type SleepSessionsSection struct {
	Nights              []sessions.NightSummary       `json:"nights"`
	ArchitectureSummary *sessions.ArchitectureSummary `json:"architecture_summary"`
	SleepPerformance    *sessions.PerformanceSummary  `json:"sleep_performance"`
}

// GraphEntry describes one rendered chart in the output directory.
type GraphEntry struct {
	Filename    string `json:"filename"`
	Description string `json:"description"`
}

// Packet is the complete analysis output.
type Packet struct {
	Meta             Meta                      `json:"meta"`
	Baseline         Baseline                  `json:"baseline"`
	LatestDay        *DailySummary             `json:"latest_day"`
	DailySummaries   []DailySummary            `json:"daily_summaries"`
	WeeklySummaries  []WeeklySummary           `json:"weekly_summaries"`
	Trends           Trends                    `json:"trends"`
	PatternsDetected []patterns.Pattern        `json:"patterns_detected"`
	CircadianProfile CircadianProfile          `json:"circadian_profile"`
	TaskMatching     readiness.TaskMatrix      `json:"task_matching"`
	SleepSessions    *SleepSessionsSection     `json:"sleep_sessions"`
	SleepDebt        *sessions.DebtSummary     `json:"sleep_debt"`
	Recovery         *sessions.RecoverySummary `json:"recovery"`
	Strain           *strain.Result            `json:"strain"`
	Graphs           []GraphEntry              `json:"graphs"`
	Insights         []string                  `json:"insights"`
}

// Sources holds the parsed input frames, for coverage metadata.
type Sources struct {
	Tests    []frame.TestResult
	Epochs   []frame.Epoch
	Sessions []frame.SleepSession
}

// Results bundles every module output. Nil sections mean the module had no
// input.
type Results struct {
	Performance *performance.Result
	HRV         *hrv.Result
	Sleep       *sleepdetect.Result
	Sessions    *sessions.Result
	Activity    *activity.Result
	Strain      *strain.Result
	Circadian   *circadian.Result
	Readiness   *readiness.Result
	Patterns    []patterns.Pattern
}

// GraphManifest is the fixed catalogue of charts the renderer produces.
func GraphManifest() []GraphEntry {
	return []GraphEntry{
		{"ready_score_trajectory.png", "Daily Ready score with 7-day rolling avg and baseline"},
		{"agility_focus_trajectory.png", "Agility and Focus scores over time"},
		{"circadian_performance_curve.png", "Ready scores by hour with cosinor fit"},
		{"self_report_vs_ready.png", "Stress/sleepiness/sharpness vs Ready correlations"},
		{"hrv_night_profile.png", "HR, RMSSD, and motion during captured night(s)"},
		{"weekly_readiness_summary.png", "Week-over-week readiness comparison"},
		{"score_distributions.png", "Histograms of Ready, Agility, Focus scores"},
		{"stress_sleepiness_heatmap.png", "Heatmap of stress x sleepiness vs mean Ready"},
		{"sleep_architecture.png", "Stacked bar chart of sleep stages per night"},
		{"sleep_debt_tracker.png", "Running sleep debt with actual vs needed bars"},
		{"recovery_trend.png", "Recovery score trend with color-coded zones"},
		{"strain_vs_recovery.png", "Daily strain vs next-day recovery scatter"},
	}
}

// Build assembles the full packet from module results. The clock is passed
// in so output is reproducible under test.
func Build(src Sources, res Results, graphsDir string, now time.Time) Packet {
	p := Packet{
		Meta:             buildMeta(src, graphsDir, now),
		Baseline:         buildBaseline(res),
		DailySummaries:   buildDailySummaries(src.Tests, res),
		WeeklySummaries:  buildWeeklySummaries(res),
		Trends:           buildTrends(res),
		PatternsDetected: res.Patterns,
		CircadianProfile: buildCircadianProfile(res.Circadian),
		Graphs:           GraphManifest(),
	}
	if p.PatternsDetected == nil {
		p.PatternsDetected = []patterns.Pattern{}
	}
	if len(p.DailySummaries) > 0 {
		p.LatestDay = &p.DailySummaries[len(p.DailySummaries)-1]
	}
	if res.Readiness != nil && res.Readiness.LatestTier != nil {
		p.TaskMatching = res.Readiness.LatestTier.TaskSuitability
	}
	if res.Sessions != nil {
		p.SleepSessions = &SleepSessionsSection{
			Nights:              res.Sessions.Nights,
			ArchitectureSummary: res.Sessions.ArchitectureSummary,
			SleepPerformance:    res.Sessions.SleepPerformance,
		}
		p.SleepDebt = res.Sessions.SleepDebt
		p.Recovery = res.Sessions.Recovery
	}
	if res.Strain != nil && len(res.Strain.DailyStrain) > 0 {
		p.Strain = res.Strain
	}
	p.Insights = buildInsights(res, p)
	return p
}

func buildMeta(src Sources, graphsDir string, now time.Time) Meta {
	m := Meta{
		GeneratedAt:     now.UTC().Format(time.RFC3339),
		DataCoverage:    map[string]CoverageSpan{},
		GraphsDirectory: graphsDir,
	}
	if len(src.Tests) > 0 {
		min, max := src.Tests[0].CreatedAt, src.Tests[0].CreatedAt
		for _, t := range src.Tests {
			if t.CreatedAt.Before(min) {
				min = t.CreatedAt
			}
			if t.CreatedAt.After(max) {
				max = t.CreatedAt
			}
			if m.UserID == "" && t.UserID != "" {
				m.UserID = t.UserID
			}
		}
		m.DataCoverage["test_results"] = CoverageSpan{
			From:  min.Format(time.RFC3339),
			To:    max.Format(time.RFC3339),
			Total: len(src.Tests),
		}
	}
	if len(src.Epochs) > 0 {
		m.DataCoverage["sensor_data"] = CoverageSpan{
			From:  src.Epochs[0].Timestamp.Format(time.RFC3339),
			To:    src.Epochs[len(src.Epochs)-1].Timestamp.Format(time.RFC3339),
			Total: len(src.Epochs),
		}
	}
	if len(src.Sessions) > 0 {
		min, max := src.Sessions[0].Start, src.Sessions[0].Start
		for _, s := range src.Sessions {
			if s.Start.Before(min) {
				min = s.Start
			}
			if s.Start.After(max) {
				max = s.Start
			}
		}
		m.DataCoverage["sleep_sessions"] = CoverageSpan{
			From:  min.Format(time.RFC3339),
			To:    max.Format(time.RFC3339),
			Total: len(src.Sessions),
		}
	}
	return m
}

func buildBaseline(res Results) Baseline {
	b := Baseline{}
	if res.Performance != nil {
		b.ReadyScore = res.Performance.ReadyBaseline
		b.AgilityPeak = res.Performance.Agility.Peak
		b.FocusPeak = res.Performance.Focus.Peak
	}
	if res.HRV != nil {
		b.RMSSDSleepPeak = roundPtr(res.HRV.RMSSDSleepPeak, 1)
	}
	if res.Sleep != nil && res.Sleep.LatestNight != nil {
		b.HRNadirBPM = roundPtr(res.Sleep.LatestNight.HRNadirBPM, 1)
	}
	return b
}

// buildDailySummaries joins every module's per-day output on the date key.
// The day list is the union of dates with READY, AGILITY, or FOCUS scores.
func buildDailySummaries(tests []frame.TestResult, res Results) []DailySummary {
	if res.Performance == nil {
		return []DailySummary{}
	}
	perf := res.Performance

	readyByDate := indexDaily(perf.DailyReady)
	agilityByDate := indexDaily(perf.DailyAgility)
	focusByDate := indexDaily(perf.DailyFocus)

	srByDate := map[string]performance.DailySelfReport{}
	for _, sr := range perf.DailySelfReport {
		srByDate[sr.Date] = sr
	}
	actByDate := map[string]activity.DailyActivity{}
	if res.Activity != nil {
		for _, d := range res.Activity.DailyActivity {
			actByDate[d.Date] = d
		}
	}
	strainByDate := map[string]strain.DailyStrain{}
	if res.Strain != nil {
		for _, d := range res.Strain.DailyStrain {
			strainByDate[d.Date] = d
		}
	}
	notesByDate := map[string][]string{}
	for _, t := range tests {
		if t.ContextNote == "" {
			continue
		}
		d := t.DateKey()
		seen := false
		for _, n := range notesByDate[d] {
			if n == t.ContextNote {
				seen = true
				break
			}
		}
		if !seen {
			notesByDate[d] = append(notesByDate[d], t.ContextNote)
		}
	}

	dateSet := map[string]bool{}
	for d := range readyByDate {
		dateSet[d] = true
	}
	for d := range agilityByDate {
		dateSet[d] = true
	}
	for d := range focusByDate {
		dateSet[d] = true
	}
	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	baseline := perf.ReadyBaseline
	agilityPeak := perf.Agility.Peak

	summaries := make([]DailySummary, 0, len(dates))
	for _, date := range dates {
		s := DailySummary{
			Date:          date,
			ReadinessTier: "Unknown",
			ContextNotes:  []string{},
		}
		if res.Readiness != nil {
			if tier, ok := res.Readiness.TiersByDate[date]; ok {
				s.ReadinessTier = tier.Tier
			}
		}
		if rd, ok := readyByDate[date]; ok {
			s.ReadyMean = frame.Float(stats.Round(rd.Mean, 1))
			if baseline != nil && *baseline != 0 && rd.Mean != 0 {
				s.ReadyPctBaseline = frame.Float(stats.Round(rd.Mean / *baseline*100, 1))
			}
		}
		if ad, ok := agilityByDate[date]; ok {
			s.AgilityMean = frame.Float(stats.Round(ad.Mean, 1))
			if agilityPeak != nil && *agilityPeak != 0 && ad.Mean != 0 {
				s.AgilityPctPeak = frame.Float(stats.Round(ad.Mean / *agilityPeak*100, 1))
			}
		}
		if fd, ok := focusByDate[date]; ok {
			s.FocusMean = frame.Float(stats.Round(fd.Mean, 1))
		}
		if sr, ok := srByDate[date]; ok {
			s.SelfReport = SelfReportBlock{
				Stress:     roundPtr(sr.Stress, 1),
				Sleepiness: roundPtr(sr.Sleepiness, 1),
				Sharpness:  roundPtr(sr.Sharpness, 1),
			}
		}
		if act, ok := actByDate[date]; ok {
			load := act.ExerciseLoad
			s.Activity = ActivityBlock{
				ExerciseLoad: &load,
				Steps:        act.Steps,
				Calories:     stats.Round(act.Calories, 1),
			}
		}
		if st, ok := strainByDate[date]; ok {
			s.Strain = &StrainBlock{
				Score:                  st.StrainScore,
				Level:                  st.StrainLevel,
				SleepNeedAdjustmentMin: st.SleepNeedAdjustMin,
			}
		}
		if notes := notesByDate[date]; len(notes) > 0 {
			if len(notes) > 5 {
				notes = notes[:5]
			}
			s.ContextNotes = notes
		}
		summaries = append(summaries, s)
	}

	if res.Sleep != nil {
		for _, night := range res.Sleep.Nights {
			for i := range summaries {
				if summaries[i].Date == night.NightDate {
					episodes := night.WakeEpisodes
					summaries[i].Sleep = SleepBlock{
						DurationMin:  frame.Float(stats.Round(night.DurationMin, 1)),
						WakeEpisodes: &episodes,
						HRNadirBPM:   roundPtr(night.HRNadirBPM, 1),
					}
					break
				}
			}
		}
	}
	return summaries
}

func indexDaily(points []performance.DailyPoint) map[string]performance.DailyPoint {
	out := make(map[string]performance.DailyPoint, len(points))
	for _, p := range points {
		out[p.Date] = p
	}
	return out
}

func buildWeeklySummaries(res Results) []WeeklySummary {
	if res.Performance == nil {
		return []WeeklySummary{}
	}
	weeks := []WeeklySummary{}
	var prev *performance.WeeklyPoint
	for i, w := range res.Performance.Weekly {
		entry := WeeklySummary{
			WeekLabel:            w.WeekLabel,
			DateRange:            DateRange{From: w.DateMin, To: w.DateMax},
			ReadyWeekMean:        frame.Float(stats.Round(w.ReadyMean, 1)),
			ReadyWeekPctBaseline: roundPtr(w.ReadyPctBaseline, 1),
			AgilityWeekMean:      roundPtr(w.AgilityMean, 1),
			FocusWeekMean:        roundPtr(w.FocusMean, 1),
			SelfReportMeans: SelfReportBlock{
				Stress:     roundPtr(w.Stress, 1),
				Sleepiness: roundPtr(w.Sleepiness, 1),
				Sharpness:  roundPtr(w.Sharpness, 1),
			},
			TestCount: w.TestCount,
		}
		if prev != nil {
			delta := &WeekDelta{}
			prevReady := prev.ReadyMean
			if prevReady == 0 {
				prevReady = 1
			}
			delta.ReadyChangePct = frame.Float(stats.Round((w.ReadyMean-prevReady)/prevReady*100, 1))
			if prev.AgilityMean != nil && w.AgilityMean != nil && *prev.AgilityMean != 0 {
				delta.AgilityChangePct = frame.Float(stats.Round((*w.AgilityMean-*prev.AgilityMean) / *prev.AgilityMean*100, 1))
			}
			if prev.Stress != nil && w.Stress != nil {
				delta.StressChange = frame.Float(stats.Round(*w.Stress-*prev.Stress, 1))
			}
			entry.VsPriorWeek = delta
		}
		weeks = append(weeks, entry)
		prev = &res.Performance.Weekly[i]
	}
	return weeks
}

func buildTrends(res Results) Trends {
	t := Trends{ReadyTrendDirection: "stable", AgilityTrend: "stable"}
	if res.Performance != nil {
		t.Ready7dSlope = roundPtr(res.Performance.ReadySlope7d, 1)
		if res.Performance.ReadySlope7d != nil {
			switch {
			case *res.Performance.ReadySlope7d < -0.5:
				t.ReadyTrendDirection = "declining"
			case *res.Performance.ReadySlope7d > 0.5:
				t.ReadyTrendDirection = "improving"
			}
		}
	}
	if res.HRV != nil {
		t.RMSSD7dSlope = roundPtr(res.HRV.RMSSD7DSlope, 1)
	}
	return t
}

func buildCircadianProfile(c *circadian.Result) CircadianProfile {
	if c == nil {
		return CircadianProfile{}
	}
	return CircadianProfile{
		EstimatedPeakWindow:    c.EstimatedPeakWindow,
		CosinorAcrophaseHour:   roundPtr(c.AcrophaseHour, 1),
		CosinorAmplitude:       roundPtr(c.Amplitude, 1),
		WorstWindow:            c.WorstWindow,
		CosinorN:               c.CosinorN,
		PeakScoreVariance:      roundPtr(c.PeakScoreVariance, 1),
		NaturalSleepOnsetLocal: c.NaturalSleepOnsetLocal,
		NaturalWakeLocal:       c.NaturalWakeLocal,
		BedtimeVarianceMin:     roundPtr(c.BedtimeVarianceMin, 0),
		ChronotypeEstimate:     c.ChronotypeEstimate,
	}
}

// buildInsights renders the plain-English insight strings, ending with the
// detected pattern descriptions.
func buildInsights(res Results, p Packet) []string {
	insights := []string{}
	add := func(s string) { insights = append(insights, s) }

	if res.Performance != nil && res.Performance.ReadyBaseline != nil {
		daily := res.Performance.DailyReady
		if len(daily) > 0 {
			latest := daily[len(daily)-1].Mean
			if latest != 0 {
				pct := latest / *res.Performance.ReadyBaseline * 100
				add(fmt.Sprintf("Ready baseline is %s. Current average is %.1f (%.1f%% of baseline).",
					trimFloat(*res.Performance.ReadyBaseline), latest, pct))
			}
		}
	}

	if len(p.WeeklySummaries) >= 2 {
		last := p.WeeklySummaries[len(p.WeeklySummaries)-1]
		if last.VsPriorWeek != nil && last.VsPriorWeek.ReadyChangePct != nil && *last.VsPriorWeek.ReadyChangePct != 0 {
			change := *last.VsPriorWeek.ReadyChangePct
			direction := "improvement"
			if change < 0 {
				direction = "decline"
			}
			add(fmt.Sprintf("Week %s showed a %.1f%% Ready %s vs %s.",
				last.WeekLabel, abs(change), direction, p.WeeklySummaries[len(p.WeeklySummaries)-2].WeekLabel))
		}
	}

	if res.Circadian != nil && res.Circadian.EstimatedPeakWindow != nil {
		add(fmt.Sprintf("Best performance window is %s (local time).", *res.Circadian.EstimatedPeakWindow))
	}

	if res.Performance != nil && res.Performance.ReadySlope7d != nil {
		slope := *res.Performance.ReadySlope7d
		direction := "flat"
		if slope < 0 {
			direction = "declining"
		} else if slope > 0 {
			direction = "improving"
		}
		add(fmt.Sprintf("7-day Ready trend is %s (slope = %.1f points/day).", direction, slope))
	}

	if res.Sessions != nil {
		addSessionInsights(res.Sessions, add)
	}

	if res.Strain != nil && len(res.Strain.DailyStrain) > 0 {
		latest := res.Strain.DailyStrain[len(res.Strain.DailyStrain)-1]
		if latest.StrainScore >= 14 {
			add(fmt.Sprintf("Yesterday's strain was %s (%s), your sleep need tonight is increased by ~%d minutes above baseline.",
				trimFloat(latest.StrainScore), latest.StrainLevel, latest.SleepNeedAdjustMin))
		} else if latest.StrainScore > 0 {
			add(fmt.Sprintf("Recent strain was %s (%s).", trimFloat(latest.StrainScore), latest.StrainLevel))
		}
	}

	for _, pat := range res.Patterns {
		dup := false
		for _, s := range insights {
			if s == pat.Description {
				dup = true
				break
			}
		}
		if !dup {
			insights = append(insights, pat.Description)
		}
	}
	return insights
}

func addSessionInsights(ss *sessions.Result, add func(string)) {
	if debt := ss.SleepDebt; debt != nil {
		if debt.CurrentDebtHours > 0 {
			add(fmt.Sprintf("You owe %s hours of sleep. At current recovery rate, this will take ~%d days to repay.",
				trimFloat(debt.CurrentDebtHours), debt.NightsToRepay))
		} else {
			add("Sleep debt is fully repaid, you're in the green.")
		}
	}

	if arch := ss.ArchitectureSummary; arch != nil {
		switch {
		case arch.AvgDeepPct < 15:
			add(fmt.Sprintf("Deep sleep averaged %s%%, below the 15-20%% target. Expect reduced cognitive consolidation.", trimFloat(arch.AvgDeepPct)))
		case arch.AvgDeepPct > 20:
			add(fmt.Sprintf("Deep sleep averaged %s%%, above target. Excellent physical recovery.", trimFloat(arch.AvgDeepPct)))
		}
		if arch.AvgREMPct < 20 {
			add(fmt.Sprintf("REM sleep averaged %s%% (below 20-25%% target), may affect emotional regulation and memory.", trimFloat(arch.AvgREMPct)))
		}
	}

	if rec := ss.Recovery; rec != nil {
		zoneLabel := map[string]string{"green": "high", "yellow": "moderate", "red": "low"}[rec.Zone]
		advice := map[string]string{
			"green":  "You're well recovered for high-intensity activity.",
			"yellow": "Light to moderate activity recommended; defer high-intensity training.",
			"red":    "Rest strongly recommended. Your body needs recovery time.",
		}[rec.Zone]
		add(fmt.Sprintf("Recovery score is %s%% (%s). %s", trimFloat(rec.Latest), zoneLabel, advice))
		if rec.PctOfMean != nil {
			add(fmt.Sprintf("Recovery is at %s%% of your personal average (%s%%).",
				trimFloat(*rec.PctOfMean), trimFloat(rec.PersonalMean)))
		}
	}

	if perf := ss.SleepPerformance; perf != nil && perf.Consistency != nil {
		if *perf.Consistency < 75 {
			add(fmt.Sprintf("Sleep consistency is %s%%, aim for more regular bed/wake times (<45 min variation).", trimFloat(*perf.Consistency)))
		} else {
			add(fmt.Sprintf("Sleep consistency is %s%%, solid routine.", trimFloat(*perf.Consistency)))
		}
	}

	if len(ss.Nights) > 0 {
		last := ss.Nights[len(ss.Nights)-1]
		if cc := last.CircadianCompliance; cc != nil {
			if *cc >= 90 {
				add(fmt.Sprintf("Circadian compliance was %s%%, sleep timing aligns well with your biological clock.", trimFloat(*cc)))
			} else if *cc < 50 {
				add(fmt.Sprintf("Circadian compliance was only %s%%, consider adjusting sleep schedule to align with circadian rhythm.", trimFloat(*cc)))
			}
		}
	}
}

// trimFloat renders a float without trailing zeros, e.g. 14.5 and 182.
func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func roundPtr(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	return frame.Float(stats.Round(*v, places))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
