// Package sessions analyzes the logged sleep-session frame: primary/nap
// classification, per-night architecture stats, sleep debt, recovery zones,
// and the composite sleep-performance score.
package sessions

import (
	"fmt"
	"math"
	"time"

	"github.com/vitalrun/vitalrun/internal/frame"
	"github.com/vitalrun/vitalrun/internal/stats"
)

// TargetBand is an inclusive percentage band for a sleep stage.
type TargetBand struct {
	Lo float64 `yaml:"lo"`
	Hi float64 `yaml:"hi"`
}

// Contains reports whether v falls inside the band.
func (b TargetBand) Contains(v float64) bool { return v >= b.Lo && v <= b.Hi }

// String renders the band for display, e.g. "15-20%".
func (b TargetBand) String() string { return fmt.Sprintf("%g-%g%%", b.Lo, b.Hi) }

// Config holds the session-analysis constants.
type Config struct {
	DeepTarget  TargetBand `yaml:"deep_target"`
	REMTarget   TargetBand `yaml:"rem_target"`
	LightTarget TargetBand `yaml:"light_target"`

	RecoveryRedMax   float64 `yaml:"recovery_red_max"`   // below = red
	RecoveryGreenMin float64 `yaml:"recovery_green_min"` // at or above = green
	DebtRepayRate    float64 `yaml:"debt_repay_rate"`    // nights per debt-hour

	NapStartHour int `yaml:"nap_start_hour"`
	NapEndHour   int `yaml:"nap_end_hour"` // inclusive

	ConsistencyPenalty float64 `yaml:"consistency_penalty"` // points per stddev-hour
	REMDebtNights      int     `yaml:"rem_debt_nights"`
}

// DefaultConfig returns the built-in session-analysis constants.
func DefaultConfig() Config {
	return Config{
		DeepTarget:         TargetBand{Lo: 15, Hi: 20},
		REMTarget:          TargetBand{Lo: 20, Hi: 25},
		LightTarget:        TargetBand{Lo: 50, Hi: 60},
		RecoveryRedMax:     34,
		RecoveryGreenMin:   67,
		DebtRepayRate:      4,
		NapStartHour:       10,
		NapEndHour:         17,
		ConsistencyPenalty: 25,
		REMDebtNights:      3,
	}
}

// SessionType distinguishes the main overnight sleep from naps.
type SessionType string

const (
	Primary SessionType = "primary"
	Nap     SessionType = "nap"
)

// NightSummary is the derived per-session record.
type NightSummary struct {
	NightDate   string      `json:"night_date"`
	SessionType SessionType `json:"session_type"`
	SleepStart  time.Time   `json:"sleep_start"`
	SleepEnd    time.Time   `json:"sleep_end"`

	TotalSleepMin  float64 `json:"total_sleep_min"`
	SessionTimeMin float64 `json:"session_time_min"`
	DeepMin        float64 `json:"deep_min"`
	DeepPct        float64 `json:"deep_pct"`
	DeepOnTarget   bool    `json:"deep_on_target"`
	REMMin         float64 `json:"rem_min"`
	REMPct         float64 `json:"rem_pct"`
	REMOnTarget    bool    `json:"rem_on_target"`
	LightMin       float64 `json:"light_min"`
	LightPct       float64 `json:"light_pct"`
	WakeMin        float64 `json:"wake_min"`
	WakePct        float64 `json:"wake_pct"`
	EfficiencyPct  float64 `json:"efficiency_pct"`

	SufficiencyPct      *float64 `json:"sufficiency_pct"`
	SleepNeededMin      *float64 `json:"sleep_needed_min"`
	SleepDebtMin        *float64 `json:"sleep_debt_min"`
	RecoveryScore       *float64 `json:"recovery_score"`
	StressScore         *float64 `json:"stress_score"`
	AvgHRVRMSSD         *float64 `json:"avg_hrv_rmssd_ms"`
	AvgHRBPM            *float64 `json:"avg_hr_bpm"`
	CircadianCompliance *float64 `json:"circadian_compliance"`
}

// DebtSummary tracks accumulated sleep debt.
type DebtSummary struct {
	CurrentDebtMin       float64  `json:"current_debt_min"`
	CurrentDebtHours     float64  `json:"current_debt_hours"`
	NightsToRepay        int      `json:"nights_to_repay"`
	AvgNightlyDeficitMin *float64 `json:"avg_nightly_deficit_min"`
	Trend                string   `json:"trend"` // worsening|improving|stable
}

// RecoverySummary tracks the recovery-score zone and trend.
type RecoverySummary struct {
	Latest             float64   `json:"latest"`
	Zone               string    `json:"zone"` // red|yellow|green
	PersonalMean       float64   `json:"personal_mean"`
	PctOfMean          *float64  `json:"pct_of_mean"`
	Trend              string    `json:"trend"` // improving|declining|stable
	DaysSinceGreenZone int       `json:"days_since_green_zone"`
	History            []float64 `json:"history"`
}

// PerformanceSummary is the composite sleep-performance score and its parts.
type PerformanceSummary struct {
	CompositeScore      *float64 `json:"composite_score"`
	Sufficiency         *float64 `json:"sufficiency"`
	Efficiency          *float64 `json:"efficiency"`
	Consistency         *float64 `json:"consistency"`
	ArchitectureQuality *float64 `json:"architecture_quality"`
	BedtimeVarianceMin  *int     `json:"bedtime_variance_min"`
}

// TypeBreakdown counts sessions by classification.
type TypeBreakdown struct {
	PrimaryNights int `json:"primary_nights"`
	NapSessions   int `json:"nap_sessions"`
}

// ArchitectureSummary aggregates stage structure over primary nights only.
type ArchitectureSummary struct {
	AvgDeepPct       float64       `json:"avg_deep_pct"`
	AvgREMPct        float64       `json:"avg_rem_pct"`
	AvgLightPct      float64       `json:"avg_light_pct"`
	AvgEfficiencyPct float64       `json:"avg_efficiency_pct"`
	DeepTarget       string        `json:"deep_target"`
	REMTarget        string        `json:"rem_target"`
	REMDebtMin3Night int           `json:"rem_debt_min_3night"`
	AvgBedtimeLocal  *string       `json:"avg_bedtime_local"`
	AvgWakeLocal     *string       `json:"avg_wake_local"`
	SessionTypes     TypeBreakdown `json:"session_type_breakdown"`
}

// Result is the full session-analysis output. Nil sections mean the input
// frame was missing or carried no usable readings.
type Result struct {
	Nights              []NightSummary       `json:"nights"`
	SleepDebt           *DebtSummary         `json:"sleep_debt"`
	Recovery            *RecoverySummary     `json:"recovery"`
	SleepPerformance    *PerformanceSummary  `json:"sleep_performance"`
	ArchitectureSummary *ArchitectureSummary `json:"architecture_summary"`
}

// Analyzer computes the session-log analysis.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer creates an analyzer with the given constants.
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// ClassifyTypes tags each session as primary or nap. A session starting in
// the nap-hour window is a nap; when several sessions share a night-date key,
// all but the longest (by total sleep time) are naps.
func (a *Analyzer) ClassifyTypes(sessions []frame.SleepSession) []SessionType {
	types := make([]SessionType, len(sessions))
	for i, s := range sessions {
		types[i] = Primary
		h := s.StartLocal.Hour()
		if h >= a.cfg.NapStartHour && h <= a.cfg.NapEndHour {
			types[i] = Nap
		}
	}

	byNight := make(map[string][]int)
	for i, s := range sessions {
		byNight[s.NightDate] = append(byNight[s.NightDate], i)
	}
	for _, idxs := range byNight {
		if len(idxs) < 2 {
			continue
		}
		longest := idxs[0]
		for _, i := range idxs[1:] {
			if sessions[i].SleepMin > sessions[longest].SleepMin {
				longest = i
			}
		}
		for _, i := range idxs {
			if i != longest {
				types[i] = Nap
			}
		}
	}
	return types
}

// Analyze runs the full session-log analysis. An empty frame yields the
// all-nil result.
func (a *Analyzer) Analyze(sessions []frame.SleepSession) Result {
	res := Result{Nights: []NightSummary{}}
	if len(sessions) == 0 {
		return res
	}

	types := a.ClassifyTypes(sessions)

	var primaries []frame.SleepSession
	var primaryNights []NightSummary
	napCount := 0
	for i, s := range sessions {
		night := a.buildNight(s, types[i])
		res.Nights = append(res.Nights, night)
		if types[i] == Primary {
			primaries = append(primaries, s)
			primaryNights = append(primaryNights, night)
		} else {
			napCount++
		}
	}

	res.SleepDebt = a.analyzeDebt(primaries)
	res.Recovery = a.analyzeRecovery(primaries)
	res.SleepPerformance = a.performance(primaries, primaryNights)
	res.ArchitectureSummary = a.architecture(primaryNights, napCount)
	return res
}

func (a *Analyzer) buildNight(s frame.SleepSession, st SessionType) NightSummary {
	pct := func(part, whole float64) float64 {
		if whole <= 0 {
			return 0
		}
		return stats.Round(part/whole*100, 1)
	}
	n := NightSummary{
		NightDate:      s.NightDate,
		SessionType:    st,
		SleepStart:     s.StartLocal,
		SleepEnd:       s.EndLocal,
		TotalSleepMin:  stats.Round(s.SleepMin, 1),
		SessionTimeMin: stats.Round(s.SessionMin, 1),
		DeepMin:        stats.Round(s.DeepMin, 1),
		DeepPct:        pct(s.DeepMin, s.SleepMin),
		REMMin:         stats.Round(s.REMMin, 1),
		REMPct:         pct(s.REMMin, s.SleepMin),
		LightMin:       stats.Round(s.LightMin, 1),
		LightPct:       pct(s.LightMin, s.SleepMin),
		WakeMin:        stats.Round(s.WakeMin, 1),
		WakePct:        pct(s.WakeMin, s.SessionMin),
		EfficiencyPct:  pct(s.SleepMin, s.SessionMin),

		SleepNeededMin:      roundPtr(s.SleepNeededMin, 1),
		SleepDebtMin:        roundPtr(s.SleepDebtMin, 1),
		RecoveryScore:       roundPtr(s.RecoveryScore, 1),
		StressScore:         roundPtr(s.StressScore, 2),
		AvgHRVRMSSD:         roundPtr(s.AvgHRVRMSSD, 1),
		AvgHRBPM:            roundPtr(s.AvgWakeHR, 1),
		CircadianCompliance: roundPtr(s.CircadianCompliance, 1),
	}
	n.DeepOnTarget = a.cfg.DeepTarget.Contains(n.DeepPct)
	n.REMOnTarget = a.cfg.REMTarget.Contains(n.REMPct)
	if s.SleepNeededMin != nil && *s.SleepNeededMin > 0 {
		n.SufficiencyPct = frame.Float(pct(s.SleepMin, *s.SleepNeededMin))
	}
	return n
}

// analyzeDebt reports the most recent debt reading with repay projection and
// a direction over the last three readings.
func (a *Analyzer) analyzeDebt(primaries []frame.SleepSession) *DebtSummary {
	var debts []float64
	var needed, actual []float64
	for _, s := range primaries {
		if s.SleepDebtMin != nil {
			debts = append(debts, *s.SleepDebtMin)
		}
		if s.SleepNeededMin != nil {
			needed = append(needed, *s.SleepNeededMin)
		}
		actual = append(actual, s.SleepMin)
	}
	if len(debts) == 0 {
		return nil
	}

	current := debts[len(debts)-1]
	debtHours := stats.Round(current/60, 1)
	nightsToRepay := 0
	if debtHours > 0 {
		nightsToRepay = int(math.Round(debtHours * a.cfg.DebtRepayRate))
	}

	d := &DebtSummary{
		CurrentDebtMin:   stats.Round(current, 1),
		CurrentDebtHours: debtHours,
		NightsToRepay:    nightsToRepay,
		Trend:            debtTrend(debts),
	}
	if len(needed) > 0 && len(actual) > 0 {
		d.AvgNightlyDeficitMin = frame.Float(stats.Round(stats.Mean(needed)-stats.Mean(actual), 1))
	}
	return d
}

func debtTrend(debts []float64) string {
	var window []float64
	switch {
	case len(debts) >= 3:
		window = debts[len(debts)-3:]
	case len(debts) >= 2:
		window = debts
	default:
		return "stable"
	}
	last, first := window[len(window)-1], window[0]
	switch {
	case last > first:
		return "worsening"
	case last < first:
		return "improving"
	default:
		return "stable"
	}
}

// analyzeRecovery computes zone banding, last-two trend, and days since the
// most recent green-zone reading.
func (a *Analyzer) analyzeRecovery(primaries []frame.SleepSession) *RecoverySummary {
	var scores []float64
	for _, s := range primaries {
		if s.RecoveryScore != nil {
			scores = append(scores, *s.RecoveryScore)
		}
	}
	if len(scores) == 0 {
		return nil
	}

	latest := scores[len(scores)-1]
	mean := stats.Mean(scores)

	zone := "green"
	switch {
	case latest < a.cfg.RecoveryRedMax:
		zone = "red"
	case latest < a.cfg.RecoveryGreenMin:
		zone = "yellow"
	}

	trend := "stable"
	if len(scores) >= 2 {
		prev := scores[len(scores)-2]
		if latest > prev {
			trend = "improving"
		} else if latest < prev {
			trend = "declining"
		}
	}

	daysSinceGreen := len(scores)
	for i := len(scores) - 1; i >= 0; i-- {
		if scores[i] >= a.cfg.RecoveryGreenMin {
			daysSinceGreen = len(scores) - 1 - i
			break
		}
	}

	history := make([]float64, len(scores))
	for i, s := range scores {
		history[i] = stats.Round(s, 1)
	}

	r := &RecoverySummary{
		Latest:             stats.Round(latest, 1),
		Zone:               zone,
		PersonalMean:       stats.Round(mean, 1),
		Trend:              trend,
		DaysSinceGreenZone: daysSinceGreen,
		History:            history,
	}
	if mean > 0 {
		r.PctOfMean = frame.Float(stats.Round(latest/mean*100, 1))
	}
	return r
}

// performance builds the composite score as the unweighted mean of whichever
// sub-scores can be computed.
func (a *Analyzer) performance(primaries []frame.SleepSession, nights []NightSummary) *PerformanceSummary {
	if len(nights) == 0 {
		return nil
	}
	p := &PerformanceSummary{}

	var sufficiencies, efficiencies []float64
	for _, n := range nights {
		if n.SufficiencyPct != nil {
			sufficiencies = append(sufficiencies, *n.SufficiencyPct)
		}
		efficiencies = append(efficiencies, n.EfficiencyPct)
	}
	if len(sufficiencies) > 0 {
		p.Sufficiency = frame.Float(stats.Round(math.Min(100, stats.Mean(sufficiencies)), 1))
	}
	if len(efficiencies) > 0 {
		p.Efficiency = frame.Float(stats.Round(math.Min(100, stats.Mean(efficiencies)), 1))
	}

	if len(primaries) >= 2 {
		var adjusted []float64
		for _, s := range primaries {
			bt := s.LocalHour()
			if bt > 12 {
				bt -= 24
			}
			adjusted = append(adjusted, bt)
		}
		std := stats.Std(adjusted)
		varianceMin := int(stats.Round(std*60, 0))
		p.BedtimeVarianceMin = &varianceMin
		p.Consistency = frame.Float(stats.Round(stats.Clamp(100-std*a.cfg.ConsistencyPenalty, 0, 100), 1))
	}

	var archScores []float64
	for _, n := range nights {
		deep := a.targetScore(n.DeepPct, a.cfg.DeepTarget)
		rem := a.targetScore(n.REMPct, a.cfg.REMTarget)
		archScores = append(archScores, (deep+rem)/2)
	}
	if len(archScores) > 0 {
		p.ArchitectureQuality = frame.Float(stats.Round(stats.Mean(archScores), 1))
	}

	var parts []float64
	for _, c := range []*float64{p.Sufficiency, p.Efficiency, p.Consistency, p.ArchitectureQuality} {
		if c != nil {
			parts = append(parts, *c)
		}
	}
	if len(parts) > 0 {
		p.CompositeScore = frame.Float(stats.Round(stats.Mean(parts), 1))
	}
	return p
}

// targetScore is 100 inside the band and decays linearly with distance from
// the nearest edge, scaled by the band midpoint.
func (a *Analyzer) targetScore(value float64, band TargetBand) float64 {
	if band.Contains(value) {
		return 100
	}
	mid := (band.Lo + band.Hi) / 2
	distance := math.Min(math.Abs(value-band.Lo), math.Abs(value-band.Hi))
	return math.Max(0, 100-distance*(100/mid))
}

// architecture aggregates stage structure over primary nights, including REM
// debt over the most recent nights against the low edge of the REM target.
func (a *Analyzer) architecture(primaryNights []NightSummary, napCount int) *ArchitectureSummary {
	if len(primaryNights) == 0 {
		return nil
	}

	var deep, rem, light, eff []float64
	for _, n := range primaryNights {
		deep = append(deep, n.DeepPct)
		rem = append(rem, n.REMPct)
		light = append(light, n.LightPct)
		eff = append(eff, n.EfficiencyPct)
	}

	remDebt := 0.0
	recent := primaryNights
	if len(recent) > a.cfg.REMDebtNights {
		recent = recent[len(recent)-a.cfg.REMDebtNights:]
	}
	for _, n := range recent {
		target := n.TotalSleepMin * (a.cfg.REMTarget.Lo / 100)
		if deficit := target - n.REMMin; deficit > 0 {
			remDebt += deficit
		}
	}

	arch := &ArchitectureSummary{
		AvgDeepPct:       stats.Round(stats.Mean(deep), 1),
		AvgREMPct:        stats.Round(stats.Mean(rem), 1),
		AvgLightPct:      stats.Round(stats.Mean(light), 1),
		AvgEfficiencyPct: stats.Round(stats.Mean(eff), 1),
		DeepTarget:       a.cfg.DeepTarget.String(),
		REMTarget:        a.cfg.REMTarget.String(),
		REMDebtMin3Night: int(stats.Round(remDebt, 0)),
		SessionTypes: TypeBreakdown{
			PrimaryNights: len(primaryNights),
			NapSessions:   napCount,
		},
	}

	var adjusted, wakes []float64
	for _, n := range primaryNights {
		bt := float64(n.SleepStart.Hour()) + float64(n.SleepStart.Minute())/60.0
		if bt > 12 {
			bt -= 24
		}
		adjusted = append(adjusted, bt)
		wakes = append(wakes, float64(n.SleepEnd.Hour())+float64(n.SleepEnd.Minute())/60.0)
	}
	if len(adjusted) > 0 {
		meanBT := stats.Mean(adjusted)
		if meanBT < 0 {
			meanBT += 24
		}
		arch.AvgBedtimeLocal = clock(meanBT)
		arch.AvgWakeLocal = clock(stats.Mean(wakes))
	}
	return arch
}

func clock(h float64) *string {
	s := fmt.Sprintf("%02d:%02d", int(h), int(math.Mod(h, 1)*60))
	return &s
}

func roundPtr(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	return frame.Float(stats.Round(*v, places))
}
