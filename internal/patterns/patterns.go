// Package patterns scans the combined analysis results for multi-day
// physiological patterns worth surfacing, each with a severity and the date
// it was first seen.
package patterns

import (
	"fmt"
	"strings"

	"github.com/vitalrun/vitalrun/internal/frame"
	"github.com/vitalrun/vitalrun/internal/hrv"
	"github.com/vitalrun/vitalrun/internal/performance"
	"github.com/vitalrun/vitalrun/internal/sessions"
	"github.com/vitalrun/vitalrun/internal/sleepdetect"
	"github.com/vitalrun/vitalrun/internal/stats"
)

// Severity levels, from most to least urgent.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Pattern is one detected multi-day signal.
type Pattern struct {
	Pattern       string  `json:"pattern"`
	Description   string  `json:"description"`
	Severity      string  `json:"severity"`
	FirstDetected *string `json:"first_detected"`
}

// Config holds the detection thresholds.
type Config struct {
	ReadinessDebtMinDays     int     `yaml:"readiness_debt_min_days"`
	ReadinessDebtWindow      int     `yaml:"readiness_debt_window"`
	ReadinessDebtDeclines    int     `yaml:"readiness_debt_declines"`
	RMSSDDecliningSlope      float64 `yaml:"rmssd_declining_slope"`
	FragmentationEpisodes    int     `yaml:"fragmentation_episodes"`
	ShortSleepMin            float64 `yaml:"short_sleep_min"`
	CompoundStressMin        float64 `yaml:"compound_stress_min"`
	CompoundSleepinessMin    float64 `yaml:"compound_sleepiness_min"`
	CompoundOccurrences      int     `yaml:"compound_occurrences"`
	MismatchSharpnessMin     float64 `yaml:"mismatch_sharpness_min"`
	MismatchReadyMax         float64 `yaml:"mismatch_ready_max"`
	DivergenceReadyDropPct   float64 `yaml:"divergence_ready_drop_pct"`
	DivergenceAgilityGainPct float64 `yaml:"divergence_agility_gain_pct"`
	MealDipPoints            float64 `yaml:"meal_dip_points"`
	ChronicDebtMin           float64 `yaml:"chronic_debt_min"`
	DeepDeficitPct           float64 `yaml:"deep_deficit_pct"`
	REMDeficitPct            float64 `yaml:"rem_deficit_pct"`
	LowRecoveryMax           float64 `yaml:"low_recovery_max"`
	LowEfficiencyPct         float64 `yaml:"low_efficiency_pct"`
	MisalignmentPct          float64 `yaml:"misalignment_pct"`
}

// DefaultConfig returns the built-in detection thresholds.
func DefaultConfig() Config {
	return Config{
		ReadinessDebtMinDays:     5,
		ReadinessDebtWindow:      7,
		ReadinessDebtDeclines:    3,
		RMSSDDecliningSlope:      -2,
		FragmentationEpisodes:    4,
		ShortSleepMin:            360,
		CompoundStressMin:        5,
		CompoundSleepinessMin:    5,
		CompoundOccurrences:      3,
		MismatchSharpnessMin:     7,
		MismatchReadyMax:         140,
		DivergenceReadyDropPct:   -5,
		DivergenceAgilityGainPct: 5,
		MealDipPoints:            10,
		ChronicDebtMin:           120,
		DeepDeficitPct:           15,
		REMDeficitPct:            20,
		LowRecoveryMax:           34,
		LowEfficiencyPct:         85,
		MisalignmentPct:          50,
	}
}

var mealKeywords = []string{"eating", "meal", "ate", "lunch", "dinner", "food", "snack"}

// Inputs bundles the analysis results the detector scans. Nil sections are
// skipped.
type Inputs struct {
	Tests       []frame.TestResult
	Performance *performance.Result
	HRV         *hrv.Result
	Sleep       *sleepdetect.Result
	Sessions    *sessions.Result
}

// Detector runs the pattern rules.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Detect runs every rule and returns the detected patterns in rule order.
func (d *Detector) Detect(in Inputs) []Pattern {
	out := []Pattern{}
	add := func(p *Pattern) {
		if p != nil {
			out = append(out, *p)
		}
	}

	if in.Performance != nil {
		add(d.readinessDebt(in.Performance))
	}
	if in.HRV != nil {
		add(d.rmssdDeclining(in.HRV))
	}
	if in.Sleep != nil {
		add(d.fragmentation(in.Sleep.Nights))
		add(d.shortSleep(in.Sleep.Nights))
	}
	add(d.stressSleepinessCompound(in.Tests))
	add(d.subjectiveMismatch(in.Tests))
	if in.Performance != nil {
		add(d.agilityReadyDivergence(in.Performance.Weekly))
		add(d.postMealDip(in.Tests, in.Performance.ReadyBaseline))
	}
	if in.Sessions != nil {
		add(d.chronicDebt(in.Sessions))
		add(d.deepDeficit(in.Sessions.Nights))
		add(d.remDeficit(in.Sessions.Nights))
		add(d.lowRecovery(in.Sessions.Nights))
		add(d.lowEfficiency(in.Sessions.Nights))
		add(d.circadianMisalignment(in.Sessions.Nights))
	}
	return out
}

// readinessDebt fires when daily READY means decline on most of the recent
// days.
func (d *Detector) readinessDebt(perf *performance.Result) *Pattern {
	daily := perf.DailyReady
	if len(daily) < d.cfg.ReadinessDebtMinDays {
		return nil
	}
	recent := daily
	if len(recent) > d.cfg.ReadinessDebtWindow {
		recent = recent[len(recent)-d.cfg.ReadinessDebtWindow:]
	}
	means := make([]float64, len(recent))
	for i, p := range recent {
		means[i] = p.Mean
	}
	if len(means) < d.cfg.ReadinessDebtMinDays {
		return nil
	}
	declining := 0
	for i := 1; i < len(means); i++ {
		if means[i]-means[i-1] < 0 {
			declining++
		}
	}
	if declining < d.cfg.ReadinessDebtDeclines {
		return nil
	}
	drop := means[len(means)-1] - means[0]
	desc := fmt.Sprintf("Ready scores declined %.0f points over %d days", abs(drop), len(means))
	if perf.ReadyBaseline != nil && *perf.ReadyBaseline != 0 {
		pct := abs(drop / *perf.ReadyBaseline * 100)
		desc = fmt.Sprintf("Ready scores declined %.0f points (%.1f%%) over %d days", abs(drop), pct, len(means))
	}
	return &Pattern{
		Pattern:       "compounding_readiness_debt",
		Description:   desc,
		Severity:      SeverityWarning,
		FirstDetected: strPtr(recent[len(recent)-1].Date),
	}
}

func (d *Detector) rmssdDeclining(h *hrv.Result) *Pattern {
	if h.RMSSD7DSlope == nil || *h.RMSSD7DSlope >= d.cfg.RMSSDDecliningSlope {
		return nil
	}
	return &Pattern{
		Pattern:     "rmssd_declining",
		Description: fmt.Sprintf("RMSSD trending down (slope=%.1f ms/day). Possible overreach.", *h.RMSSD7DSlope),
		Severity:    SeverityWarning,
	}
}

func (d *Detector) fragmentation(nights []sleepdetect.Night) *Pattern {
	var hit []sleepdetect.Night
	for _, n := range nights {
		if n.WakeEpisodes > d.cfg.FragmentationEpisodes {
			hit = append(hit, n)
		}
	}
	if len(hit) < 2 {
		return nil
	}
	return &Pattern{
		Pattern:       "sleep_fragmentation",
		Description:   fmt.Sprintf("Wake episodes >%d on %d nights, sleep quality compromised", d.cfg.FragmentationEpisodes, len(hit)),
		Severity:      SeverityWarning,
		FirstDetected: strPtr(hit[0].NightDate),
	}
}

func (d *Detector) shortSleep(nights []sleepdetect.Night) *Pattern {
	var hit []sleepdetect.Night
	for _, n := range nights {
		if n.DurationMin < d.cfg.ShortSleepMin {
			hit = append(hit, n)
		}
	}
	if len(hit) < 2 {
		return nil
	}
	return &Pattern{
		Pattern:       "sleep_debt",
		Description:   fmt.Sprintf("Sleep <6h on %d nights, accumulated sleep debt", len(hit)),
		Severity:      SeverityWarning,
		FirstDetected: strPtr(hit[0].NightDate),
	}
}

// stressSleepinessCompound fires when both self-report ratings exceed the
// threshold on several occasions.
func (d *Detector) stressSleepinessCompound(tests []frame.TestResult) *Pattern {
	var hit []frame.TestResult
	var readyScores []float64
	for _, t := range tests {
		if t.Stress != nil && t.Sleepiness != nil &&
			*t.Stress > d.cfg.CompoundStressMin && *t.Sleepiness > d.cfg.CompoundSleepinessMin {
			hit = append(hit, t)
			if t.Type == performance.TypeReady && t.HasScore {
				readyScores = append(readyScores, t.Score)
			}
		}
	}
	if len(hit) < d.cfg.CompoundOccurrences {
		return nil
	}
	readyNote := ""
	if len(readyScores) > 0 {
		readyNote = fmt.Sprintf(", correlated with Ready <%.0f", stats.Mean(readyScores))
	}
	first := hit[0].DateKey()
	for _, t := range hit[1:] {
		if d := t.DateKey(); d < first {
			first = d
		}
	}
	return &Pattern{
		Pattern:       "stress_sleepiness_compounding",
		Description:   fmt.Sprintf("Stress >%.0f and sleepiness >%.0f simultaneously on %d occasions%s", d.cfg.CompoundStressMin, d.cfg.CompoundSleepinessMin, len(hit), readyNote),
		Severity:      SeverityWarning,
		FirstDetected: strPtr(first),
	}
}

// subjectiveMismatch fires when high self-rated sharpness coincides with a
// low READY score; the worst occurrence is reported.
func (d *Detector) subjectiveMismatch(tests []frame.TestResult) *Pattern {
	var worst *frame.TestResult
	for i, t := range tests {
		if t.Type != performance.TypeReady || t.Sharpness == nil || !t.HasScore {
			continue
		}
		if *t.Sharpness >= d.cfg.MismatchSharpnessMin && t.Score < d.cfg.MismatchReadyMax {
			if worst == nil || t.Score < worst.Score {
				worst = &tests[i]
			}
		}
	}
	if worst == nil {
		return nil
	}
	return &Pattern{
		Pattern:       "subjective_objective_mismatch",
		Description:   fmt.Sprintf("Self-reported sharpness %.0f/10 co-occurred with Ready %.0f on %s", *worst.Sharpness, worst.Score, worst.DateKey()),
		Severity:      SeverityInfo,
		FirstDetected: strPtr(worst.DateKey()),
	}
}

// agilityReadyDivergence compares the last two weeks: composite readiness
// dropping while agility improves.
func (d *Detector) agilityReadyDivergence(weekly []performance.WeeklyPoint) *Pattern {
	if len(weekly) < 2 {
		return nil
	}
	latest, prior := weekly[len(weekly)-1], weekly[len(weekly)-2]
	if latest.ReadyChangePct == nil || latest.AgilityMean == nil || prior.AgilityMean == nil || *prior.AgilityMean <= 0 {
		return nil
	}
	agilityChange := (*latest.AgilityMean - *prior.AgilityMean) / *prior.AgilityMean * 100
	if *latest.ReadyChangePct >= d.cfg.DivergenceReadyDropPct || agilityChange <= d.cfg.DivergenceAgilityGainPct {
		return nil
	}
	return &Pattern{
		Pattern:       "agility_ready_divergence",
		Description:   fmt.Sprintf("Ready declined %.1f%% while Agility improved %.1f%%, neuromuscular preserved but composite readiness degrading", abs(*latest.ReadyChangePct), agilityChange),
		Severity:      SeverityInfo,
		FirstDetected: strPtr(latest.DateMin),
	}
}

// postMealDip looks for READY tests whose context note mentions food and
// compares their mean against baseline.
func (d *Detector) postMealDip(tests []frame.TestResult, baseline *float64) *Pattern {
	if baseline == nil || *baseline == 0 {
		return nil
	}
	var scores []float64
	first := ""
	for _, t := range tests {
		if t.Type != performance.TypeReady || !t.HasScore {
			continue
		}
		note := strings.ToLower(t.ContextNote)
		for _, kw := range mealKeywords {
			if strings.Contains(note, kw) {
				scores = append(scores, t.Score)
				if d := t.DateKey(); first == "" || d < first {
					first = d
				}
				break
			}
		}
	}
	if len(scores) < 2 {
		return nil
	}
	mean := stats.Mean(scores)
	dip := *baseline - mean
	if dip <= d.cfg.MealDipPoints {
		return nil
	}
	return &Pattern{
		Pattern:       "post_meal_dip_detected",
		Description:   fmt.Sprintf("Post-meal Ready averages %.0f (%.0f points below baseline)", mean, dip),
		Severity:      SeverityInfo,
		FirstDetected: strPtr(first),
	}
}

func (d *Detector) chronicDebt(sess *sessions.Result) *Pattern {
	if sess.SleepDebt == nil || sess.SleepDebt.CurrentDebtMin <= d.cfg.ChronicDebtMin {
		return nil
	}
	debtH := stats.Round(sess.SleepDebt.CurrentDebtMin/60, 1)
	p := &Pattern{
		Pattern:     "chronic_sleep_debt",
		Description: fmt.Sprintf("Sleep debt is %gh, you owe significant sleep. Recovery takes ~%d days at current pace.", debtH, int(debtH*4)),
		Severity:    SeverityWarning,
	}
	if len(sess.Nights) > 0 {
		p.FirstDetected = strPtr(sess.Nights[0].NightDate)
	}
	return p
}

func (d *Detector) deepDeficit(nights []sessions.NightSummary) *Pattern {
	var hit []sessions.NightSummary
	var pcts []float64
	for _, n := range nights {
		if n.DeepPct < d.cfg.DeepDeficitPct && n.TotalSleepMin > 60 {
			hit = append(hit, n)
			pcts = append(pcts, n.DeepPct)
		}
	}
	if len(hit) < 2 {
		return nil
	}
	return &Pattern{
		Pattern:       "deep_sleep_deficit",
		Description:   fmt.Sprintf("Deep sleep below %.0f%% target on %d nights (avg %.1f%%). Cognitive consolidation and physical recovery may be impaired.", d.cfg.DeepDeficitPct, len(hit), stats.Mean(pcts)),
		Severity:      SeverityWarning,
		FirstDetected: strPtr(hit[0].NightDate),
	}
}

func (d *Detector) remDeficit(nights []sessions.NightSummary) *Pattern {
	var hit []sessions.NightSummary
	var pcts []float64
	for _, n := range nights {
		if n.REMPct < d.cfg.REMDeficitPct && n.TotalSleepMin > 60 {
			hit = append(hit, n)
			pcts = append(pcts, n.REMPct)
		}
	}
	if len(hit) < 2 {
		return nil
	}
	return &Pattern{
		Pattern:       "rem_sleep_deficit",
		Description:   fmt.Sprintf("REM sleep below %.0f%% target on %d nights (avg %.1f%%). May affect emotional regulation and memory.", d.cfg.REMDeficitPct, len(hit), stats.Mean(pcts)),
		Severity:      SeverityWarning,
		FirstDetected: strPtr(hit[0].NightDate),
	}
}

func (d *Detector) lowRecovery(nights []sessions.NightSummary) *Pattern {
	var hit []sessions.NightSummary
	for _, n := range nights {
		if n.RecoveryScore != nil && *n.RecoveryScore < d.cfg.LowRecoveryMax {
			hit = append(hit, n)
		}
	}
	if len(hit) < 2 {
		return nil
	}
	return &Pattern{
		Pattern:       "low_recovery",
		Description:   fmt.Sprintf("Recovery score in red zone (<%.0f%%) on %d sessions. Rest and light activity strongly recommended.", d.cfg.LowRecoveryMax, len(hit)),
		Severity:      SeverityWarning,
		FirstDetected: strPtr(hit[0].NightDate),
	}
}

func (d *Detector) lowEfficiency(nights []sessions.NightSummary) *Pattern {
	var hit []sessions.NightSummary
	var pcts []float64
	for _, n := range nights {
		if n.EfficiencyPct < d.cfg.LowEfficiencyPct && n.SessionTimeMin > 60 {
			hit = append(hit, n)
			pcts = append(pcts, n.EfficiencyPct)
		}
	}
	if len(hit) < 2 {
		return nil
	}
	return &Pattern{
		Pattern:       "sleep_efficiency_low",
		Description:   fmt.Sprintf("Sleep efficiency below %.0f%% on %d nights (avg %.1f%%). Significant time in bed spent awake.", d.cfg.LowEfficiencyPct, len(hit), stats.Mean(pcts)),
		Severity:      SeverityInfo,
		FirstDetected: strPtr(hit[0].NightDate),
	}
}

func (d *Detector) circadianMisalignment(nights []sessions.NightSummary) *Pattern {
	var hit []sessions.NightSummary
	for _, n := range nights {
		if n.CircadianCompliance != nil && *n.CircadianCompliance < d.cfg.MisalignmentPct {
			hit = append(hit, n)
		}
	}
	if len(hit) < 2 {
		return nil
	}
	return &Pattern{
		Pattern:       "circadian_misalignment",
		Description:   fmt.Sprintf("Circadian compliance below %.0f%% on %d nights. Sleep timing is misaligned with biological clock.", d.cfg.MisalignmentPct, len(hit)),
		Severity:      SeverityWarning,
		FirstDetected: strPtr(hit[0].NightDate),
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func strPtr(s string) *string { return &s }
