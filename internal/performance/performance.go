// Package performance analyzes cognitive test scores: baseline detection,
// per-type statistics, daily and ISO-week trajectories, and trend slopes.
package performance

import (
	"fmt"
	"sort"

	"github.com/vitalrun/vitalrun/internal/frame"
	"github.com/vitalrun/vitalrun/internal/stats"
)

// Test types present in the result log.
const (
	TypeReady   = "READY"
	TypeAgility = "AGILITY"
	TypeFocus   = "FOCUS"
)

// Config holds the trajectory constants.
type Config struct {
	RollingWindowDays int `yaml:"rolling_window_days"`
	SlopeTailDays     int `yaml:"slope_tail_days"`
}

// DefaultConfig returns the built-in trajectory constants.
func DefaultConfig() Config {
	return Config{RollingWindowDays: 7, SlopeTailDays: 7}
}

// TypeStats summarizes the score distribution of one test type.
type TypeStats struct {
	Peak  *float64    `json:"peak"`
	Floor *float64    `json:"floor"`
	Mean  *float64    `json:"mean"`
	IQR   [2]*float64 `json:"iqr"`
}

// DailyPoint is one day of scores for a single test type.
type DailyPoint struct {
	Date        string   `json:"date"`
	Mean        float64  `json:"mean"`
	Min         float64  `json:"min"`
	Max         float64  `json:"max"`
	Count       int      `json:"count"`
	Rolling7d   *float64 `json:"rolling_7d,omitempty"`
	PctBaseline *float64 `json:"pct_baseline,omitempty"`
}

// DailySelfReport is one day of mean self-report ratings.
type DailySelfReport struct {
	Date       string   `json:"date"`
	Stress     *float64 `json:"stress"`
	Sleepiness *float64 `json:"sleepiness"`
	Sharpness  *float64 `json:"sharpness"`
}

// WeeklyPoint aggregates one ISO week across test types and self-reports.
type WeeklyPoint struct {
	WeekLabel        string   `json:"week_label"`
	ReadyMean        float64  `json:"ready_mean"`
	ReadyMin         float64  `json:"ready_min"`
	ReadyMax         float64  `json:"ready_max"`
	TestCount        int      `json:"test_count"`
	DateMin          string   `json:"date_min"`
	DateMax          string   `json:"date_max"`
	ReadyPctBaseline *float64 `json:"ready_pct_baseline,omitempty"`
	ReadyChangePct   *float64 `json:"ready_change_pct"`
	Stress           *float64 `json:"stress,omitempty"`
	Sleepiness       *float64 `json:"sleepiness,omitempty"`
	Sharpness        *float64 `json:"sharpness,omitempty"`
	AgilityMean      *float64 `json:"agility_mean,omitempty"`
	FocusMean        *float64 `json:"focus_mean,omitempty"`
}

// Result is the full performance analysis.
type Result struct {
	ReadyBaseline *float64 `json:"ready_baseline"`

	Ready   TypeStats `json:"ready"`
	Agility TypeStats `json:"agility"`
	Focus   TypeStats `json:"focus"`

	DailyReady      []DailyPoint      `json:"daily_ready"`
	ReadySlope7d    *float64          `json:"ready_7d_slope"`
	ReadySlopeAll   *float64          `json:"ready_overall_slope"`
	DailyAgility    []DailyPoint      `json:"daily_agility"`
	DailyFocus      []DailyPoint      `json:"daily_focus"`
	DailySelfReport []DailySelfReport `json:"daily_self_report"`
	Weekly          []WeeklyPoint     `json:"weekly"`
}

// Analyzer computes performance trajectories.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer creates an analyzer with the given constants.
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze runs the full trajectory analysis over test results sorted by
// creation time.
func (a *Analyzer) Analyze(tests []frame.TestResult) Result {
	res := Result{
		DailyReady:      []DailyPoint{},
		DailyAgility:    []DailyPoint{},
		DailyFocus:      []DailyPoint{},
		DailySelfReport: []DailySelfReport{},
		Weekly:          []WeeklyPoint{},
	}
	if len(tests) == 0 {
		return res
	}

	res.ReadyBaseline = a.detectBaseline(tests)
	res.Ready = typeStats(tests, TypeReady)
	res.Agility = typeStats(tests, TypeAgility)
	res.Focus = typeStats(tests, TypeFocus)

	res.DailyReady = a.dailyAgg(tests, TypeReady)
	if len(res.DailyReady) > 0 {
		means := make([]float64, len(res.DailyReady))
		for i, d := range res.DailyReady {
			means[i] = d.Mean
		}
		rolling := stats.RollingMean(means, a.cfg.RollingWindowDays, 1)
		for i := range res.DailyReady {
			res.DailyReady[i].Rolling7d = frame.Float(rolling[i])
			if res.ReadyBaseline != nil && *res.ReadyBaseline != 0 {
				res.DailyReady[i].PctBaseline = frame.Float(res.DailyReady[i].Mean / *res.ReadyBaseline * 100)
			}
		}
		tail := means
		if len(tail) > a.cfg.SlopeTailDays {
			tail = tail[len(tail)-a.cfg.SlopeTailDays:]
		}
		if slope, ok := stats.OLSSlope(tail); ok {
			res.ReadySlope7d = frame.Float(slope)
		}
		if slope, ok := stats.OLSSlope(means); ok {
			res.ReadySlopeAll = frame.Float(slope)
		}
	}
	res.DailyAgility = a.dailyAgg(tests, TypeAgility)
	res.DailyFocus = a.dailyAgg(tests, TypeFocus)
	res.DailySelfReport = dailySelfReport(tests)
	res.Weekly = a.weekly(tests, res.ReadyBaseline)
	return res
}

// detectBaseline prefers an explicitly flagged READY baseline, then any
// flagged test, then the best READY score on record.
func (a *Analyzer) detectBaseline(tests []frame.TestResult) *float64 {
	for _, t := range tests {
		if t.IsBaseline && t.Type == TypeReady && t.HasScore {
			return frame.Float(t.Score)
		}
	}
	for _, t := range tests {
		if t.IsBaseline && t.HasScore {
			return frame.Float(t.Score)
		}
	}
	var best *float64
	for _, t := range tests {
		if t.Type == TypeReady && t.HasScore {
			if best == nil || t.Score > *best {
				best = frame.Float(t.Score)
			}
		}
	}
	return best
}

func typeStats(tests []frame.TestResult, ttype string) TypeStats {
	var scores []float64
	for _, t := range tests {
		if t.Type == ttype && t.HasScore {
			scores = append(scores, t.Score)
		}
	}
	if len(scores) == 0 {
		return TypeStats{}
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	return TypeStats{
		Peak:  frame.Float(sorted[len(sorted)-1]),
		Floor: frame.Float(sorted[0]),
		Mean:  frame.Float(stats.Mean(scores)),
		IQR: [2]*float64{
			frame.Float(stats.Percentile(sorted, 0.25)),
			frame.Float(stats.Percentile(sorted, 0.75)),
		},
	}
}

// dailyAgg groups one test type into per-day mean/min/max/count, sorted by
// date.
func (a *Analyzer) dailyAgg(tests []frame.TestResult, ttype string) []DailyPoint {
	byDate := make(map[string][]float64)
	for _, t := range tests {
		if t.Type == ttype && t.HasScore {
			byDate[t.DateKey()] = append(byDate[t.DateKey()], t.Score)
		}
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	out := make([]DailyPoint, 0, len(dates))
	for _, d := range dates {
		scores := byDate[d]
		mn := stats.Min(scores)
		mx := stats.Max(scores)
		out = append(out, DailyPoint{
			Date:  d,
			Mean:  stats.Mean(scores),
			Min:   mn,
			Max:   mx,
			Count: len(scores),
		})
	}
	return out
}

func dailySelfReport(tests []frame.TestResult) []DailySelfReport {
	type acc struct {
		stress, sleepiness, sharpness []float64
	}
	byDate := make(map[string]*acc)
	for _, t := range tests {
		a := byDate[t.DateKey()]
		if a == nil {
			a = &acc{}
			byDate[t.DateKey()] = a
		}
		if t.Stress != nil {
			a.stress = append(a.stress, *t.Stress)
		}
		if t.Sleepiness != nil {
			a.sleepiness = append(a.sleepiness, *t.Sleepiness)
		}
		if t.Sharpness != nil {
			a.sharpness = append(a.sharpness, *t.Sharpness)
		}
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	meanOrNil := func(xs []float64) *float64 {
		if len(xs) == 0 {
			return nil
		}
		return frame.Float(stats.Mean(xs))
	}
	out := make([]DailySelfReport, 0, len(dates))
	for _, d := range dates {
		a := byDate[d]
		out = append(out, DailySelfReport{
			Date:       d,
			Stress:     meanOrNil(a.stress),
			Sleepiness: meanOrNil(a.sleepiness),
			Sharpness:  meanOrNil(a.sharpness),
		})
	}
	return out
}

// weekLabel renders the ISO year-week key, e.g. "2025-W07".
func weekLabel(t frame.TestResult) string {
	year, week := t.Local.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// weekly builds ISO-week aggregates keyed on READY tests, merging in
// self-report and agility/focus weekly means.
func (a *Analyzer) weekly(tests []frame.TestResult, baseline *float64) []WeeklyPoint {
	type weekAcc struct {
		ready                         []float64
		stress, sleepiness, sharpness []float64
		agility, focus                []float64
		dateMin, dateMax              string
	}
	byWeek := make(map[string]*weekAcc)
	hasReady := false
	for _, t := range tests {
		wk := weekLabel(t)
		acc := byWeek[wk]
		if acc == nil {
			acc = &weekAcc{}
			byWeek[wk] = acc
		}
		if t.HasScore {
			switch t.Type {
			case TypeReady:
				hasReady = true
				acc.ready = append(acc.ready, t.Score)
				d := t.DateKey()
				if acc.dateMin == "" || d < acc.dateMin {
					acc.dateMin = d
				}
				if d > acc.dateMax {
					acc.dateMax = d
				}
			case TypeAgility:
				acc.agility = append(acc.agility, t.Score)
			case TypeFocus:
				acc.focus = append(acc.focus, t.Score)
			}
		}
		if t.Stress != nil {
			acc.stress = append(acc.stress, *t.Stress)
		}
		if t.Sleepiness != nil {
			acc.sleepiness = append(acc.sleepiness, *t.Sleepiness)
		}
		if t.Sharpness != nil {
			acc.sharpness = append(acc.sharpness, *t.Sharpness)
		}
	}
	if !hasReady {
		return []WeeklyPoint{}
	}

	labels := make([]string, 0, len(byWeek))
	for wk, acc := range byWeek {
		if len(acc.ready) > 0 {
			labels = append(labels, wk)
		}
	}
	sort.Strings(labels)

	meanOrNil := func(xs []float64) *float64 {
		if len(xs) == 0 {
			return nil
		}
		return frame.Float(stats.Mean(xs))
	}

	out := make([]WeeklyPoint, 0, len(labels))
	var prevMean *float64
	for _, wk := range labels {
		acc := byWeek[wk]
		mn := stats.Min(acc.ready)
		mx := stats.Max(acc.ready)
		wp := WeeklyPoint{
			WeekLabel:   wk,
			ReadyMean:   stats.Mean(acc.ready),
			ReadyMin:    mn,
			ReadyMax:    mx,
			TestCount:   len(acc.ready),
			DateMin:     acc.dateMin,
			DateMax:     acc.dateMax,
			Stress:      meanOrNil(acc.stress),
			Sleepiness:  meanOrNil(acc.sleepiness),
			Sharpness:   meanOrNil(acc.sharpness),
			AgilityMean: meanOrNil(acc.agility),
			FocusMean:   meanOrNil(acc.focus),
		}
		if baseline != nil && *baseline != 0 {
			wp.ReadyPctBaseline = frame.Float(wp.ReadyMean / *baseline * 100)
		}
		if prevMean != nil && *prevMean != 0 {
			wp.ReadyChangePct = frame.Float((wp.ReadyMean - *prevMean) / *prevMean * 100)
		}
		prevMean = frame.Float(wp.ReadyMean)
		out = append(out, wp)
	}
	return out
}
