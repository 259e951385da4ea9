// Package circadian fits a 24-hour cosinor model to cognitive-test scores by
// time of day, derives peak/worst performance windows and a chronotype
// estimate, and computes natural sleep timing from the session log.
package circadian

import (
	"fmt"
	"math"

	"github.com/vitalrun/vitalrun/internal/frame"
	"github.com/vitalrun/vitalrun/internal/stats"
)

// Config holds the circadian model parameters.
type Config struct {
	TestType          string  `yaml:"test_type"`
	MinSamples        int     `yaml:"min_samples"`
	GridPoints        int     `yaml:"grid_points"`
	PeakThresholdFrac float64 `yaml:"peak_threshold_frac"` // fraction of amplitude above mesor
	BinHours          int     `yaml:"bin_hours"`
	NapStartHour      int     `yaml:"nap_start_hour"`
	NapEndHour        int     `yaml:"nap_end_hour"` // inclusive
	MorningLarkMax    float64 `yaml:"morning_lark_max"`
	IntermediateMax   float64 `yaml:"intermediate_max"`

	Fit FitConfig `yaml:"-"`
}

// DefaultConfig returns the built-in circadian parameters.
func DefaultConfig() Config {
	return Config{
		TestType:          "READY",
		MinSamples:        6,
		GridPoints:        240,
		PeakThresholdFrac: 0.9,
		BinHours:          2,
		NapStartHour:      10,
		NapEndHour:        17,
		MorningLarkMax:    11,
		IntermediateMax:   15,
		Fit:               DefaultFitConfig(),
	}
}

// HourlyBin is one 2-hour aggregation of raw scores.
type HourlyBin struct {
	Window    string  `json:"window"`
	MeanScore float64 `json:"mean_score"`
	TestCount int     `json:"test_count"`
}

// CurvePoint is one sample of the fitted curve on the dense grid.
type CurvePoint struct {
	Hour  float64 `json:"hour"`
	Score float64 `json:"score"`
}

// Result is the circadian model output. CosinorFit reports whether the curve
// fit succeeded; on failure Mesor degrades to the sample mean and the
// fit-derived fields stay nil.
type Result struct {
	CosinorFit          bool         `json:"cosinor_fit"`
	Mesor               *float64     `json:"mesor"`
	Amplitude           *float64     `json:"amplitude"`
	AcrophaseHour       *float64     `json:"acrophase_hour"`
	EstimatedPeakWindow *string      `json:"estimated_peak_window"`
	WorstWindow         *string      `json:"worst_window"`
	HourlyBins          []HourlyBin  `json:"hourly_bins"`
	CosinorN            int          `json:"cosinor_n"`
	PeakScoreVariance   *float64     `json:"peak_score_variance"`
	ChronotypeEstimate  *string      `json:"chronotype_estimate"`
	FittedCurve         []CurvePoint `json:"fitted_curve,omitempty"`

	NaturalSleepOnsetLocal *string  `json:"natural_sleep_onset_local"`
	NaturalWakeLocal       *string  `json:"natural_wake_local"`
	BedtimeVarianceMin     *float64 `json:"bedtime_variance_min"`
}

// Model fits and evaluates the circadian performance curve.
type Model struct {
	cfg Config
}

// NewModel creates a model with the given parameters.
func NewModel(cfg Config) *Model {
	return &Model{cfg: cfg}
}

// Analyze fits the cosinor model to the configured test type and derives
// sleep timing from non-nap sessions. No scored tests of the configured type
// yields the all-nil result without sleep timing, matching the graceful
// degradation contract.
func (m *Model) Analyze(tests []frame.TestResult, sessions []frame.SleepSession) Result {
	res := Result{HourlyBins: []HourlyBin{}}

	var hours, scores []float64
	for _, t := range tests {
		if t.Type != m.cfg.TestType || !t.HasScore {
			continue
		}
		hours = append(hours, t.Hour)
		scores = append(scores, t.Score)
	}
	if len(scores) == 0 {
		return res
	}

	res.HourlyBins = m.binScores(hours, scores)
	res.CosinorN = len(scores)

	if len(scores) < m.cfg.MinSamples {
		res.Mesor = frame.Float(stats.Mean(scores))
		m.addSleepTiming(&res, sessions)
		return res
	}

	seed := CosinorParams{
		Mesor:     stats.Mean(scores),
		Amplitude: (stats.Max(scores) - stats.Min(scores)) / 2,
		Acrophase: hours[argmax(scores)],
	}
	params, err := fitCosinor(hours, scores, seed, m.cfg.Fit)
	if err != nil {
		// Divergence is a normal branch: degrade to the mean, keep bins.
		res.Mesor = frame.Float(seed.Mesor)
		m.addSleepTiming(&res, sessions)
		return res
	}

	res.CosinorFit = true
	res.Mesor = frame.Float(stats.Round(params.Mesor, 2))
	res.Amplitude = frame.Float(stats.Round(params.Amplitude, 2))
	res.AcrophaseHour = frame.Float(stats.Round(params.Acrophase, 2))

	grid := make([]CurvePoint, m.cfg.GridPoints)
	for i := range grid {
		t := 24 * float64(i) / float64(m.cfg.GridPoints-1)
		grid[i] = CurvePoint{Hour: t, Score: params.Eval(t)}
	}
	res.FittedCurve = grid

	peakStart, peakEnd, havePeak := m.peakRange(grid, params)
	if havePeak {
		res.EstimatedPeakWindow = hourWindow(peakStart, peakEnd)
		res.PeakScoreVariance = peakVariance(hours, scores, peakStart, peakEnd)
	} else {
		res.EstimatedPeakWindow = hourWindow(params.Acrophase, math.Mod(params.Acrophase+2, 24))
	}

	worst := grid[0]
	for _, p := range grid {
		if p.Score < worst.Score {
			worst = p
		}
	}
	res.WorstWindow = hourWindow(worst.Hour, math.Mod(worst.Hour+2, 24))
	res.ChronotypeEstimate = m.chronotype(params.Acrophase)

	m.addSleepTiming(&res, sessions)
	return res
}

// peakRange finds the contiguous grid span where the fitted curve is at least
// mesor + threshold·amplitude.
func (m *Model) peakRange(grid []CurvePoint, params CosinorParams) (start, end float64, ok bool) {
	threshold := params.Mesor + m.cfg.PeakThresholdFrac*params.Amplitude
	first, last := -1.0, -1.0
	n := 0
	for _, p := range grid {
		if p.Score >= threshold {
			if first < 0 {
				first = p.Hour
			}
			last = p.Hour
			n++
		}
	}
	if n < 2 {
		return 0, 0, false
	}
	return first, last, true
}

func peakVariance(hours, scores []float64, start, end float64) *float64 {
	var inPeak []float64
	for i, h := range hours {
		if h >= start && h <= end {
			inPeak = append(inPeak, scores[i])
		}
	}
	if len(inPeak) < 2 {
		return nil
	}
	return frame.Float(stats.Round(stats.Variance(inPeak), 1))
}

func (m *Model) chronotype(acrophase float64) *string {
	var label string
	switch {
	case acrophase < m.cfg.MorningLarkMax:
		label = "morning_lark"
	case acrophase < m.cfg.IntermediateMax:
		label = "intermediate"
	default:
		label = "evening_owl"
	}
	return &label
}

func (m *Model) binScores(hours, scores []float64) []HourlyBin {
	nBins := 24 / m.cfg.BinHours
	sums := make([]float64, nBins)
	counts := make([]int, nBins)
	for i, h := range hours {
		bin := int(h) / m.cfg.BinHours
		if bin < 0 {
			bin = 0
		}
		if bin >= nBins {
			bin = nBins - 1
		}
		sums[bin] += scores[i]
		counts[bin]++
	}
	out := []HourlyBin{}
	for b := 0; b < nBins; b++ {
		if counts[b] == 0 {
			continue
		}
		lo := b * m.cfg.BinHours
		out = append(out, HourlyBin{
			Window:    fmt.Sprintf("%02d:00-%02d:00", lo, lo+m.cfg.BinHours),
			MeanScore: sums[b] / float64(counts[b]),
			TestCount: counts[b],
		})
	}
	return out
}

// addSleepTiming derives natural bedtime/wake from the session log, excluding
// nap-hour sessions. Post-midnight bedtimes are sign-flipped before averaging
// to avoid wraparound bias.
func (m *Model) addSleepTiming(res *Result, sessions []frame.SleepSession) {
	var primary []frame.SleepSession
	for _, s := range sessions {
		h := s.StartLocal.Hour()
		if h >= m.cfg.NapStartHour && h <= m.cfg.NapEndHour {
			continue
		}
		primary = append(primary, s)
	}
	if len(primary) == 0 {
		return
	}

	var adjusted []float64
	var wakes []float64
	for _, s := range primary {
		bt := s.LocalHour()
		if bt > 12 {
			bt -= 24
		}
		adjusted = append(adjusted, bt)
		wakes = append(wakes, float64(s.EndLocal.Hour())+float64(s.EndLocal.Minute())/60.0)
	}

	meanBT := stats.Mean(adjusted)
	if meanBT < 0 {
		meanBT += 24
	}
	res.NaturalSleepOnsetLocal = clockString(meanBT)
	if len(adjusted) >= 2 {
		res.BedtimeVarianceMin = frame.Float(stats.Round(stats.Std(adjusted)*60, 0))
	}
	res.NaturalWakeLocal = clockString(stats.Mean(wakes))
}

func hourWindow(start, end float64) *string {
	s := fmt.Sprintf("%02d:00-%02d:00", int(start), int(end))
	return &s
}

func clockString(h float64) *string {
	s := fmt.Sprintf("%02d:%02d", int(h), int(math.Mod(h, 1)*60))
	return &s
}

func argmax(xs []float64) int {
	best := 0
	for i, v := range xs {
		if v > xs[best] {
			best = i
		}
	}
	return best
}
