// Package activity classifies wear-on epochs into physical-load tiers,
// aggregates daily load/step/calorie totals, and detects exercise sessions
// from sustained elevated heart rate and motion.
package activity

import (
	"math"
	"sort"
	"time"

	"github.com/vitalrun/vitalrun/internal/frame"
	"github.com/vitalrun/vitalrun/internal/stats"
)

// Level is a per-epoch physical-load tier.
type Level string

const (
	Sedentary Level = "sedentary"
	Light     Level = "light"
	Moderate  Level = "moderate"
	Vigorous  Level = "vigorous"
)

// LoadBand maps a lower energy bound to a daily exercise-load label.
// Bands are scanned in order; the last band whose bound is not exceeded wins.
type LoadBand struct {
	Label      string  `yaml:"label"`
	UpperBound float64 `yaml:"upper_bound"` // exclusive; <=0 means unbounded
}

// Config holds the epoch-classification thresholds. Values are calibrated for
// wrist-worn 30-second epoch data.
type Config struct {
	SedentaryEnergy float64 `yaml:"sedentary_energy"` // below this + low HR = sedentary
	LightEnergy     float64 `yaml:"light_energy"`
	ModerateEnergy  float64 `yaml:"moderate_energy"`
	SedentaryHRMax  float64 `yaml:"sedentary_hr_max"`
	ModerateHRMin   float64 `yaml:"moderate_hr_min"`
	ModerateHRMax   float64 `yaml:"moderate_hr_max"`

	LoadBands []LoadBand `yaml:"load_bands"`

	ExerciseHRMin     float64 `yaml:"exercise_hr_min"`
	ExerciseMinEpochs int     `yaml:"exercise_min_epochs"` // 4 epochs = 2 minutes
	ExerciseGapEpochs int     `yaml:"exercise_gap_epochs"`
}

// DefaultConfig returns the built-in activity thresholds.
func DefaultConfig() Config {
	return Config{
		SedentaryEnergy: 50,
		LightEnergy:     200,
		ModerateEnergy:  600,
		SedentaryHRMax:  80,
		ModerateHRMin:   80,
		ModerateHRMax:   100,
		LoadBands: []LoadBand{
			{Label: "low", UpperBound: 500},
			{Label: "moderate", UpperBound: 2000},
			{Label: "high", UpperBound: 0},
		},
		ExerciseHRMin:     100,
		ExerciseMinEpochs: 4,
		ExerciseGapEpochs: 2,
	}
}

// DailyActivity aggregates one calendar date of classified epochs.
type DailyActivity struct {
	Date                string  `json:"date"`
	SedentaryEpochs     int     `json:"sedentary_epochs"`
	LightEpochs         int     `json:"light_epochs"`
	ModerateEpochs      int     `json:"moderate_epochs"`
	VigorousEpochs      int     `json:"vigorous_epochs"`
	TotalEpochs         int     `json:"total_epochs"`
	ModerateVigorousMin float64 `json:"moderate_vigorous_min"`
	PhysicalLoad        float64 `json:"physical_load"`
	ExerciseLoad        string  `json:"exercise_load"`
	Steps               float64 `json:"steps"`
	Calories            float64 `json:"calories"`
}

// ExerciseSession is a contiguous cluster of high-HR, high-motion epochs.
type ExerciseSession struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	DurationMin float64   `json:"duration_min"`
	AvgHR       float64   `json:"avg_hr"`
}

// Result is the activity classifier output.
type Result struct {
	DailyActivity    []DailyActivity   `json:"daily_activity"`
	ExerciseSessions []ExerciseSession `json:"exercise_sessions"`
}

// Classifier labels epochs and aggregates daily load.
type Classifier struct {
	cfg Config
}

// NewClassifier creates a classifier with the given thresholds.
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// ClassifyEpoch assigns a physical-load tier to one epoch. A missing heart
// rate is treated as a resting 60 bpm.
func (c *Classifier) ClassifyEpoch(energy, hr float64) Level {
	if hr <= 0 {
		hr = 60
	}
	switch {
	case energy < c.cfg.SedentaryEnergy && hr < c.cfg.SedentaryHRMax:
		return Sedentary
	case energy < c.cfg.LightEnergy:
		return Light
	case energy < c.cfg.ModerateEnergy || (hr >= c.cfg.ModerateHRMin && hr < c.cfg.ModerateHRMax):
		return Moderate
	default:
		return Vigorous
	}
}

// Analyze classifies wear-on epochs and aggregates daily activity metrics.
// Returns empty collections when no wear data is present.
func (c *Classifier) Analyze(epochs []frame.Epoch) Result {
	res := Result{DailyActivity: []DailyActivity{}, ExerciseSessions: []ExerciseSession{}}

	var wear []frame.Epoch
	for _, e := range epochs {
		if e.WearOn {
			wear = append(wear, e)
		}
	}
	if len(wear) == 0 {
		return res
	}

	levels := make([]Level, len(wear))
	byDate := make(map[string][]int)
	for i, e := range wear {
		levels[i] = c.ClassifyEpoch(e.AccEnergy, e.HeartRate)
		key := frame.DateKey(e.Local)
		byDate[key] = append(byDate[key], i)
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	for _, date := range dates {
		idxs := byDate[date]
		day := DailyActivity{Date: date, TotalEpochs: len(idxs)}
		loadEnergy := 0.0
		var stepsMin, stepsMax, calMin, calMax float64
		haveSteps, haveCal := false, false

		for _, i := range idxs {
			e := wear[i]
			switch levels[i] {
			case Sedentary:
				day.SedentaryEpochs++
			case Light:
				day.LightEpochs++
			case Moderate:
				day.ModerateEpochs++
				loadEnergy += e.AccEnergy
			case Vigorous:
				day.VigorousEpochs++
				loadEnergy += e.AccEnergy
			}
			if e.Steps > 0 {
				if !haveSteps || e.Steps < stepsMin {
					stepsMin = e.Steps
				}
				if !haveSteps || e.Steps > stepsMax {
					stepsMax = e.Steps
				}
				haveSteps = true
			}
			if e.Calories > 0 {
				if !haveCal || e.Calories < calMin {
					calMin = e.Calories
				}
				if !haveCal || e.Calories > calMax {
					calMax = e.Calories
				}
				haveCal = true
			}
		}

		day.ModerateVigorousMin = stats.Round(float64(day.ModerateEpochs+day.VigorousEpochs)*0.5, 1)
		day.PhysicalLoad = stats.Round(loadEnergy, 1)
		day.ExerciseLoad = c.loadLabel(loadEnergy)
		if haveSteps {
			// Counter resets make max-min go negative; clamp to zero rather
			// than report a bogus total.
			day.Steps = math.Max(0, stepsMax-stepsMin)
		}
		if haveCal {
			day.Calories = stats.Round(math.Max(0, calMax-calMin), 1)
		}
		res.DailyActivity = append(res.DailyActivity, day)
	}

	res.ExerciseSessions = c.detectExerciseSessions(wear)
	return res
}

func (c *Classifier) loadLabel(energy float64) string {
	for _, b := range c.cfg.LoadBands {
		if b.UpperBound <= 0 || energy < b.UpperBound {
			return b.Label
		}
	}
	return "high"
}

// detectExerciseSessions clusters epochs with HR above the exercise floor and
// energy above the moderate threshold, tolerating short gaps between epochs.
func (c *Classifier) detectExerciseSessions(wear []frame.Epoch) []ExerciseSession {
	var hits []int
	for i, e := range wear {
		if e.HeartRate > c.cfg.ExerciseHRMin && e.AccEnergy > c.cfg.ModerateEnergy {
			hits = append(hits, i)
		}
	}
	sessions := []ExerciseSession{}
	if len(hits) == 0 {
		return sessions
	}

	start := 0
	for i := 1; i <= len(hits); i++ {
		if i == len(hits) || hits[i]-hits[i-1] > c.cfg.ExerciseGapEpochs {
			cluster := hits[start:i]
			start = i
			if len(cluster) < c.cfg.ExerciseMinEpochs {
				continue
			}
			var hrSum float64
			for _, idx := range cluster {
				hrSum += wear[idx].HeartRate
			}
			first := wear[cluster[0]].Local
			last := wear[cluster[len(cluster)-1]].Local
			sessions = append(sessions, ExerciseSession{
				Start:       first,
				End:         last,
				DurationMin: stats.Round(last.Sub(first).Minutes(), 1),
				AvgHR:       stats.Round(hrSum/float64(len(cluster)), 1),
			})
		}
	}
	return sessions
}
