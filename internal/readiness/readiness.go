// Package readiness maps morning HRV recovery and readiness scores onto an
// ordered tier ladder and the per-tier task suitability matrix.
package readiness

import "github.com/vitalrun/vitalrun/internal/performance"

// Tier is one rung of the readiness ladder. Tiers are evaluated in order, so
// the floors of a tier also exclude everything above it.
type Tier struct {
	Name     string  `json:"name" yaml:"name"`
	Color    string  `json:"color" yaml:"color"`
	RMSSDMin float64 `json:"rmssd_min" yaml:"rmssd_min"` // morning RMSSD, pct of baseline
	ReadyMin float64 `json:"ready_min" yaml:"ready_min"`
}

// TaskMatrix flags which work categories a tier supports.
type TaskMatrix struct {
	DeepAnalyticalWork     bool `json:"deep_analytical_work"`
	CreativeBrainstorming  bool `json:"creative_brainstorming"`
	HighStakesPresentation bool `json:"high_stakes_presentation"`
	RoutineAdmin           bool `json:"routine_admin"`
	PhysicalTraining       bool `json:"physical_training"`
}

// Config holds the tier ladder and the self-report demotion caps.
type Config struct {
	Tiers []Tier `yaml:"tiers"`

	SevereStressMin     float64 `yaml:"severe_stress_min"`
	SevereSleepinessMin float64 `yaml:"severe_sleepiness_min"`
	HighStressMin       float64 `yaml:"high_stress_min"`
	HighSleepinessMin   float64 `yaml:"high_sleepiness_min"`
}

// DefaultConfig returns the built-in ladder, best tier first.
func DefaultConfig() Config {
	return Config{
		Tiers: []Tier{
			{Name: "Peak", Color: "green", RMSSDMin: 90, ReadyMin: 175},
			{Name: "Good", Color: "blue", RMSSDMin: 75, ReadyMin: 155},
			{Name: "Moderate", Color: "yellow", RMSSDMin: 55, ReadyMin: 140},
			{Name: "Low", Color: "orange", RMSSDMin: 40, ReadyMin: 130},
			{Name: "Recovery", Color: "red", RMSSDMin: 0, ReadyMin: 0},
		},
		SevereStressMin:     7,
		SevereSleepinessMin: 7,
		HighStressMin:       5,
		HighSleepinessMin:   5,
	}
}

// Inputs carries the signals a tier decision draws on. Nil means the signal
// is unavailable for the day.
type Inputs struct {
	RMSSDPctOfBaseline *float64
	ReadyScore         *float64
	Stress             *float64
	Sleepiness         *float64
}

// Assessment is the tier decision with its task matrix.
type Assessment struct {
	Tier       Tier       `json:"tier"`
	TaskMatrix TaskMatrix `json:"task_matrix"`
	Demoted    bool       `json:"demoted_by_self_report"`
}

// Classifier evaluates readiness tiers.
type Classifier struct {
	cfg Config
}

// NewClassifier creates a classifier over the given ladder.
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Assess picks the first tier whose floors the inputs satisfy, then applies
// the self-report caps. The caps only ever demote.
func (c *Classifier) Assess(in Inputs) Assessment {
	idx := c.baseTier(in)

	demoted := false
	if in.Stress != nil && in.Sleepiness != nil {
		var capIdx int
		switch {
		case *in.Stress > c.cfg.SevereStressMin && *in.Sleepiness > c.cfg.SevereSleepinessMin:
			capIdx = len(c.cfg.Tiers) - 1
		case *in.Stress > c.cfg.HighStressMin && *in.Sleepiness > c.cfg.HighSleepinessMin:
			capIdx = len(c.cfg.Tiers) - 2
		default:
			capIdx = idx
		}
		if capIdx > idx {
			idx = capIdx
			demoted = true
		}
	}

	tier := c.cfg.Tiers[idx]
	return Assessment{
		Tier:       tier,
		TaskMatrix: MatrixFor(tier.Name),
		Demoted:    demoted,
	}
}

// baseTier returns the ladder index before self-report caps. A missing ready
// score lands on Moderate; a missing RMSSD percentage skips the HRV floor.
func (c *Classifier) baseTier(in Inputs) int {
	if in.ReadyScore == nil {
		for i, t := range c.cfg.Tiers {
			if t.Name == "Moderate" {
				return i
			}
		}
		return len(c.cfg.Tiers) / 2
	}
	for i, t := range c.cfg.Tiers {
		hrvOK := in.RMSSDPctOfBaseline == nil || *in.RMSSDPctOfBaseline >= t.RMSSDMin
		if hrvOK && *in.ReadyScore >= t.ReadyMin {
			return i
		}
	}
	return len(c.cfg.Tiers) - 1
}

// MatrixFor returns the static task matrix for a tier name. Unknown names
// get the all-false matrix.
func MatrixFor(tier string) TaskMatrix {
	switch tier {
	case "Peak", "Good":
		return TaskMatrix{
			DeepAnalyticalWork:     true,
			CreativeBrainstorming:  true,
			HighStakesPresentation: true,
			RoutineAdmin:           true,
			PhysicalTraining:       true,
		}
	case "Moderate":
		return TaskMatrix{
			CreativeBrainstorming: true,
			RoutineAdmin:          true,
			PhysicalTraining:      true,
		}
	case "Low":
		return TaskMatrix{RoutineAdmin: true}
	default:
		return TaskMatrix{}
	}
}

// DailyTier is one day's tier decision with its task suitability.
type DailyTier struct {
	Tier            string     `json:"tier"`
	Color           string     `json:"color"`
	ReadyScore      *float64   `json:"ready_score"`
	TaskSuitability TaskMatrix `json:"task_suitability"`
}

// Result maps dates to tier decisions. LatestTier points at the most recent
// day with READY data.
type Result struct {
	TiersByDate map[string]DailyTier `json:"tiers_by_date"`
	LatestTier  *DailyTier           `json:"latest_tier"`
}

// AssignDaily classifies every day that has READY scores, joining in the
// day's self-report means. The morning RMSSD percentage applies to all days.
func (c *Classifier) AssignDaily(daily []performance.DailyPoint, selfReports []performance.DailySelfReport, rmssdPct *float64) Result {
	res := Result{TiersByDate: map[string]DailyTier{}}
	srByDate := make(map[string]performance.DailySelfReport, len(selfReports))
	for _, sr := range selfReports {
		srByDate[sr.Date] = sr
	}

	for _, day := range daily {
		score := day.Mean
		in := Inputs{
			RMSSDPctOfBaseline: rmssdPct,
			ReadyScore:         &score,
		}
		if sr, ok := srByDate[day.Date]; ok {
			in.Stress = sr.Stress
			in.Sleepiness = sr.Sleepiness
		}
		a := c.Assess(in)
		res.TiersByDate[day.Date] = DailyTier{
			Tier:            a.Tier.Name,
			Color:           a.Tier.Color,
			ReadyScore:      &score,
			TaskSuitability: a.TaskMatrix,
		}
	}

	if len(daily) > 0 {
		if t, ok := res.TiersByDate[daily[len(daily)-1].Date]; ok {
			res.LatestTier = &t
		}
	}
	return res
}
