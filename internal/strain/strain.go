// Package strain converts heart-rate zone time and motion energy into a
// bounded 0–21 daily strain score with a Borg-style logarithmic compression.
package strain

import (
	"fmt"
	"math"
	"sort"

	"github.com/vitalrun/vitalrun/internal/frame"
	"github.com/vitalrun/vitalrun/internal/stats"
)

// Band maps a lower score bound to a strain label; bands are scanned in order.
type Band struct {
	Label      string  `yaml:"label"`
	UpperBound float64 `yaml:"upper_bound"` // exclusive; <=0 means unbounded
}

// Config holds the strain scoring constants. The divisor/scale pairs are
// calibrated so a sedentary day lands around 2–5 and intense training 14–18+.
type Config struct {
	ZoneBounds  []float64 `yaml:"zone_bounds"`  // %-of-max-HR upper bounds
	ZoneWeights []float64 `yaml:"zone_weights"` // weights for zones 1..5
	Cap         float64   `yaml:"cap"`
	CVDivisor   float64   `yaml:"cv_divisor"`
	CVScale     float64   `yaml:"cv_scale"`
	MuscDivisor float64   `yaml:"musc_divisor"`
	MuscScale   float64   `yaml:"musc_scale"`
	CVWeight    float64   `yaml:"cv_weight"`
	MuscWeight  float64   `yaml:"musc_weight"`
	MaxHRFloor  float64   `yaml:"max_hr_floor"`
	MaxHRAbsent float64   `yaml:"max_hr_absent"` // used when no HR readings exist

	Bands []Band `yaml:"bands"`

	// Sleep-need adjustment step function: combined score floors, descending.
	SleepAdjustments []SleepAdjustment `yaml:"sleep_adjustments"`
}

// SleepAdjustment maps a combined-score floor to extra sleep minutes.
type SleepAdjustment struct {
	ScoreMin float64 `yaml:"score_min"`
	ExtraMin int     `yaml:"extra_min"`
}

// DefaultConfig returns the built-in strain constants.
func DefaultConfig() Config {
	return Config{
		ZoneBounds:  []float64{0.50, 0.60, 0.70, 0.80, 0.90, 1.00},
		ZoneWeights: []float64{0, 1, 2, 4, 8},
		Cap:         21,
		CVDivisor:   80,
		CVScale:     5.5,
		MuscDivisor: 5000,
		MuscScale:   4.0,
		CVWeight:    0.7,
		MuscWeight:  0.3,
		MaxHRFloor:  150,
		MaxHRAbsent: 190,
		Bands: []Band{
			{Label: "minimal", UpperBound: 4},
			{Label: "light", UpperBound: 8},
			{Label: "moderate", UpperBound: 14},
			{Label: "high", UpperBound: 18},
			{Label: "overreaching", UpperBound: 0},
		},
		SleepAdjustments: []SleepAdjustment{
			{ScoreMin: 18, ExtraMin: 45},
			{ScoreMin: 14, ExtraMin: 30},
			{ScoreMin: 10, ExtraMin: 15},
		},
	}
}

// DailyStrain is one calendar date of strain scoring.
type DailyStrain struct {
	Date                 string             `json:"date"`
	StrainScore          float64            `json:"strain_score"`
	CardiovascularStrain float64            `json:"cardiovascular_strain"`
	MuscularStrain       float64            `json:"muscular_strain"`
	StrainLevel          string             `json:"strain_level"`
	ZoneMinutes          map[string]float64 `json:"zone_minutes"`
	SleepNeedAdjustMin   int                `json:"sleep_need_adjustment_min"`
}

// Result is the strain scorer output.
type Result struct {
	DailyStrain []DailyStrain `json:"daily_strain"`
	MaxHREst    *float64      `json:"max_hr_est"`
}

// Scorer computes daily strain from sensor epochs.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer with the given constants.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// EstimateMaxHR estimates the wearer's max heart rate as the 99th percentile
// of nonzero readings, floored at the configured minimum.
func (s *Scorer) EstimateMaxHR(epochs []frame.Epoch) float64 {
	var hrs []float64
	for _, e := range epochs {
		if e.HeartRate > 0 {
			hrs = append(hrs, e.HeartRate)
		}
	}
	if len(hrs) == 0 {
		return s.cfg.MaxHRAbsent
	}
	return math.Max(stats.Percentile(hrs, 0.99), s.cfg.MaxHRFloor)
}

// ClassifyZone places a heart rate into zones 0..5 by fraction of max HR.
func (s *Scorer) ClassifyZone(hr, maxHR float64) int {
	pct := 0.0
	if maxHR > 0 {
		pct = hr / maxHR
	}
	for i := 0; i < len(s.cfg.ZoneBounds)-1; i++ {
		if pct < s.cfg.ZoneBounds[i] {
			return i
		}
	}
	return 5
}

// Analyze scores each calendar date with wear data.
func (s *Scorer) Analyze(epochs []frame.Epoch) Result {
	res := Result{DailyStrain: []DailyStrain{}}

	var wear []frame.Epoch
	for _, e := range epochs {
		if e.WearOn {
			wear = append(wear, e)
		}
	}
	if len(wear) == 0 {
		return res
	}

	maxHR := s.EstimateMaxHR(wear)
	res.MaxHREst = frame.Float(stats.Round(maxHR, 0))

	type dayAgg struct {
		zoneCounts [6]int
		muscEnergy float64
	}
	byDate := make(map[string]*dayAgg)
	var dates []string
	for _, e := range wear {
		key := frame.DateKey(e.Local)
		agg, ok := byDate[key]
		if !ok {
			agg = &dayAgg{}
			byDate[key] = agg
			dates = append(dates, key)
		}
		zone := s.ClassifyZone(e.HeartRate, maxHR)
		agg.zoneCounts[zone]++
		if zone >= 3 {
			agg.muscEnergy += e.AccEnergy
		}
	}
	sort.Strings(dates)

	for _, date := range dates {
		agg := byDate[date]

		rawCV := 0.0
		zoneMinutes := make(map[string]float64, 5)
		for z := 1; z <= 5; z++ {
			minutes := float64(agg.zoneCounts[z]) * 0.5
			rawCV += minutes * s.cfg.ZoneWeights[z-1]
			zoneMinutes[zoneKey(z)] = stats.Round(minutes, 1)
		}
		cv := s.borg(rawCV, s.cfg.CVDivisor, s.cfg.CVScale)
		musc := s.borg(agg.muscEnergy, s.cfg.MuscDivisor, s.cfg.MuscScale)
		combined := math.Min(s.cfg.Cap, stats.Round(cv*s.cfg.CVWeight+musc*s.cfg.MuscWeight, 1))

		res.DailyStrain = append(res.DailyStrain, DailyStrain{
			Date:                 date,
			StrainScore:          combined,
			CardiovascularStrain: cv,
			MuscularStrain:       musc,
			StrainLevel:          s.label(combined),
			ZoneMinutes:          zoneMinutes,
			SleepNeedAdjustMin:   s.sleepAdjustment(combined),
		})
	}
	return res
}

// borg applies the logarithmic compression scale·ln(1 + raw/divisor), capped.
func (s *Scorer) borg(raw, divisor, scale float64) float64 {
	if raw <= 0 {
		return 0
	}
	score := scale * math.Log(1+raw/divisor)
	return math.Min(s.cfg.Cap, stats.Round(score, 1))
}

func (s *Scorer) label(score float64) string {
	for _, b := range s.cfg.Bands {
		if b.UpperBound <= 0 || score < b.UpperBound {
			return b.Label
		}
	}
	return "overreaching"
}

func (s *Scorer) sleepAdjustment(score float64) int {
	for _, adj := range s.cfg.SleepAdjustments {
		if score >= adj.ScoreMin {
			return adj.ExtraMin
		}
	}
	return 0
}

func zoneKey(z int) string {
	return fmt.Sprintf("zone_%d_min", z)
}
