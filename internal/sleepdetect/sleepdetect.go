// Package sleepdetect finds per-night sleep periods in sensor epochs using a
// heart-rate state-machine heuristic: onset in the plausible evening window,
// offset at the first sustained wake run, plus nadir, wake-episode, and
// continuity metrics. Nights are keyed by the 18:00→18:00 calendar-night
// boundary; an undetectable night is skipped, not an error.
package sleepdetect

import (
	"math"
	"sort"
	"time"

	"github.com/vitalrun/vitalrun/internal/frame"
	"github.com/vitalrun/vitalrun/internal/stats"
)

// Config holds the sleep-detection thresholds.
type Config struct {
	OnsetWindowStartHour int     `yaml:"onset_window_start_hour"` // 21:00 local
	OnsetWindowEndHour   int     `yaml:"onset_window_end_hour"`   // 03:00 local
	OnsetHRMax           float64 `yaml:"onset_hr_max"`
	OnsetRMSSDMin        float64 `yaml:"onset_rmssd_min"`
	OnsetHRFallback      float64 `yaml:"onset_hr_fallback"`
	WakeHRMin            float64 `yaml:"wake_hr_min"`
	SustainedWakeEpochs  int     `yaml:"sustained_wake_epochs"`
	MinDurationMin       float64 `yaml:"min_duration_min"`
	WakeEnergyMin        float64 `yaml:"wake_energy_min"`
	WakeGapEpochs        int     `yaml:"wake_gap_epochs"`
	NadirRollingEpochs   int     `yaml:"nadir_rolling_epochs"`
	NadirMinEpochs       int     `yaml:"nadir_min_epochs"`
}

// DefaultConfig returns the built-in detection thresholds.
func DefaultConfig() Config {
	return Config{
		OnsetWindowStartHour: 21,
		OnsetWindowEndHour:   3,
		OnsetHRMax:           65,
		OnsetRMSSDMin:        70,
		OnsetHRFallback:      70,
		WakeHRMin:            70,
		SustainedWakeEpochs:  5,
		MinDurationMin:       60,
		WakeEnergyMin:        500,
		WakeGapEpochs:        5,
		NadirRollingEpochs:   60,
		NadirMinEpochs:       10,
	}
}

// Night is one detected sensor-derived sleep period.
type Night struct {
	NightDate       string    `json:"night_date"`
	SleepOnset      time.Time `json:"sleep_onset"`
	SleepOffset     time.Time `json:"sleep_offset"`
	DurationMin     float64   `json:"duration_min"`
	HRNadirBPM      *float64  `json:"hr_nadir_bpm"`
	WakeEpisodes    int       `json:"wake_episodes"`
	ContinuityScore float64   `json:"continuity_score"`
}

// Result is the sleep detector output.
type Result struct {
	Nights      []Night `json:"nights"`
	LatestNight *Night  `json:"latest_night"`
}

// Detector runs the per-night sleep heuristic.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Analyze detects sleep in wear-on epochs grouped by calendar night.
func (d *Detector) Analyze(epochs []frame.Epoch) Result {
	res := Result{Nights: []Night{}}

	var wear []frame.Epoch
	for _, e := range epochs {
		if e.WearOn {
			wear = append(wear, e)
		}
	}
	if len(wear) == 0 {
		return res
	}
	sort.Slice(wear, func(i, j int) bool { return wear[i].Timestamp.Before(wear[j].Timestamp) })

	byNight := make(map[string][]frame.Epoch)
	var nightKeys []string
	for _, e := range wear {
		key := frame.NightDateKey(e.Local)
		if _, ok := byNight[key]; !ok {
			nightKeys = append(nightKeys, key)
		}
		byNight[key] = append(byNight[key], e)
	}
	sort.Strings(nightKeys)

	for _, key := range nightKeys {
		if night, ok := d.detectNight(key, byNight[key]); ok {
			res.Nights = append(res.Nights, night)
		}
	}
	if len(res.Nights) > 0 {
		last := res.Nights[len(res.Nights)-1]
		res.LatestNight = &last
	}
	return res
}

func (d *Detector) detectNight(key string, night []frame.Epoch) (Night, bool) {
	onsetIdx, ok := d.findOnset(night)
	if !ok {
		return Night{}, false
	}
	onset := night[onsetIdx].Local

	offsetIdx := d.findOffset(night, onsetIdx)
	offset := night[offsetIdx].Local

	durationMin := offset.Sub(onset).Minutes()
	if durationMin < d.cfg.MinDurationMin {
		return Night{}, false
	}

	sleep := night[onsetIdx : offsetIdx+1]

	episodes := d.countWakeEpisodes(sleep)
	continuity := stats.Clamp(stats.Round(1-float64(episodes)*5/math.Max(durationMin, 1), 3), 0, 1)

	return Night{
		NightDate:       key,
		SleepOnset:      onset,
		SleepOffset:     offset,
		DurationMin:     stats.Round(durationMin, 1),
		HRNadirBPM:      d.hrNadir(sleep),
		WakeEpisodes:    episodes,
		ContinuityScore: continuity,
	}, true
}

// findOnset locates the first low-HR epoch inside the plausible sleep window.
// When RMSSD is recorded anywhere in the night it additionally requires an
// elevated RMSSD; with no strict candidate it relaxes to the fallback HR.
func (d *Detector) findOnset(night []frame.Epoch) (int, bool) {
	inWindow := func(e frame.Epoch) bool {
		h := e.Local.Hour()
		return h >= d.cfg.OnsetWindowStartHour || h <= d.cfg.OnsetWindowEndHour
	}
	hasRMSSD := false
	for _, e := range night {
		if e.RMSSD > 0 {
			hasRMSSD = true
			break
		}
	}

	for i, e := range night {
		if !inWindow(e) || e.HeartRate <= 0 || e.HeartRate >= d.cfg.OnsetHRMax {
			continue
		}
		if hasRMSSD && e.RMSSD <= d.cfg.OnsetRMSSDMin {
			continue
		}
		return i, true
	}
	for i, e := range night {
		if inWindow(e) && e.HeartRate > 0 && e.HeartRate < d.cfg.OnsetHRFallback {
			return i, true
		}
	}
	return 0, false
}

// findOffset returns the index starting the first run of sustained wake
// epochs after onset, or the last epoch when no such run exists.
func (d *Detector) findOffset(night []frame.Epoch, onsetIdx int) int {
	run := 0
	for i := onsetIdx; i < len(night); i++ {
		if night[i].HeartRate >= d.cfg.WakeHRMin {
			run++
			if run >= d.cfg.SustainedWakeEpochs {
				return i - run + 1
			}
		} else {
			run = 0
		}
	}
	return len(night) - 1
}

// countWakeEpisodes clusters motion+HR spikes during sleep; gaps larger than
// the tolerance start a new episode.
func (d *Detector) countWakeEpisodes(sleep []frame.Epoch) int {
	var hits []int
	for i, e := range sleep {
		if e.HeartRate > d.cfg.WakeHRMin && e.AccEnergy > d.cfg.WakeEnergyMin {
			hits = append(hits, i)
		}
	}
	if len(hits) == 0 {
		return 0
	}
	episodes := 1
	for i := 1; i < len(hits); i++ {
		if hits[i]-hits[i-1] > d.cfg.WakeGapEpochs {
			episodes++
		}
	}
	return episodes
}

// hrNadir is the minimum 30-minute rolling mean heart rate during sleep.
func (d *Detector) hrNadir(sleep []frame.Epoch) *float64 {
	var hrs []float64
	for _, e := range sleep {
		if e.HeartRate > 0 {
			hrs = append(hrs, e.HeartRate)
		}
	}
	if len(hrs) == 0 {
		return nil
	}
	rolled := stats.RollingMean(hrs, d.cfg.NadirRollingEpochs, d.cfg.NadirMinEpochs)
	nadir := stats.Min(rolled)
	if math.IsNaN(nadir) {
		return nil
	}
	return frame.Float(stats.Round(nadir, 1))
}
