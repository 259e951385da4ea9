// Package hrv computes the personal HRV baseline, sleep and morning RMSSD,
// diurnal profile, and multi-day trend from sensor epochs.
package hrv

import (
	"math"
	"sort"
	"time"

	"github.com/vitalrun/vitalrun/internal/frame"
	"github.com/vitalrun/vitalrun/internal/stats"
)

// Config holds the HRV filtering and windowing parameters.
type Config struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	BaselineQuantile    float64 `yaml:"baseline_quantile"` // top-quintile cutoff
	SleepHRMax          float64 `yaml:"sleep_hr_max"`
	RollingEpochs       int     `yaml:"rolling_epochs"`     // 60 epochs = 30 min
	RollingMinEpochs    int     `yaml:"rolling_min_epochs"` // 10 epochs = 5 min
	MorningWindow       time.Duration
	ResampleInterval    time.Duration
}

// DefaultConfig returns the built-in HRV parameters.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.7,
		BaselineQuantile:    0.80,
		SleepHRMax:          65,
		RollingEpochs:       60,
		RollingMinEpochs:    10,
		MorningWindow:       time.Hour,
		ResampleInterval:    5 * time.Minute,
	}
}

// HourlyRMSSD is one point of the diurnal profile.
type HourlyRMSSD struct {
	Hour      int     `json:"hour"`
	RMSSDMean float64 `json:"rmssd_mean"`
}

// HRRange summarizes observed heart rate over valid epochs.
type HRRange struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// SamplePoint is one bucket of the downsampled series kept for rendering.
type SamplePoint struct {
	Time  time.Time `json:"time"`
	RMSSD float64   `json:"rmssd_ms"`
	HR    float64   `json:"heart_rate_mean"`
}

// Result is the HRV analyzer output. Nil fields mean the statistic could not
// be computed from the available data.
type Result struct {
	RMSSDBaseline    *float64      `json:"rmssd_baseline"`
	RMSSDSleepPeak   *float64      `json:"rmssd_sleep_peak"`
	MorningRMSSD     *float64      `json:"morning_rmssd"`
	RMSSDPctBaseline *float64      `json:"rmssd_pct_baseline"`
	SDNNMean         *float64      `json:"sdnn_mean"`
	DiurnalProfile   []HourlyRMSSD `json:"diurnal_profile"`
	RMSSD7DSlope     *float64      `json:"rmssd_7d_slope"`
	HRRange          *HRRange      `json:"hr_range"`
	Timeseries       []SamplePoint `json:"timeseries,omitempty"`
}

// Analyzer computes HRV metrics over a sensor-epoch frame.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer creates an analyzer with the given parameters.
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze filters to reliable HRV readings and computes all HRV metrics.
// An empty or all-invalid frame yields a Result of nil fields.
func (a *Analyzer) Analyze(epochs []frame.Epoch) Result {
	res := Result{DiurnalProfile: []HourlyRMSSD{}}

	var valid []frame.Epoch
	for _, e := range epochs {
		if e.WearOn && e.RMSSD > 0 && e.HRVConfidence > a.cfg.ConfidenceThreshold {
			valid = append(valid, e)
		}
	}
	if len(valid) == 0 {
		return res
	}

	rmssd := make([]float64, len(valid))
	for i, e := range valid {
		rmssd[i] = e.RMSSD
	}

	// Baseline is the mean of the top quintile: a personal ceiling robust to
	// the daytime readings that dominate the distribution.
	cutoff := stats.Percentile(rmssd, a.cfg.BaselineQuantile)
	var top []float64
	for _, v := range rmssd {
		if v >= cutoff {
			top = append(top, v)
		}
	}
	if len(top) > 0 {
		res.RMSSDBaseline = frame.Float(stats.Mean(top))
	}

	res.RMSSDSleepPeak = a.sleepPeak(valid)
	res.MorningRMSSD = a.morningRMSSD(valid)

	if res.MorningRMSSD != nil && res.RMSSDBaseline != nil && *res.RMSSDBaseline != 0 {
		res.RMSSDPctBaseline = frame.Float(stats.Round(*res.MorningRMSSD / *res.RMSSDBaseline*100, 1))
	}

	var sdnn []float64
	for _, e := range valid {
		if e.SDNN > 0 {
			sdnn = append(sdnn, e.SDNN)
		}
	}
	if len(sdnn) > 0 {
		res.SDNNMean = frame.Float(stats.Mean(sdnn))
	}

	res.DiurnalProfile = diurnalProfile(valid)
	res.HRRange = hrRange(valid)
	res.RMSSD7DSlope = dailySlope(valid)
	res.Timeseries = a.resample(valid)

	return res
}

// sleepPeak is the maximum 30-minute rolling mean RMSSD restricted to low-HR
// epochs, requiring at least 5 minutes of samples per window.
func (a *Analyzer) sleepPeak(valid []frame.Epoch) *float64 {
	var sleep []float64
	for _, e := range valid {
		if e.HeartRate > 0 && e.HeartRate < a.cfg.SleepHRMax {
			sleep = append(sleep, e.RMSSD)
		}
	}
	if len(sleep) == 0 {
		return nil
	}
	rolled := stats.RollingMean(sleep, a.cfg.RollingEpochs, a.cfg.RollingMinEpochs)
	peak := stats.Max(rolled)
	if math.IsNaN(peak) {
		return nil
	}
	return frame.Float(peak)
}

// morningRMSSD approximates the wake reading as the mean over the final hour
// of the recording. Calibration parameter: the true wake time comes from the
// sleep detector when available.
func (a *Analyzer) morningRMSSD(valid []frame.Epoch) *float64 {
	last := valid[0].Timestamp
	for _, e := range valid {
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	windowStart := last.Add(-a.cfg.MorningWindow)
	var vals []float64
	for _, e := range valid {
		if !e.Timestamp.Before(windowStart) {
			vals = append(vals, e.RMSSD)
		}
	}
	if len(vals) == 0 {
		return nil
	}
	return frame.Float(stats.Mean(vals))
}

func diurnalProfile(valid []frame.Epoch) []HourlyRMSSD {
	byHour := make(map[int][]float64)
	for _, e := range valid {
		byHour[e.Local.Hour()] = append(byHour[e.Local.Hour()], e.RMSSD)
	}
	hours := make([]int, 0, len(byHour))
	for h := range byHour {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	profile := make([]HourlyRMSSD, 0, len(hours))
	for _, h := range hours {
		profile = append(profile, HourlyRMSSD{Hour: h, RMSSDMean: stats.Mean(byHour[h])})
	}
	return profile
}

func hrRange(valid []frame.Epoch) *HRRange {
	var hrs []float64
	for _, e := range valid {
		if e.HeartRate > 0 {
			hrs = append(hrs, e.HeartRate)
		}
	}
	if len(hrs) == 0 {
		return nil
	}
	return &HRRange{Min: stats.Min(hrs), Max: stats.Max(hrs), Mean: stats.Mean(hrs)}
}

// dailySpan groups RMSSD samples by local date, returning the sorted dates.
func dailySpan(valid []frame.Epoch) ([]string, map[string][]float64) {
	byDate := make(map[string][]float64)
	for _, e := range valid {
		key := frame.DateKey(e.Local)
		byDate[key] = append(byDate[key], e.RMSSD)
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates, byDate
}

// dailySlope is the OLS slope of daily mean RMSSD against day index.
// Undefined below two days of data.
func dailySlope(valid []frame.Epoch) *float64 {
	dates, byDate := dailySpan(valid)
	if len(dates) < 2 {
		return nil
	}
	means := make([]float64, len(dates))
	for i, d := range dates {
		means[i] = stats.Mean(byDate[d])
	}
	slope, ok := stats.OLSSlope(means)
	if !ok {
		return nil
	}
	return frame.Float(slope)
}

// resample buckets the valid series into fixed intervals by simple mean.
// This is a size reduction for rendering, not smoothing.
func (a *Analyzer) resample(valid []frame.Epoch) []SamplePoint {
	interval := int64(a.cfg.ResampleInterval.Seconds())
	if interval <= 0 {
		return nil
	}
	type bucket struct {
		rmssdSum, hrSum float64
		rmssdN, hrN     int
	}
	buckets := make(map[int64]*bucket)
	var keys []int64
	for _, e := range valid {
		k := e.Local.Unix() / interval
		b, ok := buckets[k]
		if !ok {
			b = &bucket{}
			buckets[k] = b
			keys = append(keys, k)
		}
		b.rmssdSum += e.RMSSD
		b.rmssdN++
		if e.HeartRate > 0 {
			b.hrSum += e.HeartRate
			b.hrN++
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]SamplePoint, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		p := SamplePoint{Time: time.Unix(k*interval, 0).UTC()}
		if b.rmssdN > 0 {
			p.RMSSD = b.rmssdSum / float64(b.rmssdN)
		}
		if b.hrN > 0 {
			p.HR = b.hrSum / float64(b.hrN)
		}
		out = append(out, p)
	}
	return out
}
