// Package frame defines the normalized, immutable input tables the analyzers
// consume: sensor epochs, cognitive test results, and logged sleep sessions.
// All cross-component joins key on the canonical date string produced by
// DateKey; a missing key means "no data for that date", never an error.
package frame

import "time"

// DateLayout is the canonical date-key format used for all daily joins.
const DateLayout = "2006-01-02"

// NightBoundaryHour splits calendar nights: an epoch before 18:00 local
// belongs to the previous night.
const NightBoundaryHour = 18

// DateKey returns the canonical date string for a local timestamp.
func DateKey(local time.Time) string {
	return local.Format(DateLayout)
}

// NightDateKey returns the calendar-night key for a local timestamp using the
// 18:00→18:00 night boundary.
func NightDateKey(local time.Time) string {
	return local.Add(-NightBoundaryHour * time.Hour).Format(DateLayout)
}

// Epoch is one fixed-duration sensor sample (typically 30 seconds).
// Zero HeartRate/RMSSD values mean the channel was not observed.
type Epoch struct {
	Timestamp     time.Time // UTC
	Local         time.Time // resolved device-local time
	WearOn        bool
	HeartRate     float64 // bpm mean over the epoch
	AccEnergy     float64 // summed accelerometer energy channels
	RMSSD         float64 // ms
	SDNN          float64 // ms
	HRVConfidence float64 // 0..1
	Steps         float64 // cumulative counter
	Calories      float64 // cumulative counter
}

// TestResult is one discrete cognitive test with optional parsed self-report.
type TestResult struct {
	Type       string // READY, AGILITY, FOCUS
	Score      float64
	HasScore   bool
	IsBaseline bool
	CreatedAt  time.Time // UTC
	Local      time.Time
	Hour       float64 // local hour-of-day with minute fraction
	UserID     string

	Stress      *float64
	Sleepiness  *float64
	Sharpness   *float64
	ContextNote string
}

// DateKey returns the local calendar-date key for the test.
func (t TestResult) DateKey() string {
	return DateKey(t.Local)
}

// SleepSession is one row of the night-log: stage minutes, recovery and debt
// readings, and session timing. Nullable metrics are pointers; stage minutes
// default to zero when unreported.
type SleepSession struct {
	Start      time.Time // UTC
	End        time.Time
	StartLocal time.Time
	EndLocal   time.Time
	NightDate  string // date key of the local start

	SessionMin float64 // total time in bed
	SleepMin   float64 // total asleep
	WakeMin    float64
	LightMin   float64
	DeepMin    float64
	REMMin     float64

	SleepNeededMin      *float64
	SleepDebtMin        *float64
	RecoveryScore       *float64
	StressScore         *float64
	AvgHRVRMSSD         *float64
	AvgWakeHR           *float64
	MaxHR               *float64
	CircadianCompliance *float64
}

// LocalHour returns the session's local start hour with minute fraction.
func (s SleepSession) LocalHour() float64 {
	return float64(s.StartLocal.Hour()) + float64(s.StartLocal.Minute())/60.0
}

// Float returns a pointer to v, for building nullable output fields.
func Float(v float64) *float64 { return &v }
