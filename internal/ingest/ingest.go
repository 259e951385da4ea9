// Package ingest loads and normalizes the three input CSV frames: cognitive
// test results, 30-second sensor epochs, and the logged sleep sessions.
// Each loader validates the header shape, resolves device timezones, and
// returns rows sorted by time.
package ingest

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vitalrun/vitalrun/internal/frame"
	"github.com/vitalrun/vitalrun/internal/selfreport"
)

// defaultSessionTZ is assumed for sleep-session and sensor rows that carry
// no usable timezone column.
const defaultSessionTZ = "US/Eastern"

var utcOffsetRE = regexp.MustCompile(`^UTC([+-])(\d{2}):(\d{2})$`)

// timestamp layouts seen across export variants.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

type table struct {
	cols map[string]int
	rows [][]string
}

func readTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parse %s: empty file", path)
	}

	cols := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		cols[strings.TrimSpace(name)] = i
	}
	return &table{cols: cols, rows: records[1:]}, nil
}

func (t *table) has(col string) bool {
	_, ok := t.cols[col]
	return ok
}

func (t *table) get(row []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t *table) getFloat(row []string, col string) (float64, bool) {
	s := t.get(row, col)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (t *table) getFloatPtr(row []string, col string) *float64 {
	if v, ok := t.getFloat(row, col); ok {
		return frame.Float(v)
	}
	return nil
}

// resolveTZ maps a device timezone string to a location. "UTC±HH:MM" becomes
// a fixed offset; anything else is tried as an IANA name, falling back to
// UTC.
func resolveTZ(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" || name == "UTC" {
		return time.UTC
	}
	if m := utcOffsetRE.FindStringSubmatch(name); m != nil {
		h, _ := strconv.Atoi(m[2])
		min, _ := strconv.Atoi(m[3])
		offset := h*3600 + min*60
		if m[1] == "-" {
			offset = -offset
		}
		return time.FixedZone(name, offset)
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.UTC
}

// modalTZ picks the most frequent non-empty timezone value in a column.
func modalTZ(t *table, col string) string {
	counts := map[string]int{}
	for _, row := range t.rows {
		if v := t.get(row, col); v != "" {
			counts[v]++
		}
	}
	best, bestN := "", 0
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best
}

func parseCreatedAt(s string) (time.Time, error) {
	for _, layout := range createdAtLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseUnix(s string) (time.Time, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, false
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC(), true
}

func isTrue(s string) bool {
	return strings.EqualFold(s, "true")
}

// LoadTestResults loads a test-results CSV: drops deleted and failed rows,
// resolves the modal device timezone, and parses self-report ratings out of
// the comment column.
func LoadTestResults(path string) ([]frame.TestResult, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if !t.has("type") || !t.has("score") {
		return nil, fmt.Errorf("%s does not look like a test-results CSV (missing 'type' or 'score' columns)", path)
	}

	loc := resolveTZ(modalTZ(t, "device_timezone"))

	var out []frame.TestResult
	for _, row := range t.rows {
		if isTrue(t.get(row, "is_deleted")) || isTrue(t.get(row, "is_failed")) {
			continue
		}
		createdAt, err := parseCreatedAt(t.get(row, "created_at"))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		local := createdAt.In(loc)

		tr := frame.TestResult{
			Type:       t.get(row, "type"),
			IsBaseline: isTrue(t.get(row, "is_baseline")),
			CreatedAt:  createdAt,
			Local:      local,
			Hour:       float64(local.Hour()) + float64(local.Minute())/60.0,
			UserID:     t.get(row, "user_id"),
		}
		tr.Score, tr.HasScore = t.getFloat(row, "score")

		report := selfreport.Parse(t.get(row, "comment"))
		tr.Stress = report.Stress
		tr.Sleepiness = report.Sleepiness
		tr.Sharpness = report.Sharpness
		tr.ContextNote = report.ContextNote

		out = append(out, tr)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// LoadSleepSessions loads a sleep-sessions CSV keyed on unix-second start
// and end columns, resolving the modal timezone with an Eastern fallback.
func LoadSleepSessions(path string) ([]frame.SleepSession, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if !t.has("total_sleep_time_min") || !t.has("sleep_start_u_t_c") {
		return nil, fmt.Errorf("%s does not look like a sleep-sessions CSV (missing 'total_sleep_time_min' or 'sleep_start_u_t_c')", path)
	}

	tz := modalTZ(t, "time_zone")
	if tz == "" {
		tz = defaultSessionTZ
	}
	loc := resolveTZ(tz)

	var out []frame.SleepSession
	for _, row := range t.rows {
		start, ok := parseUnix(t.get(row, "sleep_start_u_t_c"))
		if !ok {
			continue
		}
		end, _ := parseUnix(t.get(row, "sleep_end_u_t_c"))

		s := frame.SleepSession{
			Start:      start,
			End:        end,
			StartLocal: start.In(loc),
			EndLocal:   end.In(loc),

			SleepNeededMin:      t.getFloatPtr(row, "sleep_needed_min"),
			SleepDebtMin:        t.getFloatPtr(row, "sleep_debt_min"),
			RecoveryScore:       t.getFloatPtr(row, "recovery_score"),
			StressScore:         t.getFloatPtr(row, "stress_score"),
			AvgHRVRMSSD:         t.getFloatPtr(row, "avg_hrv_rmssd_ms"),
			AvgWakeHR:           t.getFloatPtr(row, "avg_hr_bpm_when_wake"),
			MaxHR:               t.getFloatPtr(row, "max_hr_bpm"),
			CircadianCompliance: t.getFloatPtr(row, "circadian_compliance"),
		}
		s.NightDate = frame.DateKey(s.StartLocal)
		s.SessionMin, _ = t.getFloat(row, "total_session_time_min")
		s.SleepMin, _ = t.getFloat(row, "total_sleep_time_min")
		s.WakeMin, _ = t.getFloat(row, "total_wake_time_min")
		s.LightMin, _ = t.getFloat(row, "total_light")
		s.DeepMin, _ = t.getFloat(row, "total_deep")
		s.REMMin, _ = t.getFloat(row, "total_rem")

		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// LoadEpochs loads a decoded-metrics CSV of 30-second sensor epochs. The
// accelerometer energy is the sum of the per-axis energyPerSec columns, with
// RMS columns as a fallback for older exports.
func LoadEpochs(path string) ([]frame.Epoch, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if !t.has("acc_x_count") {
		return nil, fmt.Errorf("%s does not look like a decoded-metrics CSV (missing 'acc_x_count')", path)
	}

	loc := resolveTZ(defaultSessionTZ)

	var energyCols, rmsCols []string
	for name := range t.cols {
		if !strings.HasPrefix(name, "acc_") {
			continue
		}
		if strings.Contains(name, "energyPerSec") {
			energyCols = append(energyCols, name)
		} else if strings.Contains(strings.ToLower(name), "rms") {
			rmsCols = append(rmsCols, name)
		}
	}
	sort.Strings(energyCols)
	sort.Strings(rmsCols)
	// Per-axis energyPerSec columns sum linearly; per-axis RMS columns are
	// combined as a vector magnitude.
	useRMS := len(energyCols) == 0
	if useRMS {
		energyCols = rmsCols
	}

	var out []frame.Epoch
	for _, row := range t.rows {
		ts, ok := parseUnix(t.get(row, "timestamp"))
		if !ok {
			continue
		}
		e := frame.Epoch{
			Timestamp: ts,
			Local:     ts.In(loc),
			WearOn:    t.get(row, "wear_mode") == "wear_on",
		}
		e.HeartRate, _ = t.getFloat(row, "heart_rate_mean")
		e.RMSSD, _ = t.getFloat(row, "cardio_RMSSD_ms")
		e.SDNN, _ = t.getFloat(row, "cardio_SDNN_ms")
		e.HRVConfidence, _ = t.getFloat(row, "cardio_confidence_median")
		e.Steps, _ = t.getFloat(row, "steps")
		e.Calories, _ = t.getFloat(row, "calories")
		for _, col := range energyCols {
			if v, ok := t.getFloat(row, col); ok {
				if useRMS {
					e.AccEnergy += v * v
				} else {
					e.AccEnergy += v
				}
			}
		}
		if useRMS {
			e.AccEnergy = math.Sqrt(e.AccEnergy)
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
