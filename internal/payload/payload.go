// Package payload trims the full analysis packet into the compact
// agent_payload.json: derived agent state, data-quality grading, ranked
// alerts, and enhanced recovery/debt/strain sections, with null and empty
// values stripped recursively.
package payload

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vitalrun/vitalrun/internal/packet"
	"github.com/vitalrun/vitalrun/internal/sessions"
	"github.com/vitalrun/vitalrun/internal/stats"
	"github.com/vitalrun/vitalrun/internal/strain"
)

// SchemaVersion identifies the payload layout for downstream consumers.
const SchemaVersion = "3.0"

// AgentState is the derived operating picture for a planning agent.
type AgentState struct {
	ReadinessRegime          string  `json:"readiness_regime"`
	ConsecutiveOverreachDays int     `json:"consecutive_overreach_days"`
	DaysSinceRestDay         *int    `json:"days_since_rest_day"`
	SleepDebtAlert           bool    `json:"sleep_debt_alert"`
	REMDeficitAlert          bool    `json:"rem_deficit_alert"`
	CircadianAnchorMissing   bool    `json:"circadian_anchor_missing"`
	RecommendedStrainCeiling int     `json:"recommended_strain_ceiling"`
	DeepWorkCapacity         string  `json:"deep_work_capacity"`
	NapRecommended           bool    `json:"nap_recommended"`
	NapWindowLocal           *string `json:"nap_window_local"`
	PeakCognitiveWindowLocal *string `json:"peak_cognitive_window_local"`
	PeakCognitiveConfidence  string  `json:"peak_cognitive_confidence"`
}

// DataQuality grades how much signal each conclusion rests on.
type DataQuality struct {
	SensorDays             int    `json:"sensor_days"`
	SleepSessionsPrimary   int    `json:"sleep_sessions_primary"`
	SelfReportPopulatedPct int    `json:"self_report_populated_pct"`
	MorningHRVPopulatedPct int    `json:"morning_hrv_populated_pct"`
	FocusMetricValid       bool   `json:"focus_metric_valid"`
	StrainCurveLearnable   bool   `json:"strain_recovery_curve_learnable"`
	ChronotypeConfidence   string `json:"chronotype_confidence"`
	OverallConfidence      string `json:"overall_confidence"`
	ConfidenceNote         string `json:"confidence_note,omitempty"`
}

// Alert is one structured advisory, ordered by severity.
type Alert struct {
	ID                string `json:"id"`
	Severity          string `json:"severity"`
	Message           string `json:"message"`
	RecommendedAction string `json:"recommended_action"`
}

var severityRank = map[string]int{"critical": 0, "warning": 1, "info": 2}

// Build assembles the payload and strips nulls. The result is a generic map
// so empty sections vanish entirely from the serialized output.
func Build(pkt packet.Packet, res packet.Results) map[string]any {
	raw := map[string]any{
		"schema_version": SchemaVersion,
		"meta": map[string]any{
			"analysis_generated_at": pkt.Meta.GeneratedAt,
			"data_coverage":         pkt.Meta.DataCoverage,
		},
		"agent_state":                buildAgentState(pkt, res),
		"data_quality":               buildDataQuality(pkt, res),
		"alerts":                     buildAlerts(pkt, res),
		"baseline":                   buildBaseline(pkt, res),
		"latest_day":                 trimLatestDay(pkt.LatestDay),
		"circadian":                  pkt.CircadianProfile,
		"recovery":                   buildRecovery(pkt, res),
		"sleep_debt":                 buildSleepDebt(pkt, res),
		"sleep_performance":          sleepPerformance(pkt),
		"sleep_architecture_summary": archSummary(pkt),
		"strain":                     buildStrain(pkt),
		"trends":                     pkt.Trends,
	}
	stripped, _ := StripNulls(toGeneric(raw)).(map[string]any)
	return stripped
}

func buildAgentState(pkt packet.Packet, res packet.Results) AgentState {
	var dailyStrain []strain.DailyStrain
	if res.Strain != nil {
		dailyStrain = res.Strain.DailyStrain
	}

	zone := ""
	daysSinceGreen := -1
	if pkt.Recovery != nil {
		zone = pkt.Recovery.Zone
		daysSinceGreen = pkt.Recovery.DaysSinceGreenZone
	}

	debtHours := 0.0
	if pkt.SleepDebt != nil {
		debtHours = pkt.SleepDebt.CurrentDebtHours
	}

	arch := archSummary(pkt)
	remDeficit := arch != nil && arch.AvgREMPct < 18

	circ := pkt.CircadianProfile
	anchorMissing := circ.BedtimeVarianceMin != nil && *circ.BedtimeVarianceMin > 45

	overreach := countOverreach(dailyStrain)
	ceiling := strainCeiling(zone, overreach)

	napRecommended := remDeficit && debtHours > 1.5
	state := AgentState{
		ReadinessRegime:          readinessRegime(zone, daysSinceGreen),
		ConsecutiveOverreachDays: overreach,
		DaysSinceRestDay:         daysSinceRest(dailyStrain),
		SleepDebtAlert:           debtHours > 1.5,
		REMDeficitAlert:          remDeficit,
		CircadianAnchorMissing:   anchorMissing,
		RecommendedStrainCeiling: ceiling,
		DeepWorkCapacity:         deepWorkCapacity(ceiling, remDeficit, debtHours > 1.5),
		NapRecommended:           napRecommended,
		PeakCognitiveWindowLocal: circ.EstimatedPeakWindow,
		PeakCognitiveConfidence:  peakConfidence(readyTestCount(res), zone),
	}
	if napRecommended {
		w := napWindow(circ.EstimatedPeakWindow)
		state.NapWindowLocal = &w
	}
	return state
}

func readinessRegime(zone string, daysSinceGreen int) string {
	switch zone {
	case "red":
		return "red"
	case "yellow":
		if daysSinceGreen >= 3 {
			return "chronic_yellow"
		}
		return "yellow"
	}
	return "green"
}

// countOverreach counts the trailing run of days at or above the overreach
// strain threshold.
func countOverreach(daily []strain.DailyStrain) int {
	count := 0
	for i := len(daily) - 1; i >= 0; i-- {
		if daily[i].StrainScore < 18 {
			break
		}
		count++
	}
	return count
}

// daysSinceRest counts back to the last day with strain under 5. Nil means
// no strain data at all.
func daysSinceRest(daily []strain.DailyStrain) *int {
	if len(daily) == 0 {
		return nil
	}
	for i := 0; i < len(daily); i++ {
		if daily[len(daily)-1-i].StrainScore < 5 {
			return &i
		}
	}
	n := len(daily)
	return &n
}

func strainCeiling(zone string, overreach int) int {
	switch zone {
	case "red":
		return 8
	case "yellow":
		return maxInt(8, 14-overreach*2)
	}
	return maxInt(10, 18-overreach*2)
}

func deepWorkCapacity(ceiling int, remDeficit, debtAlert bool) string {
	if ceiling <= 8 || (remDeficit && debtAlert) {
		return "low"
	}
	if ceiling <= 12 || remDeficit || debtAlert {
		return "moderate"
	}
	return "high"
}

// napWindow places a one-hour nap slot two hours after the cognitive peak
// ends, capped at 16:00.
func napWindow(peakWindow *string) string {
	const fallback = "13:00-15:00"
	if peakWindow == nil {
		return fallback
	}
	parts := strings.Split(*peakWindow, "-")
	if len(parts) != 2 {
		return fallback
	}
	endH, err := strconv.Atoi(strings.TrimSuffix(parts[1], ":00"))
	if err != nil {
		return fallback
	}
	napH := minInt(endH+2, 16)
	return fmt.Sprintf("%02d:00-%02d:00", napH, napH+1)
}

func peakConfidence(nReady int, zone string) string {
	if nReady >= 30 && (zone == "green" || zone == "") {
		return "high"
	}
	if nReady >= 15 {
		return "medium"
	}
	return "low"
}

func readyTestCount(res packet.Results) int {
	if res.Performance == nil {
		return 0
	}
	n := 0
	for _, d := range res.Performance.DailyReady {
		n += d.Count
	}
	return n
}

func buildDataQuality(pkt packet.Packet, res packet.Results) DataQuality {
	sensorDays := 0
	if span, ok := pkt.Meta.DataCoverage["sensor_data"]; ok {
		from, errF := time.Parse(time.RFC3339, span.From)
		to, errT := time.Parse(time.RFC3339, span.To)
		if errF == nil && errT == nil {
			sensorDays = maxInt(1, int(to.Sub(from).Hours()/24)+1)
		}
	}

	primaryCount := 0
	if res.Sessions != nil {
		for _, n := range res.Sessions.Nights {
			if n.SessionType == sessions.Primary {
				primaryCount++
			}
		}
	}

	nReady := readyTestCount(res)

	srPopulated, srTotal := 0, 0
	if res.Performance != nil {
		srTotal = len(res.Performance.DailySelfReport)
		for _, d := range res.Performance.DailySelfReport {
			if d.Stress != nil || d.Sleepiness != nil || d.Sharpness != nil {
				srPopulated++
			}
		}
	}
	srPct := 0
	if srTotal > 0 {
		srPct = int(stats.Round(float64(srPopulated)/float64(srTotal)*100, 0))
	}

	hrvPct := 0
	if res.HRV != nil && len(res.HRV.Timeseries) > 0 && res.Sessions != nil && len(res.Sessions.Nights) > 0 {
		hrvPct = minInt(100, int(stats.Round(float64(len(res.HRV.Timeseries))/float64(maxInt(1, primaryCount))*100/50, 0)))
	}

	strainVar := strainVariability(res)

	cosinorN := 0
	if res.Circadian != nil {
		cosinorN = res.Circadian.CosinorN
	}
	chronoConf := "low"
	if cosinorN >= 30 {
		chronoConf = "high"
	} else if cosinorN >= 15 {
		chronoConf = "medium"
	}

	overall := overallConfidence(sensorDays, primaryCount, nReady, srPct)
	q := DataQuality{
		SensorDays:             sensorDays,
		SleepSessionsPrimary:   primaryCount,
		SelfReportPopulatedPct: srPct,
		MorningHRVPopulatedPct: hrvPct,
		FocusMetricValid:       nReady >= 30,
		StrainCurveLearnable:   strainVar != "none",
		ChronotypeConfidence:   chronoConf,
		OverallConfidence:      overall,
	}
	if overall == "low" {
		q.ConfidenceNote = confidenceNote(sensorDays, primaryCount, nReady)
	}
	return q
}

func strainVariability(res packet.Results) string {
	if res.Strain == nil {
		return "none"
	}
	var scores []float64
	for _, d := range res.Strain.DailyStrain {
		scores = append(scores, d.StrainScore)
	}
	switch {
	case len(scores) >= 3:
		std := stats.PopStd(scores)
		if std > 5 {
			return "high"
		}
		if std > 2 {
			return "moderate"
		}
		return "low"
	case len(scores) >= 2:
		return "low"
	}
	return "none"
}

func overallConfidence(sensorDays, primaryCount, nReady, srPct int) string {
	score := 0
	if sensorDays >= 7 {
		score++
	}
	if primaryCount >= 5 {
		score++
	}
	if nReady >= 30 {
		score++
	}
	if srPct >= 50 {
		score++
	}
	if score >= 3 {
		return "high"
	}
	if score >= 2 {
		return "medium"
	}
	return "low"
}

func confidenceNote(sensorDays, primaryCount, nReady int) string {
	var parts []string
	if sensorDays < 7 {
		parts = append(parts, fmt.Sprintf("only %d sensor day(s)", sensorDays))
	}
	if primaryCount < 5 {
		parts = append(parts, fmt.Sprintf("only %d primary sleep session(s)", primaryCount))
	}
	if nReady < 15 {
		parts = append(parts, fmt.Sprintf("only %d Ready test(s)", nReady))
	}
	return "Low confidence: " + strings.Join(parts, ", ") + ". Collect more data for reliable insights."
}

func buildAlerts(pkt packet.Packet, res packet.Results) []Alert {
	alerts := []Alert{}
	var dailyStrain []strain.DailyStrain
	if res.Strain != nil {
		dailyStrain = res.Strain.DailyStrain
	}

	if pkt.Recovery != nil {
		zone := pkt.Recovery.Zone
		dsg := pkt.Recovery.DaysSinceGreenZone
		if (zone == "red" || zone == "yellow") && dsg >= 3 {
			sev := "warning"
			if zone == "red" {
				sev = "critical"
			}
			alerts = append(alerts, Alert{
				ID:                "CHRONIC_UNDERRECOVERY",
				Severity:          sev,
				Message:           fmt.Sprintf("Recovery has not reached green zone in %d sessions.", dsg),
				RecommendedAction: "Prioritize sleep, reduce training load, and consider a rest day.",
			})
		}
	}

	if pkt.SleepDebt != nil && pkt.SleepDebt.CurrentDebtHours > 1.5 {
		debtH := pkt.SleepDebt.CurrentDebtHours
		sev := "warning"
		if debtH > 4 {
			sev = "critical"
		}
		trend := pkt.SleepDebt.Trend
		if trend == "" {
			trend = "unknown"
		}
		alerts = append(alerts, Alert{
			ID:                "SLEEP_DEBT_ACCUMULATING",
			Severity:          sev,
			Message:           fmt.Sprintf("You owe %sh of sleep. Trend: %s.", trimFloat(debtH), trend),
			RecommendedAction: fmt.Sprintf("Aim for %d extra minutes tonight.", 30+int(debtH*15)),
		})
	}

	if overreach := countOverreach(dailyStrain); overreach >= 2 {
		alerts = append(alerts, Alert{
			ID:                "OVERREACH_STREAK",
			Severity:          "warning",
			Message:           fmt.Sprintf("Strain >=18 for %d consecutive day(s). Risk of functional overreach.", overreach),
			RecommendedAction: "Schedule a rest day. Reduce strain below 10.",
		})
	}

	if arch := archSummary(pkt); arch != nil {
		if arch.AvgREMPct < 18 {
			alerts = append(alerts, Alert{
				ID:                "REM_DEFICIT",
				Severity:          "warning",
				Message:           fmt.Sprintf("Average REM is %s%% (target >=20%%). REM debt over last 3 nights: %d min.", trimFloat(arch.AvgREMPct), arch.REMDebtMin3Night),
				RecommendedAction: "Avoid alcohol and late caffeine. Aim for consistent wake time.",
			})
		}
		if arch.AvgDeepPct < 15 {
			alerts = append(alerts, Alert{
				ID:                "DEEP_SLEEP_DEFICIT",
				Severity:          "warning",
				Message:           fmt.Sprintf("Average deep sleep is %s%% (target 15-20%%).", trimFloat(arch.AvgDeepPct)),
				RecommendedAction: "Exercise earlier in the day. Keep bedroom cool (65-68F).",
			})
		}
	}

	if bv := pkt.CircadianProfile.BedtimeVarianceMin; bv != nil && *bv > 45 {
		alerts = append(alerts, Alert{
			ID:                "CIRCADIAN_DRIFT",
			Severity:          "info",
			Message:           fmt.Sprintf("Bedtime varies by %d min. Circadian anchor is unstable.", int(*bv)),
			RecommendedAction: "Set a consistent bedtime within a 30-minute window.",
		})
	}

	if dr := daysSinceRest(dailyStrain); dr != nil && *dr >= 7 {
		alerts = append(alerts, Alert{
			ID:                "REST_DAY_OVERDUE",
			Severity:          "info",
			Message:           fmt.Sprintf("No rest day (strain <5) in the last %d days.", *dr),
			RecommendedAction: "Schedule a low-strain recovery day.",
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return severityRank[alerts[i].Severity] < severityRank[alerts[j].Severity]
	})
	return alerts
}

func buildBaseline(pkt packet.Packet, res packet.Results) map[string]any {
	out := map[string]any{
		"ready_score":         pkt.Baseline.ReadyScore,
		"agility_peak":        pkt.Baseline.AgilityPeak,
		"rmssd_sleep_peak_ms": pkt.Baseline.RMSSDSleepPeak,
	}
	if res.Performance != nil {
		var scores []float64
		for _, d := range res.Performance.DailyReady {
			scores = append(scores, d.Mean)
		}
		if len(scores) > 0 {
			sorted := append([]float64(nil), scores...)
			sort.Float64s(sorted)
			out["ready_p25"] = stats.Round(stats.Percentile(sorted, 0.25), 1)
			out["ready_p50"] = stats.Round(stats.Percentile(sorted, 0.50), 1)
			out["ready_p75"] = stats.Round(stats.Percentile(sorted, 0.75), 1)
		}
		if len(res.Performance.DailyFocus) >= 30 {
			out["focus_peak"] = pkt.Baseline.FocusPeak
		}
	}
	return out
}

func trimLatestDay(ld *packet.DailySummary) map[string]any {
	if ld == nil {
		return nil
	}
	return map[string]any{
		"date":               ld.Date,
		"readiness_tier":     ld.ReadinessTier,
		"ready_mean":         ld.ReadyMean,
		"ready_pct_baseline": ld.ReadyPctBaseline,
		"agility_mean":       ld.AgilityMean,
		"focus_mean":         ld.FocusMean,
		"self_report":        ld.SelfReport,
		"strain":             ld.Strain,
	}
}

func buildRecovery(pkt packet.Packet, res packet.Results) map[string]any {
	r := pkt.Recovery
	if r == nil {
		return nil
	}
	var primary []sessions.NightSummary
	if res.Sessions != nil {
		for _, n := range res.Sessions.Nights {
			if n.SessionType == sessions.Primary {
				primary = append(primary, n)
			}
		}
	}
	return map[string]any{
		"latest":                   r.Latest,
		"zone":                     r.Zone,
		"personal_mean":            r.PersonalMean,
		"pct_of_mean":              r.PctOfMean,
		"trend":                    r.Trend,
		"days_since_green_zone":    r.DaysSinceGreenZone,
		"recovery_limiting_factor": limitingFactor(pkt.SleepDebt, primary),
	}
}

// limitingFactor names the first matching drag on recovery, in priority
// order.
func limitingFactor(debt *sessions.DebtSummary, primary []sessions.NightSummary) *string {
	if debt != nil && debt.CurrentDebtHours > 2 {
		s := "sleep_debt"
		return &s
	}
	if len(primary) > 0 {
		last := primary[len(primary)-1]
		if last.AvgHRVRMSSD != nil && *last.AvgHRVRMSSD < 30 {
			s := "low_hrv"
			return &s
		}
		if last.EfficiencyPct < 80 {
			s := "poor_sleep_efficiency"
			return &s
		}
		if last.DeepPct < 10 {
			s := "low_deep_sleep"
			return &s
		}
	}
	return nil
}

func buildSleepDebt(pkt packet.Packet, res packet.Results) map[string]any {
	sd := pkt.SleepDebt
	if sd == nil {
		return nil
	}
	out := map[string]any{
		"current_debt_min":        sd.CurrentDebtMin,
		"current_debt_hours":      sd.CurrentDebtHours,
		"nights_to_repay":         sd.NightsToRepay,
		"avg_nightly_deficit_min": sd.AvgNightlyDeficitMin,
		"trend":                   sd.Trend,
		"nightly_deficit_trend":   sd.Trend,
	}
	if arch := archSummary(pkt); arch != nil && arch.AvgBedtimeLocal != nil {
		if bt := recommendedBedtime(*arch.AvgBedtimeLocal, sd.CurrentDebtHours); bt != "" {
			out["recommended_bedtime_tonight_local"] = bt
		}
	}
	return out
}

// recommendedBedtime pulls the usual bedtime earlier by 15 minutes per debt
// hour, capped at one hour.
func recommendedBedtime(avgBedtime string, debtHours float64) string {
	parts := strings.Split(avgBedtime, ":")
	if len(parts) != 2 {
		return ""
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil {
		return ""
	}
	extra := minInt(60, int(debtHours*15))
	total := h*60 + m - extra
	if total < 0 {
		total += 24 * 60
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func sleepPerformance(pkt packet.Packet) *sessions.PerformanceSummary {
	if pkt.SleepSessions == nil {
		return nil
	}
	return pkt.SleepSessions.SleepPerformance
}

func archSummary(pkt packet.Packet) *sessions.ArchitectureSummary {
	if pkt.SleepSessions == nil {
		return nil
	}
	return pkt.SleepSessions.ArchitectureSummary
}

func buildStrain(pkt packet.Packet) map[string]any {
	if pkt.Strain == nil || len(pkt.Strain.DailyStrain) == 0 {
		return nil
	}
	daily := pkt.Strain.DailyStrain
	latest := daily[len(daily)-1]
	dr := daysSinceRest(daily)

	return map[string]any{
		"latest_score":              latest.StrainScore,
		"latest_level":              latest.StrainLevel,
		"latest_sleep_need_adj_min": latest.SleepNeedAdjustMin,
		"max_hr_est":                pkt.Strain.MaxHREst,
		"days_since_rest_day":       dr,
		"strain_variability":        strainVariability(packet.Results{Strain: pkt.Strain}),
		"rest_day_overdue":          dr != nil && *dr >= 7,
	}
}

// toGeneric round-trips through JSON so typed structs and pointers become
// plain maps, slices, and scalars.
func toGeneric(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// StripNulls removes nil values, empty maps, and nil list elements
// recursively. A map reduced to nothing becomes nil so its parent drops it
// too.
func StripNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		cleaned := map[string]any{}
		for k, val := range t {
			val = StripNulls(val)
			if val == nil {
				continue
			}
			if m, ok := val.(map[string]any); ok && len(m) == 0 {
				continue
			}
			cleaned[k] = val
		}
		if len(cleaned) == 0 {
			return nil
		}
		return cleaned
	case []any:
		cleaned := make([]any, 0, len(t))
		for _, item := range t {
			if item = StripNulls(item); item != nil {
				cleaned = append(cleaned, item)
			}
		}
		return cleaned
	}
	return v
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
