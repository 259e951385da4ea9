// Package pipeline orchestrates a full analysis run: ingest the exported
// CSVs, run every analysis module, assemble the context packet and agent
// payload, and write the artifacts to disk.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vitalrun/vitalrun/internal/activity"
	"github.com/vitalrun/vitalrun/internal/analyst"
	"github.com/vitalrun/vitalrun/internal/circadian"
	"github.com/vitalrun/vitalrun/internal/config"
	"github.com/vitalrun/vitalrun/internal/frame"
	"github.com/vitalrun/vitalrun/internal/hrv"
	"github.com/vitalrun/vitalrun/internal/ingest"
	"github.com/vitalrun/vitalrun/internal/metrics"
	"github.com/vitalrun/vitalrun/internal/packet"
	"github.com/vitalrun/vitalrun/internal/patterns"
	"github.com/vitalrun/vitalrun/internal/payload"
	"github.com/vitalrun/vitalrun/internal/performance"
	"github.com/vitalrun/vitalrun/internal/readiness"
	"github.com/vitalrun/vitalrun/internal/sessions"
	"github.com/vitalrun/vitalrun/internal/sleepdetect"
	"github.com/vitalrun/vitalrun/internal/strain"
)

// Briefer compresses the analysis packet into a compact JSON briefing.
// Optional. An unparseable model reply is returned as an error briefing with
// a nil error; only transport failures error.
type Briefer interface {
	Brief(ctx context.Context, pkt map[string]any) (map[string]any, error)
}

// Options configures a pipeline run. Input paths left empty are skipped and
// the modules that depend on them produce empty sections.
type Options struct {
	TestsCSV    string
	EpochsCSV   string
	SessionsCSV string
	OutputDir   string
	GraphsDir   string
}

// Summary reports what a run produced.
type Summary struct {
	RunID         string   `json:"run_id"`
	TestRows      int      `json:"test_rows"`
	EpochRows     int      `json:"epoch_rows"`
	SessionRows   int      `json:"session_rows"`
	NightsFound   int      `json:"nights_found"`
	PatternsFound int      `json:"patterns_found"`
	Artifacts     []string `json:"artifacts"`
	Duration      string   `json:"duration"`
}

// Pipeline runs the analysis end to end.
type Pipeline struct {
	cfg     config.Config
	log     zerolog.Logger
	metrics *metrics.Registry
	briefer Briefer
}

// New creates a pipeline. The metrics registry and briefer may be nil.
func New(cfg config.Config, log zerolog.Logger, reg *metrics.Registry, briefer Briefer) *Pipeline {
	return &Pipeline{cfg: cfg, log: log, metrics: reg, briefer: briefer}
}

// Run executes the full analysis and writes artifacts under opts.OutputDir.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Summary, error) {
	start := time.Now()
	runID := uuid.New().String()[:8]
	log := p.log.With().Str("run_id", runID).Logger()

	if opts.TestsCSV == "" && opts.EpochsCSV == "" && opts.SessionsCSV == "" {
		return Summary{}, fmt.Errorf("no input files given")
	}

	tests, epochs, sleepSessions := p.loadFrames(log, opts)
	if len(tests) == 0 && len(epochs) == 0 && len(sleepSessions) == 0 {
		return Summary{}, fmt.Errorf("no usable rows in any input file")
	}

	res := p.analyze(ctx, log, tests, epochs, sleepSessions)

	src := packet.Sources{Tests: tests, Epochs: epochs, Sessions: sleepSessions}
	pkt := packet.Build(src, res, opts.GraphsDir, time.Now())
	agentPayload := payload.Build(pkt, res)

	if p.metrics != nil {
		p.metrics.RunsTotal.Inc()
		for _, pat := range res.Patterns {
			p.metrics.PatternsDetected.WithLabelValues(pat.Pattern, pat.Severity).Inc()
		}
		if alerts, ok := agentPayload["alerts"].([]any); ok {
			for _, a := range alerts {
				if m, ok := a.(map[string]any); ok {
					id, _ := m["id"].(string)
					sev, _ := m["severity"].(string)
					p.metrics.AlertsEmitted.WithLabelValues(id, sev).Inc()
				}
			}
		}
	}

	artifacts, err := p.writeArtifacts(ctx, log, opts.OutputDir, pkt, agentPayload)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		RunID:         runID,
		TestRows:      len(tests),
		EpochRows:     len(epochs),
		SessionRows:   len(sleepSessions),
		PatternsFound: len(res.Patterns),
		Artifacts:     artifacts,
		Duration:      time.Since(start).Round(time.Millisecond).String(),
	}
	if res.Sleep != nil {
		summary.NightsFound = len(res.Sleep.Nights)
	}

	log.Info().
		Int("test_rows", summary.TestRows).
		Int("epoch_rows", summary.EpochRows).
		Int("session_rows", summary.SessionRows).
		Int("patterns", summary.PatternsFound).
		Str("duration", summary.Duration).
		Msg("analysis run complete")

	return summary, nil
}

// loadFrames ingests whichever CSVs were given. A bad file is logged and
// skipped rather than failing the run.
func (p *Pipeline) loadFrames(log zerolog.Logger, opts Options) ([]frame.TestResult, []frame.Epoch, []frame.SleepSession) {
	var tests []frame.TestResult
	var epochs []frame.Epoch
	var sleepSessions []frame.SleepSession

	if opts.TestsCSV != "" {
		var err error
		tests, err = ingest.LoadTestResults(opts.TestsCSV)
		if err != nil {
			log.Warn().Err(err).Str("path", opts.TestsCSV).Msg("skipping test results")
		}
	}
	if opts.EpochsCSV != "" {
		var err error
		epochs, err = ingest.LoadEpochs(opts.EpochsCSV)
		if err != nil {
			log.Warn().Err(err).Str("path", opts.EpochsCSV).Msg("skipping sensor epochs")
		}
	}
	if opts.SessionsCSV != "" {
		var err error
		sleepSessions, err = ingest.LoadSleepSessions(opts.SessionsCSV)
		if err != nil {
			log.Warn().Err(err).Str("path", opts.SessionsCSV).Msg("skipping sleep sessions")
		}
	}

	if p.metrics != nil {
		p.metrics.FrameRows.WithLabelValues("tests").Set(float64(len(tests)))
		p.metrics.FrameRows.WithLabelValues("epochs").Set(float64(len(epochs)))
		p.metrics.FrameRows.WithLabelValues("sessions").Set(float64(len(sleepSessions)))
	}

	log.Info().
		Int("tests", len(tests)).
		Int("epochs", len(epochs)).
		Int("sessions", len(sleepSessions)).
		Msg("frames loaded")

	return tests, epochs, sleepSessions
}

// analyze runs every module that has data to work on.
func (p *Pipeline) analyze(ctx context.Context, log zerolog.Logger, tests []frame.TestResult, epochs []frame.Epoch, sleepSessions []frame.SleepSession) packet.Results {
	var res packet.Results

	if len(tests) > 0 {
		p.stage(log, "performance", func() {
			r := performance.NewAnalyzer(p.cfg.Performance).Analyze(tests)
			res.Performance = &r
		})
	}

	if len(epochs) > 0 {
		p.stage(log, "hrv", func() {
			r := hrv.NewAnalyzer(p.cfg.HRV).Analyze(epochs)
			res.HRV = &r
		})
		p.stage(log, "sleep_detect", func() {
			r := sleepdetect.NewDetector(p.cfg.SleepDetect).Analyze(epochs)
			res.Sleep = &r
		})
		p.stage(log, "activity", func() {
			r := activity.NewClassifier(p.cfg.Activity).Analyze(epochs)
			res.Activity = &r
		})
		p.stage(log, "strain", func() {
			r := strain.NewScorer(p.cfg.Strain).Analyze(epochs)
			res.Strain = &r
		})
	}

	if len(sleepSessions) > 0 {
		p.stage(log, "sleep_sessions", func() {
			r := sessions.NewAnalyzer(p.cfg.Sessions).Analyze(sleepSessions)
			res.Sessions = &r
		})
	}

	if len(tests) > 0 || len(sleepSessions) > 0 {
		p.stage(log, "circadian", func() {
			r := circadian.NewModel(p.cfg.Circadian).Analyze(tests, sleepSessions)
			res.Circadian = &r
		})
	}

	if res.Performance != nil {
		p.stage(log, "readiness", func() {
			var rmssdPct *float64
			if res.HRV != nil {
				rmssdPct = res.HRV.RMSSDPctBaseline
			}
			r := readiness.NewClassifier(p.cfg.Readiness).
				AssignDaily(res.Performance.DailyReady, res.Performance.DailySelfReport, rmssdPct)
			res.Readiness = &r
		})
	}

	p.stage(log, "patterns", func() {
		res.Patterns = patterns.NewDetector(p.cfg.Patterns).Detect(patterns.Inputs{
			Tests:       tests,
			Performance: res.Performance,
			HRV:         res.HRV,
			Sleep:       res.Sleep,
			Sessions:    res.Sessions,
		})
	})

	return res
}

// stage runs fn and records its duration and outcome.
func (p *Pipeline) stage(log zerolog.Logger, name string, fn func()) {
	start := time.Now()
	fn()
	elapsed := time.Since(start)

	if p.metrics != nil {
		p.metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
		p.metrics.StagesTotal.WithLabelValues(name, "ok").Inc()
	}
	log.Debug().Str("stage", name).Dur("duration", elapsed).Msg("stage complete")
}

// writeArtifacts persists the context packet, the agent payload, and, when an
// analyst is wired up, the briefing.
func (p *Pipeline) writeArtifacts(ctx context.Context, log zerolog.Logger, dir string, pkt packet.Packet, agentPayload map[string]any) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var artifacts []string

	analysisPath := filepath.Join(dir, "analysis_output.json")
	if err := writeJSON(analysisPath, pkt); err != nil {
		return nil, err
	}
	artifacts = append(artifacts, analysisPath)

	payloadPath := filepath.Join(dir, "agent_payload.json")
	if err := writeJSON(payloadPath, agentPayload); err != nil {
		return nil, err
	}
	artifacts = append(artifacts, payloadPath)

	if p.briefer != nil {
		briefing := p.runBriefer(ctx, log, pkt)
		briefingPath := filepath.Join(dir, "agent_briefing.json")
		if err := writeJSON(briefingPath, briefing); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, briefingPath)
	}

	return artifacts, nil
}

// runBriefer calls the analyst over a generic copy of the packet. A call
// failure is captured as a structured error briefing so the artifact is
// always written.
func (p *Pipeline) runBriefer(ctx context.Context, log zerolog.Logger, pkt packet.Packet) map[string]any {
	generic, err := toGenericPacket(pkt)
	if err == nil {
		var briefing map[string]any
		briefing, err = p.briefer.Brief(ctx, generic)
		if err == nil {
			if p.metrics != nil {
				if _, bad := briefing["error"]; bad {
					p.metrics.AnalystRequests.WithLabelValues("invalid").Inc()
				} else {
					p.metrics.AnalystRequests.WithLabelValues("ok").Inc()
				}
			}
			return briefing
		}
	}

	if p.metrics != nil {
		p.metrics.AnalystRequests.WithLabelValues("error").Inc()
	}
	log.Warn().Err(err).Msg("briefing failed, writing error briefing")
	return analyst.ErrorBriefing("briefing request failed: "+err.Error(), "")
}

// toGenericPacket converts the typed packet into the map form the briefer
// consumes, matching the serialized artifact exactly.
func toGenericPacket(pkt packet.Packet) (map[string]any, error) {
	data, err := json.Marshal(pkt)
	if err != nil {
		return nil, fmt.Errorf("marshal packet: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("unmarshal packet: %w", err)
	}
	return generic, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
