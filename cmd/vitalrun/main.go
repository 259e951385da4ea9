package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/vitalrun/vitalrun/internal/analyst"
	"github.com/vitalrun/vitalrun/internal/config"
	"github.com/vitalrun/vitalrun/internal/httpapi"
	"github.com/vitalrun/vitalrun/internal/metrics"
	"github.com/vitalrun/vitalrun/internal/pipeline"
)

const (
	appName = "vitalrun"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Wearable sensor analytics: sleep, HRV, strain, and readiness",
		Version: version,
		Long: `vitalrun turns raw wearable exports (cognitive test results, sensor
epochs, staged sleep sessions) into a deterministic analysis packet and a
compact agent payload: sleep detection, HRV trends, activity and strain,
circadian rhythm, readiness tiers, and multi-day pattern alerts.`,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to YAML config (built-in defaults if empty)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the full analysis over exported CSVs",
		Long:  "Ingest test results, sensor epochs, and sleep sessions, run every analysis module, and write analysis_output.json and agent_payload.json.",
		RunE:  runAnalyze,
	}

	cmd.Flags().String("tests", "", "Path to cognitive test results CSV")
	cmd.Flags().String("epochs", "", "Path to per-minute sensor epochs CSV")
	cmd.Flags().String("sessions", "", "Path to staged sleep sessions CSV")
	cmd.Flags().String("out", "out", "Output directory for artifacts")
	cmd.Flags().String("graphs", "graphs", "Directory name recorded in the graph manifest")
	cmd.Flags().Bool("brief", false, "Generate an LLM briefing from the analysis packet")

	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	outDir := stringFlag(flags, "out")
	graphsDir := stringFlag(flags, "graphs")
	brief, _ := flags.GetBool("brief")

	reg := metrics.NewRegistry()
	if err := reg.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	var briefer pipeline.Briefer
	if brief || cfg.Analyst.Enabled {
		briefer = analyst.New(analyst.Config{
			Model:          cfg.Analyst.Model,
			MaxTokens:      cfg.Analyst.MaxTokens,
			RequestsPerMin: int(cfg.Analyst.RequestsPerMin),
			Timeout:        time.Duration(cfg.Analyst.TimeoutSec) * time.Second,
		}, logger)
	}

	p := pipeline.New(cfg, logger, reg, briefer)
	summary, err := p.Run(cmd.Context(), pipeline.Options{
		TestsCSV:    stringFlag(flags, "tests"),
		EpochsCSV:   stringFlag(flags, "epochs"),
		SessionsCSV: stringFlag(flags, "sessions"),
		OutputDir:   outDir,
		GraphsDir:   graphsDir,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve generated artifacts over HTTP",
		Long:  "Start a local read-only HTTP server exposing /health, /metrics, and the generated artifact documents.",
		RunE:  runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (overrides config)")
	cmd.Flags().String("artifacts", "out", "Directory holding generated artifacts")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	addr := stringFlag(cmd.Flags(), "addr")
	if addr == "" {
		addr = cfg.Server.Addr
	}
	artifactsDir := stringFlag(cmd.Flags(), "artifacts")

	reg := metrics.NewRegistry()
	if err := reg.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	serverCfg := httpapi.DefaultServerConfig()
	serverCfg.Addr = addr
	serverCfg.ArtifactsDir = artifactsDir

	srv, err := httpapi.NewServer(serverCfg, prometheus.DefaultGatherer, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func stringFlag(fs *pflag.FlagSet, name string) string {
	v, _ := fs.GetString(name)
	return v
}

// setup loads the config and builds the command logger.
func setup(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	configPath := stringFlag(cmd.Flags(), "config")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, zerolog.Logger{}, err
	}

	logger := log.Logger
	if debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	return cfg, logger, nil
}
