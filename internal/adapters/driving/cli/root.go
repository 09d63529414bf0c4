// Package cli provides the docqa command line interface.
package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docqa/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
	"github.com/custodia-labs/docqa/internal/logger"
)

// version is set at build time.
var version = "dev"

// Services is what the commands run against.
type Services struct {
	Ingest  driving.IngestService
	Query   driving.QueryService
	Session driving.SessionService

	// Sweeper expires idle sessions while serving. May be nil.
	Sweeper driving.Scheduler

	// Metrics is served at /metrics. May be nil.
	Metrics http.Handler

	// Close releases the services. May be nil.
	Close func() error
}

// Builder wires services from the loaded configuration.
type Builder func(ctx context.Context, cfg *file.Config) (*Services, error)

// Command annotations read by setup.
const (
	// annotationConfigOnly marks commands that need configuration but no services.
	annotationConfigOnly = "config-only"

	// annotationStandalone marks commands that need neither.
	annotationStandalone = "standalone"
)

var (
	cfgFile string
	verbose bool

	builder Builder

	appConfig      *file.Config
	ingestService  driving.IngestService
	queryService   driving.QueryService
	sessionService driving.SessionService
	sweeper        driving.Scheduler
	metricsHandler http.Handler
	closeServices  func() error
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Ask questions about the PDFs in a session",
	Long: `docqa keeps a vector index per session. PDFs uploaded to a session are
split into chunks and embedded; questions are answered by a language model
from the passages most similar to the question.

Run "docqa serve" to start the HTTP API, or use the ingest, ask and reset
commands directly.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ~/.docqa/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute(v string, b Builder) error {
	if v != "" {
		version = v
	}
	builder = b

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	// PersistentPostRunE is skipped when a command fails.
	if closeErr := teardown(rootCmd, nil); err == nil {
		err = closeErr
	}
	return err
}

// setup loads configuration and, unless the command only needs
// configuration, builds the services.
func setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[annotationStandalone] == "true" {
		return nil
	}

	if err := file.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := file.Load(cfgFile)
	if err != nil {
		return err
	}
	appConfig = cfg

	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logger.SetVerbose(verbose)

	if cmd.Annotations[annotationConfigOnly] == "true" || builder == nil {
		return nil
	}

	svc, err := builder(commandContext(cmd), cfg)
	if err != nil {
		return err
	}
	ingestService = svc.Ingest
	queryService = svc.Query
	sessionService = svc.Session
	sweeper = svc.Sweeper
	metricsHandler = svc.Metrics
	closeServices = svc.Close
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if closeServices == nil {
		return nil
	}
	err := closeServices()
	closeServices = nil
	return err
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

var errNotConfigured = errors.New("service not configured")
