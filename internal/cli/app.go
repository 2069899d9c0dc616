package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/sirad/internal/config"
	"github.com/roach88/sirad/internal/metrics"
	"github.com/roach88/sirad/internal/pipeline"
)

// session is the state shared by the stage commands: the loaded config, an
// open pipeline and the metrics of this run.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	pipeline *pipeline.Pipeline
	out      *OutputFormatter
}

// newLogger configures logging based on the verbose flag. Logs always go to
// stderr so JSON output on stdout stays parseable.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openSession loads the config named by --config and opens its stores.
func openSession(opts *RootOptions, cmd *cobra.Command, popts ...pipeline.Option) (*session, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)
	slog.SetDefault(logger)
	m := metrics.New()

	popts = append([]pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
	}, popts...)
	p, err := pipeline.Open(cfg, popts...)
	if err != nil {
		return nil, stageError("failed to open pipeline", err)
	}
	logger.Debug("stores ready",
		"data", cfg.Path(cfg.Stores.Data),
		"pii", cfg.Path(cfg.Stores.PII),
		"link", cfg.Path(cfg.Stores.Link),
	)

	return &session{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		pipeline: p,
		out:      newFormatter(opts, cmd),
	}, nil
}

// Close closes the stores and writes the metrics textfile when one is
// configured.
func (s *session) Close() {
	if err := s.pipeline.Close(); err != nil {
		s.logger.Error("error closing stores", "error", err)
	}
	if s.cfg.MetricsFile == "" {
		return
	}
	path := s.cfg.Path(s.cfg.MetricsFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.logger.Error("error writing metrics", "error", err)
		return
	}
	if err := s.metrics.WriteTextfile(path); err != nil {
		s.logger.Error("error writing metrics", "error", err)
		return
	}
	s.logger.Debug("metrics written", "path", path)
}

// commandContext is cancelled on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// report writes data as JSON, or text as is.
func (s *session) report(data any, text string) error {
	if s.out.Format == "json" {
		return s.out.Success(data)
	}
	_, err := fmt.Fprint(s.out.Writer, text)
	return err
}
