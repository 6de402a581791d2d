package cli

import (
	"io"
	"log/slog"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/timekeep/internal/alert"
	"github.com/roach88/timekeep/internal/config"
	"github.com/roach88/timekeep/internal/engine"
	"github.com/roach88/timekeep/internal/store"
)

// app is the wiring shared by every command.
type app struct {
	cfg      *config.Config
	store    *store.Store
	engine   *engine.Engine
	registry *prometheus.Registry
	clock    quartz.Clock
	log      *slog.Logger
	out      *OutputFormatter
}

// newLogger returns a text logger on w. Verbose enables debug output.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openApp loads the configuration, opens the database and builds the
// engine. Callers must close the app.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}

	// Logs go to stderr so JSON output on stdout stays parseable.
	log := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	out.VerboseLog("opening database %s", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	senders := alert.MultiSender{alert.NewLogSender(log)}
	if cfg.Alerts.Outbox {
		senders = append(senders, alert.NewOutboxSender(st))
	}
	notifier := alert.NewDispatcher(senders, log,
		alert.WithTimeout(cfg.Alerts.Timeout),
		alert.WithMetrics(alert.NewMetrics(registry)),
	)

	eng := engine.New(st, store.NewDirectory(st, cfg.Defaults), notifier,
		engine.WithClock(clock),
		engine.WithLogger(log),
		engine.WithMetrics(engine.NewMetrics(registry)),
		engine.WithThresholds(cfg.Engine),
	)

	return &app{
		cfg:      cfg,
		store:    st,
		engine:   eng,
		registry: registry,
		clock:    clock,
		log:      log,
		out:      out,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Error("error closing database", "error", err)
	}
}

// requireUser returns the --user flag or a command error.
func requireUser(opts *RootOptions) (string, error) {
	if opts.User == "" {
		return "", NewExitError(ExitCommandError, "--user is required")
	}
	return opts.User, nil
}

// withApp opens the app, runs fn and closes the app.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}
