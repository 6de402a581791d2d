package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/timekeep/internal/api"
	"github.com/roach88/timekeep/internal/schedule"
)

// shutdownTimeout bounds how long in-flight HTTP requests may take after
// the server is asked to stop.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string

	// ready receives the bound address once the listener is up (for testing).
	ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, callback dispatcher and background jobs",
		Long: `Run the timekeep service.

The service serves the HTTP API, delivers scheduled callbacks (interrupt
checks, auto-stops and Pomodoro transitions) and runs the periodic sweep
and nudge jobs until it receives SIGINT or SIGTERM.

Example:
  timekeep serve --config ./timekeep.yaml
  timekeep serve --db /tmp/timekeep.db --listen 127.0.0.1:9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(a *app) error {
				return serve(cmd, opts, a)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "HTTP listen address (overrides the configuration)")

	return cmd
}

func serve(cmd *cobra.Command, opts *ServeOptions, a *app) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	listen := a.cfg.HTTP.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	dispatcher := schedule.NewDispatcher(a.store, a.log,
		schedule.WithClock(a.clock),
		schedule.WithConfig(a.cfg.Scheduler),
		schedule.WithMetrics(schedule.NewMetrics(a.registry)),
	)
	a.engine.RegisterHandlers(dispatcher)

	srv := &http.Server{
		Handler:           api.New(api.Options{Engine: a.engine, Logger: a.log, Gatherer: a.registry}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		return a.engine.RunJobs(gctx)
	})
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	a.log.Info("timekeep serving", "addr", ln.Addr().String(), "db", a.cfg.Database)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())
	if opts.ready != nil {
		opts.ready <- ln.Addr().String()
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "service error", err)
	}
	a.log.Info("timekeep stopped gracefully")
	return nil
}
