package main

import (
	"context"
	"net/http"
	"time"

	"github.com/fxnlabs/amp-core/internal/accel"
	"github.com/fxnlabs/amp-core/internal/compute"
	"github.com/fxnlabs/amp-core/internal/config"
	"github.com/fxnlabs/amp-core/internal/metrics"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const stopTimeout = 10 * time.Second

// stack is what a command gets to work with once the app has started.
type stack struct {
	Config  *config.Config
	Logger  *zap.Logger
	Manager *accel.Manager
	Session *compute.Session
}

func newManager(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*accel.Manager, error) {
	m, err := accel.NewManager(cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return m.Cleanup()
		},
	})
	return m, nil
}

// newSession enumerates the manager's devices and applies the configured
// default device, or the first enumerated one when none is configured.
func newSession(lc fx.Lifecycle, cfg *config.Config, m *accel.Manager, log *zap.Logger) (*compute.Session, error) {
	s := compute.NewSession(m, log)
	devices, err := s.Enumerate()
	if err != nil {
		return nil, err
	}
	if path := cfg.Compute.DefaultDevice; path != "" {
		err = s.SetDefaultPath(path)
	} else {
		err = s.SetDefault(devices[0])
	}
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		// Runs before the manager's cleanup so queued launches finish first.
		OnStop: s.Wait,
	})
	return s, nil
}

func registerMetricsServer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) {
	addr := cfg.Metrics.ListenAddress
	if addr == "" {
		return
	}
	var srv *http.Server
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			srv = metrics.Serve(addr, log.Named("metrics"))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func appOptions(cfg *config.Config, log *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, log),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.Named("fx")}
			l.UseLogLevel(zap.DebugLevel)
			return l
		}),
		fx.Provide(newManager, newSession),
		fx.Invoke(registerMetricsServer),
	)
}

// withStack builds the compute stack from the app metadata, runs fn and
// shuts everything down again.
func withStack(c *cli.Context, fn func(ctx context.Context, st stack) error) error {
	cfg := c.App.Metadata["config"].(*config.Config)
	log := c.App.Metadata["logger"].(*zap.Logger)

	st := stack{Config: cfg, Logger: log}
	app := fx.New(appOptions(cfg, log), fx.Populate(&st.Manager, &st.Session))
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(c.Context); err != nil {
		return err
	}

	runErr := fn(c.Context, st)

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := app.Stop(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
