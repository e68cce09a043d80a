package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fxnlabs/amp-core/internal/config"
	"github.com/fxnlabs/amp-core/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const defaultConfigPath = "amp.yaml"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "amp",
		Usage: "Run data-parallel kernels on local compute devices",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   defaultConfigPath,
				Usage:   "Path to the amp config file; built-in defaults are used if it does not exist",
				EnvVars: []string{"AMP_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "verbosity",
				Usage:   "Override the configured log level (debug, info, warn, error)",
				EnvVars: []string{"AMP_VERBOSITY"},
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Serve Prometheus metrics on this address while the command runs",
				EnvVars: []string{"AMP_METRICS_ADDR"},
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := loadConfig(c.String("config"))
			if err != nil {
				return err
			}
			if v := c.String("verbosity"); v != "" {
				cfg.Logger.Verbosity = v
			}
			if addr := c.String("metrics-addr"); addr != "" {
				cfg.Metrics.ListenAddress = addr
			}
			log, err := logger.New(cfg.Logger.Verbosity, cfg.Logger.Format)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			c.App.Metadata["config"] = cfg
			c.App.Metadata["logger"] = log
			return nil
		},
		After: func(c *cli.Context) error {
			if log, ok := c.App.Metadata["logger"].(*zap.Logger); ok {
				_ = log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			initCommand(),
			devicesCommand(),
			vectorAddCommand(),
			matrixAddCommand(),
		},
	}
}

// loadConfig reads path, falling back to the defaults when the file is missing.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}
