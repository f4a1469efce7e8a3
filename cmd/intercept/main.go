// Package main is the entry point for the intercept binary.
// It builds the interception container from a configuration file and offers
// commands to exercise, inspect and serve it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/polisai/polis-intercept/internal/demo"
	"github.com/polisai/polis-intercept/pkg/admin"
	"github.com/polisai/polis-intercept/pkg/config"
	"github.com/polisai/polis-intercept/pkg/container"
	"github.com/polisai/polis-intercept/pkg/logging"
	"github.com/polisai/polis-intercept/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

// options holds the persistent CLI flags.
type options struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for intercept.
func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "intercept",
		Short: "Interception container for Polis services",
		Long: `Builds services through a staged container whose interception stage can
substitute proxies that route every call through configured behaviors.

Example:
  intercept demo --config intercept.yaml --a 6 --b 3`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&opts.LogLevel, "log-level", "l", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "Log format override (text, json)")

	rootCmd.AddCommand(newDemoCmd(opts), newInspectCmd(opts), newServeCmd(opts))
	return rootCmd
}

// loadConfig loads the configuration file and applies flag overrides.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Logging.Format = opts.LogFormat
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: w,
	})
}

// newContainer builds a container with the demo services registered and cfg applied.
func newContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*container.Container, error) {
	c, err := container.New(container.Config{Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := demo.Register(c); err != nil {
		return nil, fmt.Errorf("register demo services: %w", err)
	}
	if err := c.Apply(ctx, cfg); err != nil {
		return nil, fmt.Errorf("apply configuration: %w", err)
	}
	return c, nil
}

func newDemoCmd(opts *options) *cobra.Command {
	var a, b int
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Resolve the demo calculator and run a few calls through it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			c, err := newContainer(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return runDemo(cmd.Context(), c, cmd.OutOrStdout(), a, b)
		},
	}
	cmd.Flags().IntVar(&a, "a", 6, "First operand")
	cmd.Flags().IntVar(&b, "b", 3, "Second operand")
	return cmd
}

func runDemo(ctx context.Context, c *container.Container, out io.Writer, a, b int) error {
	calc, err := container.Resolve[demo.Calculator](ctx, c, "")
	if err != nil {
		return err
	}

	if p, ok := calc.(*demo.CalculatorProxy); ok {
		fmt.Fprintf(out, "calculator: %T (%d behaviors)\n", calc, len(p.InterceptionBehaviors()))
	} else {
		fmt.Fprintf(out, "calculator: %T\n", calc)
	}
	fmt.Fprintf(out, "seed: %d\n", calc.Seed())

	if sum, err := calc.Add(ctx, a, b); err != nil {
		fmt.Fprintf(out, "add(%d, %d): error: %v\n", a, b, err)
	} else {
		fmt.Fprintf(out, "add(%d, %d) = %d\n", a, b, sum)
	}
	if q, err := calc.Divide(ctx, a, b); err != nil {
		fmt.Fprintf(out, "divide(%d, %d): error: %v\n", a, b, err)
	} else {
		fmt.Fprintf(out, "divide(%d, %d) = %d\n", a, b, q)
	}

	if closer, ok := calc.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("close calculator: %w", err)
		}
	}
	return nil
}

func newInspectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the container's registrations as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			c, err := newContainer(cmd.Context(), cfg, newLogger(cfg, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			return writeInspection(cmd.OutOrStdout(), c)
		},
	}
}

// inspection is the YAML document printed by inspect.
type inspection struct {
	Strategies    []string                     `yaml:"strategies"`
	Registrations []container.RegistrationInfo `yaml:"registrations"`
}

func writeInspection(out io.Writer, c *container.Container) error {
	doc := inspection{Registrations: c.Describe()}
	for _, s := range c.Strategies() {
		doc.Strategies = append(doc.Strategies, s.Name+" ("+s.Stage.String()+")")
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode registrations: %w", err)
	}
	return enc.Close()
}

func newServeCmd(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin endpoints and reload configuration on change",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, addr, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Admin listen address (overrides admin.address)")
	return cmd
}

func runServe(ctx context.Context, opts *options, addr string, logOutput io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, logOutput)
	slog.SetDefault(logger)

	shutdownTelemetry, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	var (
		c       *container.Container
		updates <-chan *config.Config
	)
	if opts.ConfigPath == "" {
		c, err = newContainer(ctx, cfg, logger)
	} else {
		watcher, werr := config.NewWatcher(opts.ConfigPath, config.WatcherOptions{Logger: logger})
		if werr != nil {
			return werr
		}
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Error("Failed to close config watcher", "error", err)
			}
		}()
		c, updates, err = watchedContainer(ctx, watcher, logger)
	}
	if err != nil {
		return err
	}

	if addr == "" {
		addr = cfg.Admin.Address
	}
	server, err := admin.Start(addr, admin.HandlerConfig{Container: c, Logger: logger})
	if err != nil {
		return fmt.Errorf("start admin server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Shutdown error", "error", err)
		}
	}()

	if updates == nil {
		<-ctx.Done()
		return nil
	}
	watchConfig(ctx, updates, c, logger)
	return nil
}

// watchedContainer builds the container from the configuration the watcher
// currently holds and returns the channel carrying every later reload.
func watchedContainer(ctx context.Context, watcher *config.Watcher, logger *slog.Logger) (*container.Container, <-chan *config.Config, error) {
	updates := watcher.Subscribe()
	cfg, ok := <-updates
	if !ok || cfg == nil {
		return nil, nil, errors.New("config watcher closed before delivering a configuration")
	}
	c, err := newContainer(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return c, updates, nil
}

// watchConfig applies every configuration update until ctx is done or the
// update channel closes.
func watchConfig(ctx context.Context, updates <-chan *config.Config, c *container.Container, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			if err := c.Apply(ctx, cfg); err != nil {
				logger.Error("Failed to apply configuration update", "error", err)
				continue
			}
			logger.Info("Configuration update applied", "registrations", len(cfg.Registrations))
		}
	}
}
