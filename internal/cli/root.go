// Package cli implements the explain command line tool.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/medreport-explainer/internal/app"
	"github.com/medreport-explainer/internal/config"
	"github.com/medreport-explainer/internal/domain"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Timeout    time.Duration
}

// CLIContext carries the loaded configuration through the command tree.
type CLIContext struct {
	Config  *domain.Config
	Logger  *logrus.Logger
	Timeout time.Duration

	appOptions []app.Option
}

type cliContextKey struct{}

// Option customizes the command tree.
type Option func(*settings)

type settings struct {
	appOptions []app.Option
}

// WithAppOptions passes extra options to every application the commands build.
func WithAppOptions(opts ...app.Option) Option {
	return func(s *settings) { s.appOptions = append(s.appOptions, opts...) }
}

// NewRootCommand creates the root cobra command with all global flags and subcommands.
func NewRootCommand(opts ...Option) *cobra.Command {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	rootOpts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Plain-language explanations of medical reports",
		Long: "explain turns the text of a medical report into a structured, plain-language\n" +
			"explanation. It never diagnoses, gives a prognosis or recommends treatment.",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return persistentPreRun(cmd, rootOpts, s.appOptions)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&rootOpts.ConfigPath, "config", "c", "", "config file path (default: ./config.yaml)")
	pf.StringVar(&rootOpts.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.DurationVar(&rootOpts.Timeout, "timeout", 3*time.Minute, "overall operation timeout")

	cmd.AddCommand(
		NewReportCmd(),
		NewStoreCmd(),
		NewMigrateCmd(),
		NewMCPCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions, appOptions []app.Option) error {
	var configOpts []config.Option
	if opts.ConfigPath != "" {
		configOpts = append(configOpts, config.WithConfigFile(opts.ConfigPath))
	}
	manager, err := config.NewManager(configOpts...)
	if err != nil {
		return err
	}

	cfg := manager.GetConfig()
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := manager.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Stdout is reserved for command output.
	logger := config.NewLogger(cfg.Logging)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(cmd.ErrOrStderr())

	cliCtx := &CLIContext{
		Config:     cfg,
		Logger:     logger,
		Timeout:    opts.Timeout,
		appOptions: appOptions,
	}
	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cliCtx))
	return nil
}

// GetCLIContext extracts the CLIContext installed by the root command.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	cliCtx, ok := cmd.Context().Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, fmt.Errorf("CLI context not initialized")
	}
	return cliCtx, nil
}

// newApp builds an application for one command invocation.
func (c *CLIContext) newApp(ctx context.Context, opts ...app.Option) (*app.App, error) {
	all := append(append([]app.Option{}, c.appOptions...), opts...)
	return app.New(ctx, c.Config, c.Logger, all...)
}

func (c *CLIContext) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
