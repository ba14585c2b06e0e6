// Package cli is the newsbot command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deusflow/newsbot/internal/app"
	"github.com/deusflow/newsbot/internal/config"
	"github.com/deusflow/newsbot/internal/logger"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// RootOptions holds the global flags.
type RootOptions struct {
	EnvFile string
	Debug   bool
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "newsbot",
		Short: "Post rotating news headlines to two X accounts",
		Long: `newsbot walks a rotation of (region, category) pairs, posts the first
headline it has not posted before to two linked X accounts, and an hour
later follows the people who liked, reposted or replied.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "env file to load instead of .env")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "debug logging (same as DEBUG=true)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewOnceCommand(opts))
	cmd.AddCommand(NewPreviewCommand(opts))
	cmd.AddCommand(NewFormatCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func (o *RootOptions) load() (*config.Config, error) {
	var files []string
	if o.EnvFile != "" {
		files = append(files, o.EnvFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	logger.InitWriter(os.Stdout, cfg.Debug || o.Debug)
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// build loads configuration and wires the app; the caller closes it.
func (o *RootOptions) build(ctx context.Context) (*app.App, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg)
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		logger.Error("error closing", "error", err)
	}
}
