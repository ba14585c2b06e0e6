package cli

import (
	"github.com/spf13/cobra"

	"github.com/deusflow/newsbot/internal/logger"
)

func NewRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Post on schedule until interrupted",
		Long: `Check both accounts' credentials, post once right away and then every
POST_INTERVAL. Follow-up passes run FOLLOW_DELAY after each post.
Set ENABLE_HTTP_MONITORING=true to serve /health and /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			a, err := opts.build(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			logger.Info("newsbot starting", "version", Version)
			if err := a.Run(ctx); err != nil {
				return err
			}
			logger.Info("newsbot stopped")
			return nil
		},
	}
}
