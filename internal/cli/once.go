package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewOnceCommand(opts *RootOptions) *cobra.Command {
	var waitFollow bool

	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run one posting cycle and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			a, err := opts.build(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			res, err := a.Once(ctx, waitFollow)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case !res.Found:
				fmt.Fprintln(out, "no new articles available")
			case res.Posted:
				fmt.Fprintf(out, "posted %q (%s) as %s\n", res.Article.Title, res.Pair, res.PostID())
			default:
				fmt.Fprintf(out, "not posted %q: %v\n", res.Article.Title, res.Outcome.Err())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&waitFollow, "wait-follow", false, "wait for the follow-up pass before exiting")
	return cmd
}
