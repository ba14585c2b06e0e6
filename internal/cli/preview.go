package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewPreviewCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Fetch the next pair and print the posts without publishing",
		Long: `Fetch the first pair of the rotation and print every article as it would
be posted. Nothing is published or recorded, but the fetch counts
against the news API budget.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			a, err := opts.build(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			pair, drafts, err := a.Selector.Preview(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d articles\n", pair, len(drafts))
			for i, d := range drafts {
				fmt.Fprintf(out, "\n--- %d ", i+1)
				switch {
				case d.Err != nil:
					fmt.Fprintf(out, "skipped: %v\n", d.Err)
					continue
				case d.Duplicate:
					fmt.Fprintln(out, "already posted")
				default:
					fmt.Fprintln(out, "new")
				}
				fmt.Fprintln(out, d.Text)
			}
			return nil
		},
	}
}
