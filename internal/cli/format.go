package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deusflow/newsbot/internal/format"
	"github.com/deusflow/newsbot/internal/news"
)

func NewFormatCommand() *cobra.Command {
	var (
		a      news.Article
		suffix string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "format",
		Short: "Print the post for an article given by flags",
		Example: `  newsbot format --title "Storm Hits Coast" --link https://x/1 \
    --category science --source wx1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := format.New(suffix).Fit(a, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			fmt.Fprintf(cmd.ErrOrStderr(), "weight %d/%d\n", format.Weight(text), limit)
			return nil
		},
	}

	cmd.Flags().StringVar(&a.Title, "title", "", "article title")
	cmd.Flags().StringVar(&a.Link, "link", "", "article link")
	cmd.Flags().StringVar(&a.Category, "category", "", "article category")
	cmd.Flags().StringVar(&a.SourceID, "source", "", "source id")
	cmd.Flags().StringVar(&suffix, "suffix", format.DefaultSuffix, "text after the link")
	cmd.Flags().IntVar(&limit, "max", format.MaxWeight, "maximum weighted length")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("link")

	return cmd
}
