package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/conorfennell/lexideck/internal/clock"
	"github.com/conorfennell/lexideck/internal/domain"
	"github.com/conorfennell/lexideck/internal/storage"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show due and new cards per card type",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg, clock.Real{})
	if err != nil {
		return err
	}
	defer a.Close()

	counts, err := a.db.CountDue(cmd.Context(), a.clock.Now())
	if err != nil {
		return err
	}
	return printDeckCounts(cmd.OutOrStdout(), counts)
}

func printDeckCounts(w io.Writer, counts map[domain.CardType]storage.DeckCounts) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "TYPE\tDUE\tNEW\t")
	var due, fresh int
	for _, t := range domain.CardTypes {
		c := counts[t]
		due += c.Due
		fresh += c.New
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", t, humanize.Comma(int64(c.Due)), humanize.Comma(int64(c.New)))
	}
	fmt.Fprintf(tw, "total\t%s\t%s\t\n", humanize.Comma(int64(due)), humanize.Comma(int64(fresh)))
	return tw.Flush()
}
