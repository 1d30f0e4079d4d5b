package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/conorfennell/lexideck/internal/clock"
	"github.com/conorfennell/lexideck/internal/sync"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import new cards from every source and drop the ones that disappeared",
		Args:  cobra.NoArgs,
		RunE:  runSync,
	}

	RootCmd.AddCommand(cmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg, clock.Real{})
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.syncer.RunSync(cmd.Context())
	if err != nil {
		return err
	}
	printSyncResults(cmd.OutOrStdout(), results)
	return nil
}

func printSyncResults(w io.Writer, results []sync.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No sources configured. Add one with: lexideck source add <path>")
		return
	}
	for _, res := range results {
		fmt.Fprintf(w, "%s: %s parsed, %s new, %s removed, %s retagged\n",
			res.Path,
			humanize.Comma(int64(res.Parsed)),
			humanize.Comma(int64(res.Inserted)),
			humanize.Comma(int64(res.Deleted)),
			humanize.Comma(int64(res.Updated)),
		)
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  error: %v\n", e)
		}
	}
}
