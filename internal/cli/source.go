package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/conorfennell/lexideck/internal/clock"
)

func init() {
	sourceCmd := &cobra.Command{
		Use:   "source",
		Short: "Manage deck sources",
	}

	sourceCmd.AddCommand(&cobra.Command{
		Use:   "add <path-or-git-url>",
		Short: "Add a local directory or git repository as a deck source",
		Args:  cobra.ExactArgs(1),
		RunE:  runSourceAdd,
	})
	sourceCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List deck sources",
		Args:  cobra.NoArgs,
		RunE:  runSourceList,
	})
	sourceCmd.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a deck source together with its cards",
		Args:  cobra.ExactArgs(1),
		RunE:  runSourceRm,
	})

	RootCmd.AddCommand(sourceCmd)
}

func runSourceAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg, clock.Real{})
	if err != nil {
		return err
	}
	defer a.Close()

	src, err := a.syncer.AddSource(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s source %d: %s\n", src.Type, src.ID, src.Path)
	return nil
}

func runSourceList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg, clock.Real{})
	if err != nil {
		return err
	}
	defer a.Close()

	sources, err := a.db.GetAllSources(cmd.Context())
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sources configured.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tPATH\tLAST SCANNED")
	for _, src := range sources {
		scanned := "never"
		if src.LastScanned != nil {
			scanned = humanize.Time(*src.LastScanned)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", src.ID, src.Type, src.Path, scanned)
	}
	return tw.Flush()
}

func runSourceRm(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid source ID %q", args[0])
	}

	a, err := openApp(cfg, clock.Real{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.db.DeleteSource(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed source %d.\n", id)
	return nil
}
