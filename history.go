package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/datadodo/datagate/internal/format"
)

const defaultHistoryLimit = 20

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent upload history from the local journal",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "number of entries to show")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cache == nil {
		return fmt.Errorf("no local cache available")
	}

	limit, _ := cmd.Flags().GetInt("limit")

	entries, err := a.cache.History(ctx, limit)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		statusf("No upload history.\n")
		return nil
	}

	table := newTable()
	fmt.Fprintln(table, "WHEN\tNAME\tSIZE\tOUTCOME")

	for _, e := range entries {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\n",
			formatTime(e.RecordedAt), e.FileName, format.FileSize(e.FileSize), e.Outcome)
	}

	return table.Flush()
}
