package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"

	"github.com/datadodo/datagate/internal/files"
	"github.com/datadodo/datagate/internal/format"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List your files",
		Args:  cobra.NoArgs,
		RunE:  runLs,
	}

	cmd.Flags().Bool("cached", false, "show the locally cached listing without contacting the server")

	return cmd
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <file> [file...]",
		Short: "Upload one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPut,
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <file-id> [local-path]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <file-id>",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRm,
	}
}

func newQuotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show file count and storage usage",
		Args:  cobra.NoArgs,
		RunE:  runQuota,
	}
}

func runLs(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cached, _ := cmd.Flags().GetBool("cached")

	var items []files.Record

	if cached {
		if a.cache == nil {
			return fmt.Errorf("no local cache available")
		}

		items, err = a.cache.Listing(ctx)
		if err != nil {
			return err
		}
	} else {
		resp, err := a.files.Fetch(ctx)
		if err != nil {
			return err
		}

		items = resp.Files
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(items)
	}

	if len(items) == 0 {
		statusf("No files.\n")
		return nil
	}

	table := newTable()
	fmt.Fprintln(table, "ID\tNAME\tSIZE\tUPLOADED")

	for _, item := range items {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\n",
			item.ID, item.FileName, format.FileSize(item.FileSize), formatTime(item.UploadedAt))
	}

	return table.Flush()
}

func runPut(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	payloads := make([]files.Payload, 0, len(args))
	handles := make([]*os.File, 0, len(args))

	defer func() {
		for _, f := range handles {
			f.Close()
		}
	}()

	var totalSize int64

	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}

		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		handles = append(handles, f)
		payloads = append(payloads, files.Payload{
			Name:    filepath.Base(path),
			Content: f,
			Size:    info.Size(),
		})
		totalSize += info.Size()
	}

	progress := newProgressPrinter(fmt.Sprintf("Uploading %s", format.FileSize(totalSize)))
	defer progress.Done()

	go trackProgress(ctx, a.files, progress, progressKey(payloads[0].Name))

	if len(payloads) == 1 {
		result, err := a.files.Upload(ctx, payloads[0])
		if err != nil {
			return err
		}

		progress.Done()
		statusf("Uploaded %s (%s)\n", result.FileName, result.FileID)

		return nil
	}

	result, err := a.files.UploadBatch(ctx, payloads)
	if err != nil {
		return err
	}

	progress.Done()
	statusf("Uploaded %d of %d files.\n", result.SuccessfulCount, result.TotalFiles)

	for _, bad := range result.FailedUploads {
		fmt.Fprintf(os.Stderr, "  failed: %s: %s\n", bad.FileName, bad.Detail)
	}

	if result.FailedCount > 0 {
		return fmt.Errorf("%d upload(s) failed", result.FailedCount)
	}

	return nil
}

// progressKey returns the key the synchronizer uses for a payload's
// progress entry: the NFC-normalized remote name.
func progressKey(name string) string {
	return norm.NFC.String(name)
}

// trackProgress polls the synchronizer's progress map and forwards the
// percentage for name to the printer until the entry disappears.
func trackProgress(ctx context.Context, store *files.Store, p *progressPrinter, name string) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	last := -1

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pct, ok := store.Progress()[name]
		if ok && pct != last {
			p.Update(pct)
			last = pct
		}

		if !ok && last >= 0 {
			// entry removed: transfer reached a terminal state
			return
		}
	}
}

func runGet(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	id := args[0]

	// Resolve the destination name from the listing when not given.
	dest := ""
	if len(args) == 2 {
		dest = args[1]
	} else {
		resp, err := a.files.Fetch(ctx)
		if err != nil {
			return err
		}

		for _, item := range resp.Files {
			if item.ID == id {
				dest = item.FileName
				break
			}
		}

		if dest == "" {
			return fmt.Errorf("file %s not found", id)
		}
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	defer out.Close()

	n, err := a.files.Download(ctx, id, out)
	if err != nil {
		os.Remove(dest)
		return err
	}

	statusf("Downloaded %s (%s)\n", dest, format.FileSize(n))

	return nil
}

func runRm(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.files.Delete(ctx, args[0]); err != nil {
		return err
	}

	statusf("Deleted %s\n", args[0])

	return nil
}

func runQuota(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.files.Fetch(ctx)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(map[string]any{
			"file_count":      resp.UserFileCount,
			"file_limit":      resp.UserFileLimit,
			"remaining_slots": a.files.RemainingSlots(),
			"total_size":      a.files.TotalSize(),
		})
	}

	fmt.Printf("Files:   %d of %d (%d remaining)\n",
		resp.UserFileCount, resp.UserFileLimit, a.files.RemainingSlots())
	fmt.Printf("Storage: %s\n", format.FileSize(a.files.TotalSize()))

	return nil
}
