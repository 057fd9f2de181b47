package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/datadodo/datagate/internal/notify"
	"github.com/datadodo/datagate/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Watch a directory and upload files dropped into it",
		Long: `Watch a local directory and upload every file placed into it.
Files are uploaded once they stop changing, so partially copied files
are never sent. While watching, the change feed keeps the local
listing cache in sync with remote changes. Runs until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWatch,
	}

	return cmd
}

func runWatch(_ *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(args) == 1 {
		resolvedCfg.Watch.Dir = args[0]
	}

	if resolvedCfg.Watch.Dir == "" {
		return fmt.Errorf("no watch directory configured — pass one or set watch.dir in the config file")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.session.IsAuthenticated() {
		return fmt.Errorf("not signed in — run 'datagate login'")
	}

	w := watcher.New(resolvedCfg.Watch.Dir, a.files, a.logger)
	if d := resolvedCfg.Watch.ParsedSettleDelay(); d > 0 {
		w.SettleDelay = d
	}

	// Prime the listing so quota checks and the cache start warm.
	if _, err := a.files.Fetch(ctx); err != nil {
		a.logger.Warn("initial listing fetch failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.Run(gctx)
	})

	if a.cfg.API.NotifyURL != "" {
		listener := notify.NewListener(a.cfg.API.NotifyURL, providerTokens{a.provider}, func(m notify.Message) {
			if m.Type != notify.TypeFilesChanged {
				return
			}

			if _, err := a.files.Fetch(gctx); err != nil {
				a.logger.Warn("refetch after change notification failed", "error", err)
			}
		}, a.logger)

		g.Go(func() error {
			return listener.Run(gctx)
		})
	}

	statusf("Watching %s — press Ctrl-C to stop.\n", resolvedCfg.Watch.Dir)

	err = g.Wait()
	if ctx.Err() != nil {
		statusf("Stopped.\n")
		return nil
	}

	return err
}
