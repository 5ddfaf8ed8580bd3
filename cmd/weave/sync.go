package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <key>",
		Short: "Bulk resync one record type into the graph and search stores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(args[0])
		},
	}
}

func runSync(key string) error {
	a, closeLogs, err := newApp()
	if err != nil {
		return err
	}
	defer closeLogs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.connectDatabase(ctx); err != nil {
		return err
	}
	defer a.closeStores(ctx)
	if err := a.connectCache(ctx); err != nil {
		return err
	}
	if err := a.connectSearch(ctx); err != nil {
		return err
	}
	if err := a.connectGraph(ctx); err != nil {
		return err
	}
	if err := a.buildCore(); err != nil {
		return err
	}

	summary, err := a.backfiller.Run(ctx, key)
	if err != nil {
		keys := strings.Join(a.backfiller.Keys(), ", ")
		return fmt.Errorf("sync %s failed (known keys: %s): %w", key, keys, err)
	}

	fmt.Printf("Synced %d of %d %s records\n", summary.Synced, summary.Total, summary.Key)
	return nil
}
