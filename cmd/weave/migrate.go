package main

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Kode-Rex/weave/pkg/annotations"
	"github.com/Kode-Rex/weave/pkg/annotations/migrations"
	"github.com/Kode-Rex/weave/pkg/database"
	"github.com/Kode-Rex/weave/pkg/models"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage store schemas",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateDetectCmd())
	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending relational migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp()
		},
	}
}

func migrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest relational migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollback()
		},
	}
}

func migrateDetectCmd() *cobra.Command {
	var message string
	var dir string
	var statePath string

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Diff record annotations and generate graph/search migration scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(message, dir, statePath)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Migration message (required)")
	cmd.Flags().StringVar(&dir, "dir", "migrations/stores", "Output directory for generated scripts")
	cmd.Flags().StringVar(&statePath, "state", "", "Annotation snapshot path")
	_ = cmd.MarkFlagRequired("message")

	return cmd
}

func runMigrateUp() error {
	a, closeLogs, err := newApp()
	if err != nil {
		return err
	}
	defer closeLogs()

	ctx := context.Background()
	if err := a.connectDatabase(ctx); err != nil {
		return err
	}
	defer a.closeStores(ctx)

	driver, err := postgres.WithInstance(a.db.Unsafe().DB, &postgres.Config{})
	if err != nil {
		return errors.Wrap(err, "create migration driver")
	}

	ms := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             uint(a.cfg.DatabaseMigrationVersion),
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
	return ms.Migrate(a.cfg.DatabaseName, driver)
}

func runRollback() error {
	a, closeLogs, err := newApp()
	if err != nil {
		return err
	}
	defer closeLogs()

	ctx := context.Background()
	if err := a.connectDatabase(ctx); err != nil {
		return err
	}
	defer a.closeStores(ctx)

	driver, err := postgres.WithInstance(a.db.Unsafe().DB, &postgres.Config{})
	if err != nil {
		return errors.Wrap(err, "create migration driver")
	}

	ms := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
	})
	return ms.Rollback(a.cfg.DatabaseName, driver)
}

// runDetect diffs the registered annotations against the last snapshot and
// writes migration scripts for whatever changed. No store connections are
// needed; the registry alone carries the configs.
func runDetect(message, dir, statePath string) error {
	a, closeLogs, err := newApp()
	if err != nil {
		return err
	}
	defer closeLogs()

	registry := annotations.NewRegistry()
	if err := models.RegisterAll(registry, models.Loaders{}); err != nil {
		return errors.Wrap(err, "register record types")
	}

	detector := migrations.NewDetector(registry, statePath, a.logger)
	changes, err := detector.DetectChanges(context.Background())
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Println("No annotation changes detected")
		return nil
	}

	version := time.Now().UTC().Format("20060102150405")
	scripts := migrations.Generate(changes, message, version)
	if len(scripts) == 0 {
		fmt.Println("Detected changes need no migration scripts")
		return nil
	}

	written, err := migrations.WriteScripts(dir, scripts)
	if err != nil {
		return err
	}

	fmt.Printf("Detected %d changes, wrote %d files:\n", len(changes), len(written))
	for _, path := range written {
		fmt.Printf("  %s\n", path)
	}
	return nil
}
