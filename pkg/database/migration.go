package database

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
)

// MigrationLogger adapts ectologger to the migrate.Logger interface.
type MigrationLogger struct {
	ectologger.Logger
}

func (l MigrationLogger) Verbose() bool {
	return true
}

func (l MigrationLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

// MigrationService applies the relational schema migrations backing the
// record tables and the sync outbox.
type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

type MigrationConfig struct {
	MigrationFolderPath string
	Version             uint
	Force               int
	AutoRollback        bool // revert to the previous version when a failed migration leaves the database dirty
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{
		config: config,
		logger: logger,
	}
}

// resolveMigrationFolder tries the configured path as given, then relative to
// the working directory. Containers mount migrations at an absolute path while
// local runs keep them beside the binary.
func (ms *MigrationService) resolveMigrationFolder() string {
	folder := ms.config.MigrationFolderPath
	if _, err := os.Stat(folder); err == nil {
		return folder
	}
	wd, _ := os.Getwd()
	return filepath.Join(wd, folder)
}

func (ms *MigrationService) open(databaseName string, databaseInstance database.Driver) (*migrate.Migrate, error) {
	folder := ms.resolveMigrationFolder()
	if _, err := os.Stat(folder); err != nil {
		return nil, errors.Wrapf(err, "migration folder %s does not exist", folder)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, databaseInstance)
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migrate instance")
		return nil, err
	}
	m.Log = MigrationLogger{Logger: ms.logger}
	return m, nil
}

// Migrate brings the database up to the configured version, or to the latest
// version on disk when none is set.
func (ms *MigrationService) Migrate(databaseName string, databaseInstance database.Driver) error {
	m, err := ms.open(databaseName, databaseInstance)
	if err != nil {
		return err
	}
	return ms.runMigration(m)
}

// Rollback reverts the most recent relational migration.
func (ms *MigrationService) Rollback(databaseName string, databaseInstance database.Driver) error {
	m, err := ms.open(databaseName, databaseInstance)
	if err != nil {
		return err
	}

	if err := m.Steps(-1); err != nil {
		if err == migrate.ErrNoChange {
			ms.logger.Info("No migrations to roll back")
			return nil
		}
		ms.logger.WithError(err).Error("Failed to roll back migration")
		return err
	}

	ms.logger.Info("Rolled back one migration")
	return nil
}

func (ms *MigrationService) runMigration(m *migrate.Migrate) error {
	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force database to version %d", ms.config.Force)
			return err
		}
	}

	previous, _, err := m.Version()
	if err != nil {
		ms.logger.WithError(err).Error("Failed to get current migration version")
		previous = 0
	}

	done := make(chan struct{})
	go ms.logProgress(done)

	start := time.Now()
	var migrationErr error
	if ms.config.Version != 0 {
		migrationErr = m.Migrate(ms.config.Version)
	} else {
		migrationErr = m.Up()
	}
	close(done)

	ms.logger.Infof("Database migrations completed in %v", time.Since(start))

	return ms.handleMigrationError(m, migrationErr, previous)
}

func (ms *MigrationService) logProgress(done chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ms.logger.Debugf("Still executing database migrations after %v", time.Since(start).Round(time.Second))
		}
	}
}

func (ms *MigrationService) handleMigrationError(m *migrate.Migrate, err error, previousVersion uint) error {
	switch {
	case err == nil:
		ms.logger.Info("Successfully applied migrations")
		return nil
	case err == migrate.ErrNoChange:
		ms.logger.Info("No new migrations to apply")
		return nil
	case strings.Contains(err.Error(), "no migration found for version"):
		// The recorded version has no file on disk, usually after deploying a
		// release whose migrations were rolled back. Pin the database to the
		// latest version that still exists.
		return ms.forceToLatest(m, previousVersion)
	}

	ms.logger.WithError(err).Error("Migration failed")

	version, dirty, versionErr := m.Version()
	if versionErr != nil && versionErr != migrate.ErrNilVersion {
		ms.logger.WithError(versionErr).Error("Failed to get current migration version")
		return err
	}

	if ms.config.AutoRollback && dirty {
		if previousVersion == 0 {
			previousVersion = version - 1
		}
		ms.logger.Warnf("Database is dirty at version %d. Reverting to version %d", version, previousVersion)
		if forceErr := m.Force(int(previousVersion)); forceErr != nil {
			ms.logger.WithError(forceErr).Errorf("Failed to force database to version %d", previousVersion)
			return forceErr
		}
		// The database is usable again but the migration still failed. Return
		// the error so the service does not start against the old schema.
		return err
	}

	ms.logger.WithError(err).Errorf("Failed to apply migrations. Database version is dirty=%t at version %d", dirty, version)
	return err
}

func (ms *MigrationService) forceToLatest(m *migrate.Migrate, previousVersion uint) error {
	latest, err := latestVersionOnDisk(ms.resolveMigrationFolder())
	if err != nil {
		ms.logger.WithError(err).Error("Failed to get latest migration version")
	}
	ms.logger.Warnf("No migration found for version %d. Latest version is %d", previousVersion, latest)
	if err := m.Force(latest); err != nil {
		ms.logger.WithError(err).Errorf("Failed to force database to version %d", latest)
		return err
	}
	return nil
}

var migrationFilePattern = regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

func latestVersionOnDisk(folder string) (int, error) {
	files, err := os.ReadDir(folder)
	if err != nil {
		return 0, err
	}

	var versions []int
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		match := migrationFilePattern.FindStringSubmatch(file.Name())
		if len(match) < 2 {
			continue
		}
		version, err := strconv.Atoi(match[1])
		if err != nil {
			return 0, err
		}
		versions = append(versions, version)
	}

	if len(versions) == 0 {
		return 0, fmt.Errorf("no migration files found in %s", folder)
	}

	sort.Ints(versions)
	return versions[len(versions)-1], nil
}
