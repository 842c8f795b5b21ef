package db

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/banshee-data/swing.report/internal/monitoring"
)

// MigrateUp applies every pending migration under migrations/ in fsys.
func (db *DB) MigrateUp(fsys fs.FS) error {
	return db.migrate(fsys, "up", (*migrate.Migrate).Up)
}

// MigrateDown reverts the newest applied migration.
func (db *DB) MigrateDown(fsys fs.FS) error {
	return db.migrate(fsys, "down", func(m *migrate.Migrate) error { return m.Steps(-1) })
}

// MigrateVersion reports the applied schema version; a fresh database is
// version 0.
func (db *DB) MigrateVersion(fsys fs.FS) (version uint, dirty bool, err error) {
	m, err := db.migrator(fsys)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		err = nil
	}
	return version, dirty, err
}

func (db *DB) migrate(fsys fs.FS, direction string, step func(*migrate.Migrate) error) error {
	m, err := db.migrator(fsys)
	if err != nil {
		return err
	}
	if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	return nil
}

// migrator binds golang-migrate to the open handle. The returned Migrate
// must not be closed: that would close db.DB as well.
func (db *DB) migrator(fsys fs.FS) (*migrate.Migrate, error) {
	src, err := iofs.New(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	target, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", target)
	if err != nil {
		return nil, err
	}
	m.Log = migrateLog{monitoring.Component("migrate")}
	return m, nil
}

type migrateLog struct{ printf monitoring.Printf }

func (l migrateLog) Printf(format string, v ...any) { l.printf(format, v...) }
func (migrateLog) Verbose() bool                    { return false }
