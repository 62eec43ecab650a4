// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package store

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facegate/facegate/pkg/errutil"
)

type fakeMigrate struct {
	err        error
	version    uint
	dirty      bool
	versionErr error
	closeSrc   error
	closeDB    error
	forced     int
}

func (f *fakeMigrate) Up() error                    { return f.err }
func (f *fakeMigrate) Down() error                  { return f.err }
func (f *fakeMigrate) Steps(int) error              { return f.err }
func (f *fakeMigrate) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }
func (f *fakeMigrate) Close() (error, error)        { return f.closeSrc, f.closeDB }
func (f *fakeMigrate) Force(v int) error {
	f.forced = v
	return f.err
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db", migrateURL("postgres://u:p@h:5432/db"))
	assert.Equal(t, "pgx5://h/db", migrateURL("postgresql://h/db"))
	assert.Equal(t, "pgx5://h/db", migrateURL("pgx5://h/db"))
}

func TestNewMigrator_BadScheme(t *testing.T) {
	_, err := NewMigrator("badscheme://localhost:5432/facegate")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

func TestMigrator_Operations(t *testing.T) {
	tests := []struct {
		name string
		run  func(*Migrator) error
		code string
	}{
		{"up", (*Migrator).Up, "MIGRATION_UP_FAILED"},
		{"down", (*Migrator).Down, "MIGRATION_DOWN_FAILED"},
		{"steps", func(m *Migrator) error { return m.Steps(1) }, "MIGRATION_STEPS_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name+" success", func(t *testing.T) {
			assert.NoError(t, tt.run(&Migrator{m: &fakeMigrate{}}))
		})
		t.Run(tt.name+" no change", func(t *testing.T) {
			assert.NoError(t, tt.run(&Migrator{m: &fakeMigrate{err: migrate.ErrNoChange}}))
		})
		t.Run(tt.name+" failure", func(t *testing.T) {
			err := tt.run(&Migrator{m: &fakeMigrate{err: errors.New("database locked")}})
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestMigrator_Version(t *testing.T) {
	v, dirty, err := (&Migrator{m: &fakeMigrate{version: 1, dirty: true}}).Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.True(t, dirty)

	v, _, err = (&Migrator{m: &fakeMigrate{versionErr: migrate.ErrNilVersion}}).Version()
	require.NoError(t, err)
	assert.Zero(t, v)

	_, _, err = (&Migrator{m: &fakeMigrate{versionErr: errors.New("lost")}}).Version()
	errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
}

func TestMigrator_Force(t *testing.T) {
	fake := &fakeMigrate{}
	require.NoError(t, (&Migrator{m: fake}).Force(1))
	assert.Equal(t, 1, fake.forced)

	errutil.AssertErrorCode(t, (&Migrator{m: fake}).Force(-1), "INVALID_VERSION")
	errutil.AssertErrorCode(t, (&Migrator{m: &fakeMigrate{err: errors.New("x")}}).Force(1), "MIGRATION_FORCE_FAILED")
}

func TestMigrator_Close(t *testing.T) {
	assert.NoError(t, (&Migrator{m: &fakeMigrate{}}).Close())

	err := (&Migrator{m: &fakeMigrate{closeSrc: errors.New("src"), closeDB: errors.New("db")}}).Close()
	errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
	assert.Contains(t, err.Error(), "src")
	assert.Contains(t, err.Error(), "db")
}

func TestMigrator_Pending(t *testing.T) {
	pending, err := (&Migrator{m: &fakeMigrate{versionErr: migrate.ErrNilVersion}}).Pending()
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, pending)

	pending, err = (&Migrator{m: &fakeMigrate{version: 1}}).Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMigrationName(t *testing.T) {
	name, err := MigrationName(1)
	require.NoError(t, err)
	assert.Equal(t, "000001_create_users", name)

	name, err = MigrationName(99)
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestMigrationVersions(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/000002_b.up.sql":   {},
		"migrations/000002_b.down.sql": {},
		"migrations/000001_a.up.sql":   {},
		"migrations/README":            {},
	}
	versions, err := migrationVersions(fsys)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, versions)

	_, err = migrationVersions(fstest.MapFS{"migrations/oops.up.sql": {}})
	errutil.AssertErrorCode(t, err, "MIGRATION_NAME_INVALID")
}

func TestEmbeddedMigrations_ArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups[strings.TrimSuffix(e.Name(), ".up.sql")] = true
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs[strings.TrimSuffix(e.Name(), ".down.sql")] = true
		default:
			t.Errorf("unexpected file in migrations: %s", e.Name())
		}
	}
	assert.Equal(t, ups, downs)
	assert.NotEmpty(t, ups)
}
