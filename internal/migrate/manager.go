package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sync"

	"github.com/pressly/goose/v3"
)

const (
	defaultMigrationsTable = "schema_migrations"
	migrationsDir          = "sql"
)

//go:embed sql/*.sql
var embedded embed.FS

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// Seams for tests.
var (
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.UpContext(ctx, db, dir, opts...)
	}
	gooseDownContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.DownContext(ctx, db, dir, opts...)
	}
	gooseVersion = func(ctx context.Context, db *sql.DB) (int64, error) {
		return goose.GetDBVersionContext(ctx, db)
	}
)

// Seeder loads reference data after the schema is in place.
type Seeder func(ctx context.Context, db *sql.DB) error

// Manager applies the embedded goose migrations.
type Manager struct {
	db              *sql.DB
	fsys            fs.FS
	migrationsTable string
	seeder          Seeder
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable overrides the default migrations bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrationsTable = name
		}
	}
}

// WithSeeder registers the function run by Seed.
func WithSeeder(fn Seeder) Option {
	return func(m *Manager) {
		m.seeder = fn
	}
}

// WithFS replaces the embedded migrations. The files must live under "sql".
func WithFS(fsys fs.FS) Option {
	return func(m *Manager) {
		if fsys != nil {
			m.fsys = fsys
		}
	}
}

// NewManager constructs a Manager.
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{
		db:              db,
		fsys:            embedded,
		migrationsTable: defaultMigrationsTable,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies all pending migrations.
func (m *Manager) Up(ctx context.Context) error {
	return m.run(func() error {
		if err := gooseUpContext(ctx, m.db, migrationsDir); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	})
}

// Down rolls back the most recent applied migration.
func (m *Manager) Down(ctx context.Context) error {
	return m.run(func() error {
		version, err := gooseVersion(ctx, m.db)
		if err != nil {
			return err
		}
		if version == 0 {
			return errors.New("no migrations applied")
		}
		if err := gooseDownContext(ctx, m.db, migrationsDir); err != nil {
			return fmt.Errorf("rollback migration %d: %w", version, err)
		}
		return nil
	})
}

// MigrationStatus describes one embedded migration.
type MigrationStatus struct {
	Version int64
	Name    string
	Applied bool
}

func (s MigrationStatus) String() string {
	state := "pending"
	if s.Applied {
		state = "applied"
	}
	return fmt.Sprintf("%s\t%s", s.Name, state)
}

// Status lists embedded migrations in order with their applied state.
func (m *Manager) Status(ctx context.Context) ([]MigrationStatus, error) {
	var out []MigrationStatus
	err := m.run(func() error {
		current, err := gooseVersion(ctx, m.db)
		if err != nil {
			return err
		}
		migrations, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
		if err != nil {
			return err
		}
		for _, mig := range migrations {
			out = append(out, MigrationStatus{
				Version: mig.Version,
				Name:    path.Base(mig.Source),
				Applied: mig.Version <= current,
			})
		}
		return nil
	})
	return out, err
}

// Seed runs the registered seeder.
func (m *Manager) Seed(ctx context.Context) error {
	if m.seeder == nil {
		return errors.New("no seeder configured")
	}
	return m.seeder(ctx, m.db)
}

func (m *Manager) run(fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(m.fsys)
	goose.SetTableName(m.migrationsTable)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return fn()
}
