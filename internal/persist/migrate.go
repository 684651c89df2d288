package persist

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

var migrationName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

// Migration is one numbered schema step with both directions.
type Migration struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// ID is the value recorded in the tracking table.
func (m Migration) ID() string {
	return m.Version + "_" + m.Name
}

// LoadMigrations reads NNNN_name.up.sql / NNNN_name.down.sql pairs from the
// root of fsys, ordered by version. A version without both directions, or
// listed twice, is an error. Other files are ignored.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byVersion := map[string]*Migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := migrationName.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		version, name, direction := m[1], m[2], m[3]
		mig := byVersion[version]
		if mig == nil {
			mig = &Migration{Version: version, Name: name}
			byVersion[version] = mig
		}
		if mig.Name != name {
			return nil, fmt.Errorf("migration %s has two names: %s and %s", version, mig.Name, name)
		}
		raw, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if direction == "up" {
			mig.Up = string(raw)
		} else {
			mig.Down = string(raw)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if strings.TrimSpace(mig.Up) == "" || strings.TrimSpace(mig.Down) == "" {
			return nil, fmt.Errorf("migration %s needs non-empty up and down files", mig.ID())
		}
		out = append(out, *mig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// ApplyMigrations runs, in version order, every migration from fsys not yet
// recorded in workspace_migrations. Each one commits on its own.
func ApplyMigrations(ctx context.Context, db *sql.DB, fsys fs.FS, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	migrations, err := LoadMigrations(fsys)
	if err != nil {
		return err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}

	for _, mig := range migrations {
		if applied[mig.ID()] {
			continue
		}
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.Up); err != nil {
				return fmt.Errorf("execute migration %s: %w", mig.ID(), err)
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO workspace_migrations(id) VALUES($1)`, mig.ID())
			return err
		})
		if err != nil {
			return err
		}
		logger.Info("migration applied", zap.String("migration", mig.ID()))
	}
	return nil
}

// RollbackMigrations undoes applied migrations newest first, at most steps
// of them; steps <= 0 undoes all. It returns how many were rolled back.
func RollbackMigrations(ctx context.Context, db *sql.DB, fsys fs.FS, steps int, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	migrations, err := LoadMigrations(fsys)
	if err != nil {
		return 0, err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return 0, err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return 0, err
	}

	done := 0
	for i := len(migrations) - 1; i >= 0; i-- {
		if steps > 0 && done == steps {
			break
		}
		mig := migrations[i]
		if !applied[mig.ID()] {
			continue
		}
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.Down); err != nil {
				return fmt.Errorf("revert migration %s: %w", mig.ID(), err)
			}
			_, err := tx.ExecContext(ctx, `DELETE FROM workspace_migrations WHERE id=$1`, mig.ID())
			return err
		})
		if err != nil {
			return done, err
		}
		logger.Info("migration reverted", zap.String("migration", mig.ID()))
		done++
	}
	return done, nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS workspace_migrations (
			id TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure workspace_migrations: %w", err)
	}
	return nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM workspace_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[id] = true
	}
	return applied, rows.Err()
}
