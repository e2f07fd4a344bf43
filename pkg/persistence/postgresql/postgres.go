// Package postgresql provides a PostgreSQL-backed key-value store with one JSONB row
// per namespace and key.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/warden/pkg/persistence"
	"github.com/dukex/warden/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements persistence.KV for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence creates a new PostgreSQL persistence layer and migrates its schema.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:     database,
		logger: logger.With("module", "postgres_persistence"),
	}, nil
}

// Load reads and decodes the document stored under namespace/key.
func (p *Persistence) Load(ctx context.Context, namespace, key string, out any) (bool, error) {
	var body []byte

	err := p.db.QueryRowContext(ctx,
		"SELECT value FROM kv_entries WHERE namespace = $1 AND key = $2", namespace, key,
	).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, persistence.NewKVError("Load", namespace, key, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return false, persistence.NewKVError("Load", namespace, key, fmt.Errorf("failed to unmarshal: %w", err))
	}

	return true, nil
}

// Save upserts value under namespace/key.
func (p *Persistence) Save(ctx context.Context, namespace, key string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return persistence.NewKVError("Save", namespace, key, fmt.Errorf("failed to marshal: %w", err))
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO kv_entries (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, namespace, key, body)
	if err != nil {
		return persistence.NewKVError("Save", namespace, key, err)
	}

	return nil
}

// Delete removes namespace/key.
func (p *Persistence) Delete(ctx context.Context, namespace, key string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM kv_entries WHERE namespace = $1 AND key = $2", namespace, key)
	if err != nil {
		return persistence.NewKVError("Delete", namespace, key, err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

var _ persistence.KV = (*Persistence)(nil)
