// Package state persists the per-service variable and app-data stores in
// SQLite so they survive between lifecycle events.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/service"
)

// Scopes of the service_values table.
const (
	ScopeVariables = "variables"
	ScopeAppData   = "appdata"
)

// ErrNotFound is returned when a single value does not exist.
var ErrNotFound = errors.New("state: value not found")

// DB wraps the SQLite connection holding service state.
type DB struct {
	conn *sql.DB
}

// Open opens or creates the database at path and migrates it to the latest
// schema. The parent directory is created if needed.
func Open(ctx context.Context, path string, log logr.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("state: creating %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("state: opening database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps Save transactions
	// from failing with SQLITE_BUSY.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("state: connecting to %s: %w", path, err)
	}

	db := &DB{conn: conn}
	if err := db.runMigrations(log); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Health checks database connectivity.
func (db *DB) Health(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Load returns the stored instance for id with ipAddress as its current
// address. An unknown id yields an instance with two empty stores.
func (db *DB) Load(ctx context.Context, id, ipAddress string) (*service.Instance, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT scope, key, value FROM service_values WHERE service_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("state: loading service %s: %w", id, err)
	}
	defer rows.Close()

	vars := map[string]string{}
	appData := map[string]string{}
	for rows.Next() {
		var scope, key, value string
		if err := rows.Scan(&scope, &key, &value); err != nil {
			return nil, fmt.Errorf("state: scanning service %s: %w", id, err)
		}
		switch scope {
		case ScopeVariables:
			vars[key] = value
		case ScopeAppData:
			appData[key] = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("state: loading service %s: %w", id, err)
	}

	return &service.Instance{
		ID:        id,
		IPAddress: ipAddress,
		Variables: service.NewMapStore(vars),
		AppData:   service.NewMapStore(appData),
	}, nil
}

// Save replaces both stores of inst in one transaction.
func (db *DB) Save(ctx context.Context, inst *service.Instance) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("state: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM service_values WHERE service_id = ?", inst.ID); err != nil {
		return fmt.Errorf("state: clearing service %s: %w", inst.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO service_values (service_id, scope, key, value) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("state: preparing insert: %w", err)
	}
	defer stmt.Close()

	scopes := []struct {
		name  string
		store service.Store
	}{
		{ScopeVariables, inst.Variables},
		{ScopeAppData, inst.AppData},
	}
	for _, s := range scopes {
		for key, value := range service.Snapshot(s.store) {
			if _, err := stmt.ExecContext(ctx, inst.ID, s.name, key, value); err != nil {
				return fmt.Errorf("state: saving %s/%s for service %s: %w", s.name, key, inst.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("state: committing service %s: %w", inst.ID, err)
	}
	return nil
}

// SetVariable upserts one key of a service's live store.
func (db *DB) SetVariable(ctx context.Context, id, key, value string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO service_values (service_id, scope, key, value) VALUES (?, ?, ?, ?)
		ON CONFLICT (service_id, scope, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		id, ScopeVariables, key, value)
	if err != nil {
		return fmt.Errorf("state: setting %s for service %s: %w", key, id, err)
	}
	return nil
}

// DeleteVariable removes one key of a service's live store. It returns
// ErrNotFound if the key was not stored.
func (db *DB) DeleteVariable(ctx context.Context, id, key string) error {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM service_values WHERE service_id = ? AND scope = ? AND key = ?",
		id, ScopeVariables, key)
	if err != nil {
		return fmt.Errorf("state: deleting %s for service %s: %w", key, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("state: deleting %s for service %s: %w", key, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, id, key)
	}
	return nil
}
