// Package checkpoint persists the sync engine's cross-cycle state: the
// last-sync timestamp per source and the per-item bookmark linkage map.
//
// The backing store is an embedded SQLite database (ncruces/go-sqlite3)
// opened in WAL mode. Everything else the engine touches is recomputed
// every cycle; only checkpoints survive a restart.
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ItemState is the persisted linkage between a remote item and the
// bookmark that mirrors it.
type ItemState struct {
	ProviderID   string    `json:"provider_id"`
	ItemID       string    `json:"item_id"`
	BookmarkID   string    `json:"bookmark_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the checkpoint contract consumed by the engine.
type Store interface {
	// LastSync returns the source's last successful sync time, or the
	// zero time if the source has never synced.
	LastSync(ctx context.Context, providerID string) (time.Time, error)

	// SetLastSync records the source's sync checkpoint.
	SetLastSync(ctx context.Context, providerID string, ts time.Time) error

	// PutItemStates upserts item linkage records.
	PutItemStates(ctx context.Context, states []ItemState) error

	// DeleteItemStates removes linkage for items no longer mirrored.
	DeleteItemStates(ctx context.Context, providerID string, itemIDs []string) error

	// ItemState looks up a single item's linkage. The bool reports
	// whether the item is tracked.
	ItemState(ctx context.Context, providerID, itemID string) (ItemState, bool, error)

	// ProviderItemStates lists a source's item linkage, keyed by item id.
	ProviderItemStates(ctx context.Context, providerID string) (map[string]ItemState, error)
}

// DB is the SQLite-backed Store implementation.
type DB struct {
	conn *sql.DB
	path string
}

var _ Store = (*DB)(nil)

// Open creates a checkpoint database at the given path.
//
// The database is opened in embedded mode with WAL for concurrent
// reads. If it doesn't exist it is created along with the schema.
// The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping checkpoint database: %w", err)
	}

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database, checkpointing the WAL first.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint database: %w", err)
	}
	db.conn = nil
	return nil
}

// initSchema creates the tables if needed. Idempotent.
func (db *DB) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_state (
		provider_id TEXT PRIMARY KEY,
		last_sync TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS item_state (
		provider_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		bookmark_id TEXT NOT NULL,
		created_at TEXT,
		updated_at TEXT,
		last_modified TEXT,
		PRIMARY KEY (provider_id, item_id)
	);

	CREATE INDEX IF NOT EXISTS idx_item_state_provider ON item_state(provider_id);
	`
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create checkpoint schema: %w", err)
	}
	return nil
}

// LastSync implements Store.
func (db *DB) LastSync(ctx context.Context, providerID string) (time.Time, error) {
	var raw string
	err := db.conn.QueryRowContext(ctx,
		"SELECT last_sync FROM sync_state WHERE provider_id = ?", providerID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last sync: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt last_sync for %s: %w", providerID, err)
	}
	return ts, nil
}

// SetLastSync implements Store.
func (db *DB) SetLastSync(ctx context.Context, providerID string, ts time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sync_state (provider_id, last_sync) VALUES (?, ?)
		ON CONFLICT(provider_id) DO UPDATE SET last_sync = excluded.last_sync`,
		providerID, ts.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write last sync: %w", err)
	}
	return nil
}

// PutItemStates implements Store. All rows are written in one
// transaction.
func (db *DB) PutItemStates(ctx context.Context, states []ItemState) error {
	if len(states) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO item_state (provider_id, item_id, bookmark_id, created_at, updated_at, last_modified)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider_id, item_id) DO UPDATE SET
			bookmark_id = excluded.bookmark_id,
			updated_at = excluded.updated_at,
			last_modified = excluded.last_modified`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, st := range states {
		_, err := stmt.ExecContext(ctx,
			st.ProviderID, st.ItemID, st.BookmarkID,
			formatTime(st.CreatedAt), formatTime(st.UpdatedAt), formatTime(st.LastModified))
		if err != nil {
			return fmt.Errorf("failed to upsert item state %s/%s: %w", st.ProviderID, st.ItemID, err)
		}
	}
	return tx.Commit()
}

// DeleteItemStates implements Store.
func (db *DB) DeleteItemStates(ctx context.Context, providerID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		"DELETE FROM item_state WHERE provider_id = ? AND item_id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range itemIDs {
		if _, err := stmt.ExecContext(ctx, providerID, id); err != nil {
			return fmt.Errorf("failed to delete item state %s/%s: %w", providerID, id, err)
		}
	}
	return tx.Commit()
}

// ItemState implements Store.
func (db *DB) ItemState(ctx context.Context, providerID, itemID string) (ItemState, bool, error) {
	st := ItemState{ProviderID: providerID, ItemID: itemID}
	var created, updated, modified sql.NullString
	err := db.conn.QueryRowContext(ctx, `
		SELECT bookmark_id, created_at, updated_at, last_modified
		FROM item_state WHERE provider_id = ? AND item_id = ?`,
		providerID, itemID).Scan(&st.BookmarkID, &created, &updated, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return ItemState{}, false, nil
	}
	if err != nil {
		return ItemState{}, false, fmt.Errorf("failed to read item state: %w", err)
	}
	st.CreatedAt = parseTime(created)
	st.UpdatedAt = parseTime(updated)
	st.LastModified = parseTime(modified)
	return st, true, nil
}

// ProviderItemStates implements Store.
func (db *DB) ProviderItemStates(ctx context.Context, providerID string) (map[string]ItemState, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT item_id, bookmark_id, created_at, updated_at, last_modified
		FROM item_state WHERE provider_id = ?`, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query item states: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ItemState)
	for rows.Next() {
		st := ItemState{ProviderID: providerID}
		var created, updated, modified sql.NullString
		if err := rows.Scan(&st.ItemID, &st.BookmarkID, &created, &updated, &modified); err != nil {
			return nil, fmt.Errorf("failed to scan item state: %w", err)
		}
		st.CreatedAt = parseTime(created)
		st.UpdatedAt = parseTime(updated)
		st.LastModified = parseTime(modified)
		out[st.ItemID] = st
	}
	return out, rows.Err()
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
