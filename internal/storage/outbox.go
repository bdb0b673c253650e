package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Outbox is the local fallback queue for writes that could not reach the
// primary store. Entries are replayed until they succeed or are buried in
// the dead-letter table.
type Outbox struct {
	db *sql.DB
}

// OutboxEntry is one queued write.
type OutboxEntry struct {
	ID        int64
	Kind      string
	UserID    string
	Payload   []byte
	Attempts  int
	LastError string
	CreatedAt time.Time
}

// OpenOutbox opens (or creates) the SQLite outbox at dir/outbox.db.
func OpenOutbox(dir string) (*Outbox, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating outbox dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "outbox.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening outbox db: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS outbox (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		kind       TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		payload    BLOB NOT NULL,
		attempts   INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating outbox table: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS outbox_dead (
		id         INTEGER PRIMARY KEY,
		kind       TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		payload    BLOB NOT NULL,
		attempts   INTEGER NOT NULL,
		last_error TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		buried_at  INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating outbox_dead table: %w", err)
	}

	return &Outbox{db: db}, nil
}

// Enqueue stores a pending write and returns its id.
func (o *Outbox) Enqueue(ctx context.Context, kind, userID string, payload []byte) (int64, error) {
	res, err := o.db.ExecContext(ctx,
		`INSERT INTO outbox (kind, user_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		kind, userID, payload, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("enqueueing %s: %w", kind, err)
	}
	return res.LastInsertId()
}

// Pending returns up to limit queued entries, oldest first.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]OutboxEntry, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT id, kind, user_id, payload, attempts, last_error, created_at
		 FROM outbox ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying outbox: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]OutboxEntry, error) {
	var result []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		var created int64
		if err := rows.Scan(&e.ID, &e.Kind, &e.UserID, &e.Payload, &e.Attempts, &e.LastError, &created); err != nil {
			return nil, fmt.Errorf("scanning outbox entry: %w", err)
		}
		e.CreatedAt = time.Unix(created, 0).UTC()
		result = append(result, e)
	}
	return result, rows.Err()
}

// Count returns the number of queued entries.
func (o *Outbox) Count(ctx context.Context) (int, error) {
	var n int
	err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n)
	return n, err
}

// Done removes an entry after a successful replay.
func (o *Outbox) Done(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id)
	return err
}

// Failed records a failed replay attempt.
func (o *Outbox) Failed(ctx context.Context, id int64, cause error) error {
	_, err := o.db.ExecContext(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		cause.Error(), id)
	return err
}

// Bury moves an entry that can never be applied to the dead-letter table so
// it stops holding back the entries queued after it.
func (o *Outbox) Bury(ctx context.Context, id int64, cause error) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning bury: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_dead (id, kind, user_id, payload, attempts, last_error, created_at, buried_at)
		 SELECT id, kind, user_id, payload, attempts + 1, ?, created_at, ? FROM outbox WHERE id = ?`,
		cause.Error(), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("copying entry %d to dead letters: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("removing entry %d: %w", id, err)
	}
	return tx.Commit()
}

// DeadLetters returns buried entries, oldest first.
func (o *Outbox) DeadLetters(ctx context.Context) ([]OutboxEntry, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT id, kind, user_id, payload, attempts, last_error, created_at
		 FROM outbox_dead ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying dead letters: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Close closes the outbox database.
func (o *Outbox) Close() error {
	return o.db.Close()
}
