package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/ibarani/fitforge/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgxpool.Pool and implements Gateway over the items table.
type DB struct {
	Pool    *pgxpool.Pool
	timeout time.Duration
}

// Compile-time check: *DB satisfies Gateway.
var _ Gateway = (*DB)(nil)

// New creates a new DB with a connection pool. Every gateway call is bounded by timeout.
func New(ctx context.Context, dsn string, timeout time.Duration) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DB{Pool: pool, timeout: timeout}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// RunMigrations applies all pending migrations from dir inside migrations.
func RunMigrations(dsn string, migrations fs.FS, dir string) error {
	src, err := iofs.New(migrations, dir)
	if err != nil {
		return fmt.Errorf("opening migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Put upserts an item.
func (db *DB) Put(ctx context.Context, item Item) error {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO items (pk, sk, gsi1pk, gsi1sk, data, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)
		 ON CONFLICT (pk, sk) DO UPDATE
		 SET gsi1pk = EXCLUDED.gsi1pk, gsi1sk = EXCLUDED.gsi1sk,
		     data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		item.PK, item.SK, item.GSI1PK, item.GSI1SK, []byte(item.Data), item.UpdatedAt)
	if err != nil {
		return &models.PersistenceError{Op: "put " + item.SK, Err: err}
	}
	return nil
}

// Get returns the item at (pk, sk) or ErrNotFound.
func (db *DB) Get(ctx context.Context, pk, sk string) (Item, error) {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	row := db.Pool.QueryRow(ctx,
		`SELECT pk, sk, COALESCE(gsi1pk, ''), COALESCE(gsi1sk, ''), data, updated_at
		 FROM items WHERE pk = $1 AND sk = $2`, pk, sk)
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, &models.PersistenceError{Op: "get " + sk, Err: err}
	}
	return it, nil
}

// QueryByPrefix lists items in a partition whose sort key starts with skPrefix.
// A limit of 0 means no limit.
func (db *DB) QueryByPrefix(ctx context.Context, pk, skPrefix string, descending bool, limit int) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	order := "ASC"
	if descending {
		order = "DESC"
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT pk, sk, COALESCE(gsi1pk, ''), COALESCE(gsi1sk, ''), data, updated_at
		 FROM items
		 WHERE pk = $1 AND starts_with(sk, $2)
		 ORDER BY sk `+order+`
		 LIMIT NULLIF($3, 0)`,
		pk, skPrefix, limit)
	if err != nil {
		return nil, &models.PersistenceError{Op: "query " + skPrefix, Err: err}
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return nil, &models.PersistenceError{Op: "query " + skPrefix, Err: err}
	}
	return items, nil
}

// QueryRange lists items on a secondary index with from <= sort key <= to, ascending.
func (db *DB) QueryRange(ctx context.Context, index, pk, from, to string) ([]Item, error) {
	if index != IndexGSI1 {
		return nil, fmt.Errorf("unknown index %q", index)
	}
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	rows, err := db.Pool.Query(ctx,
		`SELECT pk, sk, COALESCE(gsi1pk, ''), COALESCE(gsi1sk, ''), data, updated_at
		 FROM items
		 WHERE gsi1pk = $1 AND gsi1sk >= $2 AND gsi1sk <= $3
		 ORDER BY gsi1sk ASC`,
		pk, from, to)
	if err != nil {
		return nil, &models.PersistenceError{Op: "range " + pk, Err: err}
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return nil, &models.PersistenceError{Op: "range " + pk, Err: err}
	}
	return items, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	var data []byte
	if err := row.Scan(&it.PK, &it.SK, &it.GSI1PK, &it.GSI1SK, &data, &it.UpdatedAt); err != nil {
		return Item{}, err
	}
	it.Data = data
	return it, nil
}

func scanItems(rows pgx.Rows) ([]Item, error) {
	var result []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		result = append(result, it)
	}
	return result, rows.Err()
}
