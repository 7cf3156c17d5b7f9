package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/lucasaxm/RegataSimulator/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps each collection as a table of JSON documents
type SQLiteStore struct {
	db        *sql.DB
	templates *sqliteCollection[models.Template]
	sources   *sqliteCollection[models.Source]
	authors   *sqliteCollection[models.Author]
	memes     *sqliteCollection[models.Meme]
}

var tables = []string{"templates", "sources", "authors", "memes"}

// OpenSQLite opens (creating if needed) the database file at path
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time keeps Modify transactions from failing with SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, table := range tables {
		query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`, table)
		if _, err := db.ExecContext(ctx, query); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}

	return &SQLiteStore{
		db:        db,
		templates: &sqliteCollection[models.Template]{db: db, table: "templates"},
		sources:   &sqliteCollection[models.Source]{db: db, table: "sources"},
		authors:   &sqliteCollection[models.Author]{db: db, table: "authors"},
		memes:     &sqliteCollection[models.Meme]{db: db, table: "memes"},
	}, nil
}

func (s *SQLiteStore) Templates() Collection[models.Template] { return s.templates }
func (s *SQLiteStore) Sources() Collection[models.Source]     { return s.sources }
func (s *SQLiteStore) Authors() Collection[models.Author]     { return s.authors }
func (s *SQLiteStore) Memes() Collection[models.Meme]         { return s.memes }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Snapshot uses VACUUM INTO, which produces a consistent standalone copy
func (s *SQLiteStore) Snapshot(ctx context.Context, dst string) error {
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear snapshot destination: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)

type sqliteCollection[T Entity] struct {
	db    *sql.DB
	table string
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (c *sqliteCollection[T]) findByID(ctx context.Context, q queryer, id string) (T, error) {
	var zero T
	var data string
	err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT data FROM %s WHERE id = ?", c.table), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return zero, fmt.Errorf("failed to query %s: %w", c.table, err)
	}
	return decodeDoc[T]([]byte(data))
}

func (c *sqliteCollection[T]) FindByID(ctx context.Context, id string) (T, error) {
	return c.findByID(ctx, c.db, id)
}

func (c *sqliteCollection[T]) FindAll(ctx context.Context) ([]T, error) {
	return c.Find(ctx, nil)
}

func (c *sqliteCollection[T]) Find(ctx context.Context, pred func(T) bool) ([]T, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("SELECT data FROM %s ORDER BY rowid", c.table))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.table, err)
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", c.table, err)
		}
		v, err := decodeDoc[T]([]byte(data))
		if err != nil {
			return nil, err
		}
		if pred == nil || pred(v) {
			result = append(result, v)
		}
	}
	return result, rows.Err()
}

func (c *sqliteCollection[T]) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", c.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", c.table, err)
	}
	return n, nil
}

func (c *sqliteCollection[T]) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", c.table, err)
	}
	return result.RowsAffected()
}

func (c *sqliteCollection[T]) Insert(ctx context.Context, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	n, err := c.exec(ctx, fmt.Sprintf("INSERT INTO %s (id, data) VALUES (?, ?) ON CONFLICT(id) DO NOTHING", c.table), v.Key(), string(data))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrExists, v.Key())
	}
	return nil
}

func (c *sqliteCollection[T]) Update(ctx context.Context, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	n, err := c.exec(ctx, fmt.Sprintf("UPDATE %s SET data = ? WHERE id = ?", c.table), string(data), v.Key())
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, v.Key())
	}
	return nil
}

func (c *sqliteCollection[T]) Upsert(ctx context.Context, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	_, err = c.exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (id, data) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET data = excluded.data", c.table),
		v.Key(), string(data))
	return err
}

func (c *sqliteCollection[T]) Remove(ctx context.Context, id string) error {
	n, err := c.exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", c.table), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (c *sqliteCollection[T]) Modify(ctx context.Context, id string, fn func(*T) error) (T, error) {
	var zero T
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	v, err := c.findByID(ctx, tx, id)
	if err != nil {
		return zero, err
	}
	if err := fn(&v); err != nil {
		return zero, err
	}
	if v.Key() != id {
		return zero, fmt.Errorf("modify must not change the document id %s", id)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("failed to encode document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET data = ? WHERE id = ?", c.table), string(data), id); err != nil {
		return zero, fmt.Errorf("failed to write %s: %w", c.table, err)
	}
	if err := tx.Commit(); err != nil {
		return zero, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return v, nil
}
