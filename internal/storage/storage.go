// Package storage persists templates, sources, authors and generation history.
package storage

import (
	"context"
	"errors"

	"github.com/lucasaxm/RegataSimulator/internal/models"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrExists   = errors.New("document already exists")
)

// Entity is anything stored by its key
type Entity interface {
	Key() string
}

// Collection is a set of documents of one type. Reads return fully
// materialized values that callers may modify freely.
type Collection[T Entity] interface {
	FindByID(ctx context.Context, id string) (T, error)
	FindAll(ctx context.Context) ([]T, error)
	Find(ctx context.Context, pred func(T) bool) ([]T, error)
	Count(ctx context.Context) (int, error)
	Insert(ctx context.Context, v T) error
	Update(ctx context.Context, v T) error
	Upsert(ctx context.Context, v T) error
	Remove(ctx context.Context, id string) error
	// Modify applies fn to the stored document atomically and saves the
	// result. An error from fn aborts without saving.
	Modify(ctx context.Context, id string, fn func(*T) error) (T, error)
}

// Store groups the collections the bot uses
type Store interface {
	Templates() Collection[models.Template]
	Sources() Collection[models.Source]
	Authors() Collection[models.Author]
	Memes() Collection[models.Meme]
	// Snapshot writes a consistent copy of the whole store to dst
	Snapshot(ctx context.Context, dst string) error
	Close() error
}

// ByStatus is a Find predicate over templates and sources
func ByStatus[T interface{ GetStatus() models.Status }](status models.Status) func(T) bool {
	return func(v T) bool { return v.GetStatus() == status }
}
