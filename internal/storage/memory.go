package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/lucasaxm/RegataSimulator/internal/models"
)

// memoryCollection keeps documents encoded so callers never share memory
// with the stored copy.
type memoryCollection[T Entity] struct {
	docs  map[string][]byte
	order []string
	mu    sync.RWMutex
}

func newMemoryCollection[T Entity]() *memoryCollection[T] {
	return &memoryCollection[T]{docs: make(map[string][]byte)}
}

func decodeDoc[T Entity](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("failed to decode document: %w", err)
	}
	return v, nil
}

func (c *memoryCollection[T]) FindByID(_ context.Context, id string) (T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, exists := c.docs[id]
	if !exists {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return decodeDoc[T](data)
}

func (c *memoryCollection[T]) FindAll(ctx context.Context) ([]T, error) {
	return c.Find(ctx, nil)
}

func (c *memoryCollection[T]) Find(_ context.Context, pred func(T) bool) ([]T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]T, 0, len(c.order))
	for _, id := range c.order {
		v, err := decodeDoc[T](c.docs[id])
		if err != nil {
			return nil, err
		}
		if pred == nil || pred(v) {
			result = append(result, v)
		}
	}
	return result, nil
}

func (c *memoryCollection[T]) Count(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs), nil
}

func (c *memoryCollection[T]) put(v T, mustExist, mustNotExist bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	id := v.Key()
	_, exists := c.docs[id]
	switch {
	case mustExist && !exists:
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	case mustNotExist && exists:
		return fmt.Errorf("%w: %s", ErrExists, id)
	}
	if !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = data
	return nil
}

func (c *memoryCollection[T]) Insert(_ context.Context, v T) error { return c.put(v, false, true) }
func (c *memoryCollection[T]) Update(_ context.Context, v T) error { return c.put(v, true, false) }
func (c *memoryCollection[T]) Upsert(_ context.Context, v T) error { return c.put(v, false, false) }

func (c *memoryCollection[T]) Remove(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[id]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(c.docs, id)
	for i, k := range c.order {
		if k == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (c *memoryCollection[T]) Modify(_ context.Context, id string, fn func(*T) error) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	data, exists := c.docs[id]
	if !exists {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	v, err := decodeDoc[T](data)
	if err != nil {
		return zero, err
	}
	if err := fn(&v); err != nil {
		return zero, err
	}
	if v.Key() != id {
		return zero, fmt.Errorf("modify must not change the document id %s", id)
	}
	updated, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("failed to encode document: %w", err)
	}
	c.docs[id] = updated
	return v, nil
}

// MemoryStore keeps everything in process memory
type MemoryStore struct {
	templates *memoryCollection[models.Template]
	sources   *memoryCollection[models.Source]
	authors   *memoryCollection[models.Author]
	memes     *memoryCollection[models.Meme]
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		templates: newMemoryCollection[models.Template](),
		sources:   newMemoryCollection[models.Source](),
		authors:   newMemoryCollection[models.Author](),
		memes:     newMemoryCollection[models.Meme](),
	}
}

func (s *MemoryStore) Templates() Collection[models.Template] { return s.templates }
func (s *MemoryStore) Sources() Collection[models.Source]     { return s.sources }
func (s *MemoryStore) Authors() Collection[models.Author]     { return s.authors }
func (s *MemoryStore) Memes() Collection[models.Meme]         { return s.memes }
func (s *MemoryStore) Close() error                           { return nil }

// Snapshot writes every collection as one JSON document
func (s *MemoryStore) Snapshot(ctx context.Context, dst string) error {
	dump := map[string]any{}
	var err error
	if dump["templates"], err = s.templates.FindAll(ctx); err != nil {
		return err
	}
	if dump["sources"], err = s.sources.FindAll(ctx); err != nil {
		return err
	}
	if dump["authors"], err = s.authors.FindAll(ctx); err != nil {
		return err
	}
	if dump["memes"], err = s.memes.FindAll(ctx); err != nil {
		return err
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
