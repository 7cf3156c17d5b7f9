// Package history records delivered memes and wears down the weight of the
// assets they used.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lucasaxm/RegataSimulator/internal/models"
	"github.com/lucasaxm/RegataSimulator/internal/selection"
	"github.com/lucasaxm/RegataSimulator/internal/storage"
)

const (
	DefaultCapacity    = 1000
	DefaultWeightFloor = 1
)

type Recorder struct {
	store    storage.Store
	capacity int
	floor    int
	now      func() time.Time

	// serializes eviction and insert so the cap holds under concurrent runs
	mu sync.Mutex
}

// NewRecorder keeps at most capacity records. Weights never drop below
// floor, which is at least 1 so every approved asset stays selectable.
func NewRecorder(store storage.Store, capacity, floor int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if floor < 1 {
		floor = DefaultWeightFloor
	}
	return &Recorder{store: store, capacity: capacity, floor: floor, now: time.Now}
}

// DecrementWeights lowers the template and every source by one, never below
// the floor. A missing entity is skipped; it may have been rejected meanwhile.
func (r *Recorder) DecrementWeights(ctx context.Context, templateID string, sourceIDs []string) error {
	dec := func(w int) int {
		if w > r.floor {
			return w - 1
		}
		return w
	}

	_, err := r.store.Templates().Modify(ctx, templateID, func(t *models.Template) error {
		t.Weight = dec(t.Weight)
		return nil
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to decrement template weight: %w", err)
	}

	for _, id := range sourceIDs {
		_, err := r.store.Sources().Modify(ctx, id, func(s *models.Source) error {
			s.Weight = dec(s.Weight)
			return nil
		})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to decrement source weight: %w", err)
		}
	}
	return nil
}

// Append stores a new record, evicting the oldest ones while at capacity
func (r *Recorder) Append(ctx context.Context, templateID string, sourceIDs []string, msg *models.MessageRef) (models.Meme, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	memes, err := r.store.Memes().FindAll(ctx)
	if err != nil {
		return models.Meme{}, fmt.Errorf("failed to load history: %w", err)
	}
	sort.SliceStable(memes, func(i, j int) bool { return memes[i].CreatedAt.Before(memes[j].CreatedAt) })

	evicted := 0
	for len(memes)-evicted >= r.capacity {
		if err := r.store.Memes().Remove(ctx, memes[evicted].ID); err != nil && !isNotFound(err) {
			return models.Meme{}, fmt.Errorf("failed to evict history record: %w", err)
		}
		evicted++
	}
	if evicted > 0 {
		slog.Debug("Evicted history records", "count", evicted, "capacity", r.capacity)
	}

	meme := models.Meme{
		ID:         uuid.NewString(),
		TemplateID: templateID,
		SourceIDs:  append([]string(nil), sourceIDs...),
		Message:    msg,
		CreatedAt:  r.now(),
	}
	if err := r.store.Memes().Insert(ctx, meme); err != nil {
		return models.Meme{}, fmt.Errorf("failed to append history record: %w", err)
	}
	return meme, nil
}

// Load returns the history newest first
func (r *Recorder) Load(ctx context.Context) ([]models.Meme, error) {
	memes, err := r.store.Memes().FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return selection.SortNewestFirst(memes), nil
}

// Record is the whole bookkeeping for one delivered meme. The record is
// stored first; weights are only worn down for memes that made it into the
// history.
func (r *Recorder) Record(ctx context.Context, templateID string, sourceIDs []string, msg *models.MessageRef) (models.Meme, error) {
	meme, err := r.Append(ctx, templateID, sourceIDs, msg)
	if err != nil {
		return models.Meme{}, err
	}
	if err := r.DecrementWeights(ctx, templateID, sourceIDs); err != nil {
		slog.Warn("Meme recorded but weights were not decremented", "meme_id", meme.ID, "template_id", templateID, "error", err)
		return meme, err
	}
	return meme, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
