// Package selection draws templates and sources proportionally to their
// weight, after pruning whatever was used recently.
package selection

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/lucasaxm/RegataSimulator/internal/models"
)

var (
	ErrPoolTooSmall = errors.New("selection pool is smaller than the requested count")
	ErrZeroWeight   = errors.New("selection pool has no weight left to draw from")
)

// Selector is safe for concurrent use.
type Selector struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Selector drawing from rnd. A nil rnd gets a randomly seeded source.
func New(rnd *rand.Rand) *Selector {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), uint64(time.Now().UnixNano())))
	}
	return &Selector{rnd: rnd}
}

func (s *Selector) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.IntN(n)
}

// Pick draws count distinct elements from pool without replacement, each draw
// proportional to weight. The pool slice is never modified.
func Pick[T any](s *Selector, pool []T, count int, weight func(T) int) ([]T, error) {
	if count < 0 {
		return nil, fmt.Errorf("invalid selection count %d", count)
	}
	if count > len(pool) {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrPoolTooSmall, count, len(pool))
	}

	candidates := make([]T, len(pool))
	copy(candidates, pool)

	selected := make([]T, 0, count)
	cumulative := make([]int, len(candidates))
	for range count {
		total := 0
		for i, c := range candidates {
			total += max(weight(c), 0)
			cumulative[i] = total
		}
		if total == 0 {
			return nil, fmt.Errorf("%w: %d candidates left", ErrZeroWeight, len(candidates))
		}

		draw := s.intN(total)
		idx := sort.Search(len(candidates), func(i int) bool { return cumulative[i] > draw })

		selected = append(selected, candidates[idx])
		candidates = append(candidates[:idx], candidates[idx+1:]...)
		cumulative = cumulative[:len(candidates)]
	}
	return selected, nil
}

// PruneRecent removes candidates whose ids are among the first
// ceil(len(pool)*fraction) distinct recent ids, newest first. Removal stops
// once only needed candidates remain.
func PruneRecent[T any](pool []T, recent []string, id func(T) string, fraction float64, needed int) []T {
	limit := int(math.Ceil(float64(len(pool)) * fraction))
	if limit > len(recent) {
		limit = len(recent)
	}

	inPool := make(map[string]struct{}, len(pool))
	for _, c := range pool {
		inPool[id(c)] = struct{}{}
	}

	excluded := make(map[string]struct{}, limit)
	remaining := len(pool)
	for _, rid := range recent[:limit] {
		if remaining <= needed {
			break
		}
		if _, ok := inPool[rid]; !ok {
			continue
		}
		if _, done := excluded[rid]; done {
			continue
		}
		excluded[rid] = struct{}{}
		remaining--
	}

	result := make([]T, 0, remaining)
	for _, c := range pool {
		if _, skip := excluded[id(c)]; !skip {
			result = append(result, c)
		}
	}
	return result
}

// SortNewestFirst returns a copy of history ordered by creation time, newest first
func SortNewestFirst(history []models.Meme) []models.Meme {
	sorted := make([]models.Meme, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return sorted
}

// RecentTemplateIDs lists distinct template ids from history that is already newest first
func RecentTemplateIDs(history []models.Meme) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, m := range history {
		if _, ok := seen[m.TemplateID]; ok {
			continue
		}
		seen[m.TemplateID] = struct{}{}
		ids = append(ids, m.TemplateID)
	}
	return ids
}

// RecentSourceIDs lists distinct source ids from history that is already newest first
func RecentSourceIDs(history []models.Meme) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, m := range history {
		for _, sid := range m.SourceIDs {
			if _, ok := seen[sid]; ok {
				continue
			}
			seen[sid] = struct{}{}
			ids = append(ids, sid)
		}
	}
	return ids
}

func TemplateWeight(t models.Template) int { return t.Weight }
func TemplateID(t models.Template) string  { return t.ID }
func SourceWeight(s models.Source) int     { return s.Weight }
func SourceID(s models.Source) string      { return s.ID }
