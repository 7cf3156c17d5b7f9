package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lucasaxm/RegataSimulator/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "regata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func template(id string, status models.Status, weight int) models.Template {
	return models.Template{
		Asset: models.Asset{ID: id, Status: status, Weight: weight, CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		Areas: []models.Area{{Index: 1, SourceSlot: 1, TopRight: models.Corner{X: 10}, BottomRight: models.Corner{X: 10, Y: 10}, BottomLeft: models.Corner{Y: 10}}},
	}
}

func TestCollectionCRUD(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			templates := store.Templates()

			require.NoError(t, templates.Insert(ctx, template("a", models.StatusApproved, 10)))
			require.NoError(t, templates.Insert(ctx, template("b", models.StatusReview, 10)))
			assert.ErrorIs(t, templates.Insert(ctx, template("a", models.StatusReview, 1)), ErrExists)

			got, err := templates.FindByID(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, template("a", models.StatusApproved, 10), got)

			_, err = templates.FindByID(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			approved, err := templates.Find(ctx, ByStatus[models.Template](models.StatusApproved))
			require.NoError(t, err)
			require.Len(t, approved, 1)
			assert.Equal(t, "a", approved[0].ID)

			updated := template("b", models.StatusApproved, 3)
			require.NoError(t, templates.Update(ctx, updated))
			assert.ErrorIs(t, templates.Update(ctx, template("zzz", models.StatusApproved, 1)), ErrNotFound)
			got, err = templates.FindByID(ctx, "b")
			require.NoError(t, err)
			assert.Equal(t, 3, got.Weight)

			require.NoError(t, templates.Upsert(ctx, template("c", models.StatusRejected, 1)))
			require.NoError(t, templates.Upsert(ctx, template("c", models.StatusRejected, 2)))
			n, err := templates.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			all, err := templates.FindAll(ctx)
			require.NoError(t, err)
			var ids []string
			for _, tpl := range all {
				ids = append(ids, tpl.ID)
			}
			assert.Equal(t, []string{"a", "b", "c"}, ids, "insertion order is preserved")

			require.NoError(t, templates.Remove(ctx, "b"))
			assert.ErrorIs(t, templates.Remove(ctx, "b"), ErrNotFound)
			n, err = templates.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

func TestReturnedValuesAreCopies(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Templates().Insert(ctx, template("a", models.StatusApproved, 10)))

			got, err := store.Templates().FindByID(ctx, "a")
			require.NoError(t, err)
			got.Areas[0].Index = 99
			got.Weight = 0

			again, err := store.Templates().FindByID(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, 1, again.Areas[0].Index)
			assert.Equal(t, 10, again.Weight)
		})
	}
}

func TestModify(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sources := store.Sources()
			require.NoError(t, sources.Insert(ctx, models.Source{Asset: models.Asset{ID: "s", Weight: 5, Status: models.StatusApproved}}))

			got, err := sources.Modify(ctx, "s", func(s *models.Source) error {
				s.Weight--
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, 4, got.Weight)

			boom := errors.New("boom")
			_, err = sources.Modify(ctx, "s", func(s *models.Source) error {
				s.Weight = 100
				return boom
			})
			assert.ErrorIs(t, err, boom)

			stored, err := sources.FindByID(ctx, "s")
			require.NoError(t, err)
			assert.Equal(t, 4, stored.Weight, "aborted modify must not save")

			_, err = sources.Modify(ctx, "missing", func(*models.Source) error { return nil })
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = sources.Modify(ctx, "s", func(s *models.Source) error {
				s.ID = "other"
				return nil
			})
			assert.Error(t, err)
		})
	}
}

func TestModifyIsAtomic(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sources := store.Sources()
			require.NoError(t, sources.Insert(ctx, models.Source{Asset: models.Asset{ID: "s", Weight: 100}}))

			var wg sync.WaitGroup
			for range 20 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := sources.Modify(ctx, "s", func(s *models.Source) error {
						s.Weight--
						return nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			got, err := sources.FindByID(ctx, "s")
			require.NoError(t, err)
			assert.Equal(t, 80, got.Weight)
		})
	}
}

func TestSnapshot(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Authors().Insert(ctx, models.Author{ID: 42, Username: "regata"}))
			require.NoError(t, store.Memes().Insert(ctx, models.Meme{ID: "m1", TemplateID: "a", SourceIDs: []string{"s"}}))

			dst := filepath.Join(t.TempDir(), "snapshot")
			require.NoError(t, os.WriteFile(dst, []byte("stale"), 0o644))
			require.NoError(t, store.Snapshot(ctx, dst))

			info, err := os.Stat(dst)
			require.NoError(t, err)
			assert.Greater(t, info.Size(), int64(len("stale")))
		})
	}
}

func TestSQLiteSnapshotIsReadable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := OpenSQLite(ctx, filepath.Join(dir, "regata.db"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Templates().Insert(ctx, template("a", models.StatusApproved, 7)))

	dst := filepath.Join(dir, "backup.db")
	require.NoError(t, store.Snapshot(ctx, dst))

	copied, err := OpenSQLite(ctx, dst)
	require.NoError(t, err)
	defer copied.Close()
	got, err := copied.Templates().FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 7, got.Weight)
}
