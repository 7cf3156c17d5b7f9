package curation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lucasaxm/RegataSimulator/internal/assets"
	"github.com/lucasaxm/RegataSimulator/internal/models"
	"github.com/lucasaxm/RegataSimulator/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFiles struct {
	fetched []string
	broken  map[string]bool
}

func (f *fakeFiles) Download(_ context.Context, fileID, dest string) error {
	if f.broken[fileID] {
		return errors.New("file is gone")
	}
	f.fetched = append(f.fetched, fileID)
	return os.WriteFile(dest, []byte(fileID), 0o644)
}

func setup(t *testing.T, files Downloader) (*Curator, storage.Store, *assets.Library) {
	t.Helper()
	dir := t.TempDir()
	lib, err := assets.New(filepath.Join(dir, "templates"), filepath.Join(dir, "sources"))
	require.NoError(t, err)
	store := storage.NewMemory()
	return New(store, lib, files, 10), store, lib
}

func TestRemoveApprovedTemplate(t *testing.T) {
	ctx := context.Background()
	c, store, lib := setup(t, nil)

	path, err := lib.NewTemplatePath("t1", ".png")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))
	require.NoError(t, store.Templates().Insert(ctx, models.Template{Asset: models.Asset{ID: "t1", Weight: 30, Status: models.StatusApproved}}))

	require.NoError(t, c.RemoveTemplate(ctx, "t1"))

	_, err = store.Templates().FindByID(ctx, "t1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoDirExists(t, lib.TemplateDir("t1"))

	assert.ErrorIs(t, c.RemoveTemplate(ctx, "t1"), storage.ErrNotFound)
}

func TestRemoveSource(t *testing.T) {
	ctx := context.Background()
	c, store, lib := setup(t, nil)

	path, err := lib.NewSourcePath("s1", ".jpg")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("jpg"), 0o644))
	require.NoError(t, store.Sources().Insert(ctx, models.Source{Asset: models.Asset{ID: "s1", Status: models.StatusApproved}, Description: "gato"}))

	require.NoError(t, c.RemoveSource(ctx, "s1"))
	n, err := store.Sources().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoDirExists(t, lib.SourceDir("s1"))

	assert.ErrorIs(t, c.RemoveSource(ctx, "missing"), storage.ErrNotFound)
}

func TestResetSourceWeights(t *testing.T) {
	ctx := context.Background()
	c, store, _ := setup(t, nil)
	for i, w := range []int{1, 4, 10} {
		id := string(rune('a' + i))
		require.NoError(t, store.Sources().Insert(ctx, models.Source{Asset: models.Asset{ID: id, Weight: w, Status: models.StatusApproved}}))
	}

	n, err := c.ResetSourceWeights(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := store.Sources().FindAll(ctx)
	require.NoError(t, err)
	for _, src := range all {
		assert.Equal(t, 10, src.Weight, src.ID)
	}
}

func TestImportSources(t *testing.T) {
	ctx := context.Background()
	files := &fakeFiles{broken: map[string]bool{"file-broken": true}}
	c, store, lib := setup(t, files)
	require.NoError(t, store.Sources().Insert(ctx, models.Source{Asset: models.Asset{ID: "old", Status: models.StatusApproved}, Description: "Gato"}))

	export := strings.Join([]string{
		"Nome,Texto,Tipo,Conteudo",
		"cachorro,,photo,file-dog",
		"gato,,photo,file-cat",
		"sticker,,sticker,file-sticker",
		"quebrado,,photo,file-broken",
		"curto,photo",
		`"papagaio, verde",,PHOTO,file-parrot`,
		"cachorro,,photo,file-dog-again",
	}, "\n")

	created, err := c.ImportSources(ctx, strings.NewReader(export))
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "cachorro", created[0].Description)
	assert.Equal(t, "papagaio, verde", created[1].Description)
	assert.Equal(t, []string{"file-dog", "file-parrot"}, files.fetched)

	for _, src := range created {
		assert.Equal(t, models.StatusApproved, src.Status)
		assert.Equal(t, 10, src.Weight)
		path, err := lib.SourceFile(src.ID)
		require.NoError(t, err)
		assert.FileExists(t, path)
	}

	n, err := store.Sources().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestImportSourcesBadInput(t *testing.T) {
	ctx := context.Background()

	c, _, _ := setup(t, nil)
	_, err := c.ImportSources(ctx, strings.NewReader("nome,tipo,conteudo\n"))
	assert.ErrorIs(t, err, ErrNoDownloader)

	c, _, _ = setup(t, &fakeFiles{})
	_, err = c.ImportSources(ctx, strings.NewReader("titulo,tipo\nx,photo\n"))
	assert.ErrorIs(t, err, ErrImportHeader)

	created, err := c.ImportSources(ctx, strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, created)
}
