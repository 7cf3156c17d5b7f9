// Package curation holds the operator actions on the catalog that happen
// outside any chat flow: removing published assets, resetting source
// weights and importing sources in bulk.
package curation

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lucasaxm/RegataSimulator/internal/assets"
	"github.com/lucasaxm/RegataSimulator/internal/models"
	"github.com/lucasaxm/RegataSimulator/internal/storage"
)

var (
	ErrNoDownloader = errors.New("source import needs a chat connection")
	ErrImportHeader = errors.New("import header must name the nome and conteudo columns")
)

// Downloader fetches an already uploaded chat file by its id
type Downloader interface {
	Download(ctx context.Context, fileID, dest string) error
}

type Curator struct {
	store        storage.Store
	library      *assets.Library
	files        Downloader
	sourceWeight int
	now          func() time.Time
}

// New builds a Curator. files may be nil, in which case ImportSources fails.
func New(store storage.Store, library *assets.Library, files Downloader, sourceWeight int) *Curator {
	return &Curator{
		store:        store,
		library:      library,
		files:        files,
		sourceWeight: sourceWeight,
		now:          time.Now,
	}
}

// RemoveTemplate deletes a template in any status together with its files
func (c *Curator) RemoveTemplate(ctx context.Context, id string) error {
	if _, err := c.store.Templates().FindByID(ctx, id); err != nil {
		return fmt.Errorf("failed to find template %s: %w", id, err)
	}
	if err := c.store.Templates().Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove template %s: %w", id, err)
	}
	if err := c.library.RemoveTemplate(id); err != nil {
		return fmt.Errorf("template %s removed but its files were not: %w", id, err)
	}
	slog.Info("Template removed", "template_id", id)
	return nil
}

// RemoveSource deletes a source in any status together with its files
func (c *Curator) RemoveSource(ctx context.Context, id string) error {
	if _, err := c.store.Sources().FindByID(ctx, id); err != nil {
		return fmt.Errorf("failed to find source %s: %w", id, err)
	}
	if err := c.store.Sources().Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove source %s: %w", id, err)
	}
	if err := c.library.RemoveSource(id); err != nil {
		return fmt.Errorf("source %s removed but its files were not: %w", id, err)
	}
	slog.Info("Source removed", "source_id", id)
	return nil
}

// ResetSourceWeights puts every source back to the initial weight and
// returns how many were stored
func (c *Curator) ResetSourceWeights(ctx context.Context) (int, error) {
	sources, err := c.store.Sources().FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load sources: %w", err)
	}
	n := 0
	for _, src := range sources {
		_, err := c.store.Sources().Modify(ctx, src.ID, func(s *models.Source) error {
			s.Weight = c.sourceWeight
			return nil
		})
		switch {
		case errors.Is(err, storage.ErrNotFound):
			continue
		case err != nil:
			return n, fmt.Errorf("failed to reset weight of source %s: %w", src.ID, err)
		}
		n++
	}
	slog.Info("Source weights reset", "count", n, "weight", c.sourceWeight)
	return n, nil
}

// importRecord is one row of a chat export: nome,texto,tipo,conteudo
type importRecord struct {
	name    string
	kind    string
	content string
}

func parseImport(r io.Reader) ([]importRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read import header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := columns["nome"]; !ok {
		return nil, ErrImportHeader
	}
	if _, ok := columns["conteudo"]; !ok {
		return nil, ErrImportHeader
	}
	field := func(row []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []importRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read import row: %w", err)
		}
		if len(row) < 4 {
			continue
		}
		records = append(records, importRecord{
			name:    field(row, "nome"),
			kind:    field(row, "tipo"),
			content: field(row, "conteudo"),
		})
	}
}

// ImportSources creates an approved source for every photo row whose name
// is not taken yet, downloading the photo by its chat file id. Rows that
// fail are logged and skipped.
func (c *Curator) ImportSources(ctx context.Context, r io.Reader) ([]models.Source, error) {
	if c.files == nil {
		return nil, ErrNoDownloader
	}
	records, err := parseImport(r)
	if err != nil {
		return nil, err
	}

	existing, err := c.store.Sources().FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	taken := make(map[string]struct{}, len(existing))
	for _, src := range existing {
		taken[strings.ToLower(src.Description)] = struct{}{}
	}

	var created []models.Source
	for _, rec := range records {
		key := strings.ToLower(rec.name)
		if !strings.EqualFold(rec.kind, "photo") || rec.name == "" || rec.content == "" {
			continue
		}
		if _, dup := taken[key]; dup {
			continue
		}
		src, err := c.importOne(ctx, rec)
		if err != nil {
			slog.Error("Failed to import source", "name", rec.name, "error", err)
			continue
		}
		taken[key] = struct{}{}
		created = append(created, src)
	}
	slog.Info("Sources imported", "rows", len(records), "created", len(created))
	return created, nil
}

func (c *Curator) importOne(ctx context.Context, rec importRecord) (models.Source, error) {
	id := uuid.NewString()
	path, err := c.library.NewSourcePath(id, ".jpg")
	if err != nil {
		return models.Source{}, err
	}
	if err := c.files.Download(ctx, rec.content, path); err != nil {
		_ = c.library.RemoveSource(id)
		return models.Source{}, fmt.Errorf("failed to download photo: %w", err)
	}
	src := models.Source{
		Asset: models.Asset{
			ID:        id,
			Weight:    c.sourceWeight,
			Status:    models.StatusApproved,
			CreatedAt: c.now(),
		},
		Description: rec.name,
	}
	if err := c.store.Sources().Insert(ctx, src); err != nil {
		_ = c.library.RemoveSource(id)
		return models.Source{}, fmt.Errorf("failed to save source: %w", err)
	}
	return src, nil
}
