package backup

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lucasaxm/RegataSimulator/internal/models"
	"github.com/parquet-go/parquet-go"
)

// HistoryRow is the columnar layout of one generation record
type HistoryRow struct {
	ID         string   `parquet:"id"`
	TemplateID string   `parquet:"template_id"`
	SourceIDs  []string `parquet:"source_ids,list"`
	ChatID     int64    `parquet:"chat_id"`
	MessageID  int64    `parquet:"message_id"`
	CreatedAt  int64    `parquet:"created_at_ms"`
}

func toRow(m models.Meme) HistoryRow {
	row := HistoryRow{
		ID:         m.ID,
		TemplateID: m.TemplateID,
		SourceIDs:  m.SourceIDs,
		CreatedAt:  m.CreatedAt.UnixMilli(),
	}
	if m.Message != nil {
		row.ChatID = m.Message.ChatID
		row.MessageID = int64(m.Message.MessageID)
	}
	return row
}

func (r HistoryRow) meme() models.Meme {
	m := models.Meme{
		ID:         r.ID,
		TemplateID: r.TemplateID,
		SourceIDs:  r.SourceIDs,
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
	}
	if r.ChatID != 0 || r.MessageID != 0 {
		m.Message = &models.MessageRef{ChatID: r.ChatID, MessageID: int(r.MessageID)}
	}
	return m
}

// ExportHistory writes the generation history as a parquet file
func ExportHistory(memes []models.Meme, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create history export: %w", err)
	}
	defer f.Close()

	rows := make([]HistoryRow, len(memes))
	for i, m := range memes {
		rows[i] = toRow(m)
	}

	w := parquet.NewGenericWriter[HistoryRow](f)
	if _, err := w.Write(rows); err != nil {
		return fmt.Errorf("failed to write history rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish history export: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close history export: %w", err)
	}
	slog.Debug("Exported history", "path", path, "rows", len(rows))
	return nil
}

// LoadHistory reads a file written by ExportHistory
func LoadHistory(path string) ([]models.Meme, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history export: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[HistoryRow](pf)
	defer reader.Close()

	var memes []models.Meme
	rows := make([]HistoryRow, 128)
	for {
		n, err := reader.Read(rows)
		for _, r := range rows[:n] {
			memes = append(memes, r.meme())
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read history rows: %w", err)
		}
	}
	return memes, nil
}
