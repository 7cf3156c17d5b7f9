package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lucasaxm/RegataSimulator/internal/backup"
	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/lucasaxm/RegataSimulator/internal/report"
	"github.com/lucasaxm/RegataSimulator/internal/workflow"
)

const backupStamp = "20060102150405"

func (s *Steps) stamp() string {
	return s.now().In(s.cfg.Location).Format(backupStamp)
}

// scratch creates a directory for one backup step
func (s *Steps) scratch(prefix string) (string, error) {
	if err := os.MkdirAll(s.cfg.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create work directory: %w", err)
	}
	dir, err := os.MkdirTemp(s.cfg.WorkDir, prefix+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	return dir, nil
}

func (s *Steps) sendBackupFile(ctx context.Context, path, caption string) error {
	_, err := s.Chat.SendDocument(ctx, chat.Outbound{ChatID: s.cfg.BackupChatID, FilePath: path, Text: caption})
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *Steps) backupDatabase(ctx context.Context, wc *workflow.Context) workflow.Action {
	dir, err := s.scratch("database")
	if err != nil {
		return fail(wc, "Failed to back up database", err)
	}
	defer os.RemoveAll(dir)

	stamp := s.stamp()
	snapshot := filepath.Join(dir, fmt.Sprintf("regata-%s.db", stamp))
	if err := s.Store.Snapshot(ctx, snapshot); err != nil {
		return fail(wc, "Failed to snapshot store", err)
	}
	if err := s.sendBackupFile(ctx, snapshot, "database backup"); err != nil {
		return fail(wc, "Failed to back up database", err)
	}

	memes, err := s.History.Load(ctx)
	if err != nil {
		return fail(wc, "Failed to load history", err)
	}
	export := filepath.Join(dir, fmt.Sprintf("history-%s.parquet", stamp))
	if err := backup.ExportHistory(memes, export); err != nil {
		return fail(wc, "Failed to export history", err)
	}
	if err := s.sendBackupFile(ctx, export, "history backup"); err != nil {
		return fail(wc, "Failed to back up history", err)
	}
	wc.Log.Info("Database backed up", "history_rows", len(memes))
	return workflow.BackupTemplates
}

// backupDir ships root as one or more zip files, never splitting an asset
// directory between two of them
func (s *Steps) backupDir(ctx context.Context, wc *workflow.Context, root, prefix string) error {
	dir, err := s.scratch(prefix)
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	archives, err := backup.ZipDirs(root, dir, fmt.Sprintf("%s-%s", prefix, s.stamp()), s.cfg.BackupChunkSize)
	if err != nil {
		return err
	}
	for i, archive := range archives {
		caption := prefix + " backup"
		if len(archives) > 1 {
			caption = fmt.Sprintf("%s backup (%d/%d)", prefix, i+1, len(archives))
		}
		if err := s.sendBackupFile(ctx, archive, caption); err != nil {
			return err
		}
	}
	wc.Log.Info("Directory backed up", "root", root, "archives", len(archives))
	return nil
}

func (s *Steps) backupTemplates(ctx context.Context, wc *workflow.Context) workflow.Action {
	if err := s.backupDir(ctx, wc, s.Library.TemplatesDir, "templates"); err != nil {
		return fail(wc, "Failed to back up templates", err)
	}
	return workflow.BackupSources
}

func (s *Steps) backupSources(ctx context.Context, wc *workflow.Context) workflow.Action {
	if err := s.backupDir(ctx, wc, s.Library.SourcesDir, "sources"); err != nil {
		return fail(wc, "Failed to back up sources", err)
	}
	return workflow.SendReport
}

func (s *Steps) sendReport(ctx context.Context, wc *workflow.Context) workflow.Action {
	text, err := report.Build(ctx, s.Store)
	if err != nil {
		return fail(wc, "Failed to build report", err)
	}

	out := chat.Outbound{ChatID: s.cfg.BackupChatID, Text: text, HTML: true}
	target := wc.ReplyTo
	if target == nil {
		target = wc.Message()
	}
	if target != nil {
		out.ChatID = target.ChatID
		out.ReplyTo = target.ID
		out.ThreadID = target.ThreadID
	}
	wc.Outbound = &out
	return workflow.SendMessage
}
