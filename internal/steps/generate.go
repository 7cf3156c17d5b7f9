package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/lucasaxm/RegataSimulator/internal/models"
	"github.com/lucasaxm/RegataSimulator/internal/routes"
	"github.com/lucasaxm/RegataSimulator/internal/selection"
	"github.com/lucasaxm/RegataSimulator/internal/storage"
	"github.com/lucasaxm/RegataSimulator/internal/workflow"
)

func (s *Steps) loadHistory(ctx context.Context, wc *workflow.Context) error {
	if wc.History != nil {
		return nil
	}
	memes, err := s.History.Load(ctx)
	if err != nil {
		return err
	}
	if memes == nil {
		memes = []models.Meme{}
	}
	wc.History = memes
	return nil
}

func (s *Steps) getRandomTemplate(ctx context.Context, wc *workflow.Context) workflow.Action {
	approved, err := s.Store.Templates().Find(ctx, storage.ByStatus[models.Template](models.StatusApproved))
	if err != nil {
		return fail(wc, "Failed to load templates", err)
	}
	if err := s.loadHistory(ctx, wc); err != nil {
		return fail(wc, "Failed to load history", err)
	}

	pool := selection.PruneRecent(approved, selection.RecentTemplateIDs(wc.History), selection.TemplateID, s.cfg.RecentFraction, 1)
	picked, err := selection.Pick(s.Selector, pool, 1, selection.TemplateWeight)
	if err != nil {
		return fail(wc, "Failed to pick template", err)
	}
	template := picked[0]

	file, err := s.Library.TemplateFile(template.ID)
	if err != nil {
		return fail(wc, "Template image missing", err)
	}
	wc.Template = &template
	wc.TemplateFile = file
	wc.Log.Info("Picked template", "template_id", template.ID, "weight", template.Weight, "pool", len(pool), "approved", len(approved))
	return workflow.GetRandomSource
}

func (s *Steps) getRandomSource(ctx context.Context, wc *workflow.Context) workflow.Action {
	if wc.Template == nil {
		return fail(wc, "Cannot pick sources", fmt.Errorf("%w: template", errMissing))
	}
	needed := wc.Template.SourceCount()

	// a source preview keeps the submitted source in the first slot
	var fixed []models.Source
	if wc.Preview != nil && wc.Preview.Kind == workflow.PreviewSource && len(wc.Sources) > 0 {
		fixed = wc.Sources[:1]
	}
	draw := needed - len(fixed)

	approved, err := s.Store.Sources().Find(ctx, func(src models.Source) bool {
		if src.Status != models.StatusApproved {
			return false
		}
		for _, f := range fixed {
			if f.ID == src.ID {
				return false
			}
		}
		return true
	})
	if err != nil {
		return fail(wc, "Failed to load sources", err)
	}

	pool := approved
	if theme, ok := selection.ActiveTheme(s.cfg.Themes, s.now().In(s.cfg.Location)); ok {
		themed := selection.FilterThemed(approved, theme)
		if len(themed) >= draw {
			pool = themed
			wc.Log.Info("Using themed sources", "keywords", theme.Keywords, "pool", len(pool))
		} else {
			wc.Log.Warn("Not enough themed sources", "keywords", theme.Keywords, "themed", len(themed), "needed", draw)
		}
	}

	if err := s.loadHistory(ctx, wc); err != nil {
		return fail(wc, "Failed to load history", err)
	}
	pool = selection.PruneRecent(pool, selection.RecentSourceIDs(wc.History), selection.SourceID, s.cfg.RecentFraction, draw)
	picked, err := selection.Pick(s.Selector, pool, draw, selection.SourceWeight)
	if err != nil {
		return fail(wc, "Failed to pick sources", err)
	}

	sources := append(append([]models.Source{}, fixed...), picked...)
	files := make([]string, len(sources))
	for i, src := range sources {
		files[i], err = s.Library.SourceFile(src.ID)
		if err != nil {
			return fail(wc, "Source image missing", err)
		}
	}
	wc.Sources = sources
	wc.SourceFiles = files
	wc.Log.Info("Picked sources", "count", len(sources), "pool", len(pool))
	return workflow.BuildMeme
}

func (s *Steps) buildMeme(ctx context.Context, wc *workflow.Context) workflow.Action {
	if wc.Template == nil || wc.TemplateFile == "" || len(wc.SourceFiles) == 0 {
		return fail(wc, "Cannot build meme", fmt.Errorf("%w: template or sources", errMissing))
	}
	if err := os.MkdirAll(s.cfg.WorkDir, 0o755); err != nil {
		return fail(wc, "Failed to create work directory", err)
	}
	out := filepath.Join(s.cfg.WorkDir, "meme-"+wc.RunID+".png")
	if err := s.Composer.Compose(ctx, wc.TemplateFile, wc.Template.Areas, wc.SourceFiles, out); err != nil {
		return fail(wc, "Failed to compose meme", err)
	}
	wc.MemeFile = out
	return workflow.SendMeme
}

func (s *Steps) sendMeme(ctx context.Context, wc *workflow.Context) workflow.Action {
	if wc.MemeFile == "" || wc.Template == nil {
		return fail(wc, "Cannot send meme", fmt.Errorf("%w: meme file", errMissing))
	}
	defer func() {
		if err := os.Remove(wc.MemeFile); err != nil && !os.IsNotExist(err) {
			wc.Log.Warn("Failed to remove meme file", "path", wc.MemeFile, "error", err)
		}
	}()

	if wc.Preview != nil {
		return s.sendPreview(ctx, wc)
	}

	out := chat.Outbound{ChatID: s.cfg.ChannelID, FilePath: wc.MemeFile}
	if msg := wc.Message(); msg != nil {
		out.ChatID = msg.ChatID
		out.ReplyTo = msg.ID
		out.ThreadID = msg.ThreadID
	}
	sent, err := s.Chat.SendPhoto(ctx, out)
	if err != nil {
		return fail(wc, "Failed to send meme", err)
	}

	sourceIDs := make([]string, len(wc.Sources))
	for i, src := range wc.Sources {
		sourceIDs[i] = src.ID
	}
	meme, err := s.History.Record(ctx, wc.Template.ID, sourceIDs, sent.Ref())
	if err != nil {
		return fail(wc, "Failed to record meme", err)
	}
	wc.Log.Info("Meme delivered", "meme_id", meme.ID, "template_id", wc.Template.ID, "sources", sourceIDs, "chat_id", out.ChatID)
	return workflow.None
}

// sendPreview shows the submitter the meme with buttons to confirm or cancel
// the submission
func (s *Steps) sendPreview(ctx context.Context, wc *workflow.Context) workflow.Action {
	p := wc.Preview
	target := wc.ReplyTo
	if target == nil {
		target = wc.Message()
	}
	if target == nil {
		return fail(wc, "Cannot send preview", fmt.Errorf("%w: submission message", errMissing))
	}

	if p.StatusMessage != nil {
		if err := s.Chat.DeleteMessage(ctx, p.StatusMessage.ChatID, p.StatusMessage.ID); err != nil {
			wc.Log.Warn("Failed to delete status message", "error", err)
		}
	}

	kind := string(p.Kind)
	out := chat.Outbound{
		ChatID:   target.ChatID,
		ReplyTo:  target.ID,
		ThreadID: target.ThreadID,
		FilePath: wc.MemeFile,
		Buttons: [][]chat.Button{{
			{Text: "✅ Confirmar", Data: routes.CallbackData(p.AssetID, kind, "confirm")},
			{Text: "❌ Cancelar", Data: routes.CallbackData(p.AssetID, kind, "cancel")},
		}},
	}
	if _, err := s.Chat.SendPhoto(ctx, out); err != nil {
		return fail(wc, "Failed to send preview", err)
	}
	wc.Log.Info("Preview sent", "kind", kind, "asset_id", p.AssetID)
	return workflow.None
}
