package steps

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"github.com/lucasaxm/RegataSimulator/internal/areas"
	"github.com/lucasaxm/RegataSimulator/internal/assets"
	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/lucasaxm/RegataSimulator/internal/models"
	"github.com/lucasaxm/RegataSimulator/internal/routes"
	"github.com/lucasaxm/RegataSimulator/internal/storage"
	"github.com/lucasaxm/RegataSimulator/internal/workflow"
)

var errForbidden = errors.New("only the author or the creator can do that")

func (s *Steps) saveAuthor(ctx context.Context, wc *workflow.Context, author *models.Author) {
	if author == nil {
		return
	}
	if err := s.Store.Authors().Upsert(ctx, *author); err != nil {
		wc.Log.Warn("Failed to save author", "author_id", author.ID, "error", err)
	}
}

// submission checks that the trigger carries an image document and returns
// its message
func submission(wc *workflow.Context) (*chat.Message, error) {
	msg := wc.Message()
	if msg == nil || msg.Document == nil {
		return nil, fmt.Errorf("%w: document message", errMissing)
	}
	return msg, nil
}

func (s *Steps) createTemplate(ctx context.Context, wc *workflow.Context) workflow.Action {
	msg, err := submission(wc)
	if err != nil {
		return fail(wc, "Cannot create template", err)
	}
	list, err := areas.ParseString(msg.Caption)
	if err != nil {
		return fail(wc, "Invalid template areas", err)
	}

	status, err := s.Chat.SendText(ctx, reply(msg, "Criando template..."))
	if err != nil {
		wc.Log.Warn("Failed to send status message", "error", err)
	}

	id := uuid.NewString()
	path, err := s.Library.NewTemplatePath(id, assets.ImageExtension(msg.Document.FileName, msg.Document.MimeType))
	if err != nil {
		return fail(wc, "Failed to prepare template directory", err)
	}
	cleanup := func() {
		if err := s.Library.RemoveTemplate(id); err != nil {
			wc.Log.Warn("Failed to clean up template directory", "template_id", id, "error", err)
		}
	}
	if err := s.Chat.Download(ctx, msg.Document.FileID, path); err != nil {
		cleanup()
		return fail(wc, "Failed to download template", err)
	}
	if err := s.Library.WriteAreas(id, list); err != nil {
		cleanup()
		return fail(wc, "Failed to store template areas", err)
	}

	template := models.Template{
		Asset: models.Asset{
			ID:        id,
			Weight:    s.cfg.TemplateWeight,
			Status:    models.StatusReview,
			Message:   msg.Ref(),
			CreatedAt: s.now(),
		},
		Areas: list,
	}
	if msg.From != nil {
		template.AuthorID = msg.From.ID
	}
	s.saveAuthor(ctx, wc, msg.From)
	if err := s.Store.Templates().Insert(ctx, template); err != nil {
		cleanup()
		return fail(wc, "Failed to save template", err)
	}
	wc.Log.Info("Template created", "template_id", id, "areas", len(list), "author_id", template.AuthorID)

	wc.Template = &template
	wc.TemplateFile = path
	wc.ReplyTo = msg
	wc.Preview = &workflow.Preview{Kind: workflow.PreviewTemplate, AssetID: id, StatusMessage: status}
	return workflow.GetRandomSource
}

// sourceDescription is everything after the first colon of the caption
func sourceDescription(caption string) string {
	_, desc, _ := strings.Cut(caption, ":")
	return strings.TrimSpace(desc)
}

func (s *Steps) createSource(ctx context.Context, wc *workflow.Context) workflow.Action {
	msg, err := submission(wc)
	if err != nil {
		return fail(wc, "Cannot create source", err)
	}

	description := sourceDescription(msg.Caption)
	if description == "" {
		if _, err := s.Chat.SendText(ctx, reply(msg, "Erro: A descrição não pode estar vazia.")); err != nil {
			wc.Log.Warn("Failed to send error message", "error", err)
		}
		wc.Log.Info("Rejected source without description")
		return workflow.None
	}

	duplicates, err := s.Store.Sources().Find(ctx, func(src models.Source) bool {
		return strings.EqualFold(src.Description, description)
	})
	if err != nil {
		return fail(wc, "Failed to look up sources", err)
	}
	if len(duplicates) > 0 {
		return s.replyDuplicate(ctx, wc, msg, duplicates[0])
	}

	status, err := s.Chat.SendText(ctx, reply(msg, "Criando source..."))
	if err != nil {
		wc.Log.Warn("Failed to send status message", "error", err)
	}

	id := uuid.NewString()
	path, err := s.Library.NewSourcePath(id, assets.ImageExtension(msg.Document.FileName, msg.Document.MimeType))
	if err != nil {
		return fail(wc, "Failed to prepare source directory", err)
	}
	if err := s.Chat.Download(ctx, msg.Document.FileID, path); err != nil {
		if err := s.Library.RemoveSource(id); err != nil {
			wc.Log.Warn("Failed to clean up source directory", "source_id", id, "error", err)
		}
		return fail(wc, "Failed to download source", err)
	}

	source := models.Source{
		Asset: models.Asset{
			ID:        id,
			Weight:    s.cfg.SourceWeight,
			Status:    models.StatusReview,
			Message:   msg.Ref(),
			CreatedAt: s.now(),
		},
		Description: description,
	}
	if msg.From != nil {
		source.AuthorID = msg.From.ID
	}
	s.saveAuthor(ctx, wc, msg.From)
	if err := s.Store.Sources().Insert(ctx, source); err != nil {
		_ = s.Library.RemoveSource(id)
		return fail(wc, "Failed to save source", err)
	}
	wc.Log.Info("Source created", "source_id", id, "description", description, "author_id", source.AuthorID)

	wc.Sources = []models.Source{source}
	wc.SourceFiles = []string{path}
	wc.ReplyTo = msg
	wc.Preview = &workflow.Preview{Kind: workflow.PreviewSource, AssetID: id, StatusMessage: status}
	return workflow.GetRandomTemplate
}

func (s *Steps) replyDuplicate(ctx context.Context, wc *workflow.Context, msg *chat.Message, existing models.Source) workflow.Action {
	out := reply(msg, fmt.Sprintf("Erro: Já existe uma source com esta descrição.\nSource existente ID: %s\nDescrição: %s", existing.ID, existing.Description))
	if file, err := s.Library.SourceFile(existing.ID); err == nil {
		out.FilePath = file
		_, err = s.Chat.SendPhoto(ctx, out)
		if err != nil {
			wc.Log.Warn("Failed to send duplicate notice", "error", err)
		}
	} else if _, err := s.Chat.SendText(ctx, out); err != nil {
		wc.Log.Warn("Failed to send duplicate notice", "error", err)
	}
	wc.Log.Info("Rejected duplicate source", "existing_id", existing.ID)
	return workflow.None
}

// reviewButton resolves the asset a confirm or cancel button refers to and
// checks that the presser may act on it
func reviewButton[T storage.Entity](ctx context.Context, s *Steps, wc *workflow.Context, col storage.Collection[T], asset func(T) models.Asset) (*chat.Callback, T, error) {
	var zero T
	cb := wc.Callback()
	if cb == nil || cb.Message == nil {
		return nil, zero, fmt.Errorf("%w: callback", errMissing)
	}
	id, _, _, ok := routes.ParseCallbackData(cb.Data)
	if !ok {
		return nil, zero, fmt.Errorf("malformed callback data %q", cb.Data)
	}
	item, err := col.FindByID(ctx, id)
	if err != nil {
		return cb, zero, err
	}
	a := asset(item)
	if cb.From == nil || (cb.From.ID != a.AuthorID && cb.From.ID != s.cfg.CreatorID) {
		return cb, zero, errForbidden
	}
	if a.Status != models.StatusReview {
		return cb, zero, fmt.Errorf("%s is already %s", a.ID, a.Status)
	}
	return cb, item, nil
}

func templateAsset(t models.Template) models.Asset { return t.Asset }
func sourceAsset(s models.Source) models.Asset     { return s.Asset }

func (s *Steps) answer(ctx context.Context, wc *workflow.Context, cb *chat.Callback, text string) {
	if cb == nil {
		return
	}
	if err := s.Chat.AnswerCallback(ctx, cb.ID, text); err != nil {
		wc.Log.Warn("Failed to answer callback", "error", err)
	}
}

// refuse answers a button press that could not be applied
func (s *Steps) refuse(ctx context.Context, wc *workflow.Context, cb *chat.Callback, err error) workflow.Action {
	switch {
	case errors.Is(err, errForbidden):
		s.answer(ctx, wc, cb, "Apenas o autor pode fazer isso.")
	case errors.Is(err, storage.ErrNotFound):
		s.answer(ctx, wc, cb, "Não encontrado.")
	default:
		s.answer(ctx, wc, cb, "")
	}
	return fail(wc, "Cannot handle review button", err)
}

func (s *Steps) authorName(ctx context.Context, id int64, fallback *models.Author) string {
	if fallback != nil && fallback.ID == id {
		return fallback.DisplayName()
	}
	author, err := s.Store.Authors().FindByID(ctx, models.Author{ID: id}.Key())
	if err != nil {
		return models.Author{ID: id}.DisplayName()
	}
	return author.DisplayName()
}

func awaitingApproval(kind, id, author string) string {
	return fmt.Sprintf("%s id <code>%s</code> aguardando aprovação.\nEnviado por %s", kind, html.EscapeString(id), html.EscapeString(author))
}

func (s *Steps) confirmReviewTemplate(ctx context.Context, wc *workflow.Context) workflow.Action {
	cb, template, err := reviewButton(ctx, s, wc, s.Store.Templates(), templateAsset)
	if err != nil {
		return s.refuse(ctx, wc, cb, err)
	}
	s.answer(ctx, wc, cb, "Template enviado para aprovação.")
	if err := s.Chat.ClearKeyboard(ctx, cb.Message.ChatID, cb.Message.ID); err != nil {
		wc.Log.Warn("Failed to clear keyboard", "error", err)
	}

	out := chat.Outbound{
		ChatID: s.cfg.CreatorID,
		Text:   awaitingApproval("Template", template.ID, s.authorName(ctx, template.AuthorID, cb.From)),
		HTML:   true,
	}
	if template.Message != nil && template.Message.FileID != "" {
		out.FileID = template.Message.FileID
	} else if file, err := s.Library.TemplateFile(template.ID); err == nil {
		out.FilePath = file
	}
	if _, err := s.Chat.SendDocument(ctx, out); err != nil {
		return fail(wc, "Failed to notify creator", err)
	}
	wc.Template = &template
	wc.Log.Info("Template awaiting approval", "template_id", template.ID)
	return workflow.None
}

func (s *Steps) confirmReviewSource(ctx context.Context, wc *workflow.Context) workflow.Action {
	cb, source, err := reviewButton(ctx, s, wc, s.Store.Sources(), sourceAsset)
	if err != nil {
		return s.refuse(ctx, wc, cb, err)
	}
	s.answer(ctx, wc, cb, "Source enviado para aprovação.")
	if err := s.Chat.ClearKeyboard(ctx, cb.Message.ChatID, cb.Message.ID); err != nil {
		wc.Log.Warn("Failed to clear keyboard", "error", err)
	}

	out := chat.Outbound{
		ChatID: s.cfg.CreatorID,
		Text:   awaitingApproval("Source", source.ID, s.authorName(ctx, source.AuthorID, cb.From)),
		HTML:   true,
	}
	// the preview meme shows the source in use
	if cb.Message.Document != nil && cb.Message.Document.FileID != "" {
		out.FileID = cb.Message.Document.FileID
	} else if file, err := s.Library.SourceFile(source.ID); err == nil {
		out.FilePath = file
	}
	if _, err := s.Chat.SendPhoto(ctx, out); err != nil {
		return fail(wc, "Failed to notify creator", err)
	}
	wc.Sources = []models.Source{source}
	wc.Log.Info("Source awaiting approval", "source_id", source.ID)
	return workflow.None
}

func (s *Steps) deleteReviewTemplate(ctx context.Context, wc *workflow.Context) workflow.Action {
	cb, template, err := reviewButton(ctx, s, wc, s.Store.Templates(), templateAsset)
	if err != nil {
		return s.refuse(ctx, wc, cb, err)
	}
	if err := s.Store.Templates().Remove(ctx, template.ID); err != nil {
		return fail(wc, "Failed to delete template", err)
	}
	if err := s.Library.RemoveTemplate(template.ID); err != nil {
		wc.Log.Warn("Failed to remove template files", "template_id", template.ID, "error", err)
	}
	s.answer(ctx, wc, cb, "Template deletado.")
	if err := s.Chat.DeleteMessage(ctx, cb.Message.ChatID, cb.Message.ID); err != nil {
		wc.Log.Warn("Failed to delete preview", "error", err)
	}
	wc.Log.Info("Template deleted by author", "template_id", template.ID)
	return workflow.None
}

func (s *Steps) deleteReviewSource(ctx context.Context, wc *workflow.Context) workflow.Action {
	cb, source, err := reviewButton(ctx, s, wc, s.Store.Sources(), sourceAsset)
	if err != nil {
		return s.refuse(ctx, wc, cb, err)
	}
	if err := s.Store.Sources().Remove(ctx, source.ID); err != nil {
		return fail(wc, "Failed to delete source", err)
	}
	if err := s.Library.RemoveSource(source.ID); err != nil {
		wc.Log.Warn("Failed to remove source files", "source_id", source.ID, "error", err)
	}
	s.answer(ctx, wc, cb, "Source deletado.")
	if err := s.Chat.DeleteMessage(ctx, cb.Message.ChatID, cb.Message.ID); err != nil {
		wc.Log.Warn("Failed to delete preview", "error", err)
	}
	wc.Log.Info("Source deleted by author", "source_id", source.ID)
	return workflow.None
}
