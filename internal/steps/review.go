package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/lucasaxm/RegataSimulator/internal/models"
	"github.com/lucasaxm/RegataSimulator/internal/workflow"
)

var errReviewed = errors.New("already reviewed")

// decide moves a pending asset to its final status exactly once
func decide(a *models.Asset, approved bool) error {
	if a.Status != models.StatusReview {
		return fmt.Errorf("%w: %s is %s", errReviewed, a.ID, a.Status)
	}
	if approved {
		a.Status = models.StatusApproved
	} else {
		a.Status = models.StatusRejected
	}
	return nil
}

func (s *Steps) loadAuthor(ctx context.Context, wc *workflow.Context, id int64) {
	if id == 0 {
		return
	}
	author, err := s.Store.Authors().FindByID(ctx, models.Author{ID: id}.Key())
	if err != nil {
		wc.Log.Warn("Author not found", "author_id", id, "error", err)
		author = models.Author{ID: id}
	}
	wc.Author = &author
}

func (s *Steps) reviewTemplate(ctx context.Context, wc *workflow.Context) workflow.Action {
	if wc.Review == nil {
		return fail(wc, "Cannot review template", fmt.Errorf("%w: review decision", errMissing))
	}
	r := wc.Review
	template, err := s.Store.Templates().Modify(ctx, r.ID, func(t *models.Template) error {
		return decide(&t.Asset, r.Approved)
	})
	if err != nil {
		return fail(wc, "Failed to review template", err)
	}
	wc.Template = &template
	s.loadAuthor(ctx, wc, template.AuthorID)
	wc.Log.Info("Template reviewed", "template_id", template.ID, "status", template.Status)

	if r.Approved {
		return workflow.SendTemplateApprovedMessage
	}
	if err := s.Store.Templates().Remove(ctx, template.ID); err != nil {
		return fail(wc, "Failed to remove rejected template", err)
	}
	if err := s.Library.RemoveTemplate(template.ID); err != nil {
		wc.Log.Warn("Failed to remove template files", "template_id", template.ID, "error", err)
	}
	return workflow.SendTemplateRejectedMessage
}

func (s *Steps) reviewSource(ctx context.Context, wc *workflow.Context) workflow.Action {
	if wc.Review == nil {
		return fail(wc, "Cannot review source", fmt.Errorf("%w: review decision", errMissing))
	}
	r := wc.Review
	source, err := s.Store.Sources().Modify(ctx, r.ID, func(src *models.Source) error {
		return decide(&src.Asset, r.Approved)
	})
	if err != nil {
		return fail(wc, "Failed to review source", err)
	}
	wc.Sources = []models.Source{source}
	s.loadAuthor(ctx, wc, source.AuthorID)
	wc.Log.Info("Source reviewed", "source_id", source.ID, "status", source.Status)

	if r.Approved {
		return workflow.SendSourceApprovedMessage
	}
	if err := s.Store.Sources().Remove(ctx, source.ID); err != nil {
		return fail(wc, "Failed to remove rejected source", err)
	}
	if err := s.Library.RemoveSource(source.ID); err != nil {
		wc.Log.Warn("Failed to remove source files", "source_id", source.ID, "error", err)
	}
	return workflow.SendSourceRejectedMessage
}

// verdict drafts the message telling the submitter about the review. It
// answers the submission when known, otherwise it goes to the author's
// private chat.
func verdict(wc *workflow.Context, a models.Asset, text string) workflow.Action {
	out := chat.Outbound{Text: text}
	switch {
	case a.Message != nil:
		out.ChatID = a.Message.ChatID
		out.ReplyTo = a.Message.MessageID
		out.ThreadID = a.Message.ThreadID
	case a.AuthorID != 0:
		out.ChatID = a.AuthorID
	default:
		return fail(wc, "Nowhere to send review result", fmt.Errorf("%w: submission message", errMissing))
	}
	wc.Outbound = &out
	return workflow.SendMessage
}

func rejection(wc *workflow.Context) string {
	if wc.Review == nil {
		return ""
	}
	return wc.Review.Reason
}

func (s *Steps) sendTemplateApprovedMessage(_ context.Context, wc *workflow.Context) workflow.Action {
	if wc.Template == nil {
		return fail(wc, "Cannot announce approval", fmt.Errorf("%w: template", errMissing))
	}
	return verdict(wc, wc.Template.Asset, "✅ Template aprovado!")
}

func (s *Steps) sendTemplateRejectedMessage(_ context.Context, wc *workflow.Context) workflow.Action {
	if wc.Template == nil {
		return fail(wc, "Cannot announce rejection", fmt.Errorf("%w: template", errMissing))
	}
	return verdict(wc, wc.Template.Asset, "❌ Template recusado.\nMotivo: "+rejection(wc))
}

func (s *Steps) sendSourceApprovedMessage(_ context.Context, wc *workflow.Context) workflow.Action {
	if len(wc.Sources) == 0 {
		return fail(wc, "Cannot announce approval", fmt.Errorf("%w: source", errMissing))
	}
	return verdict(wc, wc.Sources[0].Asset, "✅ Source aprovado!")
}

func (s *Steps) sendSourceRejectedMessage(_ context.Context, wc *workflow.Context) workflow.Action {
	if len(wc.Sources) == 0 {
		return fail(wc, "Cannot announce rejection", fmt.Errorf("%w: source", errMissing))
	}
	return verdict(wc, wc.Sources[0].Asset, "❌ Source recusado.\nMotivo: "+rejection(wc))
}
