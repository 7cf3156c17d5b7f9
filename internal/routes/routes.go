// Package routes classifies incoming chat triggers into the workflow action
// that should handle them.
package routes

import (
	"strings"

	"github.com/google/uuid"
	"github.com/lucasaxm/RegataSimulator/internal/areas"
	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/lucasaxm/RegataSimulator/internal/workflow"
)

// Route is a pure predicate over a trigger yielding at most one action
type Route interface {
	Match(t *chat.Trigger) (workflow.Action, bool)
}

// RouteFunc adapts a function to Route
type RouteFunc func(t *chat.Trigger) (workflow.Action, bool)

func (f RouteFunc) Match(t *chat.Trigger) (workflow.Action, bool) { return f(t) }

// Options carries what the matchers need to know about the deployment
type Options struct {
	CreatorID   int64
	BotUsername string
}

// Default returns every route the bot answers to
func Default(opts Options) []Route {
	return []Route{
		Command{Name: "ping", Action: workflow.BuildPongMessage, Bot: opts.BotUsername},
		Command{Name: "meme", Action: workflow.GetRandomTemplate, Bot: opts.BotUsername, CreatorID: opts.CreatorID, PrivateOnly: true},
		Command{Name: "report", Action: workflow.SendReport, Bot: opts.BotUsername, CreatorID: opts.CreatorID, PrivateOnly: true},
		Command{Name: "backup", Action: workflow.BackupDatabase, Bot: opts.BotUsername, CreatorID: opts.CreatorID, PrivateOnly: true},
		TemplateSubmission{},
		SourceSubmission{},
		ReviewCallback{Kind: "template", Confirm: workflow.ConfirmReviewTemplate, Cancel: workflow.DeleteReviewTemplate},
		ReviewCallback{Kind: "source", Confirm: workflow.ConfirmReviewSource, Cancel: workflow.DeleteReviewSource},
	}
}

// Command matches a bare "/name" or "/name@bot"; commands never take
// arguments. A non-zero CreatorID restricts the command to that user.
type Command struct {
	Name        string
	Action      workflow.Action
	Bot         string
	CreatorID   int64
	PrivateOnly bool
}

func (c Command) Match(t *chat.Trigger) (workflow.Action, bool) {
	if t == nil || t.Message == nil {
		return workflow.None, false
	}
	msg := t.Message
	if !IsCommand(msg.Text, c.Name, c.Bot) {
		return workflow.None, false
	}
	if c.CreatorID != 0 && (msg.From == nil || msg.From.ID != c.CreatorID) {
		return workflow.None, false
	}
	if c.PrivateOnly && !msg.PrivateChat {
		return workflow.None, false
	}
	return c.Action, true
}

// IsCommand reports whether text is exactly /name, optionally addressed to
// bot. Surrounding whitespace is ignored, trailing arguments are not.
func IsCommand(text, name, bot string) bool {
	rest, ok := strings.CutPrefix(strings.TrimSpace(text), "/"+name)
	if !ok {
		return false
	}
	if addressed, ok := strings.CutPrefix(rest, "@"); ok {
		if bot == "" || len(addressed) < len(bot) || !strings.EqualFold(addressed[:len(bot)], bot) {
			return false
		}
		rest = addressed[len(bot):]
	}
	return rest == ""
}

// privateDocument is the message of a trigger carrying an image document
// sent to the bot in a private chat
func privateDocument(t *chat.Trigger) (*chat.Message, bool) {
	if t == nil || t.Message == nil || !t.Message.PrivateChat || !IsImageDocument(t.Message.Document) {
		return nil, false
	}
	return t.Message, true
}

// IsImageDocument reports whether the document is a JPEG or PNG file
func IsImageDocument(doc *chat.Document) bool {
	if doc == nil {
		return false
	}
	switch strings.ToLower(doc.MimeType) {
	case "image/jpeg", "image/jpg", "image/png":
		return true
	}
	return false
}

// TemplateSubmission matches an image document whose caption is an area record
type TemplateSubmission struct{}

func (TemplateSubmission) Match(t *chat.Trigger) (workflow.Action, bool) {
	msg, ok := privateDocument(t)
	if !ok {
		return workflow.None, false
	}
	if _, err := areas.ParseString(msg.Caption); err != nil {
		return workflow.None, false
	}
	return workflow.CreateTemplate, true
}

// SourcePrefix starts the caption of a source submission
const SourcePrefix = "source:"

// SourceSubmission matches an image document captioned "source: description"
type SourceSubmission struct{}

func (SourceSubmission) Match(t *chat.Trigger) (workflow.Action, bool) {
	msg, ok := privateDocument(t)
	if !ok {
		return workflow.None, false
	}
	caption := strings.TrimSpace(msg.Caption)
	if len(caption) < len(SourcePrefix) || !strings.EqualFold(caption[:len(SourcePrefix)], SourcePrefix) {
		return workflow.None, false
	}
	return workflow.CreateSource, true
}

// ReviewCallback matches "<uuid>:<kind>:confirm" and "<uuid>:<kind>:cancel"
type ReviewCallback struct {
	Kind    string
	Confirm workflow.Action
	Cancel  workflow.Action
}

func (r ReviewCallback) Match(t *chat.Trigger) (workflow.Action, bool) {
	if t == nil || t.Callback == nil {
		return workflow.None, false
	}
	_, kind, verb, ok := ParseCallbackData(t.Callback.Data)
	if !ok || kind != r.Kind {
		return workflow.None, false
	}
	switch verb {
	case "confirm":
		return r.Confirm, true
	case "cancel":
		return r.Cancel, true
	}
	return workflow.None, false
}

// CallbackData builds the payload of a review button
func CallbackData(id, kind, verb string) string {
	return id + ":" + kind + ":" + verb
}

// ParseCallbackData splits a review button payload. Anything malformed,
// including a non-uuid id, reports ok=false.
func ParseCallbackData(data string) (id, kind, verb string, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return "", "", "", false
	}
	if _, err := uuid.Parse(parts[0]); err != nil {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
