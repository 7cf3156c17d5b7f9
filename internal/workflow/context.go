package workflow

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/lucasaxm/RegataSimulator/internal/models"
)

// PreviewKind identifies which kind of submission a preview meme is for
type PreviewKind string

const (
	PreviewTemplate PreviewKind = "template"
	PreviewSource   PreviewKind = "source"
)

// Preview marks a run that renders a submission for its author to confirm.
// Preview runs never touch weights or history.
type Preview struct {
	Kind          PreviewKind
	AssetID       string
	StatusMessage *chat.Message
}

// Review is an admin decision about a pending submission
type Review struct {
	ID       string
	Approved bool
	Reason   string
}

// Context is the state threaded through the steps of one workflow run.
// Every field is optional; steps check what they need.
type Context struct {
	RunID   string
	Log     *slog.Logger
	Trigger *chat.Trigger

	Template     *models.Template
	TemplateFile string
	Sources      []models.Source
	SourceFiles  []string
	// History is newest first; nil until a step loads it.
	History  []models.Meme
	MemeFile string

	Preview  *Preview
	Review   *Review
	Outbound *chat.Outbound
	ReplyTo  *chat.Message
	// Author is the submitter a review notification is addressed to
	Author *models.Author

	// Err is why the run stopped early; nil when every step it reached
	// did its job
	Err error
}

// Failed records the first error that stopped the run
func (c *Context) Failed(err error) {
	if c.Err == nil {
		c.Err = err
	}
}

// NewContext starts a fresh context for one trigger
func NewContext(trigger *chat.Trigger) *Context {
	runID := uuid.NewString()
	return &Context{
		RunID:   runID,
		Trigger: trigger,
		Log:     slog.With("run_id", runID, "trigger", trigger.Kind()),
	}
}

// Message is the inbound message of the trigger, if any
func (c *Context) Message() *chat.Message {
	if c.Trigger == nil {
		return nil
	}
	return c.Trigger.Message
}

// Callback is the inbound button press of the trigger, if any
func (c *Context) Callback() *chat.Callback {
	if c.Trigger == nil {
		return nil
	}
	return c.Trigger.Callback
}
