// Package chat defines the narrow contract the bot uses to talk to a chat
// platform, independent of any specific client library.
package chat

import (
	"context"
	"time"

	"github.com/lucasaxm/RegataSimulator/internal/models"
)

// Document is a file attached to a message
type Document struct {
	FileID   string
	FileName string
	MimeType string
}

// Message is an inbound or delivered chat message
type Message struct {
	ID          int
	ChatID      int64
	ThreadID    int
	PrivateChat bool
	From        *models.Author
	Text        string
	Caption     string
	Document    *Document
	Date        time.Time
}

// Ref converts the message into the reference persisted alongside entities
func (m *Message) Ref() *models.MessageRef {
	if m == nil {
		return nil
	}
	ref := &models.MessageRef{ChatID: m.ChatID, MessageID: m.ID, ThreadID: m.ThreadID}
	if m.Document != nil {
		ref.FileID = m.Document.FileID
	}
	if m.From != nil {
		ref.SenderID = m.From.ID
	}
	return ref
}

// Callback is an inline button press
type Callback struct {
	ID      string
	From    *models.Author
	Data    string
	Message *Message
}

// Trigger is any external event that can start a workflow run. Timer and
// admin triggers carry neither a message nor a callback.
type Trigger struct {
	UpdateID int
	Message  *Message
	Callback *Callback
	Source   string
}

// Kind names the trigger for logging
func (t *Trigger) Kind() string {
	switch {
	case t == nil:
		return "none"
	case t.Message != nil:
		return "message"
	case t.Callback != nil:
		return "callback"
	case t.Source != "":
		return t.Source
	}
	return "empty"
}

// Button is an inline keyboard button carrying callback data
type Button struct {
	Text string
	Data string
}

// Outbound is a message draft. Photos and documents are sent from FilePath
// when set, otherwise by re-using an already uploaded FileID.
type Outbound struct {
	ChatID   int64
	ReplyTo  int
	ThreadID int
	Text     string
	HTML     bool
	FilePath string
	FileID   string
	Buttons  [][]Button
}

// Client is everything the workflow steps need from the chat platform
type Client interface {
	SendText(ctx context.Context, msg Outbound) (*Message, error)
	SendPhoto(ctx context.Context, msg Outbound) (*Message, error)
	SendDocument(ctx context.Context, msg Outbound) (*Message, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	ClearKeyboard(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	Download(ctx context.Context, fileID, dest string) error
}
