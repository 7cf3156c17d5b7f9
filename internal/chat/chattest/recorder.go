// Package chattest provides an in-memory chat.Client for tests.
package chattest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/lucasaxm/RegataSimulator/internal/chat"
)

// Call is one recorded client invocation
type Call struct {
	Method     string
	Msg        chat.Outbound
	ChatID     int64
	MessageID  int
	Text       string
	CallbackID string
}

// Recorder records every call. Files registered with AddFile are served by
// Download; methods listed in Fail return the associated error.
type Recorder struct {
	mu     sync.Mutex
	Calls  []Call
	Fail   map[string]error
	files  map[string][]byte
	nextID int
}

func New() *Recorder {
	return &Recorder{Fail: map[string]error{}, files: map[string][]byte{}, nextID: 1000}
}

// AddFile makes data downloadable under fileID
func (r *Recorder) AddFile(fileID string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[fileID] = data
}

// Methods returns the recorded method names in order
func (r *Recorder) Methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		names[i] = c.Method
	}
	return names
}

// Last returns the most recent call of method
func (r *Recorder) Last(method string) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.Calls) - 1; i >= 0; i-- {
		if r.Calls[i].Method == method {
			return r.Calls[i], true
		}
	}
	return Call{}, false
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, c)
	return r.Fail[c.Method]
}

func (r *Recorder) send(method string, msg chat.Outbound) (*chat.Message, error) {
	if msg.FilePath != "" {
		if _, err := os.Stat(msg.FilePath); err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
	}
	if err := r.record(Call{Method: method, Msg: msg, ChatID: msg.ChatID}); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.mu.Unlock()

	sent := &chat.Message{ID: id, ChatID: msg.ChatID, ThreadID: msg.ThreadID, Text: msg.Text, Date: time.Now()}
	if method != "SendText" {
		sent.Caption = msg.Text
		sent.Document = &chat.Document{FileID: fmt.Sprintf("file-%d", id)}
	}
	return sent, nil
}

func (r *Recorder) SendText(_ context.Context, msg chat.Outbound) (*chat.Message, error) {
	return r.send("SendText", msg)
}

func (r *Recorder) SendPhoto(_ context.Context, msg chat.Outbound) (*chat.Message, error) {
	return r.send("SendPhoto", msg)
}

func (r *Recorder) SendDocument(_ context.Context, msg chat.Outbound) (*chat.Message, error) {
	return r.send("SendDocument", msg)
}

func (r *Recorder) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	return r.record(Call{Method: "DeleteMessage", ChatID: chatID, MessageID: messageID})
}

func (r *Recorder) ClearKeyboard(_ context.Context, chatID int64, messageID int) error {
	return r.record(Call{Method: "ClearKeyboard", ChatID: chatID, MessageID: messageID})
}

func (r *Recorder) AnswerCallback(_ context.Context, callbackID, text string) error {
	return r.record(Call{Method: "AnswerCallback", Text: text, CallbackID: callbackID})
}

func (r *Recorder) Download(_ context.Context, fileID, dest string) error {
	if err := r.record(Call{Method: "Download", Text: fileID}); err != nil {
		return err
	}
	r.mu.Lock()
	data, ok := r.files[fileID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown file %q", fileID)
	}
	return os.WriteFile(dest, data, 0o644)
}

var _ chat.Client = (*Recorder)(nil)
