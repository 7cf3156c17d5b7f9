package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI answers Bot API methods and records the form of every request
type fakeAPI struct {
	mu       sync.Mutex
	requests map[string]map[string]string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/file/") {
			w.Write([]byte("document bytes"))
			return
		}
		assert.NoError(t, r.ParseForm())
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		f.mu.Lock()
		f.requests[method] = form
		f.mu.Unlock()

		var result string
		switch method {
		case "getMe":
			result = `{"id":1,"is_bot":true,"first_name":"Regata","username":"regata_bot"}`
		case "sendMessage":
			result = `{"message_id":7,"date":1700000000,"chat":{"id":5,"type":"private"},"text":"hi"}`
		case "sendPhoto":
			result = `{"message_id":8,"date":1700000000,"chat":{"id":5,"type":"private"},"photo":[{"file_id":"small"},{"file_id":"large"}]}`
		case "getFile":
			result = `{"file_id":"doc","file_path":"documents/file_1.jpg"}`
		default:
			result = `true`
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":` + result + `}`))
	})
}

func (f *fakeAPI) form(method string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[method]
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{requests: map[string]map[string]string{}}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	client, err := New("TOKEN", WithEndpoints(srv.URL+"/bot%s/%s", srv.URL+"/file/bot%s/%s"))
	require.NoError(t, err)
	return client, api
}

func TestClientSendText(t *testing.T) {
	client, api := newTestClient(t)
	assert.Equal(t, "regata_bot", client.Username())

	sent, err := client.SendText(context.Background(), chat.Outbound{
		ChatID:  5,
		ReplyTo: 3,
		Text:    "<b>hi</b>",
		HTML:    true,
		Buttons: [][]chat.Button{{{Text: "Confirmar", Data: "id:template:confirm"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, sent.ID)
	assert.Equal(t, int64(5), sent.ChatID)
	assert.True(t, sent.PrivateChat)

	form := api.form("sendMessage")
	assert.Equal(t, "5", form["chat_id"])
	assert.Equal(t, "3", form["reply_to_message_id"])
	assert.Equal(t, "HTML", form["parse_mode"])

	var markup tgbotapi.InlineKeyboardMarkup
	require.NoError(t, json.Unmarshal([]byte(form["reply_markup"]), &markup))
	require.Len(t, markup.InlineKeyboard, 1)
	assert.Equal(t, "id:template:confirm", *markup.InlineKeyboard[0][0].CallbackData)
}

func TestClientSendPhotoByFileID(t *testing.T) {
	client, api := newTestClient(t)

	sent, err := client.SendPhoto(context.Background(), chat.Outbound{ChatID: 5, FileID: "abc", Text: "caption"})
	require.NoError(t, err)
	require.NotNil(t, sent.Document)
	assert.Equal(t, "large", sent.Document.FileID)

	form := api.form("sendPhoto")
	assert.Equal(t, "abc", form["photo"])
	assert.Equal(t, "caption", form["caption"])

	_, err = client.SendDocument(context.Background(), chat.Outbound{ChatID: 5})
	assert.Error(t, err, "a document needs a file")
}

func TestClientRequests(t *testing.T) {
	client, api := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.DeleteMessage(ctx, 5, 9))
	assert.Equal(t, "9", api.form("deleteMessage")["message_id"])

	require.NoError(t, client.ClearKeyboard(ctx, 5, 9))
	assert.Equal(t, "9", api.form("editMessageReplyMarkup")["message_id"])

	require.NoError(t, client.AnswerCallback(ctx, "cb1", "ok"))
	assert.Equal(t, "cb1", api.form("answerCallbackQuery")["callback_query_id"])

	dest := filepath.Join(t.TempDir(), "template.jpg")
	require.NoError(t, client.Download(ctx, "doc", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "document bytes", string(data))
}

func TestConvertUpdate(t *testing.T) {
	msg := tgbotapi.Update{UpdateID: 1, Message: &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: 42, UserName: "lucas"},
		Chat:      &tgbotapi.Chat{ID: 42, Type: "private"},
		Caption:   "source: regata",
		Document:  &tgbotapi.Document{FileID: "f1", FileName: "a.png", MimeType: "image/png"},
		Photo:     []tgbotapi.PhotoSize{{FileID: "p1"}},
	}}
	trigger, ok := ConvertUpdate(msg)
	require.True(t, ok)
	assert.Equal(t, "message", trigger.Kind())
	assert.Equal(t, "f1", trigger.Message.Document.FileID)
	assert.Equal(t, int64(42), trigger.Message.From.ID)
	assert.True(t, trigger.Message.PrivateChat)

	photoOnly := tgbotapi.Update{UpdateID: 2, Message: &tgbotapi.Message{
		MessageID: 11,
		Chat:      &tgbotapi.Chat{ID: -1, Type: "group"},
		Photo:     []tgbotapi.PhotoSize{{FileID: "p1"}},
	}}
	trigger, ok = ConvertUpdate(photoOnly)
	require.True(t, ok)
	assert.Nil(t, trigger.Message.Document, "compressed photos are not documents")
	assert.False(t, trigger.Message.PrivateChat)

	cb := tgbotapi.Update{UpdateID: 3, CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: 7},
		Data:    "x:source:cancel",
		Message: &tgbotapi.Message{MessageID: 12, Chat: &tgbotapi.Chat{ID: 7, Type: "private"}},
	}}
	trigger, ok = ConvertUpdate(cb)
	require.True(t, ok)
	assert.Equal(t, "callback", trigger.Kind())
	assert.Equal(t, 12, trigger.Callback.Message.ID)

	_, ok = ConvertUpdate(tgbotapi.Update{UpdateID: 4})
	assert.False(t, ok)
}

func TestConsumeBoundsConcurrency(t *testing.T) {
	updates := make(chan tgbotapi.Update)
	ctx, cancel := context.WithCancel(context.Background())

	var running, peak, handled atomic.Int32
	handle := func(_ context.Context, _ *chat.Trigger) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		handled.Add(1)
	}

	var stopped atomic.Bool
	done := make(chan error, 1)
	go func() { done <- Consume(ctx, updates, 2, handle, func() { stopped.Store(true) }) }()

	for i := range 6 {
		updates <- tgbotapi.Update{UpdateID: i, Message: &tgbotapi.Message{MessageID: i, Chat: &tgbotapi.Chat{ID: 1}}}
	}
	updates <- tgbotapi.Update{UpdateID: 99}
	cancel()

	require.NoError(t, <-done)
	assert.True(t, stopped.Load())
	assert.Equal(t, int32(6), handled.Load(), "in-flight handlers finish before Consume returns")
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
