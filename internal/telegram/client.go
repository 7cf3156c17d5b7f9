// Package telegram adapts the Telegram Bot API to the chat contract.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/lucasaxm/RegataSimulator/internal/images"
	"github.com/lucasaxm/RegataSimulator/internal/models"
)

// Client implements chat.Client over the Bot API
type Client struct {
	bot          *tgbotapi.BotAPI
	fetcher      *images.Fetcher
	fileEndpoint string
}

// Option customizes a Client
type Option func(*options)

type options struct {
	apiEndpoint  string
	fileEndpoint string
	fetcher      *images.Fetcher
}

// WithEndpoints points the client at a different Bot API server. Both
// values are format strings taking the token and the method or file path.
func WithEndpoints(api, file string) Option {
	return func(o *options) {
		o.apiEndpoint = api
		o.fileEndpoint = file
	}
}

func WithFetcher(f *images.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

func New(token string, opts ...Option) (*Client, error) {
	o := options{
		apiEndpoint:  tgbotapi.APIEndpoint,
		fileEndpoint: tgbotapi.FileEndpoint,
		fetcher:      images.NewFetcher(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	_ = tgbotapi.SetLogger(slogLogger{})
	bot, err := tgbotapi.NewBotAPIWithClient(token, o.apiEndpoint, o.fetcher.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	slog.Info("Authorized on Telegram", "username", bot.Self.UserName)
	return &Client{bot: bot, fetcher: o.fetcher, fileEndpoint: o.fileEndpoint}, nil
}

// Username is the bot's own @name without the @
func (c *Client) Username() string {
	return c.bot.Self.UserName
}

func keyboard(rows [][]chat.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	var markup [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		markup = append(markup, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	m := tgbotapi.NewInlineKeyboardMarkup(markup...)
	return &m
}

func parseMode(msg chat.Outbound) string {
	if msg.HTML {
		return tgbotapi.ModeHTML
	}
	return ""
}

func file(msg chat.Outbound) (tgbotapi.RequestFileData, error) {
	switch {
	case msg.FilePath != "":
		return tgbotapi.FilePath(msg.FilePath), nil
	case msg.FileID != "":
		return tgbotapi.FileID(msg.FileID), nil
	}
	return nil, fmt.Errorf("outbound message to %d has no file", msg.ChatID)
}

func (c *Client) send(ctx context.Context, cfg tgbotapi.Chattable) (*chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sent, err := c.bot.Send(cfg)
	if err != nil {
		return nil, err
	}
	return convertSent(&sent), nil
}

func (c *Client) SendText(ctx context.Context, msg chat.Outbound) (*chat.Message, error) {
	cfg := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	cfg.ParseMode = parseMode(msg)
	cfg.ReplyToMessageID = msg.ReplyTo
	cfg.DisableWebPagePreview = true
	if kb := keyboard(msg.Buttons); kb != nil {
		cfg.ReplyMarkup = kb
	}
	sent, err := c.send(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return sent, nil
}

func (c *Client) SendPhoto(ctx context.Context, msg chat.Outbound) (*chat.Message, error) {
	f, err := file(msg)
	if err != nil {
		return nil, err
	}
	cfg := tgbotapi.NewPhoto(msg.ChatID, f)
	cfg.Caption = msg.Text
	cfg.ParseMode = parseMode(msg)
	cfg.ReplyToMessageID = msg.ReplyTo
	if kb := keyboard(msg.Buttons); kb != nil {
		cfg.ReplyMarkup = kb
	}
	sent, err := c.send(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to send photo: %w", err)
	}
	return sent, nil
}

func (c *Client) SendDocument(ctx context.Context, msg chat.Outbound) (*chat.Message, error) {
	f, err := file(msg)
	if err != nil {
		return nil, err
	}
	cfg := tgbotapi.NewDocument(msg.ChatID, f)
	cfg.Caption = msg.Text
	cfg.ParseMode = parseMode(msg)
	cfg.ReplyToMessageID = msg.ReplyTo
	if kb := keyboard(msg.Buttons); kb != nil {
		cfg.ReplyMarkup = kb
	}
	sent, err := c.send(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to send document: %w", err)
	}
	return sent, nil
}

func (c *Client) request(ctx context.Context, cfg tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.bot.Request(cfg)
	return err
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := c.request(ctx, tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (c *Client) ClearKeyboard(ctx context.Context, chatID int64, messageID int) error {
	empty := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	if err := c.request(ctx, tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, empty)); err != nil {
		return fmt.Errorf("failed to clear keyboard: %w", err)
	}
	return nil
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := c.request(ctx, tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

// Download resolves fileID through getFile and fetches it over HTTP
func (c *Client) Download(ctx context.Context, fileID, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return fmt.Errorf("failed to resolve file: %w", err)
	}
	url := fmt.Sprintf(c.fileEndpoint, c.bot.Token, f.FilePath)
	return c.fetcher.Download(ctx, url, dest)
}

var _ chat.Client = (*Client)(nil)

func convertUser(u *tgbotapi.User) *models.Author {
	if u == nil {
		return nil
	}
	return &models.Author{ID: u.ID, Username: u.UserName, FirstName: u.FirstName, LastName: u.LastName}
}

// convertMessage maps an inbound message. Only real documents populate
// Document; compressed photos are not accepted as submissions.
func convertMessage(m *tgbotapi.Message) *chat.Message {
	if m == nil {
		return nil
	}
	msg := &chat.Message{
		ID:      m.MessageID,
		From:    convertUser(m.From),
		Text:    m.Text,
		Caption: m.Caption,
		Date:    time.Unix(int64(m.Date), 0),
	}
	if m.Chat != nil {
		msg.ChatID = m.Chat.ID
		msg.PrivateChat = m.Chat.IsPrivate()
	}
	if m.Document != nil {
		msg.Document = &chat.Document{FileID: m.Document.FileID, FileName: m.Document.FileName, MimeType: m.Document.MimeType}
	}
	return msg
}

// convertSent is for messages the bot sent itself, including the ones
// buttons hang off. The largest photo size is exposed as the document so the
// file id can be re-sent later.
func convertSent(m *tgbotapi.Message) *chat.Message {
	msg := convertMessage(m)
	if msg != nil && msg.Document == nil && len(m.Photo) > 0 {
		largest := m.Photo[len(m.Photo)-1]
		msg.Document = &chat.Document{FileID: largest.FileID, MimeType: "image/jpeg"}
	}
	return msg
}

// ConvertUpdate turns an update into a trigger; ok is false for update kinds
// the bot ignores
func ConvertUpdate(u tgbotapi.Update) (*chat.Trigger, bool) {
	switch {
	case u.Message != nil:
		return &chat.Trigger{UpdateID: u.UpdateID, Message: convertMessage(u.Message)}, true
	case u.ChannelPost != nil:
		return &chat.Trigger{UpdateID: u.UpdateID, Message: convertMessage(u.ChannelPost)}, true
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		return &chat.Trigger{UpdateID: u.UpdateID, Callback: &chat.Callback{
			ID:      q.ID,
			From:    convertUser(q.From),
			Data:    q.Data,
			Message: convertSent(q.Message),
		}}, true
	}
	return nil, false
}

// slogLogger routes the library's own logging through slog
type slogLogger struct{}

func (slogLogger) Println(v ...any) {
	slog.Debug(strings.TrimSpace(fmt.Sprintln(v...)), "component", "telegram")
}

func (slogLogger) Printf(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "telegram")
}
