package telegram

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"golang.org/x/sync/errgroup"
)

// Handler processes one trigger
type Handler func(ctx context.Context, t *chat.Trigger)

// Poller long-polls for updates and hands them to a handler with bounded
// concurrency
type Poller struct {
	client      *Client
	timeout     int
	concurrency int
}

func NewPoller(client *Client, timeout, concurrency int) *Poller {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Poller{client: client, timeout: timeout, concurrency: concurrency}
}

// Run blocks until ctx is canceled and every in-flight handler returned
func (p *Poller) Run(ctx context.Context, handle Handler) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = p.timeout
	updates := p.client.bot.GetUpdatesChan(cfg)
	slog.Info("Polling Telegram updates", "timeout", p.timeout, "concurrency", p.concurrency)

	return Consume(ctx, updates, p.concurrency, handle, p.client.bot.StopReceivingUpdates)
}

// Consume drains updates until ctx is done or the channel closes, running at
// most limit handlers at a time. stop is called once when ctx ends.
func Consume(ctx context.Context, updates <-chan tgbotapi.Update, limit int, handle Handler, stop func()) error {
	var g errgroup.Group
	g.SetLimit(limit)

	defer func() {
		if err := g.Wait(); err != nil {
			slog.Error("Update handler failed", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if stop != nil {
				stop()
			}
			slog.Info("Stopped polling Telegram updates")
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			trigger, ok := ConvertUpdate(u)
			if !ok {
				slog.Debug("Ignoring update", "update_id", u.UpdateID)
				continue
			}
			g.Go(func() error {
				handle(ctx, trigger)
				return nil
			})
		}
	}
}
