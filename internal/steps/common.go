package steps

import (
	"context"
	"fmt"

	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/lucasaxm/RegataSimulator/internal/workflow"
)

func (s *Steps) buildPongMessage(_ context.Context, wc *workflow.Context) workflow.Action {
	msg := wc.Message()
	if msg == nil {
		return fail(wc, "Cannot answer ping", fmt.Errorf("%w: message", errMissing))
	}
	elapsed := int(s.now().Sub(msg.Date).Seconds())
	wc.Outbound = &chat.Outbound{
		ChatID:   msg.ChatID,
		ReplyTo:  msg.ID,
		ThreadID: msg.ThreadID,
		Text:     fmt.Sprintf("pong! (%ds)", elapsed),
	}
	return workflow.SendMessage
}

func (s *Steps) sendMessage(ctx context.Context, wc *workflow.Context) workflow.Action {
	if wc.Outbound == nil {
		return fail(wc, "Nothing to send", fmt.Errorf("%w: outbound", errMissing))
	}
	if _, err := s.Chat.SendText(ctx, *wc.Outbound); err != nil {
		return fail(wc, "Failed to send message", err)
	}
	return workflow.None
}

func (s *Steps) sendPhoto(ctx context.Context, wc *workflow.Context) workflow.Action {
	if wc.Outbound == nil {
		return fail(wc, "Nothing to send", fmt.Errorf("%w: outbound", errMissing))
	}
	if _, err := s.Chat.SendPhoto(ctx, *wc.Outbound); err != nil {
		return fail(wc, "Failed to send photo", err)
	}
	return workflow.None
}

// reply drafts a text answering msg in its own chat and thread
func reply(msg *chat.Message, text string) chat.Outbound {
	return chat.Outbound{ChatID: msg.ChatID, ReplyTo: msg.ID, ThreadID: msg.ThreadID, Text: text}
}
