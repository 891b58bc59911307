// Package chat manages one open conversation: paged history, live
// message fan-in, sends with temp records, and typing indicators.
package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kelvinkbk/xavlink-sub001/internal/logger"
	"github.com/kelvinkbk/xavlink-sub001/internal/models"
	"github.com/kelvinkbk/xavlink-sub001/internal/pager"
	"github.com/kelvinkbk/xavlink-sub001/internal/realtime"
)

// API is the REST slice a thread needs.
type API interface {
	Messages(ctx context.Context, chatID, cursor string, limit int) (*models.MessagePage, error)
	SendMessage(ctx context.Context, chatID, text, attachmentURL, clientID string) (*models.Message, error)
}

// Channel is the realtime slice a thread needs; satisfied by
// *realtime.Bridge and by test fakes.
type Channel interface {
	On(event string, handler realtime.Handler) func()
	OnReconnect(handler func()) func()
	JoinRoom(roomID string)
	SendMessage(payload realtime.SendMessagePayload, ack func(realtime.AckResult))
	SendTyping(chatID, userID, userName string)
	StopTyping(chatID, userID, userName string)
}

// typingExpiry clears a typing indicator that never got its stop event.
const typingExpiry = 5 * time.Second

const pageSize = 30

// Thread is the live state of one conversation. Every logical send
// produces exactly one visible message, whichever of the ack and the
// realtime echo arrives first: both paths key on the message's ClientID.
type Thread struct {
	chatID   string
	selfID   string
	selfName string
	api      API
	channel  Channel
	pager    *pager.Pager[models.Message]
	log      *zap.Logger

	mu       sync.Mutex
	closed   bool
	unsubs   []func()
	onChange func()
	typing   map[string]*typingState // userID -> state
}

type typingState struct {
	name  string
	timer *time.Timer
}

// Open joins the chat room and attaches the thread's subscriptions.
// channel may be nil; sends then go over REST only.
func Open(chatID, selfID, selfName string, api API, channel Channel) *Thread {
	t := &Thread{
		chatID:   chatID,
		selfID:   selfID,
		selfName: selfName,
		api:      api,
		channel:  channel,
		log:      logger.New("chat").With(zap.String("chat_id", chatID)),
		typing:   make(map[string]*typingState),
	}
	t.pager = pager.New("messages", pageSize, func(ctx context.Context, cursor string, limit int) (pager.Page[models.Message], error) {
		page, err := api.Messages(ctx, chatID, cursor, limit)
		if err != nil {
			return pager.Page[models.Message]{}, err
		}
		return pager.Page[models.Message]{Items: page.Messages, NextCursor: page.NextCursor, HasMore: page.HasMore}, nil
	})

	if channel != nil {
		channel.JoinRoom(chatID)
		t.unsubs = append(t.unsubs,
			channel.On(realtime.EventReceiveMessage, t.handleIncoming),
			channel.On(realtime.EventUserTyping, t.handleTyping(true)),
			channel.On(realtime.EventUserStoppedTyping, t.handleTyping(false)),
			channel.OnReconnect(func() {
				if err := t.Refresh(context.Background()); err != nil {
					t.log.Warn("history refresh after reconnect failed", zap.Error(err))
				}
			}),
		)
	}
	return t
}

// OnChange registers the render callback.
func (t *Thread) OnChange(fn func()) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

func (t *Thread) notify() {
	t.mu.Lock()
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Load fetches the next page of history.
func (t *Thread) Load(ctx context.Context) error {
	loaded, err := t.pager.Load(ctx)
	if loaded {
		t.notify()
	}
	return err
}

// Refresh reloads history from the newest message.
func (t *Thread) Refresh(ctx context.Context) error {
	if err := t.pager.Refresh(ctx); err != nil {
		return err
	}
	t.notify()
	return nil
}

// Messages returns the loaded history plus any pending sends.
func (t *Thread) Messages() []models.Message {
	return t.pager.Items()
}

// Send appends a pending temp record immediately, then delivers over the
// realtime channel with an ack, falling back to REST when the channel is
// missing or the ack fails. The temp record is swapped for the confirmed
// one in place; a failed send removes it.
func (t *Thread) Send(ctx context.Context, text, attachmentURL string) error {
	clientID := uuid.NewString()
	temp := models.Message{
		ID:            clientID,
		ChatID:        t.chatID,
		SenderID:      t.selfID,
		Text:          text,
		AttachmentURL: attachmentURL,
		CreatedAt:     time.Now(),
		Pending:       true,
		ClientID:      clientID,
	}
	t.pager.Mutate(func(items []models.Message) []models.Message {
		return append(items, temp)
	})
	t.notify()

	if t.channel == nil {
		return t.sendREST(ctx, temp)
	}

	done := make(chan realtime.AckResult, 1)
	t.channel.SendMessage(realtime.SendMessagePayload{
		ChatID:        t.chatID,
		Text:          text,
		AttachmentURL: attachmentURL,
		ClientID:      clientID,
	}, func(result realtime.AckResult) {
		done <- result
	})

	select {
	case <-ctx.Done():
		t.removeByClientID(clientID)
		t.notify()
		return ctx.Err()
	case result := <-done:
		if result.Success && result.Message != nil {
			t.confirm(clientID, *result.Message)
			t.notify()
			return nil
		}
		// Socket path failed; same message, same client id, over REST.
		return t.sendREST(ctx, temp)
	}
}

func (t *Thread) sendREST(ctx context.Context, temp models.Message) error {
	msg, err := t.api.SendMessage(ctx, t.chatID, temp.Text, temp.AttachmentURL, temp.ClientID)
	if err != nil {
		t.removeByClientID(temp.ClientID)
		t.notify()
		return err
	}
	t.confirm(temp.ClientID, *msg)
	t.notify()
	return nil
}

// confirm swaps the temp record for the server's, carrying the client id
// forward so a later realtime echo of the same send is recognized.
func (t *Thread) confirm(clientID string, confirmed models.Message) {
	confirmed.Pending = false
	if confirmed.ClientID == "" {
		confirmed.ClientID = clientID
	}
	t.pager.Mutate(func(items []models.Message) []models.Message {
		for i := range items {
			if items[i].ClientID == clientID {
				items[i] = confirmed
				return items
			}
		}
		// Echo already replaced it; nothing to swap.
		return items
	})
}

func (t *Thread) removeByClientID(clientID string) {
	t.pager.Mutate(func(items []models.Message) []models.Message {
		out := items[:0]
		for _, m := range items {
			if m.ClientID != clientID {
				out = append(out, m)
			}
		}
		return out
	})
}

// handleIncoming folds a pushed message into the thread. Echoes of the
// user's own sends are matched by ClientID and replace the temp or
// confirmed record instead of appending a duplicate.
func (t *Thread) handleIncoming(data json.RawMessage) {
	if t.isClosed() {
		return
	}
	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.log.Debug("discarding malformed message payload", zap.Error(err))
		return
	}
	if msg.ChatID != t.chatID {
		return
	}

	t.pager.Mutate(func(items []models.Message) []models.Message {
		if msg.ClientID != "" {
			for i := range items {
				if items[i].ClientID == msg.ClientID {
					msg.Pending = false
					items[i] = msg
					return items
				}
			}
		}
		for i := range items {
			if items[i].ID == msg.ID {
				return items
			}
		}
		return append(items, msg)
	})
	t.notify()
}

// handleTyping maintains the typing indicator set. Indicators expire on
// their own after typingExpiry in case the stop event never arrives.
func (t *Thread) handleTyping(started bool) realtime.Handler {
	return func(data json.RawMessage) {
		if t.isClosed() {
			return
		}
		var ev models.TypingEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		if ev.ChatID != t.chatID || ev.UserID == t.selfID {
			return
		}

		t.mu.Lock()
		if prev, ok := t.typing[ev.UserID]; ok {
			prev.timer.Stop()
			delete(t.typing, ev.UserID)
		}
		if started {
			userID := ev.UserID
			state := &typingState{name: ev.UserName}
			state.timer = time.AfterFunc(typingExpiry, func() {
				t.mu.Lock()
				if t.typing[userID] == state {
					delete(t.typing, userID)
				}
				t.mu.Unlock()
				t.notify()
			})
			t.typing[ev.UserID] = state
		}
		t.mu.Unlock()
		t.notify()
	}
}

// TypingUsers lists the names of users currently typing here.
func (t *Thread) TypingUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.typing))
	for _, state := range t.typing {
		names = append(names, state.name)
	}
	return names
}

// StartTyping announces that the user is composing.
func (t *Thread) StartTyping() {
	if t.channel != nil {
		t.channel.SendTyping(t.chatID, t.selfID, t.selfName)
	}
}

// StopTyping clears the announcement.
func (t *Thread) StopTyping() {
	if t.channel != nil {
		t.channel.StopTyping(t.chatID, t.selfID, t.selfName)
	}
}

func (t *Thread) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close detaches subscriptions and stops typing timers. Idempotent.
func (t *Thread) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	unsubs := t.unsubs
	t.unsubs = nil
	for _, state := range t.typing {
		state.timer.Stop()
	}
	t.typing = make(map[string]*typingState)
	t.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}
