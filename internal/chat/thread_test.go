package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kelvinkbk/xavlink-sub001/internal/models"
	"github.com/kelvinkbk/xavlink-sub001/internal/realtime"
)

type fakeAPI struct {
	mu       sync.Mutex
	history  []models.Message
	restErr  error
	restSent []string // client ids sent over REST
}

func (f *fakeAPI) Messages(ctx context.Context, chatID, cursor string, limit int) (*models.MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.MessagePage{Messages: f.history, HasMore: false}, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, chatID, text, attachmentURL, clientID string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restSent = append(f.restSent, clientID)
	if f.restErr != nil {
		return nil, f.restErr
	}
	return &models.Message{
		ID:       "srv-" + clientID,
		ChatID:   chatID,
		Text:     text,
		ClientID: clientID,
	}, nil
}

// fakeChannel scripts the realtime side: sends capture their payload and
// ack callback so the test decides when and how the ack fires.
type fakeChannel struct {
	mu       sync.Mutex
	handlers map[string][]realtime.Handler
	joined   []string
	sends    []scriptedSend
}

type scriptedSend struct {
	payload realtime.SendMessagePayload
	ack     func(realtime.AckResult)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: map[string][]realtime.Handler{}}
}

func (f *fakeChannel) On(event string, h realtime.Handler) func() {
	f.mu.Lock()
	f.handlers[event] = append(f.handlers[event], h)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeChannel) OnReconnect(h func()) func() { return func() {} }

func (f *fakeChannel) JoinRoom(roomID string) {
	f.mu.Lock()
	f.joined = append(f.joined, roomID)
	f.mu.Unlock()
}

func (f *fakeChannel) SendMessage(payload realtime.SendMessagePayload, ack func(realtime.AckResult)) {
	f.mu.Lock()
	f.sends = append(f.sends, scriptedSend{payload: payload, ack: ack})
	f.mu.Unlock()
}

func (f *fakeChannel) SendTyping(chatID, userID, userName string) {}
func (f *fakeChannel) StopTyping(chatID, userID, userName string) {}

func (f *fakeChannel) lastSend(t *testing.T) scriptedSend {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		if n := len(f.sends); n > 0 {
			send := f.sends[n-1]
			f.mu.Unlock()
			return send
		}
		f.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no send observed")
	return scriptedSend{}
}

func (f *fakeChannel) push(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	handlers := append([]realtime.Handler(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(raw)
	}
}

func countText(msgs []models.Message, text string) int {
	n := 0
	for _, m := range msgs {
		if m.Text == text {
			n++
		}
	}
	return n
}

func TestOpenJoinsRoom(t *testing.T) {
	ch := newFakeChannel()
	Open("chat-1", "u1", "Me", &fakeAPI{}, ch)
	if len(ch.joined) != 1 || ch.joined[0] != "chat-1" {
		t.Fatalf("joined = %v, want [chat-1]", ch.joined)
	}
}

func TestSendAckFirstThenEchoLeavesOneMessage(t *testing.T) {
	ch := newFakeChannel()
	th := Open("chat-1", "u1", "Me", &fakeAPI{}, ch)

	done := make(chan error, 1)
	go func() { done <- th.Send(context.Background(), "hello", "") }()

	send := ch.lastSend(t)
	if send.payload.ClientID == "" {
		t.Fatal("send carries no client id")
	}

	// Pending temp record is visible before the ack.
	msgs := th.Messages()
	if countText(msgs, "hello") != 1 || !msgs[len(msgs)-1].Pending {
		t.Fatalf("pre-ack messages = %+v, want one pending temp record", msgs)
	}

	confirmed := models.Message{ID: "srv-1", ChatID: "chat-1", Text: "hello", ClientID: send.payload.ClientID}
	send.ack(realtime.AckResult{Success: true, Message: &confirmed})
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	// The echo of the same send arrives after the ack.
	ch.push(t, realtime.EventReceiveMessage, confirmed)

	msgs = th.Messages()
	if countText(msgs, "hello") != 1 {
		t.Fatalf("messages = %+v, want exactly one visible copy", msgs)
	}
	for _, m := range msgs {
		if m.Text == "hello" && (m.Pending || m.ID != "srv-1") {
			t.Fatalf("confirmed message = %+v, want the server record", m)
		}
	}
}

func TestSendEchoFirstThenAckLeavesOneMessage(t *testing.T) {
	ch := newFakeChannel()
	th := Open("chat-1", "u1", "Me", &fakeAPI{}, ch)

	done := make(chan error, 1)
	go func() { done <- th.Send(context.Background(), "hello", "") }()

	send := ch.lastSend(t)
	confirmed := models.Message{ID: "srv-1", ChatID: "chat-1", Text: "hello", ClientID: send.payload.ClientID}

	// Echo races ahead of the ack.
	ch.push(t, realtime.EventReceiveMessage, confirmed)
	send.ack(realtime.AckResult{Success: true, Message: &confirmed})
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if n := countText(th.Messages(), "hello"); n != 1 {
		t.Fatalf("message appears %d times, want exactly once", n)
	}
}

func TestSendFallsBackToRESTWhenAckFails(t *testing.T) {
	api := &fakeAPI{}
	ch := newFakeChannel()
	th := Open("chat-1", "u1", "Me", api, ch)

	done := make(chan error, 1)
	go func() { done <- th.Send(context.Background(), "hello", "") }()

	send := ch.lastSend(t)
	send.ack(realtime.AckResult{Success: false})
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if len(api.restSent) != 1 || api.restSent[0] != send.payload.ClientID {
		t.Fatalf("restSent = %v, want the same client id over REST", api.restSent)
	}
	if n := countText(th.Messages(), "hello"); n != 1 {
		t.Fatalf("message appears %d times, want exactly once", n)
	}
}

func TestSendWithoutChannelUsesREST(t *testing.T) {
	api := &fakeAPI{}
	th := Open("chat-1", "u1", "Me", api, nil)

	if err := th.Send(context.Background(), "hello", ""); err != nil {
		t.Fatal(err)
	}
	if len(api.restSent) != 1 {
		t.Fatalf("restSent = %v, want one REST send", api.restSent)
	}
	msgs := th.Messages()
	if len(msgs) != 1 || msgs[0].Pending {
		t.Fatalf("messages = %+v, want one confirmed message", msgs)
	}
}

func TestFailedSendRemovesTempRecord(t *testing.T) {
	api := &fakeAPI{restErr: errors.New("backend down")}
	th := Open("chat-1", "u1", "Me", api, nil)

	if err := th.Send(context.Background(), "hello", ""); err == nil {
		t.Fatal("expected send to fail")
	}
	if n := len(th.Messages()); n != 0 {
		t.Fatalf("messages = %d, want the temp record removed", n)
	}
}

func TestIncomingMessageForOtherChatIgnored(t *testing.T) {
	ch := newFakeChannel()
	th := Open("chat-1", "u1", "Me", &fakeAPI{}, ch)

	ch.push(t, realtime.EventReceiveMessage, models.Message{ID: "m1", ChatID: "chat-2", Text: "elsewhere"})
	if len(th.Messages()) != 0 {
		t.Fatal("message for another chat leaked into this thread")
	}
}

func TestIncomingDuplicateByIDIgnored(t *testing.T) {
	ch := newFakeChannel()
	th := Open("chat-1", "u1", "Me", &fakeAPI{}, ch)

	msg := models.Message{ID: "m1", ChatID: "chat-1", Text: "hi"}
	ch.push(t, realtime.EventReceiveMessage, msg)
	ch.push(t, realtime.EventReceiveMessage, msg)

	if n := len(th.Messages()); n != 1 {
		t.Fatalf("messages = %d, want duplicate push dropped", n)
	}
}

func TestTypingIndicatorSetAndCleared(t *testing.T) {
	ch := newFakeChannel()
	th := Open("chat-1", "u1", "Me", &fakeAPI{}, ch)

	ch.push(t, realtime.EventUserTyping, models.TypingEvent{ChatID: "chat-1", UserID: "u2", UserName: "Ana"})
	if got := th.TypingUsers(); len(got) != 1 || got[0] != "Ana" {
		t.Fatalf("typing = %v, want [Ana]", got)
	}

	// Own typing events never show.
	ch.push(t, realtime.EventUserTyping, models.TypingEvent{ChatID: "chat-1", UserID: "u1", UserName: "Me"})
	if got := th.TypingUsers(); len(got) != 1 {
		t.Fatalf("typing = %v, own indicator must be filtered", got)
	}

	ch.push(t, realtime.EventUserStoppedTyping, models.TypingEvent{ChatID: "chat-1", UserID: "u2"})
	if got := th.TypingUsers(); len(got) != 0 {
		t.Fatalf("typing = %v, want cleared", got)
	}
}

func TestCloseStopsHandlingEvents(t *testing.T) {
	ch := newFakeChannel()
	th := Open("chat-1", "u1", "Me", &fakeAPI{}, ch)
	th.Close()
	th.Close() // idempotent

	ch.push(t, realtime.EventReceiveMessage, models.Message{ID: "m1", ChatID: "chat-1", Text: "late"})
	if len(th.Messages()) != 0 {
		t.Fatal("event after Close mutated the thread")
	}
}
