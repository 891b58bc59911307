package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kelvinkbk/xavlink-sub001/internal/config"
	"github.com/kelvinkbk/xavlink-sub001/internal/models"
)

// wsServer is a scripted backend: it records received envelopes and lets
// tests push envelopes down to the client.
type wsServer struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	conns    int
	received []Envelope
	tokens   []string
}

func newWSServer(t *testing.T) (*wsServer, *httptest.Server) {
	s := &wsServer{t: t}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.tokens = append(s.tokens, r.URL.Query().Get("token"))
		s.mu.Unlock()

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.conns++
		s.mu.Unlock()

		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			s.mu.Lock()
			s.received = append(s.received, env)
			s.mu.Unlock()
		}
	}))
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *wsServer) push(env Envelope) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.t.Fatal("no client connected")
	}
	if err := conn.WriteJSON(env); err != nil {
		s.t.Fatalf("push: %v", err)
	}
}

// dropClient severs the current connection from the server side, as a
// flaky network would.
func (s *wsServer) dropClient() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (s *wsServer) waitForConns(n int) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		conns := s.conns
		s.mu.Unlock()
		if conns >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func (s *wsServer) waitForEnvelope(event string) (Envelope, bool) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		for _, env := range s.received {
			if env.Event == event {
				s.mu.Unlock()
				return env, true
			}
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	return Envelope{}, false
}

func testConfig(srvURL string) config.RealtimeConfig {
	return config.RealtimeConfig{
		SocketURL:            "ws" + strings.TrimPrefix(srvURL, "http"),
		ConnectTimeout:       2 * time.Second,
		MaxReconnectAttempts: 3,
		ReconnectDelay:       10 * time.Millisecond,
		MaxReconnectDelay:    50 * time.Millisecond,
		ErrorLogInterval:     time.Second,
		AckTimeout:           200 * time.Millisecond,
	}
}

func dialBridge(t *testing.T, srvURL string) *Bridge {
	t.Helper()
	b, err := New(context.Background(), testConfig(srvURL), "tok-1")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Close)
	return b
}

func TestDialSendsTokenQuery(t *testing.T) {
	s, srv := newWSServer(t)
	dialBridge(t, srv.URL)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tokens) != 1 || s.tokens[0] != "tok-1" {
		t.Fatalf("tokens = %v", s.tokens)
	}
}

func TestDispatchReachesEverySubscriberAndBag(t *testing.T) {
	s, srv := newWSServer(t)
	b := dialBridge(t, srv.URL)

	got1 := make(chan models.Message, 1)
	got2 := make(chan models.Message, 1)
	b.OnMessage(func(m models.Message) { got1 <- m })
	b.OnMessage(func(m models.Message) { got2 <- m })

	raw, _ := json.Marshal(models.Message{ID: "m1", ChatID: "c1", Text: "hi"})
	s.push(Envelope{Event: EventReceiveMessage, Data: raw})

	for i, ch := range []chan models.Message{got1, got2} {
		select {
		case m := <-ch:
			if m.ID != "m1" {
				t.Fatalf("subscriber %d got %+v", i, m)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber %d never received the event", i)
		}
	}

	data, ok := b.Latest(EventReceiveMessage)
	if !ok {
		t.Fatal("bag is missing the event")
	}
	var m models.Message
	if err := json.Unmarshal(data, &m); err != nil || m.ID != "m1" {
		t.Fatalf("bag entry = %s", data)
	}
}

func TestBagIsLastWriteWins(t *testing.T) {
	s, srv := newWSServer(t)
	b := dialBridge(t, srv.URL)

	seen := make(chan struct{}, 2)
	b.On(EventNewPost, func(json.RawMessage) { seen <- struct{}{} })

	s.push(Envelope{Event: EventNewPost, Data: json.RawMessage(`{"id":"old"}`)})
	s.push(Envelope{Event: EventNewPost, Data: json.RawMessage(`{"id":"new"}`)})
	for i := 0; i < 2; i++ {
		select {
		case <-seen:
		case <-time.After(2 * time.Second):
			t.Fatal("event not dispatched")
		}
	}

	data, ok := b.Latest(EventNewPost)
	if !ok || !strings.Contains(string(data), "new") {
		t.Fatalf("bag = %s, want only the newer payload", data)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s, srv := newWSServer(t)
	b := dialBridge(t, srv.URL)

	var count int
	var mu sync.Mutex
	marker := make(chan struct{}, 4)
	unsub := b.On(EventNewPost, func(json.RawMessage) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	// Second subscription proves delivery still works after the unsub.
	b.On(EventNewPost, func(json.RawMessage) { marker <- struct{}{} })

	s.push(Envelope{Event: EventNewPost, Data: json.RawMessage(`{}`)})
	<-marker
	unsub()
	s.push(Envelope{Event: EventNewPost, Data: json.RawMessage(`{}`)})
	<-marker

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("unsubscribed handler ran %d times, want 1", count)
	}
}

func TestSendMessageAckResolved(t *testing.T) {
	s, srv := newWSServer(t)
	b := dialBridge(t, srv.URL)

	result := make(chan AckResult, 1)
	b.SendMessage(SendMessagePayload{ChatID: "c1", Text: "hi", ClientID: "cl-1"}, func(r AckResult) {
		result <- r
	})

	env, ok := s.waitForEnvelope("send_message")
	if !ok {
		t.Fatal("server never received send_message")
	}
	if env.Ack == 0 {
		t.Fatal("send_message carries no ack number")
	}

	ackData, _ := json.Marshal(AckResult{
		Success: true,
		Message: &models.Message{ID: "srv-1", ChatID: "c1", Text: "hi", ClientID: "cl-1"},
	})
	s.push(Envelope{Event: "ack", Data: ackData, Ack: env.Ack})

	select {
	case r := <-result:
		if !r.Success || r.Message == nil || r.Message.ID != "srv-1" {
			t.Fatalf("ack = %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ack callback never fired")
	}
}

func TestSendMessageAckTimesOut(t *testing.T) {
	s, srv := newWSServer(t)
	b := dialBridge(t, srv.URL)

	result := make(chan AckResult, 1)
	b.SendMessage(SendMessagePayload{ChatID: "c1", Text: "hi", ClientID: "cl-1"}, func(r AckResult) {
		result <- r
	})
	if _, ok := s.waitForEnvelope("send_message"); !ok {
		t.Fatal("server never received send_message")
	}
	// Server never acks.

	select {
	case r := <-result:
		if r.Success {
			t.Fatal("timed-out ack reported success")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ack callback never fired on timeout")
	}
}

func TestLateAckAfterTimeoutIsIgnored(t *testing.T) {
	s, srv := newWSServer(t)
	b := dialBridge(t, srv.URL)

	var mu sync.Mutex
	fires := 0
	b.SendMessage(SendMessagePayload{ChatID: "c1", Text: "hi", ClientID: "cl-1"}, func(r AckResult) {
		mu.Lock()
		fires++
		mu.Unlock()
	})
	env, _ := s.waitForEnvelope("send_message")

	time.Sleep(300 * time.Millisecond) // past AckTimeout
	s.push(Envelope{Event: "ack", Data: json.RawMessage(`{"success":true}`), Ack: env.Ack})
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fires != 1 {
		t.Fatalf("ack callback fired %d times, want exactly once", fires)
	}
}

func TestJoinRoomEmits(t *testing.T) {
	s, srv := newWSServer(t)
	b := dialBridge(t, srv.URL)

	b.JoinUserRoom("u1")
	b.JoinRoom("c1")

	if env, ok := s.waitForEnvelope("join_user_room"); !ok {
		t.Fatal("join_user_room never sent")
	} else if !strings.Contains(string(env.Data), "u1") {
		t.Fatalf("join_user_room data = %s", env.Data)
	}
	if _, ok := s.waitForEnvelope("join_room"); !ok {
		t.Fatal("join_room never sent")
	}
}

func TestCloseFailsPendingAcksAndIsIdempotent(t *testing.T) {
	s, srv := newWSServer(t)
	b := dialBridge(t, srv.URL)

	result := make(chan AckResult, 1)
	b.SendMessage(SendMessagePayload{ChatID: "c1", Text: "hi", ClientID: "cl-1"}, func(r AckResult) {
		result <- r
	})
	if _, ok := s.waitForEnvelope("send_message"); !ok {
		t.Fatal("server never received send_message")
	}

	b.Close()
	b.Close()

	select {
	case r := <-result:
		if r.Success {
			t.Fatal("ack after Close reported success")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending ack never failed on Close")
	}
}

func TestRepeatedLikeEventsDeliveredAfterReconnect(t *testing.T) {
	s, srv := newWSServer(t)
	b := dialBridge(t, srv.URL)

	counts := make(chan int, 4)
	b.On(EventPostLiked, func(data json.RawMessage) {
		var p struct {
			LikesCount int `json:"likesCount"`
		}
		_ = json.Unmarshal(data, &p) // nolint:errcheck
		counts <- p.LikesCount
	})

	s.push(Envelope{Event: EventPostLiked, Data: json.RawMessage(`{"id":"p1","likesCount":1}`)})
	select {
	case n := <-counts:
		if n != 1 {
			t.Fatalf("first like count = %d, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first like never delivered")
	}

	s.dropClient()
	if !s.waitForConns(2) {
		t.Fatal("client never reconnected")
	}

	// Same post id, new count: likes legitimately repeat per post.
	s.push(Envelope{Event: EventPostLiked, Data: json.RawMessage(`{"id":"p1","likesCount":2}`)})
	select {
	case n := <-counts:
		if n != 2 {
			t.Fatalf("second like count = %d, want 2", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("like for an already-seen post was suppressed after reconnect")
	}
}

func TestMessageReplayAfterReconnectIsSuppressed(t *testing.T) {
	s, srv := newWSServer(t)
	b := dialBridge(t, srv.URL)

	got := make(chan string, 4)
	b.On(EventReceiveMessage, func(data json.RawMessage) {
		var m struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(data, &m) // nolint:errcheck
		got <- m.ID
	})

	s.push(Envelope{Event: EventReceiveMessage, Data: json.RawMessage(`{"id":"m1","chatId":"c1"}`)})
	select {
	case id := <-got:
		if id != "m1" {
			t.Fatalf("got %q, want m1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message never delivered")
	}

	s.dropClient()
	if !s.waitForConns(2) {
		t.Fatal("client never reconnected")
	}

	// The server re-emits m1 after the reconnect, then sends a new message.
	s.push(Envelope{Event: EventReceiveMessage, Data: json.RawMessage(`{"id":"m1","chatId":"c1"}`)})
	s.push(Envelope{Event: EventReceiveMessage, Data: json.RawMessage(`{"id":"m2","chatId":"c1"}`)})
	select {
	case id := <-got:
		if id != "m2" {
			t.Fatalf("got %q, want the replayed m1 dropped and m2 delivered", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fresh message never delivered after reconnect")
	}
}

func TestEmitAfterCloseReturnsError(t *testing.T) {
	_, srv := newWSServer(t)
	b := dialBridge(t, srv.URL)
	b.Close()

	if err := b.emit("typing", models.TypingEvent{ChatID: "c1"}); err == nil {
		t.Fatal("emit on a closed channel should fail")
	}
}
