// Package realtime maintains the bidirectional event channel to the
// backend: one connection per session, typed publish/subscribe over JSON
// envelopes, bounded reconnection, and a last-write-wins event bag.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/willf/bloom"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kelvinkbk/xavlink-sub001/internal/config"
	apperrors "github.com/kelvinkbk/xavlink-sub001/internal/errors"
	"github.com/kelvinkbk/xavlink-sub001/internal/logger"
	"github.com/kelvinkbk/xavlink-sub001/internal/metrics"
)

// Envelope is the wire frame. Acks echo the Ack number back with the
// "ack" event name.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   uint64          `json:"ack,omitempty"`
}

// Inbound event names.
const (
	EventReceiveMessage    = "receive_message"
	EventNewNotification   = "new_notification"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventNewPost           = "new_post"
	EventPostLiked         = "post_liked"
	EventPostUnliked       = "post_unliked"
	EventNewComment        = "new_comment"
	EventPostDeleted       = "post_deleted"
	EventPostUpdated       = "post_updated"
	eventAck               = "ack"
)

// Outbound event names.
const (
	emitJoinUserRoom = "join_user_room"
	emitUserOnline   = "user_online"
	emitJoinRoom     = "join_room"
	emitTyping       = "typing"
	emitStopTyping   = "stop_typing"
	emitSendMessage  = "send_message"
)

const (
	pingPeriod = 15 * time.Second
	pongWait   = 60 * time.Second
	writeWait  = 10 * time.Second
)

// Handler receives the raw data payload of one event emission.
type Handler func(data json.RawMessage)

// Bridge owns the websocket connection for one session. It is built at
// login and torn down at logout; there is no process-wide singleton.
type Bridge struct {
	cfg   config.RealtimeConfig
	token string
	log   *zap.Logger

	// Connection errors are logged at most once per ErrorLogInterval.
	errLog *rate.Limiter

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu       sync.Mutex
	closed   bool
	done     chan struct{}
	rooms    map[string]struct{} // rejoined after reconnect
	userRoom string

	subsMu        sync.RWMutex
	subs          map[string]map[uint64]Handler
	reconnectSubs map[uint64]func()
	nextSubID     uint64

	bagMu sync.RWMutex
	bag   map[string]json.RawMessage

	ackMu   sync.Mutex
	acks    map[uint64]*pendingAck
	nextAck uint64

	// Delivered event IDs; used to suppress server re-emits after a
	// reconnect. Bloom membership is probabilistic, so suppression is
	// best-effort and only applied to id-bearing events.
	seenMu      sync.Mutex
	seen        *bloom.BloomFilter
	reconnected bool
}

// New dials the realtime channel with the session's bearer token.
func New(ctx context.Context, cfg config.RealtimeConfig, token string) (*Bridge, error) {
	b := &Bridge{
		cfg:           cfg,
		token:         token,
		log:           logger.New("realtime"),
		errLog:        rate.NewLimiter(rate.Every(cfg.ErrorLogInterval), 1),
		done:          make(chan struct{}),
		rooms:         make(map[string]struct{}),
		subs:          make(map[string]map[uint64]Handler),
		reconnectSubs: make(map[uint64]func()),
		bag:           make(map[string]json.RawMessage),
		acks:          make(map[uint64]*pendingAck),
		seen:          bloom.New(1<<16, 5),
	}

	conn, err := b.dial(ctx)
	if err != nil {
		return nil, err
	}
	b.conn = conn
	metrics.SetConnected(true)

	go b.readPump()
	go b.keepAlive()
	return b, nil
}

func (b *Bridge) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(b.cfg.SocketURL)
	if err != nil {
		return nil, apperrors.RealtimeError("dial", err)
	}
	q := u.Query()
	q.Set("token", b.token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: b.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		b.logConnError("dial failed", err)
		return nil, apperrors.RealtimeError("dial", err)
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait)) // nolint:errcheck // deadline is non-critical
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait)) // nolint:errcheck
		return nil
	})
	return conn, nil
}

// readPump consumes frames until the connection drops, then hands off to
// the reconnect loop.
func (b *Bridge) readPump() {
	for {
		b.writeMu.Lock()
		conn := b.conn
		b.writeMu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if b.isClosed() {
				return
			}
			b.logConnError("read failed", err)
			metrics.SetConnected(false)
			b.reconnect()
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			b.log.Debug("discarding malformed frame", zap.Error(err))
			continue
		}

		if env.Event == eventAck {
			b.resolveAck(env)
			continue
		}
		if env.Event == "" {
			continue
		}
		if b.isDuplicate(env) {
			metrics.RealtimeEventsDropped.Inc()
			continue
		}

		metrics.IncrementEventsReceived(env.Event)
		b.dispatch(env.Event, env.Data)
	}
}

// Events whose payload id is unique per emission. Only these are eligible
// for duplicate suppression: like/unlike/update events carry the post's id,
// which legitimately repeats across emissions, and typing signals carry no
// id at all.
var dedupEvents = map[string]struct{}{
	EventReceiveMessage:  {},
	EventNewNotification: {},
	EventNewPost:         {},
	EventNewComment:      {},
}

// isDuplicate drops creation events already delivered once.
func (b *Bridge) isDuplicate(env Envelope) bool {
	if _, eligible := dedupEvents[env.Event]; !eligible {
		return false
	}
	var withID struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &withID); err != nil || withID.ID == "" {
		return false
	}
	key := []byte(env.Event + ":" + withID.ID)

	b.seenMu.Lock()
	defer b.seenMu.Unlock()
	already := b.seen.TestAndAdd(key)
	// Only suppress once a reconnect has happened; before that, a bloom
	// false positive would eat a live event for no benefit.
	return already && b.reconnected
}

// dispatch writes the event bag entry (last write wins) and invokes every
// subscriber synchronously, each exactly once per emission.
func (b *Bridge) dispatch(event string, data json.RawMessage) {
	b.bagMu.Lock()
	b.bag[event] = data
	b.bagMu.Unlock()
	metrics.EventBagWrites.WithLabelValues(event).Inc()

	b.subsMu.RLock()
	handlers := make([]Handler, 0, len(b.subs[event]))
	for _, h := range b.subs[event] {
		handlers = append(handlers, h)
	}
	b.subsMu.RUnlock()

	for _, h := range handlers {
		h(data)
	}
}

// reconnect retries with a doubling, capped delay for a bounded number of
// attempts. There is no replay: events emitted while disconnected are lost
// unless subscribers refetch via OnReconnect.
func (b *Bridge) reconnect() {
	delay := b.cfg.ReconnectDelay
	for attempt := 1; attempt <= b.cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-b.done:
			return
		case <-time.After(delay):
		}

		metrics.IncrementReconnects()
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.ConnectTimeout)
		conn, err := b.dial(ctx)
		cancel()
		if err != nil {
			b.logConnError(fmt.Sprintf("reconnect attempt %d failed", attempt), err)
			delay *= 2
			if delay > b.cfg.MaxReconnectDelay {
				delay = b.cfg.MaxReconnectDelay
			}
			continue
		}

		b.writeMu.Lock()
		b.conn = conn
		b.writeMu.Unlock()

		b.seenMu.Lock()
		b.reconnected = true
		b.seenMu.Unlock()

		metrics.SetConnected(true)
		b.log.Info("realtime channel reconnected", zap.Int("attempt", attempt))

		b.rejoinRooms()
		b.notifyReconnect()

		go b.readPump()
		return
	}
	b.logConnError("reconnect attempts exhausted", nil)
}

func (b *Bridge) rejoinRooms() {
	b.mu.Lock()
	userRoom := b.userRoom
	rooms := make([]string, 0, len(b.rooms))
	for room := range b.rooms {
		rooms = append(rooms, room)
	}
	b.mu.Unlock()

	if userRoom != "" {
		_ = b.emit(emitJoinUserRoom, map[string]string{"userId": userRoom}) // nolint:errcheck
	}
	for _, room := range rooms {
		_ = b.emit(emitJoinRoom, map[string]string{"roomId": room}) // nolint:errcheck
	}
}

func (b *Bridge) notifyReconnect() {
	b.subsMu.RLock()
	subs := make([]func(), 0, len(b.reconnectSubs))
	for _, f := range b.reconnectSubs {
		subs = append(subs, f)
	}
	b.subsMu.RUnlock()
	for _, f := range subs {
		f()
	}
}

// keepAlive pings on a ticker so proxies don't reap the idle connection.
func (b *Bridge) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.writeMu.Lock()
			conn := b.conn
			if conn != nil {
				_ = conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(writeWait)) // nolint:errcheck
			}
			b.writeMu.Unlock()
		}
	}
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close tears the channel down. Idempotent.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.writeMu.Lock()
	if b.conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout")
		_ = b.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)) // nolint:errcheck
		_ = b.conn.Close()                                                                // nolint:errcheck
	}
	b.conn = nil
	b.writeMu.Unlock()

	b.failPendingAcks()
	metrics.SetConnected(false)
	b.log.Debug("realtime channel closed")
}

// logConnError is the rate-limited error log: at most one line per
// configured interval, so a flapping network can't flood the log file.
func (b *Bridge) logConnError(msg string, err error) {
	if !b.errLog.Allow() {
		return
	}
	if err != nil {
		b.log.Error(msg, zap.Error(err))
	} else {
		b.log.Error(msg)
	}
}
