package realtime

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/kelvinkbk/xavlink-sub001/internal/models"
)

// On subscribes to a named event. Every subscriber receives every matching
// emission once; deduplication across subscribers is the subscriber's
// responsibility. The returned func removes the subscription.
func (b *Bridge) On(event string, handler Handler) func() {
	b.subsMu.Lock()
	b.nextSubID++
	id := b.nextSubID
	if b.subs[event] == nil {
		b.subs[event] = make(map[uint64]Handler)
	}
	b.subs[event][id] = handler
	b.subsMu.Unlock()

	return func() {
		b.subsMu.Lock()
		delete(b.subs[event], id)
		b.subsMu.Unlock()
	}
}

// OnReconnect registers a callback invoked after the channel comes back.
// There is no replay of missed events; callers refetch here instead.
func (b *Bridge) OnReconnect(handler func()) func() {
	b.subsMu.Lock()
	b.nextSubID++
	id := b.nextSubID
	b.reconnectSubs[id] = handler
	b.subsMu.Unlock()

	return func() {
		b.subsMu.Lock()
		delete(b.reconnectSubs, id)
		b.subsMu.Unlock()
	}
}

// OnMessage subscribes to incoming chat messages.
func (b *Bridge) OnMessage(handler func(models.Message)) func() {
	return b.On(EventReceiveMessage, func(data json.RawMessage) {
		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			b.log.Debug("discarding malformed message payload", zap.Error(err))
			return
		}
		handler(msg)
	})
}

// OnNewNotification subscribes to pushed notifications.
func (b *Bridge) OnNewNotification(handler func(models.Notification)) func() {
	return b.On(EventNewNotification, func(data json.RawMessage) {
		var n models.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			b.log.Debug("discarding malformed notification payload", zap.Error(err))
			return
		}
		handler(n)
	})
}

// Latest returns the most recent payload seen for an event. The bag is
// last-write-wins: a reader that misses a cycle between two same-named
// events observes only the newer one. Lossiness here is by contract; the
// synchronous subscriber path above sees every emission.
func (b *Bridge) Latest(event string) (json.RawMessage, bool) {
	b.bagMu.RLock()
	defer b.bagMu.RUnlock()
	data, ok := b.bag[event]
	return data, ok
}
