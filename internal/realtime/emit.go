package realtime

import (
	"encoding/json"
	"time"

	apperrors "github.com/kelvinkbk/xavlink-sub001/internal/errors"
	"github.com/kelvinkbk/xavlink-sub001/internal/metrics"
	"github.com/kelvinkbk/xavlink-sub001/internal/models"
)

// AckResult is the server acknowledgement for send_message.
type AckResult struct {
	Success bool            `json:"success"`
	Message *models.Message `json:"message,omitempty"`
}

type pendingAck struct {
	callback func(AckResult)
	timer    *time.Timer
}

// emit writes one fire-and-forget envelope.
func (b *Bridge) emit(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return apperrors.RealtimeError("encode "+event, err)
	}
	return b.write(Envelope{Event: event, Data: raw})
}

func (b *Bridge) write(env Envelope) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if b.conn == nil {
		return apperrors.RealtimeError("emit "+env.Event, nil).WithDetails("not connected")
	}
	_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait)) // nolint:errcheck
	if err := b.conn.WriteJSON(env); err != nil {
		b.logConnError("write failed", err)
		return apperrors.RealtimeError("emit "+env.Event, err)
	}
	metrics.IncrementMessagesSent()
	return nil
}

// JoinUserRoom subscribes this connection to the user's personal room so
// notifications and direct messages are pushed to it. Remembered for
// rejoin after reconnect.
func (b *Bridge) JoinUserRoom(userID string) {
	b.mu.Lock()
	b.userRoom = userID
	b.mu.Unlock()
	_ = b.emit(emitJoinUserRoom, map[string]string{"userId": userID}) // nolint:errcheck // fire-and-forget
}

// UserOnline announces presence.
func (b *Bridge) UserOnline(userID string) {
	_ = b.emit(emitUserOnline, map[string]string{"userId": userID}) // nolint:errcheck // fire-and-forget
}

// JoinRoom subscribes to a chat room. Remembered for rejoin after
// reconnect.
func (b *Bridge) JoinRoom(roomID string) {
	b.mu.Lock()
	b.rooms[roomID] = struct{}{}
	b.mu.Unlock()
	_ = b.emit(emitJoinRoom, map[string]string{"roomId": roomID}) // nolint:errcheck // fire-and-forget
}

// SendTyping signals that the user started typing in a chat.
func (b *Bridge) SendTyping(chatID, userID, userName string) {
	_ = b.emit(emitTyping, models.TypingEvent{ChatID: chatID, UserID: userID, UserName: userName}) // nolint:errcheck
}

// StopTyping signals that the user stopped typing in a chat.
func (b *Bridge) StopTyping(chatID, userID, userName string) {
	_ = b.emit(emitStopTyping, models.TypingEvent{ChatID: chatID, UserID: userID, UserName: userName}) // nolint:errcheck
}

// SendMessagePayload is the outbound body of send_message.
type SendMessagePayload struct {
	ChatID        string `json:"chatId"`
	Text          string `json:"text"`
	AttachmentURL string `json:"attachmentUrl,omitempty"`
	ClientID      string `json:"clientId"`
}

// SendMessage emits a message with an acknowledgement callback. The
// callback fires exactly once: with the server's result, or with
// success=false when the ack times out or the channel closes first.
func (b *Bridge) SendMessage(payload SendMessagePayload, ack func(AckResult)) {
	raw, err := json.Marshal(payload)
	if err != nil {
		ack(AckResult{Success: false})
		return
	}

	b.ackMu.Lock()
	b.nextAck++
	id := b.nextAck
	pending := &pendingAck{callback: ack}
	pending.timer = time.AfterFunc(b.cfg.AckTimeout, func() {
		b.expireAck(id)
	})
	b.acks[id] = pending
	b.ackMu.Unlock()

	if err := b.write(Envelope{Event: emitSendMessage, Data: raw, Ack: id}); err != nil {
		b.expireAck(id)
	}
}

func (b *Bridge) resolveAck(env Envelope) {
	b.ackMu.Lock()
	pending, ok := b.acks[env.Ack]
	if ok {
		delete(b.acks, env.Ack)
		pending.timer.Stop()
	}
	b.ackMu.Unlock()
	if !ok {
		return // late ack for an already-expired send
	}

	var result AckResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		result = AckResult{Success: false}
	}
	if result.Success {
		metrics.IncrementMessagesAcked()
	}
	pending.callback(result)
}

func (b *Bridge) expireAck(id uint64) {
	b.ackMu.Lock()
	pending, ok := b.acks[id]
	if ok {
		delete(b.acks, id)
		pending.timer.Stop()
	}
	b.ackMu.Unlock()
	if ok {
		pending.callback(AckResult{Success: false})
	}
}

func (b *Bridge) failPendingAcks() {
	b.ackMu.Lock()
	pendings := make([]*pendingAck, 0, len(b.acks))
	for id, p := range b.acks {
		p.timer.Stop()
		pendings = append(pendings, p)
		delete(b.acks, id)
	}
	b.ackMu.Unlock()
	for _, p := range pendings {
		p.callback(AckResult{Success: false})
	}
}
