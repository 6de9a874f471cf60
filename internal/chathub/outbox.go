package chathub

import (
	"claimchat/backend/internal/claims"
	"claimchat/backend/internal/models"
	"fmt"
	"sort"
	"time"
)

// Outbox keeps the visible message list of one room: authoritative records
// plus optimistic placeholders for sends that have not been confirmed yet.
//
// A placeholder is resolved by whichever arrives first: the realtime insert
// event (matched by sender and body) or the completion of its own request.
// The second arrival finds the record already present and does nothing.
type Outbox struct {
	roomID  string
	next    int
	pending []models.ChatMessage
	records map[string]models.ChatMessage
}

func NewOutbox(roomID string) *Outbox {
	return &Outbox{roomID: roomID, records: make(map[string]models.ChatMessage)}
}

// Submit creates a placeholder for body. It returns false, and creates
// nothing, when the body is empty after normalization.
func (o *Outbox) Submit(senderID, body string, now time.Time) (models.ChatMessage, bool) {
	body = claims.NormalizeBody(body)
	if body == "" {
		return models.ChatMessage{}, false
	}
	o.next++
	placeholder := models.ChatMessage{
		ID:        fmt.Sprintf("pending-%d", o.next),
		RoomID:    o.roomID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: now,
		IsPending: true,
	}
	o.pending = append(o.pending, placeholder)
	return placeholder, true
}

// Confirm applies a record delivered by the realtime channel. Repeated
// deliveries of the same record are ignored.
func (o *Outbox) Confirm(msg models.ChatMessage) bool {
	if !o.add(msg) {
		return false
	}
	o.resolveByKey(msg.Key())
	return true
}

// Complete applies the result of the request behind token.
func (o *Outbox) Complete(token string, msg models.ChatMessage) {
	added := o.add(msg)
	if o.remove(token) {
		return
	}
	if added {
		// The event for another identical send took this token's place.
		o.resolveByKey(msg.Key())
	}
}

// Fail drops the placeholder of a failed send. The body is not kept.
func (o *Outbox) Fail(token string) bool {
	return o.remove(token)
}

// Merge adds fetched history. Records already known are skipped.
func (o *Outbox) Merge(history []models.ChatMessage) {
	for _, msg := range history {
		o.add(msg)
	}
}

func (o *Outbox) RoomID() string { return o.roomID }

// Reset forgets everything; used when the view moves to another room.
func (o *Outbox) Reset(roomID string) {
	o.roomID = roomID
	o.pending = nil
	o.records = make(map[string]models.ChatMessage)
}

// Pending reports how many sends are still unresolved.
func (o *Outbox) Pending() int {
	return len(o.pending)
}

// Messages returns the ordered visible list. Of several unresolved sends with
// the same sender and body only the oldest is shown.
func (o *Outbox) Messages() []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(o.records)+len(o.pending))
	for _, msg := range o.records {
		out = append(out, msg)
	}
	shown := make(map[models.ContentKey]bool, len(o.pending))
	for _, p := range o.pending {
		if shown[p.Key()] {
			continue
		}
		shown[p.Key()] = true
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (o *Outbox) add(msg models.ChatMessage) bool {
	if msg.ID == "" || (o.roomID != "" && msg.RoomID != "" && msg.RoomID != o.roomID) {
		return false
	}
	if _, ok := o.records[msg.ID]; ok {
		return false
	}
	msg.IsPending = false
	o.records[msg.ID] = msg
	return true
}

func (o *Outbox) remove(token string) bool {
	for i, p := range o.pending {
		if p.ID == token {
			o.pending = append(o.pending[:i], o.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (o *Outbox) resolveByKey(key models.ContentKey) {
	for i, p := range o.pending {
		if p.Key() == key {
			o.pending = append(o.pending[:i], o.pending[i+1:]...)
			return
		}
	}
}
