package models

// EventType distinguishes the two classes of realtime notifications.
type EventType string

const (
	EventMessageInserted EventType = "message_inserted"
	EventRoomUpdated     EventType = "room_updated"
)

// Event is the envelope published on a room channel.
type Event struct {
	Type    EventType    `json:"type"`
	RoomID  string       `json:"room_id"`
	Message *ChatMessage `json:"message,omitempty"`
	Room    *ClaimRoom   `json:"room,omitempty"`
}

func MessageInserted(msg ChatMessage) Event {
	return Event{Type: EventMessageInserted, RoomID: msg.RoomID, Message: &msg}
}

func RoomUpdated(room ClaimRoom) Event {
	return Event{Type: EventRoomUpdated, RoomID: room.ID, Room: &room}
}
