package chathub

import (
	"claimchat/backend/internal/claims"
	"claimchat/backend/internal/logger"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Command types accepted from the browser.
const (
	CommandSend       = "send"
	CommandApprove    = "approve"
	CommandSelectRoom = "select_room"
	CommandRetry      = "retry"
	CommandDismiss    = "dismiss"
)

// Command is a client-to-server frame.
type Command struct {
	Type   string `json:"type"`
	Body   string `json:"body,omitempty"`
	RoomID string `json:"room_id,omitempty"`
}

// Frame is a server-to-client frame: either a full state snapshot or the
// rejection of a command.
type Frame struct {
	Type  string `json:"type"`
	State *State `json:"state,omitempty"`
	Error string `json:"error,omitempty"`
}

// WebSocketClient binds one chat session to a websocket connection.
type WebSocketClient struct {
	UserID  string
	ItemID  string
	Conn    *websocket.Conn
	Hub     *ManagerService
	Session *Session

	rejects   chan string
	closeOnce sync.Once
}

func NewWebSocketClient(conn *websocket.Conn, hub *ManagerService, session *Session) *WebSocketClient {
	return &WebSocketClient{
		UserID:  session.GetUserID(),
		ItemID:  session.GetItemID(),
		Conn:    conn,
		Hub:     hub,
		Session: session,
		rejects: make(chan string, 8),
	}
}

func (c *WebSocketClient) GetUserID() string { return c.UserID }
func (c *WebSocketClient) GetItemID() string { return c.ItemID }

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close stops the session; the write pump then closes the connection.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(c.Session.Close)
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c.Session)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", "user_id", c.UserID, "error", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			slog.Debug("dropping undecodable command", "user_id", c.UserID, "payload", logger.Truncate(string(data), 80), "error", err)
			c.reject("malformed command")
			continue
		}

		if err := c.dispatch(cmd); err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return
			}
			c.reject(err.Error())
		}
	}
}

func (c *WebSocketClient) dispatch(cmd Command) error {
	switch cmd.Type {
	case CommandSend:
		return c.Session.Send(cmd.Body)
	case CommandApprove:
		return c.Session.Approve()
	case CommandSelectRoom:
		return c.Session.SelectRoom(cmd.RoomID)
	case CommandRetry:
		return c.Session.Retry()
	case CommandDismiss:
		return c.Session.DismissError()
	default:
		return errors.New("unknown command " + cmd.Type)
	}
}

func (c *WebSocketClient) reject(reason string) {
	switch reason {
	case claims.ErrEmptyBody.Error():
		reason = "empty message"
	case claims.ErrForbidden.Error():
		reason = "forbidden"
	}
	select {
	case c.rejects <- reason:
	default:
	}
}

// writePump pushes a state snapshot after every change and keeps the
// connection alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	state := c.Session.State()
	if err := c.write(Frame{Type: "state", State: &state}); err != nil {
		return
	}

	changes := c.Session.Changes()
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			state := c.Session.State()
			if err := c.write(Frame{Type: "state", State: &state}); err != nil {
				return
			}

		case reason := <-c.rejects:
			if err := c.write(Frame{Type: "error", Error: reason}); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) write(frame Frame) error {
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.Conn.WriteJSON(frame); err != nil {
		slog.Debug("websocket write failed", "user_id", c.UserID, "error", err)
		return err
	}
	return nil
}
