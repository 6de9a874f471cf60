package chathub

import (
	"claimchat/backend/internal/claims"
	"claimchat/backend/internal/config"
	"claimchat/backend/internal/localization"
	"claimchat/backend/internal/models"
	"claimchat/backend/internal/realtime"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var ErrSessionClosed = errors.New("chathub: session closed")

// ErrorKind names a visible error state of a chat view.
type ErrorKind string

const (
	ErrorInitialization ErrorKind = "initialization-failed"
	ErrorCreation       ErrorKind = "creation-failed"
	ErrorSend           ErrorKind = "send-failed"
	ErrorLoad           ErrorKind = "load-failed"
	ErrorApproval       ErrorKind = "approval-failed"
)

// ViewError is the error currently shown by a session. Retryable errors are
// cleared and re-attempted by Retry; the others are only dismissed.
type ViewError struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// State is an immutable snapshot of a chat view.
type State struct {
	ItemID     string               `json:"item_id"`
	ItemName   string               `json:"item_name"`
	Viewer     models.Identity      `json:"viewer"`
	IsReporter bool                 `json:"is_reporter"`
	Rooms      []models.ClaimRoom   `json:"rooms"`
	Room       *models.ClaimRoom    `json:"room,omitempty"`
	Messages   []models.ChatMessage `json:"messages"`

	ContactInfo    string `json:"contact_info,omitempty"`
	ContactVisible bool   `json:"contact_visible"`

	Loading bool       `json:"loading"`
	Error   *ViewError `json:"error,omitempty"`
	Closed  bool       `json:"closed"`
}

// SessionDeps are the collaborators a session talks to.
type SessionDeps struct {
	Rooms    *claims.RoomService
	Messages *claims.MessageService
	Bus      realtime.Bus
	Texts    *localization.Localizer
	Lang     string
}

// Session is one open chat view on an item. All view state is owned by the
// run goroutine; store calls run in their own goroutines and hand their
// results back to it, as do realtime events.
type Session struct {
	role claims.Role
	deps SessionDeps

	ctx    context.Context
	cancel context.CancelFunc

	cmds    chan func()
	results chan func()
	changes chan struct{}
	done    chan struct{}

	snapshot  atomic.Pointer[State]
	closeOnce sync.Once

	// Owned by run.
	dispatcher *realtime.Dispatcher
	events     <-chan models.Event
	rooms      []models.ClaimRoom
	room       *models.ClaimRoom
	outbox     *Outbox
	loading    bool
	viewErr    *ViewError
	generation int
}

// NewSession starts a view for a resolved role. The caller owns it and must Close it.
func NewSession(role claims.Role, deps SessionDeps) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		role:       role,
		deps:       deps,
		ctx:        ctx,
		cancel:     cancel,
		cmds:       make(chan func(), config.SessionCommandBuffer),
		results:    make(chan func(), config.SessionCommandBuffer),
		changes:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		dispatcher: realtime.NewDispatcher(deps.Bus),
		outbox:     NewOutbox(""),
		loading:    true,
	}
	s.publish()
	go s.run()
	return s
}

func (s *Session) ItemID() string          { return s.role.Item.ID }
func (s *Session) Viewer() models.Identity { return s.role.Identity }
func (s *Session) IsReporter() bool        { return s.role.IsReporter }
func (s *Session) Done() <-chan struct{}   { return s.done }

// State returns the latest snapshot.
func (s *Session) State() State {
	return *s.snapshot.Load()
}

// Changes is signalled after every state change. Signals coalesce; read State
// after each one. The channel is closed when the session stops.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

// Send shows body immediately as pending and appends it to the current room.
func (s *Session) Send(body string) error {
	if claims.NormalizeBody(body) == "" {
		return claims.ErrEmptyBody
	}
	return s.enqueue(func() { s.send(body) })
}

// Approve approves the current room. Only the item's reporter may do it.
func (s *Session) Approve() error {
	if !s.role.IsReporter {
		return claims.ErrForbidden
	}
	return s.enqueue(s.approve)
}

// SelectRoom moves a reporter's view to another room of the item.
func (s *Session) SelectRoom(roomID string) error {
	if !s.role.IsReporter {
		return claims.ErrForbidden
	}
	return s.enqueue(func() {
		for i := range s.rooms {
			if s.rooms[i].ID == roomID {
				s.selectRoom(s.rooms[i])
				return
			}
		}
		s.fail(ErrorLoad, "error_load", false)
	})
}

// Retry re-runs initialization after an initialization or creation error.
// Other errors are just cleared.
func (s *Session) Retry() error {
	return s.enqueue(func() {
		retryable := s.viewErr != nil && s.viewErr.Retryable
		s.viewErr = nil
		if retryable {
			s.initialize()
		}
	})
}

func (s *Session) DismissError() error {
	return s.enqueue(func() { s.viewErr = nil })
}

// Close releases the room subscription and stops the session. It returns
// after the last state change; results still in flight are dropped.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *Session) enqueue(cmd func()) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.cmds <- cmd:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) run() {
	defer func() {
		s.dispatcher.Close()
		s.events = nil
		final := s.buildState()
		final.Closed = true
		s.snapshot.Store(&final)
		close(s.changes)
		close(s.done)
	}()

	s.initialize()
	s.publish()

	for {
		select {
		case <-s.ctx.Done():
			return
		case cmd := <-s.cmds:
			if s.ctx.Err() != nil {
				return
			}
			cmd()
		case apply := <-s.results:
			if s.ctx.Err() != nil {
				return
			}
			apply()
		case ev, ok := <-s.events:
			if s.ctx.Err() != nil {
				return
			}
			if !ok {
				s.events = nil
				continue
			}
			s.handleEvent(ev)
		}
		s.publish()
	}
}

// async runs call off the loop and applies its result on the loop, unless
// the session has stopped by then.
func (s *Session) async(call func(ctx context.Context) func()) {
	go func() {
		apply := call(s.ctx)
		if apply == nil {
			return
		}
		select {
		case s.results <- apply:
		case <-s.ctx.Done():
		}
	}()
}

func (s *Session) initialize() {
	s.loading = true
	s.generation++
	gen := s.generation
	itemID := s.role.Item.ID

	if s.role.IsReporter {
		s.async(func(ctx context.Context) func() {
			rooms, err := s.deps.Rooms.ListRoomsForReporter(ctx, itemID)
			return func() {
				if gen != s.generation {
					return
				}
				s.loading = false
				if err != nil {
					slog.ErrorContext(ctx, "failed to load reporter rooms", "item_id", itemID, "error", err)
					s.fail(ErrorInitialization, "error_initialization", true)
					return
				}
				s.rooms = rooms
				if len(rooms) > 0 {
					s.selectRoom(rooms[0])
				}
			}
		})
		return
	}

	claimerID := s.role.Identity.ID
	s.async(func(ctx context.Context) func() {
		room, err := s.deps.Rooms.OpenRoom(ctx, itemID, claimerID)
		return func() {
			if gen != s.generation {
				return
			}
			s.loading = false
			if err != nil {
				slog.ErrorContext(ctx, "failed to open claim room", "item_id", itemID, "claimer_id", claimerID, "error", err)
				if errors.Is(err, claims.ErrRoomCreationFailed) {
					s.fail(ErrorCreation, "error_creation", true)
				} else {
					s.fail(ErrorInitialization, "error_initialization", true)
				}
				return
			}
			s.rooms = []models.ClaimRoom{*room}
			s.selectRoom(*room)
		}
	})
}

// selectRoom subscribes to room before loading its history, so nothing
// inserted in between is missed; the history is merged by id.
func (s *Session) selectRoom(room models.ClaimRoom) {
	if s.room != nil && s.room.ID == room.ID {
		return
	}

	s.outbox.Reset(room.ID)
	selected := room
	s.room = &selected

	events, err := s.dispatcher.Switch(s.ctx, room.ID)
	if err != nil {
		s.events = nil
		s.room = nil
		if s.ctx.Err() == nil {
			slog.ErrorContext(s.ctx, "failed to subscribe to room", "room_id", room.ID, "error", err)
			s.fail(ErrorInitialization, "error_initialization", true)
		}
		return
	}
	s.events = events

	s.loading = true
	s.generation++
	gen := s.generation
	roomID := room.ID
	s.async(func(ctx context.Context) func() {
		history, err := s.deps.Messages.ListMessages(ctx, roomID)
		return func() {
			if gen != s.generation {
				return
			}
			s.loading = false
			if err != nil {
				slog.ErrorContext(ctx, "failed to load room history", "room_id", roomID, "error", err)
				s.fail(ErrorLoad, "error_load", false)
				return
			}
			s.outbox.Merge(history)
		}
	})
}

func (s *Session) send(body string) {
	if s.room == nil {
		s.fail(ErrorSend, "error_send", false)
		return
	}
	placeholder, ok := s.outbox.Submit(s.role.Identity.ID, body, time.Now())
	if !ok {
		return
	}

	roomID := s.room.ID
	sender := s.role.Identity
	s.async(func(ctx context.Context) func() {
		msg, err := s.deps.Messages.Send(ctx, roomID, sender, body)
		return func() {
			if s.outbox.RoomID() != roomID {
				return
			}
			if err != nil {
				slog.WarnContext(ctx, "message send failed", "room_id", roomID, "error", err)
				s.outbox.Fail(placeholder.ID)
				s.fail(ErrorSend, "error_send", false)
				return
			}
			s.outbox.Complete(placeholder.ID, msg)
		}
	})
}

func (s *Session) approve() {
	if s.room == nil {
		s.fail(ErrorApproval, "error_approval", false)
		return
	}
	roomID := s.room.ID
	viewer := s.role.Identity
	s.async(func(ctx context.Context) func() {
		room, err := s.deps.Rooms.SetApprovalStatus(ctx, roomID, viewer)
		return func() {
			if err != nil {
				slog.WarnContext(ctx, "room approval failed", "room_id", roomID, "error", err)
				s.fail(ErrorApproval, "error_approval", false)
				return
			}
			s.applyRoom(room)
		}
	})
}

func (s *Session) handleEvent(ev models.Event) {
	if s.room == nil || ev.RoomID != s.room.ID {
		return
	}
	switch ev.Type {
	case models.EventMessageInserted:
		if ev.Message != nil {
			s.outbox.Confirm(*ev.Message)
		}
	case models.EventRoomUpdated:
		if ev.Room != nil {
			s.applyRoom(*ev.Room)
		}
	default:
		slog.Debug("ignoring unknown room event", "type", ev.Type, "room_id", ev.RoomID)
	}
}

// applyRoom merges a fresher copy of a room into the list and the current room.
func (s *Session) applyRoom(incoming models.ClaimRoom) {
	for i := range s.rooms {
		if s.rooms[i].ID == incoming.ID {
			s.rooms[i] = claims.Merge(s.rooms[i], incoming)
		}
	}
	if s.room != nil && s.room.ID == incoming.ID {
		merged := claims.Merge(*s.room, incoming)
		s.room = &merged
	}
}

func (s *Session) fail(kind ErrorKind, key string, retryable bool) {
	msg := key
	if s.deps.Texts != nil {
		msg = s.deps.Texts.GetString(s.deps.Lang, key)
	}
	s.viewErr = &ViewError{Kind: kind, Message: msg, Retryable: retryable}
}

func (s *Session) buildState() State {
	st := State{
		ItemID:     s.role.Item.ID,
		ItemName:   s.role.Item.Name,
		Viewer:     s.role.Identity,
		IsReporter: s.role.IsReporter,
		Rooms:      append([]models.ClaimRoom(nil), s.rooms...),
		Messages:   s.outbox.Messages(),
		Loading:    s.loading,
	}
	if s.room != nil {
		room := *s.room
		st.Room = &room
	}
	if s.viewErr != nil {
		e := *s.viewErr
		st.Error = &e
	}
	st.ContactInfo, st.ContactVisible = claims.VisibleContactInfo(st.Room, s.role.Item.ContactProjection(), s.role.Identity.ID)
	return st
}

func (s *Session) publish() {
	st := s.buildState()
	s.snapshot.Store(&st)
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
