package chathub

import (
	"claimchat/backend/internal/claims"
	"context"
	"log/slog"
	"sync/atomic"
)

// ManagerService is the hub: it opens chat sessions and keeps track of the
// live ones so they can all be closed on shutdown.
type ManagerService struct {
	Clients map[Client]struct{}

	RegisterCh   chan Client
	UnregisterCh chan Client

	Resolver *claims.Resolver
	Deps     SessionDeps

	active atomic.Int64
	done   chan struct{}
}

func NewManagerService(resolver *claims.Resolver, deps SessionDeps) *ManagerService {
	return &ManagerService{
		Clients:      make(map[Client]struct{}),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		Resolver:     resolver,
		Deps:         deps,
		done:         make(chan struct{}),
	}
}

// OpenChat resolves the caller's role on itemID and opens a session for it.
// An unauthenticated caller or an unknown item gets an error and no session.
func (m *ManagerService) OpenChat(ctx context.Context, itemID string) (*Session, error) {
	role, err := m.Resolver.Resolve(ctx, itemID)
	if err != nil {
		return nil, err
	}

	session := NewSession(role, m.Deps)
	if !m.Register(ctx, session) {
		session.Close()
		return nil, ErrSessionClosed
	}
	slog.InfoContext(ctx, "chat session opened", "item_id", itemID, "user_id", role.Identity.ID, "reporter", role.IsReporter)
	return session, nil
}

// Register hands c to the hub. It reports false once the hub has stopped.
func (m *ManagerService) Register(ctx context.Context, c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Unregister closes c and forgets it. Unknown clients are closed as well.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
		c.Close()
	}
}

// ActiveClients reports how many clients are registered.
func (m *ManagerService) ActiveClients() int {
	return int(m.active.Load())
}

// Done is closed when Run has returned.
func (m *ManagerService) Done() <-chan struct{} {
	return m.done
}

// Run owns the client set until ctx is cancelled, then closes every client.
func (m *ManagerService) Run(ctx context.Context) {
	slog.Info("chat hub started")
	defer close(m.done)

	for {
		select {
		case c := <-m.RegisterCh:
			m.Clients[c] = struct{}{}
			m.active.Store(int64(len(m.Clients)))
			slog.Debug("client registered", "user_id", c.GetUserID(), "item_id", c.GetItemID())

		case c := <-m.UnregisterCh:
			if _, ok := m.Clients[c]; ok {
				delete(m.Clients, c)
				m.active.Store(int64(len(m.Clients)))
				slog.Debug("client unregistered", "user_id", c.GetUserID(), "item_id", c.GetItemID())
			}
			c.Close()

		case <-ctx.Done():
			m.shutdown()
			return
		}
	}
}

func (m *ManagerService) shutdown() {
	slog.Info("chat hub shutting down", "clients", len(m.Clients))
	for c := range m.Clients {
		c.Close()
		delete(m.Clients, c)
	}
	m.active.Store(0)
}
