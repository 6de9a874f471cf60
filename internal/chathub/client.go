package chathub

// Client is anything the hub keeps alive for a user: a bare chat session or a
// transport bound to one (e.g. a WebSocket).
type Client interface {
	// GetUserID returns the identity the client acts for.
	GetUserID() string
	// GetItemID returns the item whose chat the client has open.
	GetItemID() string
	// Close releases the client's room subscription and connection. It must be
	// safe to call more than once.
	Close()
}

func (s *Session) GetUserID() string { return s.role.Identity.ID }
func (s *Session) GetItemID() string { return s.role.Item.ID }
