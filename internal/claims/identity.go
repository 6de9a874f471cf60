package claims

import (
	"claimchat/backend/internal/models"
	"claimchat/backend/internal/storage"
	"context"
	"errors"
	"fmt"
)

// IdentityProvider returns the authenticated caller, if any.
type IdentityProvider interface {
	CurrentIdentity(ctx context.Context) (models.Identity, bool)
}

// ItemDirectory is the read side of the item listings.
type ItemDirectory interface {
	GetItem(ctx context.Context, itemID string) (*models.Item, error)
}

// Role is the caller's relation to one item.
type Role struct {
	Identity   models.Identity
	Item       models.Item
	IsReporter bool
}

type Resolver struct {
	Identities IdentityProvider
	Items      ItemDirectory
}

func NewResolver(identities IdentityProvider, items ItemDirectory) *Resolver {
	return &Resolver{Identities: identities, Items: items}
}

// Resolve determines whether the caller reported itemID or would claim it.
func (r *Resolver) Resolve(ctx context.Context, itemID string) (Role, error) {
	identity, ok := r.Identities.CurrentIdentity(ctx)
	if !ok || identity.ID == "" {
		return Role{}, ErrUnauthenticated
	}

	item, err := r.Items.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Role{}, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
		}
		return Role{}, fmt.Errorf("loading item %s: %w", itemID, err)
	}

	return Role{
		Identity:   identity,
		Item:       *item,
		IsReporter: identity.ID == item.ReporterID,
	}, nil
}
