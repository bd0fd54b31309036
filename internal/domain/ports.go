package domain

import (
	"context"
)

// WishTable is the name of the table every store and change feed serves.
const WishTable = "wishes"

// WishStore is the source of truth for wishes. Every failure it returns is a
// *StoreError.
type WishStore interface {
	// List returns every wish ordered by CreatedAt descending.
	List(ctx context.Context) ([]Wish, error)

	// Insert creates a wish. The store assigns ID and CreatedAt. Subscribers
	// learn about the new row through their own change feed.
	Insert(ctx context.Context, wish NewWish) (Wish, error)

	// Update applies patch to the wish with the given id. A burn timestamp
	// that is already set is kept. Returns ErrNotFound (wrapped) for an
	// unknown id.
	Update(ctx context.Context, id string, patch WishPatch) (Wish, error)

	// Subscribe opens a live feed of row changes. The caller must Close it.
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is a live change feed for the wishes table.
type Subscription interface {
	// Events delivers changes in the order the store committed them. The
	// channel is closed when the feed ends.
	Events() <-chan ChangeEvent

	// Close releases the feed. It is safe to call more than once.
	Close() error
}
