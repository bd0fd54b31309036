package domain

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// RecentLimit is the number of wishes in the Recent view.
const RecentLimit = 5

// Board is the core domain service. It keeps a local, ordered copy of the
// wishes in a WishStore: a full fetch on start, then one change event at a
// time from a live subscription. Board never writes its own collection from
// Submit or Burn; it waits for the store to echo the change back.
type Board struct {
	store  WishStore
	logger *slog.Logger

	cue    func(Wish)
	now    func() time.Time
	random func() float64

	mu     sync.RWMutex
	wishes []Wish

	changed chan struct{}
}

// BoardOption configures a Board.
type BoardOption func(*Board)

// WithCue sets the side effect run once after each successful Submit.
func WithCue(cue func(Wish)) BoardOption {
	return func(b *Board) { b.cue = cue }
}

// WithClock replaces time.Now for burn timestamps.
func WithClock(now func() time.Time) BoardOption {
	return func(b *Board) { b.now = now }
}

// WithRandom replaces the source of lantern start positions. The function
// must return values in [0,1).
func WithRandom(random func() float64) BoardOption {
	return func(b *Board) { b.random = random }
}

// NewBoard creates an empty Board backed by store.
func NewBoard(store WishStore, logger *slog.Logger, opts ...BoardOption) *Board {
	b := &Board{
		store:   store,
		logger:  logger,
		cue:     func(Wish) {},
		now:     time.Now,
		random:  rand.Float64,
		changed: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run subscribes to the store, loads the current wishes, and then applies
// change events until ctx is cancelled or the feed ends. A failed initial
// load is logged and leaves the board empty; the subscription keeps running.
// The subscription is released before Run returns.
func (b *Board) Run(ctx context.Context) error {
	sub, err := b.store.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Close()

	// Subscribing first means nothing committed after the fetch is missed.
	// Anything delivered twice is absorbed by Apply.
	_ = b.Initialize(ctx)

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrSubscriptionClosed
			}
			b.Apply(ev)
		}
	}
}

// Sync keeps the board in step with the store until ctx is cancelled. Each
// time the feed ends, Sync waits retry and calls Run again; the new
// subscription and full load recover anything missed in between.
func (b *Board) Sync(ctx context.Context, retry time.Duration) error {
	for {
		err := b.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logger.Warn("change feed ended, resynchronizing", "error", err, "retry", retry)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}

// Initialize replaces the local collection with a full read from the store.
// On failure the collection is left empty and the error is returned. There
// is no retry.
func (b *Board) Initialize(ctx context.Context) error {
	wishes, err := b.store.List(ctx)
	if err != nil {
		b.logger.Error("failed to load wishes", "error", err)
		b.replace(nil)
		return fmt.Errorf("load wishes: %w", err)
	}

	b.replace(wishes)
	b.logger.Info("wishes loaded", "count", len(wishes))
	return nil
}

func (b *Board) replace(wishes []Wish) {
	b.mu.Lock()
	b.wishes = append([]Wish(nil), wishes...)
	b.mu.Unlock()
	b.notify()
}

// Apply reconciles a single change event into the local collection.
// Events without an id are ignored.
func (b *Board) Apply(ev ChangeEvent) {
	if ev == nil || ev.WishID() == "" {
		b.logger.Warn("ignoring malformed change event", "event", ev)
		return
	}

	b.mu.Lock()
	changed := false
	switch e := ev.(type) {
	case Inserted:
		// A row already present was picked up by the initial fetch.
		if i := b.indexOf(e.Wish.ID); i >= 0 {
			b.wishes[i] = e.Wish
		} else {
			b.wishes = append(b.wishes, e.Wish)
		}
		changed = true
	case Updated:
		if i := b.indexOf(e.Wish.ID); i >= 0 {
			b.wishes[i] = e.Wish
			changed = true
		}
	case Deleted:
		if i := b.indexOf(e.ID); i >= 0 {
			b.wishes = append(b.wishes[:i], b.wishes[i+1:]...)
			changed = true
		}
	default:
		b.logger.Warn("ignoring unknown change event", "kind", ev.Kind())
	}
	b.mu.Unlock()

	b.logger.Debug("change event applied", "kind", ev.Kind(), "id", ev.WishID(), "changed", changed)
	if changed {
		b.notify()
	}
}

// indexOf must be called with b.mu held.
func (b *Board) indexOf(id string) int {
	for i := range b.wishes {
		if b.wishes[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Board) notify() {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}

// Changed signals that the collection has changed since the last receive.
// Signals coalesce, so a receiver always re-reads the views afterwards.
func (b *Board) Changed() <-chan struct{} {
	return b.changed
}

// Submit sends a new wish to the store. Content is required; a blank author
// becomes AnonymousAuthor. The local collection is updated only when the
// store's INSERT event arrives. The cue runs once on success.
func (b *Board) Submit(ctx context.Context, content, author string) (Wish, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Wish{}, ErrEmptyContent
	}

	wish, err := b.store.Insert(ctx, NewWish{
		Content:   content,
		Author:    authorOrAnonymous(author),
		PositionX: b.random(),
		PositionY: b.random(),
	})
	if err != nil {
		b.logger.Error("failed to submit wish", "error", err)
		return Wish{}, fmt.Errorf("submit wish: %w", err)
	}

	b.logger.Info("wish submitted", "id", wish.ID)
	b.cue(wish)
	return wish, nil
}

// Burn marks the wish as dismissed. A wish the board already knows is burned
// is left alone. The local collection is updated only when the store's
// UPDATE event arrives.
func (b *Board) Burn(ctx context.Context, id string) error {
	if w, ok := b.Get(id); ok && w.IsBurned() {
		b.logger.Debug("wish already burned", "id", id)
		return nil
	}

	if _, err := b.store.Update(ctx, id, WishPatch{BurnedAt: b.now().UTC()}); err != nil {
		b.logger.Error("failed to burn wish", "id", id, "error", err)
		return fmt.Errorf("burn wish %s: %w", id, err)
	}

	b.logger.Info("wish burned", "id", id)
	return nil
}

// Get returns the local copy of the wish with the given id.
func (b *Board) Get(id string) (Wish, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i := b.indexOf(id); i >= 0 {
		return b.wishes[i], true
	}
	return Wish{}, false
}

// Wishes returns a copy of the full collection in its current order.
func (b *Board) Wishes() []Wish {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Wish(nil), b.wishes...)
}

// Active returns every wish that has not been burned, in collection order.
func (b *Board) Active() []Wish {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return activeOf(b.wishes)
}

// Recent returns the first RecentLimit active wishes.
func (b *Board) Recent() []Wish {
	active := b.Active()
	if len(active) > RecentLimit {
		active = active[:RecentLimit]
	}
	return active
}

// Total returns the number of wishes ever launched, burned ones included.
func (b *Board) Total() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.wishes)
}

func activeOf(wishes []Wish) []Wish {
	active := make([]Wish, 0, len(wishes))
	for _, w := range wishes {
		if !w.IsBurned() {
			active = append(active, w)
		}
	}
	return active
}
