package sqlite

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/blackmichael/wish-lanterns/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "wishes.db"), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func stepClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		t := next
		next = next.Add(time.Second)
		return t
	}
}

func TestRepository_InsertAndListNewestFirst(t *testing.T) {
	repo := openTestRepo(t)
	repo.now = stepClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for _, content := range []string{"first", "second", "third"} {
		_, err := repo.Insert(ctx, domain.NewWish{Content: content, Author: domain.AnonymousAuthor, PositionX: 0.1, PositionY: 0.9})
		require.NoError(t, err)
	}

	wishes, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, wishes, 3)
	assert.Equal(t, "third", wishes[0].Content)
	assert.Equal(t, "second", wishes[1].Content)
	assert.Equal(t, "first", wishes[2].Content)
	assert.Equal(t, domain.AnonymousAuthor, wishes[0].Author)
	assert.Equal(t, 0.1, wishes[0].PositionX)
	assert.Equal(t, 0.9, wishes[0].PositionY)
	assert.Nil(t, wishes[0].BurnedAt)
}

func TestRepository_ListEmpty(t *testing.T) {
	repo := openTestRepo(t)

	wishes, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, wishes)
}

func TestRepository_UpdateBurnsOnce(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	w, err := repo.Insert(ctx, domain.NewWish{Content: "burn me"})
	require.NoError(t, err)

	sub, err := repo.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err := repo.Update(ctx, w.ID, domain.WishPatch{BurnedAt: first})
	require.NoError(t, err)
	require.NotNil(t, got.BurnedAt)
	assert.True(t, first.Equal(*got.BurnedAt))

	// A second burn keeps the original timestamp.
	got, err = repo.Update(ctx, w.ID, domain.WishPatch{BurnedAt: first.Add(time.Hour)})
	require.NoError(t, err)
	assert.True(t, first.Equal(*got.BurnedAt))

	// Only the first burn is published.
	require.IsType(t, domain.Updated{}, <-sub.Events())
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event after second burn: %#v", ev)
	default:
	}
}

func TestRepository_UpdateUnknownID(t *testing.T) {
	repo := openTestRepo(t)

	_, err := repo.Update(context.Background(), "nope", domain.WishPatch{BurnedAt: time.Now()})

	var se *domain.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "update", se.Op)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepository_SubscribeSeesCommittedChanges(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	sub, err := repo.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	w, err := repo.Insert(ctx, domain.NewWish{Content: "hello", Author: domain.AnonymousAuthor})
	require.NoError(t, err)
	_, err = repo.Update(ctx, w.ID, domain.WishPatch{BurnedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, w.ID))

	ins := <-sub.Events()
	upd := <-sub.Events()
	del := <-sub.Events()

	require.IsType(t, domain.Inserted{}, ins)
	assert.Equal(t, w, ins.(domain.Inserted).Wish)
	require.IsType(t, domain.Updated{}, upd)
	assert.True(t, upd.(domain.Updated).Wish.IsBurned())
	assert.Equal(t, domain.Deleted{ID: w.ID}, del)
}

func TestRepository_DeleteUnknownID(t *testing.T) {
	repo := openTestRepo(t)

	err := repo.Delete(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepository_BoardMirrorsStore(t *testing.T) {
	repo := openTestRepo(t)
	board := domain.NewBoard(repo, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go board.Run(ctx)

	// Wait for the subscription so no insert is missed.
	require.Eventually(t, func() bool { return repo.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	w, err := board.Submit(ctx, "hello", "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return board.Total() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, board.Burn(ctx, w.ID))
	require.Eventually(t, func() bool { return len(board.Active()) == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, board.Total())

	require.NoError(t, repo.Delete(ctx, w.ID))
	require.Eventually(t, func() bool { return board.Total() == 0 }, time.Second, 5*time.Millisecond)
}

func TestNewRepository_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wishes.db")
	logger := slog.New(slog.DiscardHandler)

	repo, err := NewRepository(path, logger)
	require.NoError(t, err)
	_, err = repo.Insert(context.Background(), domain.NewWish{Content: "persisted"})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = NewRepository(path, logger)
	require.NoError(t, err)
	defer repo.Close()

	wishes, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, wishes, 1)
	assert.Equal(t, "persisted", wishes[0].Content)
}

func TestRepository_BoardResyncsAfterFeedEnds(t *testing.T) {
	repo := openTestRepo(t)
	board := domain.NewBoard(repo, slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go board.Sync(ctx, 10*time.Millisecond)

	require.Eventually(t, func() bool { return repo.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	_, err := repo.Insert(ctx, domain.NewWish{Content: "before"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return board.Total() == 1 }, time.Second, 5*time.Millisecond)

	// End the feed, then write while the board has no subscription.
	repo.broker.Shutdown()
	_, err = repo.Insert(ctx, domain.NewWish{Content: "while down"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return board.Total() == 2 }, 2*time.Second, 5*time.Millisecond)

	// The new subscription is live again.
	require.Eventually(t, func() bool { return repo.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	_, err = repo.Insert(ctx, domain.NewWish{Content: "after"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return board.Total() == 3 }, time.Second, 5*time.Millisecond)
}
