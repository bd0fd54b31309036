package realtime

import (
	"log/slog"
	"testing"

	"github.com/blackmichael/wish-lanterns/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_FansOutInOrder(t *testing.T) {
	b := NewBroker(8, slog.New(slog.DiscardHandler))
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer s1.Close()
	defer s2.Close()

	b.Publish(domain.Inserted{Wish: domain.Wish{ID: "a"}})
	b.Publish(domain.Deleted{ID: "a"})

	for _, s := range []*Subscription{s1, s2} {
		first := <-s.Events()
		second := <-s.Events()
		assert.Equal(t, domain.EventInsert, first.Kind())
		assert.Equal(t, domain.EventDelete, second.Kind())
	}
}

func TestBroker_CloseIsIdempotent(t *testing.T) {
	b := NewBroker(1, slog.New(slog.DiscardHandler))
	s := b.Subscribe()
	require.Equal(t, 1, b.Len())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Zero(t, b.Len())
	_, ok := <-s.Events()
	assert.False(t, ok)
}

func TestBroker_DropsSlowSubscriber(t *testing.T) {
	b := NewBroker(1, slog.New(slog.DiscardHandler))
	slow := b.Subscribe()

	b.Publish(domain.Deleted{ID: "1"})
	b.Publish(domain.Deleted{ID: "2"})

	assert.Zero(t, b.Len())
	ev, ok := <-slow.Events()
	require.True(t, ok)
	assert.Equal(t, "1", ev.WishID())
	_, ok = <-slow.Events()
	assert.False(t, ok, "feed ends instead of skipping an event")
	assert.NoError(t, slow.Close())
}

func TestBroker_Shutdown(t *testing.T) {
	b := NewBroker(0, slog.New(slog.DiscardHandler))
	s := b.Subscribe()

	b.Shutdown()

	_, ok := <-s.Events()
	assert.False(t, ok)
	assert.NoError(t, s.Close())
}
