package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/blackmichael/wish-lanterns/internal/domain"
	"github.com/gorilla/websocket"
)

const statsInterval = 30 * time.Second

// Subscriber connects to a wish server's realtime endpoint.
type Subscriber struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewSubscriber creates a subscriber for the given realtime URL. http and
// https URLs are rewritten to ws and wss.
func NewSubscriber(realtimeURL string, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		url:    toWebSocketURL(realtimeURL),
		dialer: websocket.DefaultDialer,
		logger: logger,
	}
}

func toWebSocketURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String()
}

// Subscribe dials the feed and returns a subscription that delivers decoded
// events until the connection drops, ctx is cancelled, or Close is called.
// There is no reconnect.
func (s *Subscriber) Subscribe(ctx context.Context) (domain.Subscription, error) {
	s.logger.Info("connecting to realtime feed", "url", s.url)

	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime feed: %w", err)
	}

	s.logger.Info("connected to realtime feed")

	sub := &remoteSubscription{
		conn:   conn,
		events: make(chan domain.ChangeEvent, DefaultBuffer),
		done:   make(chan struct{}),
		logger: s.logger,
	}
	go sub.read()
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

type remoteSubscription struct {
	conn   *websocket.Conn
	events chan domain.ChangeEvent
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (r *remoteSubscription) Events() <-chan domain.ChangeEvent {
	return r.events
}

func (r *remoteSubscription) Close() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		err = r.conn.Close()
	})
	return err
}

func (r *remoteSubscription) read() {
	defer close(r.events)

	var eventsReceived, eventsIgnored int64
	lastStatsLog := time.Now()

	for {
		_, message, err := r.conn.ReadMessage()
		if err != nil {
			select {
			case <-r.done:
			default:
				r.logger.Error("realtime feed read failed", "error", err)
			}
			return
		}

		ev, err := DecodeEvent(message)
		if err != nil {
			eventsIgnored++
			r.logger.Warn("ignoring malformed realtime event", "error", err, "payload", truncate(string(message), 200))
			continue
		}
		eventsReceived++

		select {
		case r.events <- ev:
		case <-r.done:
			return
		}

		if time.Since(lastStatsLog) >= statsInterval {
			r.logger.Info("realtime stats",
				"events_received", eventsReceived,
				"events_ignored", eventsIgnored,
			)
			lastStatsLog = time.Now()
		}
	}
}

// truncate returns the first n bytes of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "..."
}
