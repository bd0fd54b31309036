package httpserver

import (
	"net/http"
	"time"

	"github.com/blackmichael/wish-lanterns/internal/realtime"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	// Non-browser clients send no Origin.
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// handleRealtime streams every change on the wishes table to one WebSocket
// client, one JSON event per text frame.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sub, err := s.store.Subscribe(ctx)
	if err != nil {
		s.logger.Error("failed to subscribe to store", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to open realtime feed")
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.metrics.realtimeClients.Inc()
	defer s.metrics.realtimeClients.Dec()
	s.logger.Info("realtime client connected", "client", clientKey(r))

	// Clients never send data frames; reading only processes control
	// frames and notices when the peer goes away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			s.logger.Info("realtime client disconnected", "client", clientKey(r))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"),
					time.Now().Add(writeWait))
				return
			}

			msg, err := realtime.EncodeEvent(ev)
			if err != nil {
				s.logger.Error("failed to encode event", "error", err)
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Warn("realtime write failed", "error", err)
				return
			}
			s.metrics.realtimeMessages.WithLabelValues(string(ev.Kind())).Inc()
		}
	}
}
