package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/blackmichael/wish-lanterns/internal/config"
	"github.com/blackmichael/wish-lanterns/internal/domain"
	"github.com/gorilla/websocket"
)

// maxBodyBytes bounds request bodies; a wish is at most a few hundred bytes.
const maxBodyBytes = 4 << 10

// Server is the HTTP server that exposes the wish store, its realtime feed,
// and the board's derived views.
type Server struct {
	cfg        *config.Config
	store      domain.WishStore
	board      *domain.Board
	logger     *slog.Logger
	metrics    *metrics
	limiter    *limiterPool
	upgrader   websocket.Upgrader
	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates a new HTTP server over the given store. board must be a
// Board mirroring the same store; the caller is responsible for running it.
func NewServer(cfg *config.Config, store domain.WishStore, board *domain.Board, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		board:   board,
		logger:  logger,
		metrics: newMetrics(board),
		limiter: newLimiterPool(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/wishes", s.handleListWishes)
	mux.HandleFunc("POST /api/wishes", s.handleCreateWish)
	mux.HandleFunc("PATCH /api/wishes/{id}", s.handleBurnWish)
	mux.HandleFunc("GET /api/board", s.handleBoard)
	mux.HandleFunc("GET /realtime", s.handleRealtime)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.handler())

	s.handler = withLogging(logger, mux)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the server's routes, wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListWishes(w http.ResponseWriter, r *http.Request) {
	wishes, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list wishes", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to list wishes")
		return
	}
	writeJSON(w, http.StatusOK, wishes)
}

func (s *Server) handleCreateWish(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientKey(r)) {
		s.metrics.requestsLimited.Inc()
		s.logger.Warn("wish submission rate limited", "client", clientKey(r))
		writeError(w, http.StatusTooManyRequests, "RateLimited", "too many wishes, slow down")
		return
	}

	var nw domain.NewWish
	if err := decodeJSON(w, r, &nw); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	if err := nw.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	wish, err := s.store.Insert(r.Context(), nw)
	if err != nil {
		s.logger.Error("failed to insert wish", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to create wish")
		return
	}

	s.metrics.wishesInserted.Inc()
	s.logger.Info("wish created", "id", wish.ID, "content_preview", truncate(wish.Content, 40))
	writeJSON(w, http.StatusCreated, wish)
}

func (s *Server) handleBurnWish(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// An empty body, chunked or not, burns at server time.
	var patch domain.WishPatch
	if err := decodeJSON(w, r, &patch); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	if patch.BurnedAt.IsZero() {
		patch.BurnedAt = time.Now().UTC()
	}

	wish, err := s.store.Update(r.Context(), id, patch)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "wish not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to burn wish", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to burn wish")
		return
	}

	if !patch.AppliedTo(wish) {
		s.logger.Debug("wish was already burned", "id", id)
		writeJSON(w, http.StatusOK, wish)
		return
	}

	s.metrics.wishesBurned.Inc()
	s.logger.Info("wish burned", "id", id)
	writeJSON(w, http.StatusOK, wish)
}

// boardResponse is the body of GET /api/board.
type boardResponse struct {
	Active []domain.Wish `json:"active"`
	Recent []domain.Wish `json:"recent"`
	Total  int           `json:"total"`
}

func (s *Server) handleBoard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, boardResponse{
		Active: s.board.Active(),
		Recent: s.board.Recent(),
		Total:  s.board.Total(),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

// truncate returns the first n runes of s, appending "..." if truncated.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the realtime endpoint take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
