package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blackmichael/wish-lanterns/internal/domain"
	"github.com/blackmichael/wish-lanterns/internal/realtime"
	"github.com/lib/pq"
)

// notifyChannel is the LISTEN/NOTIFY channel the wishes trigger writes to.
const notifyChannel = "wishes_changes"

const schema = `
CREATE TABLE IF NOT EXISTS wishes (
  id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  content     TEXT NOT NULL,
  author      TEXT,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
  burned_at   TIMESTAMPTZ,
  position_x  DOUBLE PRECISION NOT NULL DEFAULT 0,
  position_y  DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_wishes_created_at ON wishes (created_at DESC);

CREATE OR REPLACE FUNCTION notify_wish_change() RETURNS trigger AS $$
BEGIN
  PERFORM pg_notify('wishes_changes', json_build_object(
    'table', TG_TABLE_NAME,
    'eventType', TG_OP,
    'new', CASE WHEN TG_OP = 'DELETE' THEN NULL ELSE row_to_json(NEW) END,
    'old', CASE WHEN TG_OP = 'INSERT' THEN NULL ELSE json_build_object('id', OLD.id) END
  )::text);
  RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS wishes_notify ON wishes;
CREATE TRIGGER wishes_notify
  AFTER INSERT OR UPDATE OR DELETE ON wishes
  FOR EACH ROW EXECUTE FUNCTION notify_wish_change();
`

const returningColumns = `id, content, author, created_at, burned_at, position_x, position_y`

// Repository implements domain.WishStore using PostgreSQL. Change events come
// from a row trigger through LISTEN/NOTIFY, so writes made by any process
// reach every subscriber.
type Repository struct {
	db          *sql.DB
	databaseURL string
	logger      *slog.Logger
}

// NewRepository connects to PostgreSQL at the given URL, verifies the
// connection, installs the schema and trigger, and returns a new Repository.
// The caller should call Close when the repository is no longer needed.
func NewRepository(databaseURL string, logger *slog.Logger) (*Repository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Repository{db: db, databaseURL: databaseURL, logger: logger}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// List returns every wish, newest first.
func (r *Repository) List(ctx context.Context) ([]domain.Wish, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+returningColumns+`
		FROM wishes
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, domain.NewStoreError("list", fmt.Errorf("query wishes: %w", err))
	}
	defer rows.Close()

	wishes := []domain.Wish{}
	for rows.Next() {
		w, err := scanWish(rows)
		if err != nil {
			return nil, domain.NewStoreError("list", err)
		}
		wishes = append(wishes, w)
	}

	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("list", fmt.Errorf("iterate wishes: %w", err))
	}
	return wishes, nil
}

// Insert creates a wish; the database assigns id and created_at.
func (r *Repository) Insert(ctx context.Context, nw domain.NewWish) (domain.Wish, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO wishes (content, author, position_x, position_y)
		VALUES ($1, $2, $3, $4)
		RETURNING `+returningColumns,
		nw.Content, sql.NullString{String: nw.Author, Valid: nw.Author != ""}, nw.PositionX, nw.PositionY,
	)

	w, err := scanWish(row)
	if err != nil {
		return domain.Wish{}, domain.NewStoreError("insert", fmt.Errorf("insert wish: %w", err))
	}
	return w, nil
}

// Update sets burned_at unless it is already set. Burning a burned wish
// touches no row, so the trigger sends no notification.
func (r *Repository) Update(ctx context.Context, id string, patch domain.WishPatch) (domain.Wish, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE wishes SET burned_at = $1
		WHERE id::text = $2 AND burned_at IS NULL
		RETURNING `+returningColumns,
		patch.BurnedAt.UTC(), id,
	)

	w, err := scanWish(row)
	if errors.Is(err, sql.ErrNoRows) {
		w, err = r.get(ctx, id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Wish{}, domain.NewStoreError("update", fmt.Errorf("update wish %s: %w", id, domain.ErrNotFound))
	}
	if err != nil {
		return domain.Wish{}, domain.NewStoreError("update", fmt.Errorf("update wish %s: %w", id, err))
	}
	return w, nil
}

func (r *Repository) get(ctx context.Context, id string) (domain.Wish, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+returningColumns+` FROM wishes WHERE id::text = $1`, id)
	return scanWish(row)
}

// Delete removes a wish by id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM wishes WHERE id::text = $1`, id)
	if err != nil {
		return domain.NewStoreError("delete", fmt.Errorf("delete wish %s: %w", id, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewStoreError("delete", fmt.Errorf("delete wish %s: %w", id, domain.ErrNotFound))
	}
	return nil
}

// Subscribe opens a dedicated LISTEN connection for the wishes channel.
func (r *Repository) Subscribe(ctx context.Context) (domain.Subscription, error) {
	listener := pq.NewListener(r.databaseURL, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				r.logger.Warn("postgres listener event", "event", ev, "error", err)
			}
		},
	)

	if err := listener.Listen(notifyChannel); err != nil {
		listener.Close()
		return nil, domain.NewStoreError("subscribe", fmt.Errorf("listen %s: %w", notifyChannel, err))
	}

	sub := &listenSubscription{
		listener: listener,
		events:   make(chan domain.ChangeEvent, realtime.DefaultBuffer),
		done:     make(chan struct{}),
		logger:   r.logger,
	}
	go sub.run(ctx)
	return sub, nil
}

type listenSubscription struct {
	listener *pq.Listener
	events   chan domain.ChangeEvent
	done     chan struct{}
	once     sync.Once
	logger   *slog.Logger
}

func (s *listenSubscription) Events() <-chan domain.ChangeEvent {
	return s.events
}

func (s *listenSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.listener.Close()
	})
	return err
}

func (s *listenSubscription) run(ctx context.Context) {
	defer close(s.events)

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.done:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			// A nil notification means the connection was re-established
			// and notifications may have been lost. End the feed so the
			// consumer starts over from a full read.
			if n == nil {
				s.logger.Warn("postgres listener reconnected, ending feed")
				s.Close()
				return
			}

			ev, err := realtime.DecodeEvent([]byte(n.Extra))
			if err != nil {
				s.logger.Warn("ignoring malformed notification", "error", err)
				continue
			}

			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWish(s scanner) (domain.Wish, error) {
	var (
		w        domain.Wish
		author   sql.NullString
		burnedAt sql.NullTime
	)
	if err := s.Scan(&w.ID, &w.Content, &author, &w.CreatedAt, &burnedAt, &w.PositionX, &w.PositionY); err != nil {
		return domain.Wish{}, fmt.Errorf("scan wish: %w", err)
	}

	w.Author = author.String
	w.CreatedAt = w.CreatedAt.UTC()
	if burnedAt.Valid {
		t := burnedAt.Time.UTC()
		w.BurnedAt = &t
	}
	return w, nil
}
