package sqlite

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
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS wishes (
  id          TEXT PRIMARY KEY,
  content     TEXT NOT NULL,
  author      TEXT,
  created_at  INTEGER NOT NULL,
  burned_at   INTEGER,
  position_x  REAL NOT NULL DEFAULT 0,
  position_y  REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_wishes_created_at ON wishes(created_at DESC);
`

const selectColumns = `id, content, author, created_at, burned_at, position_x, position_y`

// Repository implements domain.WishStore on an embedded SQLite database.
// Change events are published after each write commits.
type Repository struct {
	db     *sql.DB
	broker *realtime.Broker
	now    func() time.Time
	logger *slog.Logger

	// writeMu keeps event order equal to commit order.
	writeMu sync.Mutex
}

// NewRepository opens (or creates) the database at path and migrates it.
// The caller should call Close when the repository is no longer needed.
func NewRepository(path string, logger *slog.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection serializes writers and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	return &Repository{
		db:     db,
		broker: realtime.NewBroker(realtime.DefaultBuffer, logger),
		now:    time.Now,
		logger: logger,
	}, nil
}

// Close ends every open subscription and closes the database.
func (r *Repository) Close() error {
	r.broker.Shutdown()
	return r.db.Close()
}

// List returns every wish, newest first.
func (r *Repository) List(ctx context.Context) ([]domain.Wish, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
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

// Insert stores a new wish with a fresh id and creation time.
func (r *Repository) Insert(ctx context.Context, nw domain.NewWish) (domain.Wish, error) {
	w := domain.Wish{
		ID:        uuid.NewString(),
		Content:   nw.Content,
		Author:    nw.Author,
		CreatedAt: r.now().UTC().Truncate(time.Microsecond),
		PositionX: nw.PositionX,
		PositionY: nw.PositionY,
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wishes (id, content, author, created_at, position_x, position_y)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.Content, nullString(w.Author), w.CreatedAt.UnixMicro(), w.PositionX, w.PositionY,
	)
	if err != nil {
		return domain.Wish{}, domain.NewStoreError("insert", fmt.Errorf("insert wish: %w", err))
	}

	r.broker.Publish(domain.Inserted{Wish: w})
	return w, nil
}

// Update sets burned_at unless it is already set, then returns the stored
// row. Burning a burned wish changes nothing and publishes no event.
func (r *Repository) Update(ctx context.Context, id string, patch domain.WishPatch) (domain.Wish, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	res, err := r.db.ExecContext(ctx, `
		UPDATE wishes SET burned_at = ?
		WHERE id = ? AND burned_at IS NULL`,
		patch.BurnedAt.UTC().Truncate(time.Microsecond).UnixMicro(), id,
	)
	if err != nil {
		return domain.Wish{}, domain.NewStoreError("update", fmt.Errorf("update wish %s: %w", id, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Wish{}, domain.NewStoreError("update", fmt.Errorf("update wish %s: %w", id, err))
	}

	w, err := r.get(ctx, id)
	if err != nil {
		return domain.Wish{}, domain.NewStoreError("update", err)
	}

	if n > 0 {
		r.broker.Publish(domain.Updated{Wish: w})
	}
	return w, nil
}

// Delete removes a wish. No board action deletes wishes; this exists for
// operators cleaning up by hand.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	res, err := r.db.ExecContext(ctx, `DELETE FROM wishes WHERE id = ?`, id)
	if err != nil {
		return domain.NewStoreError("delete", fmt.Errorf("delete wish %s: %w", id, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewStoreError("delete", fmt.Errorf("delete wish %s: %w", id, domain.ErrNotFound))
	}

	r.broker.Publish(domain.Deleted{ID: id})
	return nil
}

// Subscribe opens an in-process change feed.
func (r *Repository) Subscribe(_ context.Context) (domain.Subscription, error) {
	return r.broker.Subscribe(), nil
}

// Subscribers returns the number of open change feeds.
func (r *Repository) Subscribers() int {
	return r.broker.Len()
}

func (r *Repository) get(ctx context.Context, id string) (domain.Wish, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM wishes WHERE id = ?`, id)
	w, err := scanWish(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Wish{}, fmt.Errorf("get wish %s: %w", id, domain.ErrNotFound)
	}
	return w, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWish(s scanner) (domain.Wish, error) {
	var (
		w         domain.Wish
		author    sql.NullString
		createdAt int64
		burnedAt  sql.NullInt64
	)
	if err := s.Scan(&w.ID, &w.Content, &author, &createdAt, &burnedAt, &w.PositionX, &w.PositionY); err != nil {
		return domain.Wish{}, fmt.Errorf("scan wish: %w", err)
	}

	w.Author = author.String
	w.CreatedAt = time.UnixMicro(createdAt).UTC()
	if burnedAt.Valid {
		t := time.UnixMicro(burnedAt.Int64).UTC()
		w.BurnedAt = &t
	}
	return w, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
