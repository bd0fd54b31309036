package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// AnonymousAuthor is stored in place of a blank author name.
const AnonymousAuthor = "익명"

const (
	// MaxContentLength is the longest wish text, in characters, the board accepts.
	MaxContentLength = 200

	// MaxAuthorLength is the longest author name, in characters.
	MaxAuthorLength = 50
)

// Wish is a single lantern on the board.
type Wish struct {
	// ID is assigned by the store and never changes.
	ID string `json:"id"`

	// Content is the wish text.
	Content string `json:"content"`

	// Author is the display name, AnonymousAuthor when none was given.
	Author string `json:"author"`

	// CreatedAt is set by the store on insert. Wishes are listed newest first.
	CreatedAt time.Time `json:"created_at"`

	// BurnedAt is nil while the lantern is still floating. Once set it is
	// never cleared.
	BurnedAt *time.Time `json:"burned_at"`

	// PositionX and PositionY seed the lantern's starting point, both in [0,1).
	PositionX float64 `json:"position_x"`
	PositionY float64 `json:"position_y"`
}

// IsBurned reports whether the wish has been dismissed.
func (w Wish) IsBurned() bool {
	return w.BurnedAt != nil
}

// IsAnonymous reports whether the author should be hidden when rendering.
func (w Wish) IsAnonymous() bool {
	return w.Author == "" || w.Author == AnonymousAuthor
}

// NewWish is the insert payload sent to a WishStore.
type NewWish struct {
	Content   string  `json:"content"`
	Author    string  `json:"author"`
	PositionX float64 `json:"position_x"`
	PositionY float64 `json:"position_y"`
}

// Validate checks the payload against the board's UI contract.
func (n NewWish) Validate() error {
	if strings.TrimSpace(n.Content) == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(n.Content) > MaxContentLength {
		return ErrContentTooLong
	}
	if utf8.RuneCountInString(n.Author) > MaxAuthorLength {
		return ErrAuthorTooLong
	}
	if n.PositionX < 0 || n.PositionX >= 1 || n.PositionY < 0 || n.PositionY >= 1 {
		return ErrInvalidPosition
	}
	return nil
}

// WishPatch is the update payload sent to a WishStore. Burning is the only
// mutation a wish ever receives.
type WishPatch struct {
	BurnedAt time.Time `json:"burned_at"`
}

// AppliedTo reports whether w carries this patch's burn time, at the
// microsecond precision the stores keep. It is false when w had already
// burned earlier.
func (p WishPatch) AppliedTo(w Wish) bool {
	return w.BurnedAt != nil && w.BurnedAt.Equal(p.BurnedAt.Truncate(time.Microsecond))
}

// authorOrAnonymous maps a blank name to AnonymousAuthor.
func authorOrAnonymous(author string) string {
	author = strings.TrimSpace(author)
	if author == "" {
		return AnonymousAuthor
	}
	return author
}
