package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/blackmichael/wish-lanterns/internal/domain"
	"github.com/dustin/go-humanize"
)

const (
	lanternTextWidth = 40
	shortIDLength    = 8
)

// View is what the terminal shows of a board at one moment.
type View struct {
	Active []domain.Wish
	Recent []domain.Wish
	Total  int
}

// ViewOf snapshots the board's derived views.
func ViewOf(b *domain.Board) View {
	return View{Active: b.Active(), Recent: b.Recent(), Total: b.Total()}
}

// Render writes the board: floating lanterns, the recent list, and the
// running total. now anchors relative times.
func Render(w io.Writer, v View, now time.Time) error {
	ew := &errWriter{w: w}

	ew.printf("Lanterns (%d floating)\n", len(v.Active))
	if len(v.Active) == 0 {
		ew.printf("  the sky is empty\n")
	}
	for _, wish := range v.Active {
		ew.printf("  🏮 %s  (x=%.2f, y=%.2f)  #%s\n",
			clip(wish.Content, lanternTextWidth), wish.PositionX, wish.PositionY, shortID(wish.ID))
	}

	if len(v.Recent) > 0 {
		ew.printf("\nRecent wishes\n")
		for _, wish := range v.Recent {
			byline := ""
			if !wish.IsAnonymous() {
				byline = " - " + wish.Author
			}
			ew.printf("  • %s%s  %s\n",
				clip(wish.Content, lanternTextWidth), byline, humanize.RelTime(wish.CreatedAt, now, "ago", "from now"))
		}
	}

	ew.printf("\n%s wishes have risen to the sky so far\n", humanize.Comma(int64(v.Total)))
	return ew.err
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func shortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}

// errWriter remembers the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
