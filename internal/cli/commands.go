package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/blackmichael/wish-lanterns/internal/domain"
	"github.com/spf13/cobra"
)

const clearScreen = "\033[H\033[2J"

// NewWatchCommand creates the watch command.
func NewWatchCommand(opts *RootOptions) *cobra.Command {
	var noClear bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the board and keep it updated live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			board := opts.newBoard(cmd)

			runErr := make(chan error, 1)
			go func() { runErr <- board.Run(ctx) }()

			for {
				select {
				case err := <-runErr:
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("realtime feed ended: %w", err)
				case <-board.Changed():
					if !noClear {
						fmt.Fprint(out, clearScreen)
					}
					if err := Render(out, ViewOf(board), time.Now()); err != nil {
						return err
					}
				}
			}
		},
	}

	cmd.Flags().BoolVar(&noClear, "no-clear", false, "append frames instead of redrawing the screen")
	return cmd
}

// NewWishCommand creates the wish command.
func NewWishCommand(opts *RootOptions) *cobra.Command {
	var (
		author string
		quiet  bool
	)

	cmd := &cobra.Command{
		Use:   "wish <content>",
		Short: "Launch a wish",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cue := func(domain.Wish) {}
			if !quiet {
				cue = bell(out)
			}
			board := opts.newBoard(cmd, domain.WithCue(cue))

			w, err := board.Submit(cmd.Context(), strings.Join(args, " "), author)
			if errors.Is(err, domain.ErrEmptyContent) {
				return fmt.Errorf("write something to wish for")
			}
			if err != nil {
				return fmt.Errorf("could not launch your wish, please try again: %w", err)
			}

			fmt.Fprintf(out, "🏮 wish launched #%s\n", shortID(w.ID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&author, "author", "a", "", "name shown under the lantern (optional)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not ring the terminal bell")
	return cmd
}

// bell is the audible launch cue.
func bell(w io.Writer) func(domain.Wish) {
	return func(domain.Wish) {
		fmt.Fprint(w, "\a")
	}
}

// NewBurnCommand creates the burn command.
func NewBurnCommand(opts *RootOptions) *cobra.Command {
	var delay time.Duration

	cmd := &cobra.Command{
		Use:   "burn <id>",
		Short: "Burn a lantern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			board := opts.newBoard(cmd)

			if err := board.Initialize(ctx); err != nil {
				return fmt.Errorf("could not load the board: %w", err)
			}

			id, err := resolveID(board, args[0])
			if err != nil {
				return err
			}

			if w, ok := board.Get(id); ok && w.IsBurned() {
				fmt.Fprintf(out, "#%s has already burned\n", shortID(id))
				return nil
			}

			fmt.Fprintf(out, "🔥 burning #%s...\n", shortID(id))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			if err := board.Burn(ctx, id); err != nil {
				return fmt.Errorf("could not burn the lantern: %w", err)
			}
			fmt.Fprintf(out, "✨ #%s burned away\n", shortID(id))
			return nil
		},
	}

	cmd.Flags().DurationVar(&delay, "burn-delay", 1500*time.Millisecond, "length of the burning animation before the lantern is dismissed")
	return cmd
}

// resolveID expands a short id prefix against the loaded board. Unknown ids
// pass through unchanged; the server decides whether they exist.
func resolveID(board *domain.Board, prefix string) (string, error) {
	var matches []string
	for _, w := range board.Wishes() {
		if w.ID == prefix {
			return prefix, nil
		}
		if strings.HasPrefix(w.ID, prefix) {
			matches = append(matches, w.ID)
		}
	}

	switch len(matches) {
	case 0:
		return prefix, nil
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("id %q is ambiguous (%d matches)", prefix, len(matches))
	}
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the board once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			board := opts.newBoard(cmd)
			if err := board.Initialize(cmd.Context()); err != nil {
				return fmt.Errorf("could not load the board: %w", err)
			}
			return Render(cmd.OutOrStdout(), ViewOf(board), time.Now())
		},
	}
}
