package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/blackmichael/wish-lanterns/internal/domain"
	"github.com/blackmichael/wish-lanterns/internal/storeclient"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server  string
	Verbose bool
}

// NewRootCommand creates the root command for the lanterns CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "lanterns",
		Short:         "Send wishes up as lanterns",
		Long:          "A terminal client for the wish lantern board: watch lanterns rise, launch wishes, burn them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", envOrDefault("LANTERNS_SERVER", "http://localhost:3000"), "wish server URL")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewWishCommand(opts))
	cmd.AddCommand(NewBurnCommand(opts))
	cmd.AddCommand(NewListCommand(opts))

	return cmd
}

func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newBoard builds a Board backed by the remote wish server.
func (o *RootOptions) newBoard(cmd *cobra.Command, opts ...domain.BoardOption) *domain.Board {
	logger := o.logger(cmd.ErrOrStderr())
	return domain.NewBoard(storeclient.NewClient(o.Server, logger), logger, opts...)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
