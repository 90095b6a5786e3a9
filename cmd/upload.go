package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/layouttiler/internal/config"
	"github.com/kiesman99/layouttiler/internal/pyramid"
	"github.com/kiesman99/layouttiler/internal/run"
)

// progressInterval is how often the CLI polls the run state.
const progressInterval = 250 * time.Millisecond

var uploadCmd = &cobra.Command{
	Use:   "upload <image>",
	Short: "Build the tile pyramid for an image and upload it",
	Long: `Build the deep zoom tile pyramid for an image and upload every tile to the
layout service, then register the layout path with its maximum zoom level.

Press Ctrl-C to cancel. The run stops before the next tile; the tile being
uploaded at that moment finishes first.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.FromViper(viper.GetViper(), args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := run.NewManager(run.Options{Logger: &logger})

	printerCtx, stopPrinter := context.WithCancel(ctx)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printProgress(printerCtx, cmd.ErrOrStderr(), manager.State())
	}()

	outcome, err := manager.Run(ctx, cfg)
	stopPrinter()
	<-printed

	if err != nil {
		if errors.Is(err, pyramid.ErrCancelled) {
			fmt.Fprintln(cmd.ErrOrStderr(), pyramid.StatusCancelled)
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, outcome.Message)
	fmt.Fprintf(out, "Layout path: %s\n", outcome.LayoutPath)
	fmt.Fprintf(out, "Uploaded %d tiles (%s)\n", outcome.Tiles, humanize.Bytes(uint64(outcome.Bytes)))
	return nil
}

// printProgress writes the status line whenever the snapshot changes.
func printProgress(ctx context.Context, w io.Writer, state *run.State) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	var last run.Update
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p, ok := state.Progress()
		if !ok || p == last {
			continue
		}
		last = p
		fmt.Fprintf(w, "%3d%%: %s\n", p.Percentage, p.Status)
	}
}
