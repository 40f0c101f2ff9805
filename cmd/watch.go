package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/propane/internal/engine"
	"github.com/zjrosen/propane/internal/log"
	"github.com/zjrosen/propane/internal/pubsub"
)

var watchLogs bool

var registryWatchCmd = &cobra.Command{
	Use:   "registry:watch",
	Short: "Rebuild the registry whenever manifests change",
	Long: `Build the registry, then watch the manifest directories and rebuild after
every change. Each rebuild prints one line. A failed rebuild prints its
errors and the previous registry stays current.

Set flags.watch-store to also rebuild when the manifest store changes.
With --logs, engine log lines (info and above, or everything with --debug)
are printed between the rebuild lines.

Example:
  propane registry:watch -m ./manifests
  propane registry:watch --logs`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, asm, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = asm.Close() }()
		defer e.Close()

		var logs <-chan pubsub.Event[string]
		if watchLogs {
			if logs = log.Subscribe(ctx); logs == nil {
				cleanup := log.InitWriter(io.Discard, log.LevelInfo)
				defer cleanup()
				logs = log.Subscribe(ctx)
			}
		}

		out := cmd.OutOrStdout()
		events := e.Broker().Subscribe(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case line, ok := <-logs:
					if !ok {
						logs = nil
						continue
					}
					_, _ = fmt.Fprint(out, "log: ", line.Payload)
				case ev, ok := <-events:
					if !ok {
						return
					}
					printRebuild(out, ev)
				}
			}
		}()

		// A failed first build is reported like any other; watching continues.
		_, _ = e.Reload(ctx)

		err = e.Watch(ctx)
		stop()
		<-done
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func printRebuild(out io.Writer, ev pubsub.Event[engine.Event]) {
	switch ev.Type {
	case pubsub.RebuiltEvent:
		snap := ev.Payload.Snapshot
		_, _ = fmt.Fprintf(out, "%s rebuilt %s: %d contracts, %d bindings, %d warnings\n",
			ev.Timestamp.Format("15:04:05"), snap.ID,
			snap.Registry.Len(), snap.Registry.BindingCount(), len(snap.Warnings))
	case pubsub.RebuildFailedEvent:
		_, _ = fmt.Fprintf(out, "%s rebuild failed: %v\n", ev.Timestamp.Format("15:04:05"), ev.Payload.Err)
	}
}

func init() {
	registryWatchCmd.Flags().BoolVar(&watchLogs, "logs", false, "print engine log lines next to rebuild events")
	rootCmd.AddCommand(registryWatchCmd)
}
