package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/service/sse"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stream"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/ui"
)

var (
	serverFlag string

	watchCmd = &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Follow the event stream of a session on a running server",
		Long:  longWatch,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			printer := ui.NewPrinter(os.Stdout)

			err := sse.NewClient(serverFlag, args[0]).Subscribe(ctx, func(ev stream.Event) {
				if err := printer.Emit(ctx, ev); err != nil {
					log.Error("failed to print event", "error", err)
				}
			})

			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		},
	}
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&serverFlag, "server", "s", "http://localhost:3210", "Base URL of the server")
}

var longWatch = `
Follow a session served by 'agentsdk serve' and print its events as they
arrive: thinking steps, streamed replies, tool calls and new memories.

Examples:
  agentsdk watch 3f6c2a9e-4d1b-4c55-9d0e-1f2a3b4c5d6e --server http://localhost:3210
`
