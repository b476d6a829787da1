package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/app"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/service/sse"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stream"
)

var (
	sseAddrFlag string

	mcpCmd = &cobra.Command{
		Use:   "mcp",
		Short: "Serve the memory tools over MCP",
		Long:  longMCP,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()

			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			engine, err := app.New(ctx, cfg, stream.EmitterFunc(func(context.Context, stream.Event) error {
				return nil
			}))

			if err != nil {
				return err
			}

			defer engine.Close()
			engine.Start(ctx)

			srv := server.NewMCPServer(
				projectName+"-memory",
				"1.0.0",
				server.WithLogging(),
				server.WithToolCapabilities(true),
			)

			engine.MemoryTools.RegisterMCP(srv)

			if sseAddrFlag == "" {
				return server.ServeStdio(srv)
			}

			broker := sse.NewMCPBroker(srv, sseAddrFlag)

			go func() {
				<-ctx.Done()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				if err := broker.Shutdown(shutdownCtx); err != nil {
					log.Error("failed to shut down mcp server", "error", err)
				}
			}()

			log.Info("serving mcp", "addr", sseAddrFlag)

			if err := broker.Start(); err != nil && ctx.Err() == nil {
				log.Error("failed to start sse server", "error", err)
				return err
			}

			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&sseAddrFlag, "sse", "", "Serve over SSE on this address instead of stdio")
}

var longMCP = `
Serve the memory tools (memory_search, memory_add, conversation_get) as an
MCP server, so other agents can read and write this engine's memory.

Examples:
  # Serve over stdio
  agentsdk mcp

  # Serve over SSE
  agentsdk mcp --sse 0.0.0.0:3211
`
