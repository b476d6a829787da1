package cmd

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/app"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/service"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/service/sse"
)

var (
	addrFlag string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the REST and SSE server",
		Long:  longServe,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()

			if err != nil {
				return err
			}

			if addrFlag != "" {
				cfg.Server.Addr = addrFlag
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			broker := sse.NewSSEBroker()
			engine, err := app.New(ctx, cfg, broker)

			if err != nil {
				return err
			}

			defer engine.Close()
			engine.Start(ctx)

			srv := service.NewServer(
				engine.Registry, engine.Manager, engine.Relay, broker, service.WithAddr(cfg.Server.Addr),
				service.WithRateLimit(cfg.Server.RateLimit, time.Minute),
			)

			go func() {
				<-ctx.Done()

				if err := srv.Shutdown(); err != nil {
					log.Error("failed to shut down server", "error", err)
				}
			}()

			log.Info("serving", "addr", cfg.Server.Addr)
			return srv.Start()
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&addrFlag, "addr", "a", "", "Address to listen on (overrides server.addr)")
}

var longServe = `
Serve sessions over HTTP. Clients create a session, open its event stream
and post messages; replies arrive on the stream as they are produced.

Examples:
  # Serve on the configured address
  agentsdk serve

  # Serve on port 8080
  agentsdk serve --addr :8080
`
