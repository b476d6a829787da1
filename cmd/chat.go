package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/app"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/session"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stream"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/ui"
)

var (
	ownerFlag string
	agentFlag string
	plainFlag bool

	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Chat with an agent in the terminal",
		Long:  longChat,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()

			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if plainFlag {
				return chatPlain(ctx, cfg, os.Stdin, os.Stdout)
			}

			emitter := ui.NewChannelEmitter()
			engine, s, err := startChat(ctx, cfg, emitter)

			if err != nil {
				return err
			}

			defer engine.Close()

			_, err = tea.NewProgram(
				ui.New(ctx, engine.Relay, emitter.Events(), s.ID),
				tea.WithAltScreen(),
				tea.WithContext(ctx),
			).Run()

			return err
		},
	}
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&ownerFlag, "owner", "o", "local", "Owner id for the session and its memories")
	chatCmd.Flags().StringVar(&agentFlag, "agent", "assistant", "Agent type to talk to")
	chatCmd.Flags().BoolVar(&plainFlag, "plain", false, "Print events line by line instead of the full-screen UI")
}

func startChat(ctx context.Context, cfg app.Config, emitter stream.Emitter) (*app.App, *types.Session, error) {
	engine, err := app.New(ctx, cfg, emitter)

	if err != nil {
		return nil, nil, err
	}

	engine.Start(ctx)

	s, err := engine.Registry.CreateSession(ctx, session.CreateParams{
		AgentType:    agentFlag,
		OwnerID:      ownerFlag,
		ContextAware: true,
	})

	if err != nil {
		engine.Close()
		return nil, nil, err
	}

	engine.Relay.SessionCreated(ctx, s)
	return engine, s, nil
}

/*
chatPlain reads one message per line from in until EOF or /quit.
*/
func chatPlain(ctx context.Context, cfg app.Config, in io.Reader, out io.Writer) error {
	engine, s, err := startChat(ctx, cfg, ui.NewPrinter(out))

	if err != nil {
		return err
	}

	defer engine.Close()

	scanner := bufio.NewScanner(in)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit":
			return nil
		case "/memories":
			for _, entry := range engine.Manager.ListMemories(ctx) {
				fmt.Fprintf(out, "- %s [%s] %s (%.2f)\n", entry.ID, entry.Type, entry.Content, entry.Confidence)
			}

			continue
		}

		if id, ok := strings.CutPrefix(line, "/forget "); ok {
			if !engine.Manager.DeleteMemory(ctx, strings.TrimSpace(id)) {
				fmt.Fprintln(out, "no memory", id)
			}

			continue
		}

		if _, err := engine.Relay.Stream(ctx, s.ID, line); err != nil {
			fmt.Fprintln(out, "error:", err)
		}

		if ctx.Err() != nil {
			return nil
		}
	}

	return scanner.Err()
}

var longChat = `
Open a session with an agent and chat with it in the terminal. Replies
stream in as they are produced, along with tool calls and any memories
the engine extracts from the conversation.

Commands in --plain mode:
  /memories    list stored memories
  /forget <id> delete one memory
  /quit        leave the chat

Examples:
  # Chat with the default assistant
  agentsdk chat

  # Chat as a specific owner without the full-screen UI
  agentsdk chat --owner sam --plain
`
