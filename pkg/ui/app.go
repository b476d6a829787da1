package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stream"
)

const gap = "\n\n"

/*
Sender runs one turn for a session. The relay satisfies it.
*/
type Sender interface {
	Stream(ctx context.Context, sessionID, input string) (stream.Result, error)
}

type eventMsg stream.Event

type doneMsg struct {
	err error
}

type model struct {
	ctx       context.Context
	viewport  viewport.Model
	textarea  textarea.Model
	lines     []string
	streaming int
	busy      bool
	sender    Sender
	events    <-chan stream.Event
	sessionID string
}

/*
New builds the chat program model for one session. Events for the session
must be emitted through events.
*/
func New(ctx context.Context, sender Sender, events <-chan stream.Event, sessionID string) tea.Model {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Focus()

	ta.Prompt = "┃ "
	ta.CharLimit = 2000

	ta.SetWidth(80)
	ta.SetHeight(3)

	// Remove cursor line styling
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	vp := viewport.New(80, 20)
	vp.SetContent(`Type a message and press Enter to send it to the agent.
Press Ctrl+C or Esc to quit.`)

	return model{
		ctx:       ctx,
		textarea:  ta,
		viewport:  vp,
		streaming: -1,
		sender:    sender,
		events:    events,
		sessionID: sessionID,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.waitForEvent())
}

func (m model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-m.events:
			return eventMsg(ev)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m model) send(input string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.sender.Stream(m.ctx, m.sessionID, input)
		return doneMsg{err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		cmds  []tea.Cmd
	)

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = msg.Height - m.textarea.Height() - lipgloss.Height(gap) - 2
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())

			if input != "" && !m.busy {
				m.lines = append(m.lines, senderStyle.Render("You: ")+input)
				m.busy = true
				m.textarea.Reset()
				m.refresh()
				cmds = append(cmds, m.send(input))
			}
		}

	case eventMsg:
		m.apply(stream.Event(msg))
		m.refresh()
		cmds = append(cmds, m.waitForEvent())

	case doneMsg:
		m.busy = false

		if msg.err != nil {
			m.lines = append(m.lines, errorStyle.Render("Error: ")+msg.err.Error())
			m.refresh()
		}
	}

	return m, tea.Batch(append(cmds, tiCmd, vpCmd)...)
}

/*
apply folds one event into the transcript. Chunks extend the agent line
opened by the start frame, wherever later lines were added.
*/
func (m *model) apply(ev stream.Event) {
	frame, ok := ev.Payload.(stream.StreamingPayload)

	if !ok {
		m.lines = append(m.lines, Line(ev))
		return
	}

	switch {
	case frame.IsStart:
		m.lines = append(m.lines, agentStyle.Render("Agent: "))
		m.streaming = len(m.lines) - 1
	case frame.IsComplete:
		if frame.Error {
			m.lines = append(m.lines, errorStyle.Render("Error: ")+frame.Message)
		}

		m.streaming = -1
	case m.streaming >= 0:
		m.lines[m.streaming] += frame.Chunk
	}
}

func (m *model) refresh() {
	if len(m.lines) == 0 {
		return
	}

	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(strings.Join(m.lines, "\n")))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	return fmt.Sprintf(
		"%s%s%s",
		m.viewport.View(),
		gap,
		m.textarea.View(),
	)
}
