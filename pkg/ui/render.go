package ui

import (
	"strings"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stream"
)

const resultPreview = 120

/*
Line renders a non-streaming event as one transcript line. Streaming frames
are handled by the caller, which owns the line being written.
*/
func Line(ev stream.Event) string {
	switch p := ev.Payload.(type) {
	case stream.ThinkingPayload:
		return thinkingStyle.Render("… " + p.Step)
	case stream.ToolStartPayload:
		return toolStyle.Render("⚙ "+p.Name) + " " + string(p.Params)
	case stream.ToolCompletePayload:
		return toolStyle.Render("✓ "+p.Name) + " " + truncate(string(p.Result), resultPreview)
	case stream.MemoryPayload:
		contents := make([]string, 0, len(p.Memories))

		for _, entry := range p.Memories {
			contents = append(contents, entry.Content)
		}

		return memoryStyle.Render("remembered: ") + strings.Join(contents, "; ")
	case stream.ReceivedPayload:
		return agentStyle.Render("Agent: ") + p.FullMessage.Content
	case stream.SessionPayload:
		return titleStyle.Render("session " + p.Session.ID)
	case stream.ApprovalPayload:
		return toolStyle.Render("? "+p.Approval.ToolName) + " awaiting approval " + p.Approval.ID
	case stream.ErrorPayload:
		return errorStyle.Render("Error: ") + p.Message
	}

	return string(ev.Type)
}

func truncate(s string, n int) string {
	runes := []rune(s)

	if len(runes) <= n {
		return s
	}

	return string(runes[:n]) + "…"
}
