package ui

import (
	"context"
	"io"
	"sync"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stream"
)

/*
Printer writes relay events to a plain writer as they arrive. It backs the
chat command when no terminal UI is wanted.
*/
type Printer struct {
	mu   sync.Mutex
	out  io.Writer
	open bool
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

func (printer *Printer) Emit(ctx context.Context, ev stream.Event) error {
	printer.mu.Lock()
	defer printer.mu.Unlock()

	var text string

	if frame, ok := ev.Payload.(stream.StreamingPayload); ok {
		switch {
		case frame.IsStart:
			printer.open = true
			text = agentStyle.Render("Agent: ")
		case frame.IsComplete:
			printer.open = false
			text = "\n"

			if frame.Error {
				text = "\n" + errorStyle.Render("Error: ") + frame.Message + "\n"
			}
		default:
			text = frame.Chunk
		}
	} else {
		text = Line(ev) + "\n"

		if printer.open {
			text = "\n" + text
		}
	}

	_, err := io.WriteString(printer.out, text)
	return err
}

/*
ChannelEmitter hands events to a terminal program through a channel. Emit
blocks until the program reads the event or ctx ends.
*/
type ChannelEmitter struct {
	ch chan stream.Event
}

func NewChannelEmitter() *ChannelEmitter {
	return &ChannelEmitter{ch: make(chan stream.Event, 64)}
}

func (emitter *ChannelEmitter) Emit(ctx context.Context, ev stream.Event) error {
	select {
	case emitter.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (emitter *ChannelEmitter) Events() <-chan stream.Event {
	return emitter.ch
}
