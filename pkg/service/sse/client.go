package sse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stream"
)

/*
Client follows the event stream of one session on a running server. It
reconnects when the server closes the stream and gives up after the retry
policy is spent on a connection that cannot be made at all.
*/
type Client struct {
	URL     string
	Headers map[string]string
	http    *http.Client
	retry   *errors.RetryConfig
}

/*
NewClient builds a client for the session's stream at baseURL, for example
http://localhost:3210.
*/
func NewClient(baseURL, sessionID string) *Client {
	return &Client{
		URL:     strings.TrimRight(baseURL, "/") + "/sessions/" + sessionID + "/events",
		Headers: make(map[string]string),
		http:    &http.Client{},
		retry: &errors.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  time.Second,
			MaxDelay:      8 * time.Second,
			BackoffFactor: 2.0,
		},
	}
}

/*
Subscribe calls handler for every event until ctx ends or the server can no
longer be reached.
*/
func (c *Client) Subscribe(ctx context.Context, handler func(stream.Event)) error {
	for {
		var body io.ReadCloser

		err := errors.RetryWithBackoff(ctx, c.retry, func() error {
			var err error
			body, err = c.connect(ctx)
			return err
		})

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return err
		}

		err = c.read(bufio.NewReader(body), handler)
		body.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != io.EOF && err != io.ErrUnexpectedEOF {
			return err
		}

		log.Debug("event stream closed, reconnecting", "url", c.URL)
	}
}

func (c *Client) connect(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)

	if err != nil {
		return nil, errors.Validation("invalid stream url: %v", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)

	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, errors.NotFound("session stream %s not found", c.URL)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	return resp.Body, nil
}

func (c *Client) read(reader *bufio.Reader, handler func(stream.Event)) error {
	for {
		eventType, data, err := readFrame(reader)

		if err != nil {
			return err
		}

		ev, err := stream.Decode(eventType, data)

		if err != nil {
			log.Warn("skipping undecodable event", "type", eventType, "error", err)
			continue
		}

		handler(ev)
	}
}

/*
readFrame reads up to the blank line ending one frame. Comment-only frames
such as heartbeats are skipped.
*/
func readFrame(reader *bufio.Reader) (string, []byte, error) {
	var (
		eventType string
		data      strings.Builder
	)

	for {
		line, err := reader.ReadString('\n')

		if err != nil {
			return "", nil, err
		}

		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if data.Len() > 0 {
				return eventType, []byte(data.String()), nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteString("\n")
			}

			data.WriteString(strings.TrimPrefix(line[len("data:"):], " "))
		}
	}
}
