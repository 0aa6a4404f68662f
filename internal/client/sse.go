package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SSETransport dials the Beacon SSE endpoint and yields one raw frame per
// data line. Comment frames (heartbeats) are skipped.
type SSETransport struct {
	URL    string // full events endpoint, e.g. https://host:8420/events
	Client *http.Client
}

// Dial implements Transport. The credential is presented as a bearer token.
func (t *SSETransport) Dial(ctx context.Context, credential string) (Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dialing event stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("event stream handshake: unexpected status %d", resp.StatusCode)
	}

	return &sseConn{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
	}, nil
}

type sseConn struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// Next returns the payload of the next data frame.
func (c *sseConn) Next() ([]byte, error) {
	var data strings.Builder

	for c.scanner.Scan() {
		line := c.scanner.Text()

		switch {
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))

		case line == "":
			if data.Len() > 0 {
				return []byte(data.String()), nil
			}
			// blank separator with no accumulated data (e.g. after a
			// heartbeat comment), keep reading

		default:
			// comments and fields we do not use
		}
	}

	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (c *sseConn) Close() error {
	return c.body.Close()
}
