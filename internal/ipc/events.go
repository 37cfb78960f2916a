package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"scriptreel/internal/progress"
)

// Watch streams progress events for a generation until the daemon sends a
// final event, closes the stream or ctx ends. fn is called once per event;
// a non-nil return stops the watch with that error.
func (c *Client) Watch(ctx context.Context, id string, fn func(progress.Event) error) error {
	resp, err := c.request(ctx, http.MethodGet, generationPath(id, "/events"), nil, nil, "text/event-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}
	err = readEvents(resp.Body, func(name string, data []byte) (bool, error) {
		if name != "" && name != "progress" {
			return false, nil
		}
		var ev progress.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return false, fmt.Errorf("decode progress event: %w", err)
		}
		if err := fn(ev); err != nil {
			return false, err
		}
		return ev.Final, nil
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// readEvents parses a server-sent event stream, calling dispatch for every
// complete event until dispatch reports done or the stream ends.
func readEvents(r io.Reader, dispatch func(name string, data []byte) (bool, error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		name string
		data strings.Builder
	)
	flush := func() (bool, error) {
		if data.Len() == 0 {
			name = ""
			return false, nil
		}
		done, err := dispatch(name, []byte(data.String()))
		name = ""
		data.Reset()
		return done, err
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			done, err := flush()
			if err != nil || done {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	_, err := flush()
	return err
}
