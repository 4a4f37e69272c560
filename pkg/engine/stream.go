package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/docker/docker/pkg/jsonmessage"

	"skiff/docker/pkg/artifact"
)

// handle owns the response stream of one submitted operation. Closing it
// releases the stream and unblocks the event pump; only the first close
// touches the body.
type handle struct {
	body io.ReadCloser
	once sync.Once
	err  error
}

func newHandle(body io.ReadCloser) *handle {
	return &handle{body: body}
}

func (h *handle) Close() error {
	h.once.Do(func() {
		h.err = h.body.Close()
	})
	return h.err
}

// pumpEvents decodes the daemon's JSON message stream and drives the
// listener. Exactly one terminal notification is delivered: the daemon's
// error message, a stream failure with its cause, or success at a clean end
// of stream. Everything else is forwarded as progress.
func pumpEvents(r io.Reader, l artifact.EventListener) {
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				l.OnSuccess("")
				return
			}
			l.OnFailure(fmt.Errorf("engine event stream ended: %w", err))
			return
		}
		if msg.Error != nil {
			l.OnError(msg.Error.Message)
			return
		}
		if event := formatEvent(msg); event != "" {
			l.OnEvent(event)
		}
	}
}

// formatEvent renders one progress message as a single line.
func formatEvent(msg jsonmessage.JSONMessage) string {
	switch {
	case msg.Stream != "":
		return strings.TrimRight(msg.Stream, "\n")
	case msg.Status != "" && msg.ID != "":
		return msg.ID + ": " + msg.Status
	case msg.Status != "":
		return msg.Status
	}
	return ""
}
