package agentloop

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// eventWriter hand-rolls server-sent events over http.ResponseWriter. No
// library in the pack offers SSE encoding (the closest, gorilla/websocket,
// is a full-duplex protocol already used elsewhere for market/trading
// data), so this is the one stdlib-only piece of the loop.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newEventWriter(w http.ResponseWriter) (*eventWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("agentloop: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &eventWriter{w: w, flusher: flusher}, nil
}

// emit writes one named SSE event with a JSON-encoded payload and flushes
// immediately so the caller sees it without buffering delay.
func (e *eventWriter) emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("agentloop: marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

// textEvent is the payload for incremental model-token deltas.
type textEvent struct {
	Delta string `json:"delta"`
}

// toolCallEvent is emitted right before a tool executes.
type toolCallEvent struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// toolResultEvent is emitted after a tool executes.
type toolResultEvent struct {
	Name   string `json:"name"`
	Result any    `json:"result,omitempty"`
	Report any    `json:"report,omitempty"`
	Error  string `json:"error,omitempty"`
}

// assistantMessageEvent carries the accumulated text for one round, for
// the caller's own conversation history.
type assistantMessageEvent struct {
	Text string `json:"text"`
}

// errorEvent terminates the stream early.
type errorEvent struct {
	Message string `json:"message"`
}

// doneEvent is the final event of a successful stream.
type doneEvent struct {
	Rounds int `json:"rounds"`
}
