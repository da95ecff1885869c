package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codebridge/internal/enrich"
)

const (
	dataPrefix     = "data: "
	connectTimeout = 10 * time.Second
	readChunkSize  = 4096
)

// EmitFunc delivers one complete SSE record (boundary included) to the
// client. Returning an error ends the session.
type EmitFunc func(record string) error

// Recorder receives enriched envelopes as they are forwarded. Appends
// must not block the relay loop.
type Recorder interface {
	Record(directory string, event enrich.Event)
}

// Relay drives one client stream session against the upstream agent's
// /event endpoint. A single Relay is shared across sessions; all
// per-session state lives in Run.
type Relay struct {
	baseURL  string
	client   *http.Client
	recorder Recorder
}

// NewRelay returns a relay for the agent at baseURL. The HTTP client
// bounds connection establishment only — the event stream is long-lived
// and idle gaps are normal, so there is no read deadline.
func NewRelay(baseURL string, recorder Recorder) *Relay {
	return &Relay{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
		recorder: recorder,
	}
}

// Run opens the upstream event stream for directory and forwards every
// record to emit until either side disconnects. With enhance set,
// records carrying a JSON data payload are routed through the enricher;
// anything else is forwarded verbatim. Transport failures surface as a
// single terminal connection.error record. A canceled ctx (the client
// went away) ends the session silently.
func (r *Relay) Run(ctx context.Context, directory string, enhance bool, emit EmitFunc) {
	target := r.baseURL + "/event?directory=" + url.QueryEscape(directory)
	log.Printf("[sse] connecting to %s (enhance=%v)", target, enhance)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		_ = emit(connectionError(err.Error()))
		return
	}
	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("[sse] upstream connect failed: %v", err)
		_ = emit(connectionError(err.Error()))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[sse] upstream refused stream: status %d", resp.StatusCode)
		_ = emit(connectionError(fmt.Sprintf("Status %d", resp.StatusCode)))
		return
	}

	var (
		reassembler Reassembler
		buf         = make([]byte, readChunkSize)
	)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, frame := range reassembler.Push(buf[:n]) {
				if strings.TrimSpace(frame) == "" {
					continue
				}
				if err := r.forward(frame, directory, enhance, emit); err != nil {
					return
				}
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("[sse] client disconnected from %s", directory)
				return
			}
			if errors.Is(err, io.EOF) {
				err = errors.New("upstream closed the event stream")
			}
			log.Printf("[sse] upstream stream failed: %v", err)
			_ = emit(connectionError(err.Error()))
			return
		}
	}
}

// forward relays one complete record. Payloads that fail JSON parsing
// are passed through byte-for-byte — a malformed frame is never a
// client-visible error.
func (r *Relay) forward(frame, directory string, enhance bool, emit EmitFunc) error {
	if enhance && strings.HasPrefix(frame, dataPrefix) {
		var payload any
		if err := json.Unmarshal([]byte(frame[len(dataPrefix):]), &payload); err == nil {
			if ev, ok := payload.(map[string]any); ok {
				enriched := enrich.Enrich(ev)
				if r.recorder != nil {
					r.recorder.Record(directory, enriched)
				}
				payload = enriched
			}
			if out, err := json.Marshal(payload); err == nil {
				return emit(dataPrefix + string(out) + recordBoundary)
			}
		}
	}
	return emit(frame + recordBoundary)
}

func connectionError(message string) string {
	out, _ := json.Marshal(map[string]any{
		"type":       "connection.error",
		"properties": map[string]any{"error": message},
	})
	return dataPrefix + string(out) + recordBoundary
}
