package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Same trust model as withCORS: local development only.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleStream is the SSE endpoint the browser attaches to. Each record
// from the agent is written and flushed as soon as it is complete.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "streaming unsupported"})
		return
	}

	directory, enhance := s.streamParams(r)
	session := uuid.NewString()[:8]
	log.Printf("[sse] session %s open directory=%s", session, directory)
	defer log.Printf("[sse] session %s closed", session)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.relay.Run(r.Context(), directory, enhance, func(record string) error {
		if _, err := w.Write([]byte(record)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
}

// handleStreamWS mirrors the SSE stream over a websocket, one text
// message per record, for clients behind proxies that buffer SSE.
func (s *Server) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	directory, enhance := s.streamParams(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session := uuid.NewString()[:8]
	log.Printf("[ws] session %s open directory=%s", session, directory)
	defer log.Printf("[ws] session %s closed", session)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client never sends application data; the read pump exists to
	// notice the peer going away and to answer control frames.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.relay.Run(ctx, directory, enhance, func(record string) error {
		return conn.WriteMessage(websocket.TextMessage, []byte(strings.TrimRight(record, "\n")))
	})

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), closeDeadline())
}

func closeDeadline() time.Time {
	return time.Now().Add(time.Second)
}

func (s *Server) streamParams(r *http.Request) (directory string, enhance bool) {
	directory = r.URL.Query().Get("directory")
	if directory == "" {
		directory = s.store.Directory()
	}
	enhance = true
	if raw := r.URL.Query().Get("enhance"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			enhance = v
		}
	}
	return directory, enhance
}
