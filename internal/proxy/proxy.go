// Package proxy forwards single request/response API calls to the
// upstream agent, defaulting the active project directory and filtering
// hop-by-hop headers in both directions.
package proxy

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
)

// Headers dropped from the inbound request before forwarding.
var requestHeaderDrop = map[string]struct{}{
	"host":           {},
	"content-length": {},
}

// Hop-by-hop headers dropped from the upstream response before relaying.
var responseHeaderDrop = map[string]struct{}{
	"content-length":      {},
	"content-encoding":    {},
	"transfer-encoding":   {},
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"upgrade":             {},
}

// DirectoryFunc returns the currently selected project directory. It is
// consulted once per request, at request time, so a config reload takes
// effect on the next call without restarting anything.
type DirectoryFunc func() string

// Proxy relays one HTTP call at a time to the upstream agent. No
// retries: each inbound request maps to at most one upstream request.
type Proxy struct {
	baseURL   string
	client    *http.Client
	directory DirectoryFunc
}

// New builds a proxy against the agent at baseURL. timeout is the hard
// ceiling for a whole upstream exchange; past it the caller gets a
// gateway-timeout rather than hanging forever.
func New(baseURL string, timeout time.Duration, directory DirectoryFunc) *Proxy {
	return &Proxy{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
		directory: directory,
	}
}

// Forward relays the inbound request to the upstream agent under path
// and writes the relayed response (or a typed failure) to w.
func (p *Proxy) Forward(w http.ResponseWriter, r *http.Request, path string) {
	params := r.URL.Query()
	if params.Get("directory") == "" {
		params.Set("directory", p.directory())
	}
	target := p.baseURL + "/" + strings.TrimLeft(path, "/") + "?" + params.Encode()

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Proxy error: %v", err))
		return
	}
	for key, values := range r.Header {
		if _, drop := requestHeaderDrop[strings.ToLower(key)]; drop {
			continue
		}
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		status, detail := classifyFailure(err)
		log.Printf("[proxy] %s %s failed: %v", r.Method, path, err)
		writeError(w, status, detail)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Proxy error: %v", err))
		return
	}

	for key, values := range resp.Header {
		if _, drop := responseHeaderDrop[strings.ToLower(key)]; drop {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}

	relayBody(w, resp, body)
}

// relayBody mirrors the upstream status code and relays JSON bodies as
// JSON; everything else (including JSON that fails to parse despite its
// declared content type) goes out wrapped under a "raw" key.
func relayBody(w http.ResponseWriter, resp *http.Response, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && json.Valid(body) {
		_, _ = w.Write(body)
		return
	}
	wrapped, _ := json.Marshal(map[string]any{"raw": string(body)})
	_, _ = w.Write(wrapped)
}

func classifyFailure(err error) (int, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "agent server timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return http.StatusGatewayTimeout, "agent server timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return http.StatusServiceUnavailable, "agent server not available"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Temporary() {
		return http.StatusServiceUnavailable, "agent server not available"
	}
	return http.StatusInternalServerError, fmt.Sprintf("Proxy error: %v", err)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": detail})
}
