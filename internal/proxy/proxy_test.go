package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func staticDir(dir string) DirectoryFunc {
	return func() string { return dir }
}

func doProxy(t *testing.T, p *Proxy, method, path, query, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "/proxy/"+path+query, reader)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	p.Forward(rec, req, path)
	return rec
}

func TestForwardInjectsDirectoryAndRelaysJSON(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session" {
			t.Errorf("unexpected upstream path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("directory"); got != "/projects/demo" {
			t.Errorf("expected injected directory, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ses_1"}`))
	}))
	defer upstream.Close()

	p := New(upstream.URL, 5*time.Second, staticDir("/projects/demo"))
	rec := doProxy(t, p, http.MethodPost, "session", "", `{"title":"t"}`, nil)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected upstream status relayed, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != `{"id":"ses_1"}` {
		t.Fatalf("expected JSON passthrough, got %q", body)
	}
}

func TestForwardKeepsExplicitDirectory(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("directory"); got != "/elsewhere" {
			t.Errorf("explicit directory must win, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	p := New(upstream.URL, 5*time.Second, staticDir("/projects/demo"))
	doProxy(t, p, http.MethodGet, "session", "?directory=%2Felsewhere", "", nil)
}

func TestForwardWrapsNonJSONBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("plain output"))
	}))
	defer upstream.Close()

	p := New(upstream.URL, 5*time.Second, staticDir("/p"))
	rec := doProxy(t, p, http.MethodGet, "log", "", "", nil)

	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if got["raw"] != "plain output" {
		t.Fatalf("expected raw wrapper, got %#v", got)
	}
}

func TestForwardWrapsInvalidDeclaredJSON(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{broken"))
	}))
	defer upstream.Close()

	p := New(upstream.URL, 5*time.Second, staticDir("/p"))
	rec := doProxy(t, p, http.MethodGet, "broken", "", "", nil)

	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if got["raw"] != "{broken" {
		t.Fatalf("expected raw fallback, got %#v", got)
	}
}

func TestForwardStripsHopByHopHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Custom") != "kept" {
			t.Errorf("custom header should be forwarded")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Keep-Alive", "timeout=5")
		w.Header().Set("X-Upstream", "kept")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	p := New(upstream.URL, 5*time.Second, staticDir("/p"))
	rec := doProxy(t, p, http.MethodGet, "x", "", "", http.Header{"X-Custom": {"kept"}})

	if rec.Header().Get("Keep-Alive") != "" {
		t.Fatalf("hop-by-hop header leaked through")
	}
	if rec.Header().Get("X-Upstream") != "kept" {
		t.Fatalf("end-to-end header should be relayed")
	}
}

func TestForwardUnreachableUpstreamIsServiceUnavailable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close()

	p := New(upstream.URL, time.Second, staticDir("/p"))
	rec := doProxy(t, p, http.MethodGet, "x", "", "", nil)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for unreachable upstream, got %d", rec.Code)
	}
}

func TestForwardSlowUpstreamIsGatewayTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()

	p := New(upstream.URL, 100*time.Millisecond, staticDir("/p"))
	rec := doProxy(t, p, http.MethodGet, "slow", "", "", nil)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504 for upstream timeout, got %d", rec.Code)
	}
}
