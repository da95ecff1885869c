package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func collectRecords(records *[]string) EmitFunc {
	return func(record string) error {
		*records = append(*records, record)
		return nil
	}
}

func countConnectionErrors(records []string) int {
	n := 0
	for _, rec := range records {
		if strings.Contains(rec, `"type":"connection.error"`) {
			n++
		}
	}
	return n
}

func TestRelayEnrichesTaskEvents(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("directory"); got != "/tmp/demo" {
			t.Errorf("expected directory query param, got %q", got)
		}
		fmt.Fprint(w, `data: {"type":"message.part.updated","properties":{"part":{"type":"tool","tool":"task","state":{"status":"completed","input":{"subagent_type":"reviewer"},"output":"Reading main.py"}}}}`+"\n\n")
	}))
	defer upstream.Close()

	var records []string
	NewRelay(upstream.URL, nil).Run(context.Background(), "/tmp/demo", true, collectRecords(&records))

	if len(records) < 1 {
		t.Fatalf("expected at least one record, got %#v", records)
	}
	first := records[0]
	if !strings.HasPrefix(first, "data: ") || !strings.HasSuffix(first, "\n\n") {
		t.Fatalf("record not SSE framed: %q", first)
	}
	for _, want := range []string{`"_is_subagent":true`, `"_subagent_type":"reviewer"`, `"_tool_category":"subagent"`, `"main.py"`} {
		if !strings.Contains(first, want) {
			t.Fatalf("enriched record missing %s: %q", want, first)
		}
	}
}

func TestRelayForwardsMalformedPayloadVerbatim(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: this is not json\n\n")
	}))
	defer upstream.Close()

	var records []string
	NewRelay(upstream.URL, nil).Run(context.Background(), "/p", true, collectRecords(&records))

	if len(records) == 0 || records[0] != "data: this is not json\n\n" {
		t.Fatalf("malformed payload must pass through unchanged, got %#v", records)
	}
}

func TestRelayPassthroughWhenEnhanceDisabled(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"type":"message.part.updated","properties":{"part":{"type":"tool","tool":"grep","state":{}}}}`+"\n\n")
	}))
	defer upstream.Close()

	var records []string
	NewRelay(upstream.URL, nil).Run(context.Background(), "/p", false, collectRecords(&records))

	if len(records) == 0 || strings.Contains(records[0], "_tool_category") {
		t.Fatalf("enhance=false must not annotate records: %#v", records)
	}
}

func TestRelayNonSuccessStatusEmitsSingleError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	var records []string
	NewRelay(upstream.URL, nil).Run(context.Background(), "/p", true, collectRecords(&records))

	if len(records) != 1 || countConnectionErrors(records) != 1 {
		t.Fatalf("expected exactly one connection.error, got %#v", records)
	}
	if !strings.Contains(records[0], "Status 502") {
		t.Fatalf("error record should carry the status code: %q", records[0])
	}
}

func TestRelayUpstreamUnreachableEmitsSingleError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close()

	var records []string
	NewRelay(upstream.URL, nil).Run(context.Background(), "/p", true, collectRecords(&records))

	if len(records) != 1 || countConnectionErrors(records) != 1 {
		t.Fatalf("expected exactly one connection.error, got %#v", records)
	}
}

func TestRelayUpstreamDisconnectMidStream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"type\":\"session.idle\"}\n\n")
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer upstream.Close()

	var records []string
	NewRelay(upstream.URL, nil).Run(context.Background(), "/p", true, collectRecords(&records))

	if countConnectionErrors(records) != 1 {
		t.Fatalf("expected exactly one connection.error, got %#v", records)
	}
	if !strings.Contains(records[len(records)-1], "connection.error") {
		t.Fatalf("connection.error must be the terminal record: %#v", records)
	}
}

func TestRelayClientCancellationIsSilent(t *testing.T) {
	upstreamGone := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"type\":\"session.idle\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(upstreamGone)
	}))
	defer upstream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var records []string
	gotFirst := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewRelay(upstream.URL, nil).Run(ctx, "/p", true, func(record string) error {
			records = append(records, record)
			select {
			case <-gotFirst:
			default:
				close(gotFirst)
			}
			return nil
		})
	}()

	select {
	case <-gotFirst:
	case <-time.After(2 * time.Second):
		t.Fatalf("never received the first record")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("relay did not stop after client cancellation")
	}
	select {
	case <-upstreamGone:
	case <-time.After(2 * time.Second):
		t.Fatalf("upstream connection not released after client cancellation")
	}
	if countConnectionErrors(records) != 0 {
		t.Fatalf("cancellation must not surface an error event: %#v", records)
	}
}

func TestRelayStopsWhenEmitFails(t *testing.T) {
	frames := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 50; i++ {
			fmt.Fprintf(w, "data: {\"n\":%d}\n\n", i)
		}
	}))
	defer upstream.Close()

	NewRelay(upstream.URL, nil).Run(context.Background(), "/p", true, func(string) error {
		frames++
		return fmt.Errorf("client went away")
	})
	if frames != 1 {
		t.Fatalf("relay must stop on the first emit failure, emitted %d", frames)
	}
}
