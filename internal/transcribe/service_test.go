package transcribe

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestDisabledWithoutAPIKey(t *testing.T) {
	s := New("", "nova-2", "zh")
	if s.Enabled() {
		t.Fatalf("service without key must be disabled")
	}
	if _, err := s.Transcribe(context.Background(), strings.NewReader("audio")); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	s := New("", "nova-2", "zh")
	st := s.Status()
	if st.Enabled || st.Model != "nova-2" || st.Language != "zh" {
		t.Fatalf("unexpected status: %#v", st)
	}
}

func TestTranscribeDelegates(t *testing.T) {
	s := &Service{
		model:    "nova-2",
		language: "zh",
		transcribe: func(ctx context.Context, audio io.Reader) (string, error) {
			b, _ := io.ReadAll(audio)
			return "heard:" + string(b), nil
		},
	}
	if !s.Enabled() {
		t.Fatalf("service with transcriber must be enabled")
	}
	got, err := s.Transcribe(context.Background(), strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got != "heard:hello" {
		t.Fatalf("unexpected text %q", got)
	}
}
