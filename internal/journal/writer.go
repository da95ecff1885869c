package journal

import (
	"context"
	"log"
	"time"

	"codebridge/internal/enrich"
)

const appendTimeout = 5 * time.Second

// Writer decouples the relay loop from sqlite. Record never blocks:
// when the buffer is full the entry is dropped, which is acceptable
// for a best-effort journal.
type Writer struct {
	store *Store
	ch    chan Entry
	done  chan struct{}
}

func NewWriter(store *Store, buffer int) *Writer {
	if buffer <= 0 {
		buffer = 256
	}
	w := &Writer{
		store: store,
		ch:    make(chan Entry, buffer),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

// Record implements stream.Recorder.
func (w *Writer) Record(directory string, event enrich.Event) {
	eventType, _ := event["type"].(string)
	isSubagent, _ := event["_is_subagent"].(bool)
	entry := Entry{
		Directory:  directory,
		Type:       eventType,
		IsSubagent: isSubagent,
		Payload:    event,
		RecordedAt: time.Now().UTC(),
	}
	select {
	case w.ch <- entry:
	default:
	}
}

// Close flushes buffered entries and stops the writer.
func (w *Writer) Close() {
	close(w.ch)
	<-w.done
}

func (w *Writer) run() {
	defer close(w.done)
	for entry := range w.ch {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := w.store.Append(ctx, entry); err != nil {
			log.Printf("[journal] append failed: %v", err)
		}
		cancel()
	}
}
