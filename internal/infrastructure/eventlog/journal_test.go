package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	fail   error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return w.fail
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

func (w *fakeWriter) snapshot() ([]kafka.Message, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...), w.closed
}

func TestJournal_DeliversOnShutdown(t *testing.T) {
	w := &fakeWriter{}
	j := newJournal(w, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	j.Record(Event{Type: TypeDecision, DeviceID: "node1", Action: "turn_on", EnergyDelta: 0})
	j.Record(Event{Type: TypeOverride, DeviceID: "node2", Status: "off", Class: "24h"})
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	msgs, closed := w.snapshot()
	if !closed {
		t.Error("writer was not closed")
	}
	if len(msgs) != 2 {
		t.Fatalf("delivered %d messages, want 2", len(msgs))
	}

	for _, m := range msgs {
		var e Event
		if err := json.Unmarshal(m.Value, &e); err != nil {
			t.Fatalf("message is not JSON: %v", err)
		}
		if string(m.Key) != e.DeviceID {
			t.Errorf("key = %q, want device id %q", m.Key, e.DeviceID)
		}
		if e.ID == "" || e.At.IsZero() {
			t.Errorf("event missing id or timestamp: %+v", e)
		}
	}
}

func TestJournal_RecordAfterCloseIsIgnored(t *testing.T) {
	w := &fakeWriter{}
	j := newJournal(w, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	j.Record(Event{Type: TypeDecision, DeviceID: "node1"})
	if len(j.events) != 0 {
		t.Error("event queued after close")
	}
}

func TestJournal_DropsWhenFull(t *testing.T) {
	j := newJournal(&fakeWriter{}, time.Second, nil)

	for i := 0; i < defaultBufferSize+3; i++ {
		j.Record(Event{Type: TypeDecision, DeviceID: "node1"})
	}
	if got := j.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
}

func TestJournal_WriteFailureIsNotFatal(t *testing.T) {
	w := &fakeWriter{fail: errors.New("broker down")}
	j := newJournal(w, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	j.Record(Event{Type: TypeDecision, DeviceID: "node1"})
	cancel()

	if err := j.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v, want nil despite write failure", err)
	}
}
