package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type memWriter struct {
	calls int
	msgs  []kafka.Message
	err   error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.calls++
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *memWriter) Close() error { return nil }

type flakyHandler struct {
	failures int
	calls    int
}

func (h *flakyHandler) Topic() string { return "t" }

func (h *flakyHandler) Handle(context.Context, []byte) error {
	h.calls++
	if h.calls <= h.failures {
		return errors.New("transient")
	}
	return nil
}

type panicHandler struct{}

func (panicHandler) Topic() string                        { return "t" }
func (panicHandler) Handle(context.Context, []byte) error { panic("boom") }

func TestPublishBatchSingleWrite(t *testing.T) {
	w := &memWriter{}
	p := NewProducerWithWriter(w, "snappy")
	err := p.PublishBatch(context.Background(), "decisions", []Message{
		{Key: []byte("AAPL"), Value: map[string]int{"a": 1}},
		{Key: []byte("MSFT"), Value: "raw"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if w.calls != 1 || len(w.msgs) != 2 {
		t.Fatalf("calls=%d msgs=%d", w.calls, len(w.msgs))
	}
	var got map[string]int
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil || got["a"] != 1 {
		t.Fatalf("payload = %s", w.msgs[0].Value)
	}
	if w.msgs[1].Topic != "decisions" || string(w.msgs[1].Value) != "raw" {
		t.Fatalf("second message = %+v", w.msgs[1])
	}
}

func TestPublishWrapsWriterError(t *testing.T) {
	w := &memWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, "snappy")
	if err := p.PublishMessage(context.Background(), "logs", []string{"x"}); !errors.Is(err, w.err) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}

func TestHandleWithRetryRecovers(t *testing.T) {
	h := &flakyHandler{failures: 2}
	attempts, err := HandleWithRetry(context.Background(), h, nil, 3, time.Millisecond, 2*time.Millisecond)
	if err != nil || attempts != 3 {
		t.Fatalf("attempts=%d err=%v", attempts, err)
	}
}

func TestHandleWithRetryGivesUp(t *testing.T) {
	h := &flakyHandler{failures: 10}
	attempts, err := HandleWithRetry(context.Background(), h, nil, 2, time.Millisecond, time.Millisecond)
	if err == nil || attempts != 3 {
		t.Fatalf("attempts=%d err=%v", attempts, err)
	}
}

func TestHandleWithRetryRecoversPanic(t *testing.T) {
	_, err := HandleWithRetry(context.Background(), panicHandler{}, nil, 0, time.Millisecond, time.Millisecond)
	if err == nil {
		t.Fatalf("expected panic to surface as error")
	}
}

func TestBackoffWithinBounds(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 80*time.Millisecond, attempt)
		if d <= 0 || d > 80*time.Millisecond {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}
