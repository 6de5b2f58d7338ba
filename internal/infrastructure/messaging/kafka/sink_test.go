package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestSinkWritesOneMessagePerSymbol(t *testing.T) {
	w := &fakeWriter{}
	s := NewSink(w)

	err := s.PublishQuotes(context.Background(), 42, map[string]float64{"TSLA": 250.005, "GOOG": 100})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "GOOG" || string(w.msgs[1].Key) != "TSLA" {
		t.Errorf("messages should be keyed by symbol in order, got %s %s", w.msgs[0].Key, w.msgs[1].Key)
	}

	var q Quote
	if err := json.Unmarshal(w.msgs[0].Value, &q); err != nil {
		t.Fatal(err)
	}
	if q.Symbol != "GOOG" || q.Price != "100.00" || q.Ts != 42 {
		t.Errorf("unexpected payload %+v", q)
	}
}

func TestSinkEmptyQuotes(t *testing.T) {
	w := &fakeWriter{}
	if err := NewSink(w).PublishQuotes(context.Background(), 1, nil); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(w.msgs))
	}
}

func TestSinkPropagatesWriterError(t *testing.T) {
	boom := errors.New("broker down")
	s := NewSink(&fakeWriter{err: boom})
	if err := s.PublishQuotes(context.Background(), 1, map[string]float64{"GOOG": 1}); !errors.Is(err, boom) {
		t.Errorf("expected writer error, got %v", err)
	}
}

func TestSinkClose(t *testing.T) {
	w := &fakeWriter{}
	NewSink(w).Close()
	if !w.closed {
		t.Error("writer not closed")
	}
}

func TestNewWriter(t *testing.T) {
	w := NewWriter([]string{"localhost:9092"}, "tickcast.quotes")
	defer w.Close()
	if w.Topic != "tickcast.quotes" {
		t.Errorf("unexpected topic %q", w.Topic)
	}
	if _, ok := w.Balancer.(*kafka.Hash); !ok {
		t.Errorf("expected hash balancer, got %T", w.Balancer)
	}
}
