package kafka

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/segmentio/kafka-go"

	"tickcast/internal/application/port"
	"tickcast/internal/domain"
)

// Writer is the subset of *kafka.Writer used by Sink.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Quote is the value of each message; the key is the symbol so a
// partition sees every quote of a symbol in order.
type Quote struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Ts     int64  `json:"ts"`
}

type Sink struct {
	w Writer
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
	}
}

func NewSink(w Writer) *Sink { return &Sink{w: w} }

func (s *Sink) PublishQuotes(ctx context.Context, ts int64, quotes map[string]float64) error {
	if len(quotes) == 0 {
		return nil
	}
	symbols := make([]string, 0, len(quotes))
	for sym := range quotes {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	msgs := make([]kafka.Message, 0, len(symbols))
	for _, sym := range symbols {
		b, err := json.Marshal(Quote{Symbol: sym, Price: domain.FormatPrice(quotes[sym]), Ts: ts})
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(sym), Value: b})
	}
	return s.w.WriteMessages(ctx, msgs...)
}

func (s *Sink) Close() error { return s.w.Close() }

var _ port.QuoteSink = (*Sink)(nil)
