package redis

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tickcast/internal/application/port"
	"tickcast/internal/domain"
)

// Repo mirrors the price book into Redis: one hash holding the latest
// quote per symbol, plus a pub/sub message per tick.
type Repo struct {
	rdb       redis.Cmdable
	ttl       time.Duration
	keyLatest string // prefix + ":latest"
	channel   string
}

type LatestPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Ts     int64  `json:"ts"`
}

type tickMessage struct {
	Ts     int64             `json:"ts"`
	Quotes domain.Projection `json:"quotes"`
}

func New(rdb redis.Cmdable, prefix string, ttl time.Duration, channel string) *Repo {
	if strings.TrimSpace(channel) == "" {
		channel = prefix + ":quotes"
	}
	return &Repo{
		rdb:       rdb,
		ttl:       ttl,
		keyLatest: prefix + ":latest",
		channel:   channel,
	}
}

func (r *Repo) PublishQuotes(ctx context.Context, ts int64, quotes map[string]float64) error {
	if len(quotes) == 0 {
		return nil
	}

	symbols := make([]string, 0, len(quotes))
	for s := range quotes {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	proj := make(domain.Projection, len(quotes))
	fields := make([]any, 0, 2*len(quotes))
	for _, s := range symbols {
		px := domain.FormatPrice(quotes[s])
		proj[s] = px
		b, err := json.Marshal(LatestPrice{Symbol: s, Price: px, Ts: ts})
		if err != nil {
			return err
		}
		fields = append(fields, s, string(b))
	}
	msg, err := json.Marshal(tickMessage{Ts: ts, Quotes: proj})
	if err != nil {
		return err
	}

	// Hash: field = "GOOG" -> json
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, fields...)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	pipe.Publish(ctx, r.channel, string(msg))
	_, err = pipe.Exec(ctx)
	return err
}

// Latest reads back one symbol from the hash.
func (r *Repo) Latest(ctx context.Context, symbol string) (*LatestPrice, error) {
	s, err := r.rdb.HGet(ctx, r.keyLatest, symbol).Result()
	if err != nil {
		return nil, err
	}
	var lp LatestPrice
	if err := json.Unmarshal([]byte(s), &lp); err != nil {
		return nil, err
	}
	return &lp, nil
}

var _ port.QuoteSink = (*Repo)(nil)
