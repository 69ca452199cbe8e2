package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/pluk/internal/model"
)

// DefaultChannelPrefix is prepended to the account id to form the pub/sub
// channel name, e.g. "pluk:plants:a@x.com".
const DefaultChannelPrefix = "pluk:plants:"

// NewRedisClient opens a connection pool and pings it once so a bad address
// fails at startup instead of on the first save.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("realtime: redis ping %s: %w", addr, err)
	}
	return client, nil
}

// RedisBroker fans documents out across processes over Redis pub/sub.
// Redis does not buffer for absent subscribers, so a document published
// while nobody listens is gone; the remote store's initial read covers that.
type RedisBroker struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

var _ Broker = (*RedisBroker)(nil)

// NewRedisBroker does not take ownership of client.
func NewRedisBroker(client *redis.Client, prefix string, logger *slog.Logger) *RedisBroker {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisBroker{client: client, prefix: prefix, logger: logger}
}

func (b *RedisBroker) channel(accountID string) string {
	return b.prefix + accountID
}

func (b *RedisBroker) Publish(ctx context.Context, accountID string, doc model.PlantDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("realtime: encoding document of %s: %w", accountID, err)
	}
	if err := b.client.Publish(ctx, b.channel(accountID), payload).Err(); err != nil {
		return fmt.Errorf("realtime: publishing to %s: %w", b.channel(accountID), err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so a Publish
// issued after Subscribe returns is never missed.
func (b *RedisBroker) Subscribe(ctx context.Context, accountID string) (*Feed, error) {
	ps := b.client.Subscribe(ctx, b.channel(accountID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("realtime: subscribing to %s: %w", b.channel(accountID), err)
	}

	f := newFeed(func() { _ = ps.Close() })
	go b.pump(ps.Channel(), f.ch)
	f.watch(ctx)
	return f, nil
}

// pump decodes messages until the pub/sub is closed, then closes out.
func (b *RedisBroker) pump(in <-chan *redis.Message, out chan model.PlantDocument) {
	defer close(out)
	for msg := range in {
		var doc model.PlantDocument
		if err := json.Unmarshal([]byte(msg.Payload), &doc); err != nil {
			b.logger.Warn("dropping undecodable plant document",
				"channel", msg.Channel,
				"error", err,
			)
			continue
		}
		offer(out, doc)
	}
}

// Close is a no-op: the client belongs to whoever created it.
func (b *RedisBroker) Close() error {
	return nil
}
