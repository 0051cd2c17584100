package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/docsense/docsense-backend/internal/chat"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

// BusMessage is one frame on the cross-replica channel, tagged with the
// request it belongs to.
type BusMessage struct {
	RequestKey string     `json:"request_key"`
	Frame      chat.Frame `json:"frame"`
}

// FrameBus mirrors answer-stream frames onto a Redis pub/sub channel so
// observers on other replicas can follow a request's progress.
type FrameBus interface {
	PublishFrame(ctx context.Context, requestKey string, f chat.Frame) error
	StartForwarder(ctx context.Context, onMsg func(m BusMessage)) error
	Ready(ctx context.Context) error
	Close() error
}

type frameBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewFrameBus connects using REDIS_ADDR and REDIS_CHANNEL (default
// "docsense.frames").
func NewFrameBus(log *logger.Logger) (FrameBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_CHANNEL"))
	if ch == "" {
		ch = "docsense.frames"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &frameBus{
		log:     log.With("service", "RedisFrameBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

// NewFrameBusWithClient wires an existing client, used by tests.
func NewFrameBusWithClient(log *logger.Logger, rdb *goredis.Client, channel string) FrameBus {
	if channel == "" {
		channel = "docsense.frames"
	}
	return &frameBus{
		log:     log.With("service", "RedisFrameBus"),
		rdb:     rdb,
		channel: channel,
	}
}

func (b *frameBus) PublishFrame(ctx context.Context, requestKey string, f chat.Frame) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("frame bus not initialized")
	}
	raw, err := json.Marshal(BusMessage{RequestKey: requestKey, Frame: f})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *frameBus) StartForwarder(ctx context.Context, onMsg func(m BusMessage)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("frame bus not initialized")
	}
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// Confirms the subscription before the caller proceeds.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var msg BusMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					b.log.Warn("Bad frame bus payload", "error", err.Error())
					continue
				}
				onMsg(msg)
			}
		}
	}()

	return nil
}

func (b *frameBus) Ready(ctx context.Context) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("frame bus not initialized")
	}
	return b.rdb.Ping(ctx).Err()
}

func (b *frameBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
