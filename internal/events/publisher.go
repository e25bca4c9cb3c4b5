package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"workbasket/internal/domain"
)

// Publisher fans committed events out to other processes. It runs after the
// transaction commits, so a failure never rolls back the mutation.
type Publisher interface {
	Publish(ctx context.Context, evts ...domain.AuditEvent) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...domain.AuditEvent) error { return nil }

// RedisPublisher publishes each event as JSON on one pub/sub channel.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(opts *redis.Options, channel string) (*RedisPublisher, error) {
	if channel == "" {
		return nil, fmt.Errorf("channel cannot be empty")
	}
	return &RedisPublisher{rdb: redis.NewClient(opts), channel: channel}, nil
}

func (p *RedisPublisher) Channel() string { return p.channel }

func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

func (p *RedisPublisher) Publish(ctx context.Context, evts ...domain.AuditEvent) error {
	var errs []error
	for _, evt := range evts {
		data, err := json.Marshal(evt)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal %s: %w", evt.ID, err))
			continue
		}
		if err := p.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", evt.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Subscription delivers events published on the channel until Close.
type Subscription struct {
	events chan domain.AuditEvent
	errors chan error
	cancel context.CancelFunc
}

func (s *Subscription) Events() <-chan domain.AuditEvent { return s.events }

func (s *Subscription) Errors() <-chan error { return s.errors }

func (s *Subscription) Close() error {
	s.cancel()
	return nil
}

// Subscribe waits for the subscription to be confirmed before returning.
func (p *RedisPublisher) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := p.rdb.Subscribe(ctx, p.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", p.channel, err)
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		events: make(chan domain.AuditEvent, 16),
		errors: make(chan error, 4),
		cancel: cancel,
	}
	go func() {
		defer close(sub.events)
		defer close(sub.errors)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt domain.AuditEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					select {
					case sub.errors <- fmt.Errorf("decode history event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}
				select {
				case sub.events <- evt:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()
	return sub, nil
}
