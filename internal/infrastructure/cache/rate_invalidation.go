package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultCloseTimeout = 5 * time.Second
	// DefaultInvalidationChannel is the Pub/Sub channel rate evictions are broadcast on
	DefaultInvalidationChannel = "customs:fx:invalidate"
)

// InvalidationAction is what a peer should drop from its local tier
type InvalidationAction string

const (
	InvalidationEvict InvalidationAction = "evict"
	InvalidationClear InvalidationAction = "clear"
)

// InvalidationMessage is broadcast when a rate is evicted or the cache is cleared
type InvalidationMessage struct {
	Action    InvalidationAction      `json:"action"`
	Country   valueobject.CountryCode `json:"country,omitempty"`
	Origin    string                  `json:"origin,omitempty"`
	Timestamp int64                   `json:"timestamp"`
}

// RateCacheInvalidator broadcasts local-tier evictions between engine instances over Redis Pub/Sub
type RateCacheInvalidator struct {
	client    *redis.Client
	channel   string
	logger    *zap.Logger
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	doneOnce  sync.Once
	mu        sync.Mutex
	isRunning bool
}

// RateCacheInvalidatorOption configures a RateCacheInvalidator
type RateCacheInvalidatorOption func(*RateCacheInvalidator)

// WithInvalidatorChannel sets the Pub/Sub channel
func WithInvalidatorChannel(channel string) RateCacheInvalidatorOption {
	return func(i *RateCacheInvalidator) {
		if channel != "" {
			i.channel = channel
		}
	}
}

// WithInvalidatorLogger sets the logger
func WithInvalidatorLogger(logger *zap.Logger) RateCacheInvalidatorOption {
	return func(i *RateCacheInvalidator) {
		i.logger = logger
	}
}

// NewRateCacheInvalidator creates an invalidator on a client owned by the caller
func NewRateCacheInvalidator(client *redis.Client, opts ...RateCacheInvalidatorOption) *RateCacheInvalidator {
	i := &RateCacheInvalidator{
		client:  client,
		channel: DefaultInvalidationChannel,
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Publish broadcasts msg to every subscriber
func (i *RateCacheInvalidator) Publish(ctx context.Context, msg InvalidationMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}
	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		i.logger.Error("Failed to publish rate invalidation",
			zap.String("channel", i.channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish invalidation message: %w", err)
	}
	return nil
}

// Subscribe blocks, invoking callback for each received message, until ctx ends or Close is called
func (i *RateCacheInvalidator) Subscribe(ctx context.Context, callback func(InvalidationMessage)) error {
	i.mu.Lock()
	if i.isRunning {
		i.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	i.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	i.cancelFn = cancel
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		i.isRunning = false
		i.mu.Unlock()
		i.markDone()
	}()

	pubsub := i.client.Subscribe(subCtx, i.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", i.channel, err)
	}
	i.logger.Info("Subscribed to rate invalidation channel", zap.String("channel", i.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				i.logger.Warn("Rate invalidation channel closed")
				return nil
			}
			var m InvalidationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				i.logger.Error("Failed to unmarshal invalidation message",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			i.dispatch(callback, m)
		}
	}
}

func (i *RateCacheInvalidator) dispatch(callback func(InvalidationMessage), m InvalidationMessage) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("Panic in rate invalidation callback", zap.Any("panic", r))
		}
	}()
	callback(m)
}

func (i *RateCacheInvalidator) markDone() {
	i.doneOnce.Do(func() {
		close(i.doneCh)
	})
}

// Close stops a running subscription and waits briefly for it to exit
func (i *RateCacheInvalidator) Close() error {
	i.mu.Lock()
	cancelFn := i.cancelFn
	i.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-i.doneCh:
		case <-time.After(defaultCloseTimeout):
			i.logger.Warn("Timeout waiting for rate invalidation subscription to stop")
		}
	}
	return nil
}
