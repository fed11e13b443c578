package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/boardstream/relay/internal/metrics"
)

const defaultRetryBackoff = 5 * time.Second

// ConsumerConfig describes one stream consumption loop.
type ConsumerConfig struct {
	Source  Source
	Stream  string
	Handler HandlerFunc
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// RetryBackoff is the pause before restarting a failed source.
	RetryBackoff time.Duration
}

// Consumer binds one Source to a handler. Entries are handled strictly in
// stream order: entry N+1 is not emitted until the handler call for entry N
// has returned. Handler failures drop the entry; source failures are logged,
// counted and retried with backoff so a broken upstream degrades liveness
// without crashing the process or stalling silently.
type Consumer struct {
	source  Source
	stream  string
	handler HandlerFunc
	logger  *zap.Logger
	metrics *metrics.Metrics
	backoff time.Duration
}

// NewConsumer constructs a stream consumer.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("feed: source required")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("feed: handler required")
	}
	if cfg.Stream == "" {
		return nil, fmt.Errorf("feed: stream name required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	return &Consumer{
		source:  cfg.Source,
		stream:  cfg.Stream,
		handler: cfg.Handler,
		logger:  logger,
		metrics: cfg.Metrics,
		backoff: backoff,
	}, nil
}

// Run consumes the stream until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		err := c.source.Run(ctx, c.handleEntry)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("source returned without error before shutdown")
		}
		c.logger.Error("feed source failed, restarting",
			zap.String("stream", c.stream),
			zap.Duration("backoff", c.backoff),
			zap.Error(err))
		if c.metrics != nil {
			c.metrics.FeedErrors.WithLabelValues(c.stream).Inc()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff):
		}
	}
}

func (c *Consumer) handleEntry(ctx context.Context, entry Entry) error {
	if len(entry.Value) == 0 {
		c.logger.Debug("skipping stream entry without body",
			zap.String("stream", c.stream),
			zap.Int64("cursor", entry.Cursor))
		return nil
	}
	if c.metrics != nil {
		c.metrics.FeedEntriesConsumed.WithLabelValues(c.stream).Inc()
	}
	if err := c.handler(ctx, entry); err != nil {
		c.logger.Warn("dropping stream entry",
			zap.String("stream", c.stream),
			zap.Int64("cursor", entry.Cursor),
			zap.Error(err))
		if c.metrics != nil {
			c.metrics.FeedErrors.WithLabelValues(c.stream).Inc()
		}
	}
	return nil
}
