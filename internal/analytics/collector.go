package analytics

import (
	"context"
	"log/slog"

	"github.com/searchlab/adaptive-retrieval/pkg/kafka"
)

// Collector buffers run events and publishes them to Kafka from a single
// background goroutine. Track never blocks the caller; events are dropped
// with a warning when the buffer is full.
type Collector struct {
	producer *kafka.Producer
	eventCh  chan RunEvent
	done     chan struct{}
	logger   *slog.Logger
}

// NewCollector creates a Collector with the given buffer size.
func NewCollector(producer *kafka.Producer, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Collector{
		producer: producer,
		eventCh:  make(chan RunEvent, bufferSize),
		done:     make(chan struct{}),
		logger:   slog.Default().With("component", "analytics-collector"),
	}
}

// Start launches the publishing goroutine. It drains buffered events when
// ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drain()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues an event without blocking.
func (c *Collector) Track(event RunEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("run event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the publisher to finish.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event RunEvent) {
	err := c.producer.Publish(ctx, kafka.Event{Key: event.Strategy, Value: event})
	if err != nil {
		c.logger.Error("failed to publish run event", "error", err)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}
