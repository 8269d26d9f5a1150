package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrClientClosed is returned by Poll after Close
var ErrClientClosed = errors.New("kafka consumer closed")

// ConsumerConfig holds consumer group configuration
type ConsumerConfig struct {
	Brokers        []string
	GroupID        string
	Topics         []string
	ClientID       string
	MaxRetries     int
	RetryInterval  time.Duration
	SessionTimeout time.Duration
}

// Consumer reads records from a consumer group. Offsets are committed
// explicitly with CommitRecords.
type Consumer struct {
	client *kgo.Client
	config *ConsumerConfig
}

// NewConsumer joins the consumer group
func NewConsumer(ctx context.Context, cfg *ConsumerConfig) (*Consumer, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.GroupID == "" || len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("kafka consumer needs a group id and at least one topic")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.SessionTimeout > 0 {
		opts = append(opts, kgo.SessionTimeout(cfg.SessionTimeout))
	}

	client, err := connect(ctx, opts, cfg.MaxRetries, cfg.RetryInterval)
	if err != nil {
		return nil, err
	}
	return &Consumer{client: client, config: cfg}, nil
}

// Poll blocks until records are available or ctx is done
func (c *Consumer) Poll(ctx context.Context) ([]*Record, error) {
	fetches := c.client.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, ErrClientClosed
	}
	if errs := fetches.Errors(); len(errs) > 0 {
		first := errs[0]
		if errors.Is(first.Err, context.Canceled) || errors.Is(first.Err, context.DeadlineExceeded) {
			return nil, first.Err
		}
		return fetches.Records(), fmt.Errorf("fetch %s[%d]: %w", first.Topic, first.Partition, first.Err)
	}
	return fetches.Records(), nil
}

// CommitRecords commits the offsets of processed records
func (c *Consumer) CommitRecords(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := c.client.CommitRecords(ctx, records...); err != nil {
		return fmt.Errorf("failed to commit offsets: %w", err)
	}
	return nil
}

// Close leaves the group and closes the client
func (c *Consumer) Close() {
	c.client.Close()
}

// Header returns a record header value
func Header(r *Record, key string) string {
	for _, h := range r.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
