package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/boardstream/relay/internal/board"
	"github.com/boardstream/relay/internal/notify"
)

// KafkaSourceConfig describes one Kafka-backed stream.
type KafkaSourceConfig struct {
	Brokers []string
	// Group is suffixed with the stream name so the two consumption loops
	// rebalance independently.
	Group  string
	Topic  string
	Stream string
}

// KafkaSource consumes one stream from a Kafka topic. Partition order gives
// the per-stream ordering contract and committed group offsets are the resume
// checkpoint; offsets commit only after the entry has been handled.
type KafkaSource struct {
	client *kgo.Client
	stream string
}

// NewKafkaSource constructs a consumer-group source for one topic.
func NewKafkaSource(cfg KafkaSourceConfig) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("feed: kafka brokers required")
	}
	if cfg.Topic == "" || cfg.Stream == "" {
		return nil, fmt.Errorf("feed: kafka topic and stream required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group+"."+cfg.Stream),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("feed: kafka client for %s: %w", cfg.Stream, err)
	}
	return &KafkaSource{client: client, stream: cfg.Stream}, nil
}

// Run polls the topic until ctx is cancelled.
func (k *KafkaSource) Run(ctx context.Context, emit func(ctx context.Context, entry Entry) error) error {
	for {
		fetches := k.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if fetches.IsClientClosed() {
			return fmt.Errorf("feed: kafka client closed for %s", k.stream)
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			return fmt.Errorf("feed: kafka fetch %s[%d]: %w", errs[0].Topic, errs[0].Partition, errs[0].Err)
		}
		var loopErr error
		fetches.EachRecord(func(record *kgo.Record) {
			if loopErr != nil {
				return
			}
			entry := Entry{Stream: k.stream, Cursor: record.Offset, Value: record.Value}
			if err := emit(ctx, entry); err != nil {
				loopErr = err
				return
			}
			if err := k.client.CommitRecords(ctx, record); err != nil {
				loopErr = fmt.Errorf("feed: commit offset %d for %s: %w", record.Offset, k.stream, err)
			}
		})
		if loopErr != nil {
			return loopErr
		}
	}
}

// Close releases the underlying client.
func (k *KafkaSource) Close() {
	k.client.Close()
}

// KafkaPublisherConfig describes the producer used when the Kafka feed driver
// is active.
type KafkaPublisherConfig struct {
	Brokers            []string
	HistoryTopic       string
	NotificationsTopic string
}

// KafkaPublisher appends documents onto the Kafka-backed streams. Keys carry
// the partition affinity: board id for history, recipient id for
// notifications, so per-key order is preserved.
type KafkaPublisher struct {
	client             *kgo.Client
	historyTopic       string
	notificationsTopic string
}

// NewKafkaPublisher constructs the producer.
func NewKafkaPublisher(cfg KafkaPublisherConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("feed: kafka brokers required")
	}
	if cfg.HistoryTopic == "" || cfg.NotificationsTopic == "" {
		return nil, fmt.Errorf("feed: kafka topics required")
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(cfg.Brokers...))
	if err != nil {
		return nil, fmt.Errorf("feed: kafka producer client: %w", err)
	}
	return &KafkaPublisher{
		client:             client,
		historyTopic:       cfg.HistoryTopic,
		notificationsTopic: cfg.NotificationsTopic,
	}, nil
}

// AppendEvent produces one mutation event onto the history topic.
func (p *KafkaPublisher) AppendEvent(ctx context.Context, event *board.Event) error {
	if event == nil {
		return fmt.Errorf("feed: event required")
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("feed: encode event %s: %w", event.EventID, err)
	}
	record := &kgo.Record{Topic: p.historyTopic, Key: []byte(event.BoardID), Value: value}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("feed: produce event %s: %w", event.EventID, err)
	}
	return nil
}

// PublishNotification produces one notification record onto the notification
// topic. Called by the notification store after the row is durable.
func (p *KafkaPublisher) PublishNotification(ctx context.Context, record notify.Record) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("feed: encode notification %s: %w", record.ID, err)
	}
	kafkaRecord := &kgo.Record{Topic: p.notificationsTopic, Key: []byte(record.RecipientID), Value: value}
	if err := p.client.ProduceSync(ctx, kafkaRecord).FirstErr(); err != nil {
		return fmt.Errorf("feed: produce notification %s: %w", record.ID, err)
	}
	return nil
}

// Close releases the underlying client.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}
