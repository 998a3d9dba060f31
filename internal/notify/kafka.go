package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes events to a topic, keyed by job id.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

// NewKafkaPublisher creates a synchronous writer for topic.
func NewKafkaPublisher(brokers []string, topic string, log zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			BatchTimeout:           10 * time.Millisecond,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		log: log.With().Str("component", "kafka-publisher").Logger(),
	}
}

// Publish writes one event.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := encode(e)
	if err != nil {
		return err
	}
	msg := kafka.Message{Key: []byte(e.JobID), Value: value, Time: time.Now()}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaSubscriber reads events from a topic as a member of a consumer
// group. Each notifier instance that should see every event needs its own
// group id.
type KafkaSubscriber struct {
	reader *kafka.Reader
	log    zerolog.Logger
}

// NewKafkaSubscriber creates a group reader starting at the newest offset;
// events produced while no notifier ran are not replayed.
func NewKafkaSubscriber(brokers []string, topic, group string, log zerolog.Logger) *KafkaSubscriber {
	return &KafkaSubscriber{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			GroupID:        group,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        500 * time.Millisecond,
			StartOffset:    kafka.LastOffset,
			CommitInterval: time.Second,
			ReadBackoffMin: 100 * time.Millisecond,
			ReadBackoffMax: 5 * time.Second,
		}),
		log: log.With().Str("component", "kafka-subscriber").Logger(),
	}
}

// Subscribe fetches, delivers and commits messages until ctx is done.
// Undecodable messages are committed and skipped.
func (s *KafkaSubscriber) Subscribe(ctx context.Context, fn func(Event)) error {
	for {
		m, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			s.log.Error().Err(err).Msg("fetch message failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		if e, err := decode(m.Value); err != nil {
			s.log.Warn().Err(err).Int64("offset", m.Offset).Msg("skipping malformed event")
		} else {
			fn(e)
		}

		if err := s.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Int64("offset", m.Offset).Msg("commit failed")
		}
	}
}

// Close leaves the consumer group.
func (s *KafkaSubscriber) Close() error {
	return s.reader.Close()
}
