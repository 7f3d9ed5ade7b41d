package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"example.com/therapymatch/internal/domain"
)

// Publisher announces catalog changes on TopicCatalog. It implements domain.Publisher.
type Publisher struct {
	writer MessageWriter
	topic  string
	origin string
	logger *zap.Logger
	now    func() time.Time
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithTopic overrides the destination topic.
func WithTopic(topic string) PublisherOption {
	return func(p *Publisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// WithOrigin stamps events with the publishing instance so it can recognise its own changes.
func WithOrigin(origin string) PublisherOption {
	return func(p *Publisher) { p.origin = origin }
}

// WithPublisherLogger sets the logger.
func WithPublisherLogger(l *zap.Logger) PublisherOption {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPublisher constructs a Publisher writing through w.
func NewPublisher(w MessageWriter, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		writer: w,
		topic:  TopicCatalog,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ActivityUpserted implements domain.Publisher.
func (p *Publisher) ActivityUpserted(ctx context.Context, activity domain.Activity) error {
	return p.publish(ctx, TypeActivityUpserted, activity.ID, ActivityUpserted{
		Activity:   activity,
		Origin:     p.origin,
		OccurredAt: p.now(),
	})
}

// PatientUpserted implements domain.Publisher.
func (p *Publisher) PatientUpserted(ctx context.Context, patient domain.Patient) error {
	return p.publish(ctx, TypePatientUpserted, patient.ID, PatientUpserted{
		Patient:    patient,
		Origin:     p.origin,
		OccurredAt: p.now(),
	})
}

func (p *Publisher) publish(ctx context.Context, eventType, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  p.now(),
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(eventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, p.topic, msg); err != nil {
		p.logger.Error("publish failed", zap.String("topic", p.topic), zap.String("event_type", eventType), zap.String("key", key), zap.Error(err))
		return err
	}
	p.logger.Debug("published", zap.String("topic", p.topic), zap.String("event_type", eventType), zap.String("key", key))
	return nil
}

var _ domain.Publisher = (*Publisher)(nil)
