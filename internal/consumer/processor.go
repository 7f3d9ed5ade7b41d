// Package consumer applies catalog events from Kafka to a replica's repository.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Reader describes the kafka.Reader functions the processor interacts with.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler processes decoded Kafka messages.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message represents a decoded Kafka record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	EventType string
	Payload   json.RawMessage
	Timestamp time.Time
	Headers   map[string]string
}

// Option configures processor behaviour.
type Option func(*Processor)

// WithLogger sets a custom logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRetryBackoff sets the pause after a failed fetch or handler attempt.
func WithRetryBackoff(d time.Duration) Option {
	return func(p *Processor) { p.backoff = d }
}

// Processor coordinates the consumer loop.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *zap.Logger
	backoff time.Duration
}

// NewProcessor constructs a processor from a reader/handler pair.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{reader: reader, handler: handler, logger: zap.NewNop(), backoff: time.Second}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes messages until ctx cancellation. A message is committed only once its handler
// succeeds or reports a PermanentError; transient failures are retried before anything later is
// fetched, so the group offset never moves past an unapplied event.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Warn("fetch error", zap.Error(err))
			if err := p.wait(ctx); err != nil {
				return err
			}
			continue
		}

		decoded := Decode(msg)
		log := p.logger.With(zap.String("topic", msg.Topic), zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.String("event_type", decoded.EventType))

		if err := p.handle(ctx, decoded, log); err != nil {
			return err
		}
		if err := p.reader.CommitMessages(ctx, msg); err != nil {
			log.Warn("commit error", zap.Error(err))
		}
	}
}

// handle applies msg, retrying with backoff until the handler succeeds, reports a permanent
// failure, or ctx ends.
func (p *Processor) handle(ctx context.Context, msg Message, log *zap.Logger) error {
	for attempt := 1; ; attempt++ {
		err := p.handler.Handle(ctx, msg)
		if err == nil {
			RecordProcessed(msg)
			log.Debug("processed")
			return nil
		}
		RecordFailed(msg)

		var permanent *PermanentError
		if errors.As(err, &permanent) {
			log.Error("dropping unprocessable message", zap.Error(err))
			return nil
		}
		log.Warn("handler error, retrying", zap.Int("attempt", attempt), zap.Error(err))
		if err := p.wait(ctx); err != nil {
			return err
		}
	}
}

func (p *Processor) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.backoff):
		return nil
	}
}

// PermanentError marks a message that can never be applied, such as a malformed payload.
// The processor counts it as failed and commits past it.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Decode converts a Kafka record into a Message.
func Decode(msg kafka.Message) Message {
	decoded := Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Payload:   append(json.RawMessage{}, msg.Value...),
		Timestamp: msg.Time,
		Headers:   make(map[string]string, len(msg.Headers)),
	}
	for _, header := range msg.Headers {
		decoded.Headers[header.Key] = string(header.Value)
	}
	decoded.EventType = decoded.Headers["event_type"]
	return decoded
}
