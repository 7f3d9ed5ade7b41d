package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/therapymatch/internal/domain"
)

type recordingWriter struct {
	topic string
	msgs  []kafka.Message
	err   error
}

func (w *recordingWriter) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.topic = topic
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestPublisherWritesActivityEvent(t *testing.T) {
	w := &recordingWriter{}
	p := NewPublisher(w, WithOrigin("api-1"))

	require.NoError(t, p.ActivityUpserted(context.Background(), domain.Activity{ID: "act9", Title: "Drum Circle", Effectiveness: 4.1}))

	require.Equal(t, TopicCatalog, w.topic)
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	require.Equal(t, "act9", string(msg.Key))
	require.Equal(t, HeaderEventType, msg.Headers[0].Key)
	require.Equal(t, TypeActivityUpserted, string(msg.Headers[0].Value))

	var evt ActivityUpserted
	require.NoError(t, json.Unmarshal(msg.Value, &evt))
	require.Equal(t, "Drum Circle", evt.Activity.Title)
	require.Equal(t, "api-1", evt.Origin)
	require.False(t, evt.OccurredAt.IsZero())
}

func TestPublisherWritesPatientEventToCustomTopic(t *testing.T) {
	w := &recordingWriter{}
	p := NewPublisher(w, WithTopic("catalog_events_v2"))

	require.NoError(t, p.PatientUpserted(context.Background(), domain.Patient{ID: "pat9", Name: "Rin"}))
	require.Equal(t, "catalog_events_v2", w.topic)
	require.Equal(t, TypePatientUpserted, string(w.msgs[0].Headers[0].Value))
}

func TestPublisherReturnsWriteError(t *testing.T) {
	boom := errors.New("broker unavailable")
	p := NewPublisher(&recordingWriter{err: boom})
	require.ErrorIs(t, p.PatientUpserted(context.Background(), domain.Patient{ID: "pat1"}), boom)
}
