// Package events defines catalog change events and publishes them to Kafka.
package events

import (
	"time"

	"example.com/therapymatch/internal/domain"
)

// TopicCatalog carries activity and patient upserts.
const TopicCatalog = "catalog_events"

// HeaderEventType names the Kafka header holding the event type.
const HeaderEventType = "event_type"

// Event types.
const (
	TypeActivityUpserted = "activity.upserted"
	TypePatientUpserted  = "patient.upserted"
)

// ActivityUpserted is emitted when a catalog activity is created or replaced.
type ActivityUpserted struct {
	Activity   domain.Activity `json:"activity"`
	Origin     string          `json:"origin,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// PatientUpserted is emitted when a patient profile is created or replaced.
type PatientUpserted struct {
	Patient    domain.Patient `json:"patient"`
	Origin     string         `json:"origin,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
