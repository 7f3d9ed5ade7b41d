package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"example.com/therapymatch/internal/domain"
	"example.com/therapymatch/internal/events"
)

// CatalogService is the subset of domain.Service the handler writes through.
type CatalogService interface {
	UpsertActivity(ctx context.Context, activity domain.Activity) (domain.Activity, error)
	UpsertPatient(ctx context.Context, patient domain.Patient) (domain.Patient, error)
}

// CatalogHandler applies activity and patient upserts published by API replicas.
type CatalogHandler struct {
	service CatalogService
	origin  string
	logger  *zap.Logger
}

// NewCatalogHandler constructs a handler. Events stamped with origin are skipped because the
// instance that published them has already stored the record.
func NewCatalogHandler(service CatalogService, origin string, logger *zap.Logger) *CatalogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogHandler{service: service, origin: origin, logger: logger}
}

// Handle implements Handler. Unknown event types are ignored.
func (h *CatalogHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case events.TypeActivityUpserted:
		var evt events.ActivityUpserted
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return Permanent(fmt.Errorf("decode %s: %w", msg.EventType, err))
		}
		if h.ownEvent(evt.Origin) {
			return nil
		}
		if evt.Activity.ID == "" {
			return Permanent(fmt.Errorf("%s without activity id", msg.EventType))
		}
		if _, err := h.service.UpsertActivity(ctx, evt.Activity); err != nil {
			return applyError(fmt.Errorf("apply activity %s: %w", evt.Activity.ID, err))
		}
	case events.TypePatientUpserted:
		var evt events.PatientUpserted
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return Permanent(fmt.Errorf("decode %s: %w", msg.EventType, err))
		}
		if h.ownEvent(evt.Origin) {
			return nil
		}
		if evt.Patient.ID == "" {
			return Permanent(fmt.Errorf("%s without patient id", msg.EventType))
		}
		if _, err := h.service.UpsertPatient(ctx, evt.Patient); err != nil {
			return applyError(fmt.Errorf("apply patient %s: %w", evt.Patient.ID, err))
		}
	default:
		h.logger.Debug("ignoring event", zap.String("event_type", msg.EventType))
	}
	return nil
}

func (h *CatalogHandler) ownEvent(origin string) bool {
	return h.origin != "" && origin == h.origin
}

// applyError marks records the service rejects as permanent; storage failures stay retryable.
func applyError(err error) error {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		return Permanent(err)
	}
	return err
}
