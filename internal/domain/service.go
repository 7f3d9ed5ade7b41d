// Package domain defines the catalog and patient directory for the therapy matcher.
package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/therapymatch/internal/cache"
	"example.com/therapymatch/internal/observability"
)

// Repository exposes catalog and patient persistence. Get methods return nil, nil when the
// record does not exist. List methods return records in catalog (insertion) order.
type Repository interface {
	ListActivities(ctx context.Context) ([]Activity, error)
	GetActivity(ctx context.Context, id string) (*Activity, error)
	UpsertActivity(ctx context.Context, activity Activity) error
	ListPatients(ctx context.Context) ([]Patient, error)
	GetPatient(ctx context.Context, id string) (*Patient, error)
	UpsertPatient(ctx context.Context, patient Patient) error
}

// ChatRepository persists planning conversations.
type ChatRepository interface {
	ListChats(ctx context.Context, patientID string) ([]Chat, error)
	GetChat(ctx context.Context, id string) (*Chat, error)
	SaveChat(ctx context.Context, chat Chat) error
}

// Publisher announces accepted catalog changes to other replicas.
type Publisher interface {
	ActivityUpserted(ctx context.Context, activity Activity) error
	PatientUpserted(ctx context.Context, patient Patient) error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

// ActivityUpserted performs no action.
func (NoopPublisher) ActivityUpserted(context.Context, Activity) error { return nil }

// PatientUpserted performs no action.
func (NoopPublisher) PatientUpserted(context.Context, Patient) error { return nil }

// Service contains catalog and directory business logic.
type Service struct {
	repo      Repository
	cache     cache.Invalidator
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithInvalidator sets the edge cache invalidator.
func WithInvalidator(inv cache.Invalidator) Option {
	return func(s *Service) {
		if inv != nil {
			s.cache = inv
		}
	}
}

// WithPublisher sets the change publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger sets the logger used for non-fatal follow-up failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a new Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		cache:     cache.NoopInvalidator{},
		publisher: NoopPublisher{},
		logger:    zap.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListActivities returns the full catalog.
func (s *Service) ListActivities(ctx context.Context) ([]Activity, error) {
	activities, err := s.repo.ListActivities(ctx)
	if err != nil {
		return nil, err
	}
	observability.RecordCatalogRead(s.now())
	return activities, nil
}

// GetActivity retrieves by ID.
func (s *Service) GetActivity(ctx context.Context, id string) (*Activity, error) {
	activity, err := s.repo.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// GetPatient retrieves by ID.
func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	patient, err := s.repo.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, ErrPatientNotFound
	}
	return patient, nil
}

// SearchActivities applies the browse filter to the catalog.
func (s *Service) SearchActivities(ctx context.Context, filter ActivityFilter) ([]Activity, error) {
	activities, err := s.ListActivities(ctx)
	if err != nil {
		return nil, err
	}
	return FilterActivities(activities, filter), nil
}

// ActivityFacets lists the browse options available in the catalog.
func (s *Service) ActivityFacets(ctx context.Context) (Facets, error) {
	activities, err := s.ListActivities(ctx)
	if err != nil {
		return Facets{}, err
	}
	return CollectFacets(activities), nil
}

// SearchPatients finds patients by name, goal or interest.
func (s *Service) SearchPatients(ctx context.Context, query string) ([]Patient, error) {
	patients, err := s.repo.ListPatients(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Patient, 0, len(patients))
	for _, p := range patients {
		if MatchesPatientQuery(p, query) {
			out = append(out, p)
		}
	}
	return out, nil
}

// UpsertActivity validates and stores an activity, publishes the change, then purges caches.
func (s *Service) UpsertActivity(ctx context.Context, activity Activity) (Activity, error) {
	activity = normalizeActivity(activity)
	if err := ValidateActivity(activity); err != nil {
		return Activity{}, err
	}
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = s.now()
	}
	if err := s.repo.UpsertActivity(ctx, activity); err != nil {
		return Activity{}, err
	}
	if err := s.publisher.ActivityUpserted(ctx, activity); err != nil {
		return Activity{}, fmt.Errorf("publish activity: %w", err)
	}
	s.invalidate(ctx, activity.ID)
	observability.RecordCatalogUpsert(s.now())
	return activity, nil
}

// UpsertPatient validates and stores a patient profile.
func (s *Service) UpsertPatient(ctx context.Context, patient Patient) (Patient, error) {
	patient = normalizePatient(patient)
	if err := ValidatePatient(patient); err != nil {
		return Patient{}, err
	}
	if patient.ID == "" {
		patient.ID = uuid.NewString()
	}
	if err := s.repo.UpsertPatient(ctx, patient); err != nil {
		return Patient{}, err
	}
	if err := s.publisher.PatientUpserted(ctx, patient); err != nil {
		return Patient{}, fmt.Errorf("publish patient: %w", err)
	}
	s.invalidate(ctx, patient.ID)
	observability.RecordCatalogUpsert(s.now())
	return patient, nil
}

// invalidate purges edge caches for a stored record. The write has already been accepted and
// announced, so a failed purge is only logged; cached entries expire on their own.
func (s *Service) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("id", id), zap.Error(err))
	}
}

// ValidateActivity checks the invariants every catalog entry must hold.
func ValidateActivity(a Activity) error {
	switch {
	case a.Title == "":
		return invalid("title", "is required")
	case a.Description == "":
		return invalid("description", "is required")
	case len(a.Tags.GoalAreas) == 0:
		return invalid("tags.goal_areas", "must not be empty")
	case len(a.Tags.AgeGroups) == 0:
		return invalid("tags.age_groups", "must not be empty")
	case !a.Tags.Difficulty.Valid():
		return invalid("tags.difficulty", "must be Easy, Medium or Challenging")
	case a.Effectiveness < MinEffectiveness || a.Effectiveness > MaxEffectiveness:
		return invalid("effectiveness", "must be between 1.0 and 5.0")
	}
	return nil
}

// ValidatePatient checks the invariants every patient profile must hold.
func ValidatePatient(p Patient) error {
	if p.Name == "" {
		return invalid("name", "is required")
	}
	if p.Age < 0 {
		return invalid("age", "must not be negative")
	}
	return nil
}

func normalizeActivity(a Activity) Activity {
	a.ID = strings.TrimSpace(a.ID)
	a.Title = strings.TrimSpace(a.Title)
	a.Description = strings.TrimSpace(a.Description)
	a.Tags.GoalAreas = normalizeList(a.Tags.GoalAreas)
	a.Tags.AgeGroups = normalizeList(a.Tags.AgeGroups)
	a.Tags.CulturalContexts = normalizeList(a.Tags.CulturalContexts)
	a.Materials = normalizeList(a.Materials)
	a.Steps = normalizeList(a.Steps)
	return a
}

func normalizePatient(p Patient) Patient {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.CulturalBackground = normalizeList(p.CulturalBackground)
	p.Interests = normalizeList(p.Interests)
	p.TreatmentGoals = normalizeList(p.TreatmentGoals)
	p.Challenges = normalizeList(p.Challenges)
	p.PreferredActivities = normalizeList(p.PreferredActivities)
	return p
}

// normalizeList trims entries and drops blanks, preserving order.
func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if clean := strings.TrimSpace(v); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}
