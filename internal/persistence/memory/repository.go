// Package memory keeps the catalog, patient directory and conversations in process memory.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"example.com/therapymatch/internal/domain"
	"example.com/therapymatch/internal/persistence/seed"
)

// Repository stores records in memory for local development and tests. Listing preserves
// insertion order; replacing a record keeps its original position.
type Repository struct {
	mu sync.RWMutex

	activities    map[string]domain.Activity
	activityOrder []string
	patients      map[string]domain.Patient
	patientOrder  []string
	chats         map[string]domain.Chat
	chatOrder     []string
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{
		activities: make(map[string]domain.Activity),
		patients:   make(map[string]domain.Patient),
		chats:      make(map[string]domain.Chat),
	}
}

// NewSeededRepository constructs a repository populated with the sample catalog.
func NewSeededRepository() (*Repository, error) {
	c, err := seed.Load()
	if err != nil {
		return nil, err
	}
	repo := NewRepository()
	repo.Load(c)
	return repo, nil
}

// Load inserts every record of the catalog.
func (r *Repository) Load(c seed.Catalog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range c.Activities {
		r.putActivity(a)
	}
	for _, p := range c.Patients {
		r.putPatient(p)
	}
	for _, chat := range c.Chats {
		r.putChat(chat)
	}
}

// ListActivities implements domain.Repository.
func (r *Repository) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Activity, 0, len(r.activityOrder))
	for _, id := range r.activityOrder {
		out = append(out, r.activities[id])
	}
	return out, nil
}

// GetActivity implements domain.Repository.
func (r *Repository) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	activity, ok := r.activities[id]
	if !ok {
		return nil, nil
	}
	return &activity, nil
}

// UpsertActivity implements domain.Repository.
func (r *Repository) UpsertActivity(ctx context.Context, activity domain.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(activity.ID) == "" {
		activity.ID = uuid.NewString()
	}
	r.putActivity(activity)
	return nil
}

// ListPatients implements domain.Repository.
func (r *Repository) ListPatients(ctx context.Context) ([]domain.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Patient, 0, len(r.patientOrder))
	for _, id := range r.patientOrder {
		out = append(out, r.patients[id])
	}
	return out, nil
}

// GetPatient implements domain.Repository.
func (r *Repository) GetPatient(ctx context.Context, id string) (*domain.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	patient, ok := r.patients[id]
	if !ok {
		return nil, nil
	}
	return &patient, nil
}

// UpsertPatient implements domain.Repository.
func (r *Repository) UpsertPatient(ctx context.Context, patient domain.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(patient.ID) == "" {
		patient.ID = uuid.NewString()
	}
	r.putPatient(patient)
	return nil
}

// ListChats implements domain.ChatRepository. Chats come back most recently updated first.
func (r *Repository) ListChats(ctx context.Context, patientID string) ([]domain.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Chat, 0)
	for _, id := range r.chatOrder {
		chat := r.chats[id]
		if patientID != "" && chat.PatientID != patientID {
			continue
		}
		chat.Messages = slices.Clone(chat.Messages)
		out = append(out, chat)
	}
	domain.SortChatsByRecent(out)
	return out, nil
}

// GetChat implements domain.ChatRepository.
func (r *Repository) GetChat(ctx context.Context, id string) (*domain.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chat, ok := r.chats[id]
	if !ok {
		return nil, nil
	}
	chat.Messages = slices.Clone(chat.Messages)
	return &chat, nil
}

// SaveChat implements domain.ChatRepository.
func (r *Repository) SaveChat(ctx context.Context, chat domain.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(chat.ID) == "" {
		chat.ID = uuid.NewString()
	}
	chat.Messages = slices.Clone(chat.Messages)
	r.putChat(chat)
	return nil
}

func (r *Repository) putActivity(a domain.Activity) {
	if _, ok := r.activities[a.ID]; !ok {
		r.activityOrder = append(r.activityOrder, a.ID)
	}
	r.activities[a.ID] = a
}

func (r *Repository) putPatient(p domain.Patient) {
	if _, ok := r.patients[p.ID]; !ok {
		r.patientOrder = append(r.patientOrder, p.ID)
	}
	r.patients[p.ID] = p
}

func (r *Repository) putChat(c domain.Chat) {
	if _, ok := r.chats[c.ID]; !ok {
		r.chatOrder = append(r.chatOrder, c.ID)
	}
	r.chats[c.ID] = c
}

var (
	_ domain.Repository     = (*Repository)(nil)
	_ domain.ChatRepository = (*Repository)(nil)
)
