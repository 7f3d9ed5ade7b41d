package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/therapymatch/internal/domain"
)

// openingDelay separates the intake prompt from the assistant's first answer.
const openingDelay = 2 * time.Second

// PatientSource looks up patients. A missing patient is reported as nil, nil.
type PatientSource interface {
	GetPatient(ctx context.Context, id string) (*domain.Patient, error)
}

// Recommender produces ranked activity matches for a patient.
type Recommender interface {
	Match(ctx context.Context, patientID string) ([]domain.Activity, error)
}

// Session bundles a conversation with the profile and matches it was built from.
type Session struct {
	Chat    domain.Chat
	Patient domain.Patient
	Matches []domain.Activity
}

// Planner manages planning conversations.
type Planner struct {
	chats    domain.ChatRepository
	patients PatientSource
	matcher  Recommender
	now      func() time.Time
	newID    func() string
}

// Option configures a Planner.
type Option func(*Planner)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

// WithIDGenerator overrides how chat and message IDs are minted.
func WithIDGenerator(fn func() string) Option {
	return func(p *Planner) { p.newID = fn }
}

// NewPlanner constructs a Planner.
func NewPlanner(chats domain.ChatRepository, patients PatientSource, matcher Recommender, opts ...Option) *Planner {
	p := &Planner{
		chats:    chats,
		patients: patients,
		matcher:  matcher,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ListChats returns the patient's conversations, most recently updated first.
func (p *Planner) ListChats(ctx context.Context, patientID string) ([]domain.Chat, error) {
	if _, err := p.patient(ctx, patientID); err != nil {
		return nil, err
	}
	chats, err := p.chats.ListChats(ctx, patientID)
	if err != nil {
		return nil, err
	}
	domain.SortChatsByRecent(chats)
	return chats, nil
}

// ListChatsPage returns one page of ListChats and the cursor of the following page.
func (p *Planner) ListChatsPage(ctx context.Context, patientID string, after *domain.ChatCursor, limit int) ([]domain.Chat, *domain.ChatCursor, error) {
	chats, err := p.ListChats(ctx, patientID)
	if err != nil {
		return nil, nil, err
	}
	page, next := domain.PageChats(chats, after, limit)
	return page, next, nil
}

// StartChat opens a conversation with the standard intake prompt and the opening recommendations.
func (p *Planner) StartChat(ctx context.Context, patientID, title string) (domain.Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Chat{}, &domain.ValidationError{Field: "title", Reason: "is required"}
	}
	patient, err := p.patient(ctx, patientID)
	if err != nil {
		return domain.Chat{}, err
	}
	matches, err := p.matcher.Match(ctx, patient.ID)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("match activities: %w", err)
	}

	now := p.now()
	chat := domain.Chat{
		ID:        p.newID(),
		PatientID: patient.ID,
		Title:     title,
		Messages: []domain.ChatMessage{
			{ID: p.newID(), Sender: domain.SenderUser, Content: StandardPrompt(*patient), Timestamp: now},
			{ID: p.newID(), Sender: domain.SenderAI, Content: OpeningReply(*patient, matches), Timestamp: now.Add(openingDelay)},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.chats.SaveChat(ctx, chat); err != nil {
		return domain.Chat{}, err
	}
	return chat, nil
}

// PostMessage appends a clinician message and the assistant's reply.
func (p *Planner) PostMessage(ctx context.Context, chatID, text string) (domain.Chat, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Chat{}, &domain.ValidationError{Field: "content", Reason: "is required"}
	}
	chat, err := p.chat(ctx, chatID)
	if err != nil {
		return domain.Chat{}, err
	}
	patient, err := p.patient(ctx, chat.PatientID)
	if err != nil {
		return domain.Chat{}, err
	}

	now := p.now()
	chat.Messages = append(chat.Messages,
		domain.ChatMessage{ID: p.newID(), Sender: domain.SenderUser, Content: text, Timestamp: now},
		domain.ChatMessage{ID: p.newID(), Sender: domain.SenderAI, Content: Reply(*patient, text), Timestamp: now},
	)
	chat.UpdatedAt = now
	if err := p.chats.SaveChat(ctx, *chat); err != nil {
		return domain.Chat{}, err
	}
	return *chat, nil
}

// Session loads a conversation with its patient and current matches.
func (p *Planner) Session(ctx context.Context, chatID string) (Session, error) {
	chat, err := p.chat(ctx, chatID)
	if err != nil {
		return Session{}, err
	}
	patient, err := p.patient(ctx, chat.PatientID)
	if err != nil {
		return Session{}, err
	}
	matches, err := p.matcher.Match(ctx, patient.ID)
	if err != nil {
		return Session{}, fmt.Errorf("match activities: %w", err)
	}
	return Session{Chat: *chat, Patient: *patient, Matches: matches}, nil
}

func (p *Planner) patient(ctx context.Context, id string) (*domain.Patient, error) {
	patient, err := p.patients.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, domain.ErrPatientNotFound
	}
	return patient, nil
}

func (p *Planner) chat(ctx context.Context, id string) (*domain.Chat, error) {
	chat, err := p.chats.GetChat(ctx, id)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, domain.ErrChatNotFound
	}
	return chat, nil
}
