// Package postgres persists the catalog, patient directory and conversations in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/therapymatch/internal/domain"
	"example.com/therapymatch/internal/persistence/seed"
)

// Repository provides Postgres-backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const activityColumns = `id, title, description, goal_areas, age_groups, difficulty, cultural_contexts, session_length, materials, steps, created_by, created_at, effectiveness`

const patientColumns = `id, name, age, cultural_background, interests, treatment_goals, challenges, preferred_activities, additional_notes`

const chatColumns = `id, patient_id, title, messages, created_at, updated_at`

// ListActivities returns the catalog in insertion order.
func (r *Repository) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+activityColumns+` FROM activities ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Activity, 0)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetActivity retrieves an activity by ID.
func (r *Repository) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=$1`, id)
	a, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// UpsertActivity inserts or replaces an activity. Replacement keeps catalog position.
func (r *Repository) UpsertActivity(ctx context.Context, a domain.Activity) error {
	return upsertActivity(ctx, r.pool, a)
}

func upsertActivity(ctx context.Context, db execer, a domain.Activity) error {
	const stmt = `INSERT INTO activities (` + activityColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        ON CONFLICT (id) DO UPDATE SET
            title=EXCLUDED.title,
            description=EXCLUDED.description,
            goal_areas=EXCLUDED.goal_areas,
            age_groups=EXCLUDED.age_groups,
            difficulty=EXCLUDED.difficulty,
            cultural_contexts=EXCLUDED.cultural_contexts,
            session_length=EXCLUDED.session_length,
            materials=EXCLUDED.materials,
            steps=EXCLUDED.steps,
            created_by=EXCLUDED.created_by,
            created_at=EXCLUDED.created_at,
            effectiveness=EXCLUDED.effectiveness`

	_, err := db.Exec(ctx, stmt,
		a.ID,
		a.Title,
		a.Description,
		textArray(a.Tags.GoalAreas),
		textArray(a.Tags.AgeGroups),
		string(a.Tags.Difficulty),
		textArray(a.Tags.CulturalContexts),
		a.Tags.SessionLength,
		textArray(a.Materials),
		textArray(a.Steps),
		a.CreatedBy,
		a.CreatedAt,
		a.Effectiveness,
	)
	return err
}

// ListPatients returns patients in insertion order.
func (r *Repository) ListPatients(ctx context.Context) ([]domain.Patient, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+patientColumns+` FROM patients ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Patient, 0)
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPatient retrieves a patient by ID.
func (r *Repository) GetPatient(ctx context.Context, id string) (*domain.Patient, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id=$1`, id)
	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// UpsertPatient inserts or replaces a patient profile.
func (r *Repository) UpsertPatient(ctx context.Context, p domain.Patient) error {
	return upsertPatient(ctx, r.pool, p)
}

func upsertPatient(ctx context.Context, db execer, p domain.Patient) error {
	const stmt = `INSERT INTO patients (` + patientColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (id) DO UPDATE SET
            name=EXCLUDED.name,
            age=EXCLUDED.age,
            cultural_background=EXCLUDED.cultural_background,
            interests=EXCLUDED.interests,
            treatment_goals=EXCLUDED.treatment_goals,
            challenges=EXCLUDED.challenges,
            preferred_activities=EXCLUDED.preferred_activities,
            additional_notes=EXCLUDED.additional_notes`

	_, err := db.Exec(ctx, stmt,
		p.ID,
		p.Name,
		p.Age,
		textArray(p.CulturalBackground),
		textArray(p.Interests),
		textArray(p.TreatmentGoals),
		textArray(p.Challenges),
		textArray(p.PreferredActivities),
		p.AdditionalNotes,
	)
	return err
}

// ListChats returns conversations, most recently updated first. An empty patient ID lists all.
func (r *Repository) ListChats(ctx context.Context, patientID string) ([]domain.Chat, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+chatColumns+` FROM chats
        WHERE $1 = '' OR patient_id = $1
        ORDER BY updated_at DESC, id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Chat, 0)
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetChat retrieves a conversation by ID.
func (r *Repository) GetChat(ctx context.Context, id string) (*domain.Chat, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, id)
	c, err := scanChat(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// SaveChat inserts or replaces a conversation with its full message history.
func (r *Repository) SaveChat(ctx context.Context, c domain.Chat) error {
	return saveChat(ctx, r.pool, c)
}

func saveChat(ctx context.Context, db execer, c domain.Chat) error {
	messages := c.Messages
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	body, err := json.Marshal(messages)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO chats (` + chatColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (id) DO UPDATE SET
            title=EXCLUDED.title,
            messages=EXCLUDED.messages,
            updated_at=EXCLUDED.updated_at`

	_, err = db.Exec(ctx, stmt, c.ID, c.PatientID, c.Title, body, c.CreatedAt, c.UpdatedAt)
	return err
}

// Seed loads the sample catalog inside one transaction. Existing rows are replaced.
func (r *Repository) Seed(ctx context.Context, c seed.Catalog) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	for _, a := range c.Activities {
		if err = upsertActivity(ctx, tx, a); err != nil {
			return fmt.Errorf("seed activity %s: %w", a.ID, err)
		}
	}
	for _, p := range c.Patients {
		if err = upsertPatient(ctx, tx, p); err != nil {
			return fmt.Errorf("seed patient %s: %w", p.ID, err)
		}
	}
	for _, chat := range c.Chats {
		if err = saveChat(ctx, tx, chat); err != nil {
			return fmt.Errorf("seed chat %s: %w", chat.ID, err)
		}
	}
	return tx.Commit(ctx)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (domain.Activity, error) {
	var a domain.Activity
	var difficulty string
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Tags.GoalAreas, &a.Tags.AgeGroups, &difficulty,
		&a.Tags.CulturalContexts, &a.Tags.SessionLength, &a.Materials, &a.Steps, &a.CreatedBy, &a.CreatedAt, &a.Effectiveness)
	a.Tags.Difficulty = domain.Difficulty(difficulty)
	a.CreatedAt = a.CreatedAt.UTC()
	return a, err
}

func scanPatient(row rowScanner) (domain.Patient, error) {
	var p domain.Patient
	err := row.Scan(&p.ID, &p.Name, &p.Age, &p.CulturalBackground, &p.Interests, &p.TreatmentGoals,
		&p.Challenges, &p.PreferredActivities, &p.AdditionalNotes)
	return p, err
}

func scanChat(row rowScanner) (domain.Chat, error) {
	var c domain.Chat
	var body []byte
	if err := row.Scan(&c.ID, &c.PatientID, &c.Title, &body, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Chat{}, err
	}
	if err := json.Unmarshal(body, &c.Messages); err != nil {
		return domain.Chat{}, fmt.Errorf("decode chat %s messages: %w", c.ID, err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func textArray(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var (
	_ domain.Repository     = (*Repository)(nil)
	_ domain.ChatRepository = (*Repository)(nil)
)
