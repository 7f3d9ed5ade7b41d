// Package matcher recommends catalog activities for a patient.
//
// An activity is eligible when one of the patient's treatment goals appears inside one of its
// goal-area tags and one of its age-group tags names the patient's age bracket. Eligible
// activities are ranked by effectiveness and the top three are returned.
package matcher

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"example.com/therapymatch/internal/domain"
	"example.com/therapymatch/internal/observability"
)

// DefaultLimit is the number of recommendations returned per patient.
const DefaultLimit = 3

// ActivitySource supplies the full activity catalog in catalog order.
type ActivitySource interface {
	ListActivities(ctx context.Context) ([]domain.Activity, error)
}

// PatientSource looks up a patient. A missing patient is reported as nil, nil.
type PatientSource interface {
	GetPatient(ctx context.Context, id string) (*domain.Patient, error)
}

// Matcher computes recommendations on demand. It holds no mutable state.
type Matcher struct {
	activities ActivitySource
	patients   PatientSource
	limit      int
}

// New constructs a Matcher over the given sources.
func New(activities ActivitySource, patients PatientSource) *Matcher {
	return &Matcher{activities: activities, patients: patients, limit: DefaultLimit}
}

// Match returns up to three activities for the patient, best first. An unknown patient
// yields an empty slice and no error; errors only come from the sources.
func (m *Matcher) Match(ctx context.Context, patientID string) ([]domain.Activity, error) {
	patient, err := m.patients.GetPatient(ctx, patientID)
	if err != nil {
		observability.RecordMatch(observability.MatchOutcomeError, 0)
		return nil, fmt.Errorf("load patient %s: %w", patientID, err)
	}
	if patient == nil {
		observability.RecordMatch(observability.MatchOutcomeUnknownPatient, 0)
		return []domain.Activity{}, nil
	}

	catalog, err := m.activities.ListActivities(ctx)
	if err != nil {
		observability.RecordMatch(observability.MatchOutcomeError, 0)
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	out := Rank(*patient, catalog, m.limit)
	outcome := observability.MatchOutcomeMatched
	if len(out) == 0 {
		outcome = observability.MatchOutcomeEmpty
	}
	observability.RecordMatch(outcome, len(out))
	return out, nil
}

// Rank filters the catalog for the patient and returns at most limit activities ordered by
// descending effectiveness. Ties keep catalog order. The input slice is not modified.
func Rank(patient domain.Patient, catalog []domain.Activity, limit int) []domain.Activity {
	eligible := make([]domain.Activity, 0, len(catalog))
	for _, activity := range catalog {
		if Eligible(patient, activity) {
			eligible = append(eligible, activity)
		}
	}
	slices.SortStableFunc(eligible, func(a, b domain.Activity) int {
		switch {
		case a.Effectiveness > b.Effectiveness:
			return -1
		case a.Effectiveness < b.Effectiveness:
			return 1
		}
		return 0
	})
	if limit >= 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible
}

// Eligible reports whether the activity passes both the goal and the age filter.
func Eligible(patient domain.Patient, activity domain.Activity) bool {
	return GoalMatch(patient.TreatmentGoals, activity.Tags.GoalAreas) && AgeMatch(patient.Age, activity.Tags.AgeGroups)
}

// GoalMatch reports whether some goal-area tag contains some treatment goal, ignoring case.
// Containment is one-directional: a goal longer than every tag never matches.
func GoalMatch(goals, goalAreas []string) bool {
	for _, goal := range goals {
		needle := strings.ToLower(goal)
		for _, area := range goalAreas {
			if strings.Contains(strings.ToLower(area), needle) {
				return true
			}
		}
	}
	return false
}

// AgeMatch reports whether some age-group tag contains the keyword of the age's bracket.
func AgeMatch(age int, ageGroups []string) bool {
	keyword := BracketKeyword(age)
	for _, group := range ageGroups {
		if strings.Contains(group, keyword) {
			return true
		}
	}
	return false
}

// BracketKeyword maps an age onto the keyword its age-group tags must contain.
func BracketKeyword(age int) string {
	switch {
	case age < 13:
		return "Children"
	case age < 18:
		return "Adolescent"
	case age < 65:
		return "Adult"
	default:
		return "Senior"
	}
}
