package domain

import "time"

// Difficulty grades how demanding an activity is to run.
type Difficulty string

const (
	DifficultyEasy        Difficulty = "Easy"
	DifficultyMedium      Difficulty = "Medium"
	DifficultyChallenging Difficulty = "Challenging"
)

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyChallenging:
		return true
	}
	return false
}

// Effectiveness ratings are bounded to this closed range.
const (
	MinEffectiveness = 1.0
	MaxEffectiveness = 5.0
)

// ActivityTags groups the descriptive tags used for browsing and matching.
type ActivityTags struct {
	GoalAreas        []string   `json:"goal_areas" yaml:"goal_areas"`
	AgeGroups        []string   `json:"age_groups" yaml:"age_groups"`
	Difficulty       Difficulty `json:"difficulty" yaml:"difficulty"`
	CulturalContexts []string   `json:"cultural_contexts" yaml:"cultural_contexts"`
	SessionLength    string     `json:"session_length" yaml:"session_length"`
}

// Activity is a catalogued therapeutic exercise.
type Activity struct {
	ID            string       `json:"id" yaml:"id"`
	Title         string       `json:"title" yaml:"title"`
	Description   string       `json:"description" yaml:"description"`
	Tags          ActivityTags `json:"tags" yaml:"tags"`
	Materials     []string     `json:"materials" yaml:"materials"`
	Steps         []string     `json:"steps" yaml:"steps"`
	CreatedBy     string       `json:"created_by" yaml:"created_by"`
	CreatedAt     time.Time    `json:"created_at" yaml:"created_at"`
	Effectiveness float64      `json:"effectiveness" yaml:"effectiveness"`
}

// Patient describes an individual receiving therapy.
type Patient struct {
	ID                  string   `json:"id" yaml:"id"`
	Name                string   `json:"name" yaml:"name"`
	Age                 int      `json:"age" yaml:"age"`
	CulturalBackground  []string `json:"cultural_background" yaml:"cultural_background"`
	Interests           []string `json:"interests" yaml:"interests"`
	TreatmentGoals      []string `json:"treatment_goals" yaml:"treatment_goals"`
	Challenges          []string `json:"challenges" yaml:"challenges"`
	PreferredActivities []string `json:"preferred_activities" yaml:"preferred_activities"`
	AdditionalNotes     string   `json:"additional_notes" yaml:"additional_notes"`
}
