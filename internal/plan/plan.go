// Package plan renders treatment plans as markdown, either from a planning conversation or from
// activities a clinician selected among a patient's matches.
package plan

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"example.com/therapymatch/internal/assistant"
	"example.com/therapymatch/internal/domain"
)

const (
	// MaxActivities caps the activities listed in a conversation plan.
	MaxActivities = 3
	// MaxGoals caps the treatment goals listed in a conversation plan.
	MaxGoals = 3
	// MaxSelected caps the activities combined into a selection plan.
	MaxSelected = 2
)

// Plan is a rendered treatment plan.
type Plan struct {
	PatientID   string    `json:"patient_id"`
	Title       string    `json:"title"`
	Goals       []Goal    `json:"goals"`
	Activities  []string  `json:"activities"`
	GeneratedAt time.Time `json:"generated_at"`
	Markdown    string    `json:"markdown"`
}

// Goal is a goal area addressed by the plan. PatientGoal marks goals the patient is working on.
type Goal struct {
	Name        string `json:"name"`
	PatientGoal bool   `json:"patient_goal"`
}

// numbered matches "1. **Name**" or "1. Name" list items.
var numbered = regexp.MustCompile(`\d+\.\s+\*\*([^*]+)\*\*|\d+\.\s+([^*\n]+)`)

// ExtractActivities collects distinct numbered items from assistant replies, in order, up to limit.
func ExtractActivities(replies []string, limit int) []string {
	out := make([]string, 0, limit)
	for _, reply := range replies {
		for _, m := range numbered.FindAllStringSubmatch(reply, -1) {
			name := strings.TrimSpace(m[1])
			if name == "" {
				name = strings.TrimSpace(m[2])
			}
			if name == "" || slices.Contains(out, name) || len(out) >= limit {
				continue
			}
			out = append(out, name)
		}
	}
	return out
}

// FromConversation builds the plan exported from a planning conversation. Activities named in the
// assistant's numbered replies come first; the list is padded with the standard recommendations.
func FromConversation(p domain.Patient, chat domain.Chat, matches []domain.Activity, now time.Time) Plan {
	activities := ExtractActivities(chat.AIReplies(), MaxActivities)
	for i := len(activities); i < MaxActivities; i++ {
		activities = append(activities, assistant.RecommendedName(p, matches, i))
	}

	goals := p.TreatmentGoals
	if len(goals) > MaxGoals {
		goals = goals[:MaxGoals]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Treatment Plan for %s\n\n", p.Name)
	b.WriteString("## Patient Profile\n")
	fmt.Fprintf(&b, "- Name: %s\n", p.Name)
	fmt.Fprintf(&b, "- Age: %d\n", p.Age)
	fmt.Fprintf(&b, "- Cultural Background: %s\n", strings.Join(p.CulturalBackground, ", "))
	fmt.Fprintf(&b, "- Interests: %s\n\n", strings.Join(p.Interests, ", "))

	b.WriteString("## Treatment Goals\n")
	writeNumbered(&b, goals)
	b.WriteString("\n## Recommended Activities\n")
	writeNumbered(&b, activities)

	b.WriteString("\n## Implementation Strategy\n")
	fmt.Fprintf(&b, "- Schedule %s sessions twice weekly\n", activities[0])
	fmt.Fprintf(&b, "- Incorporate %s as a daily practice element\n", activities[1])
	fmt.Fprintf(&b, "- Use %s for milestone evaluations monthly\n", activities[2])

	b.WriteString("\n## Progress Tracking\n")
	b.WriteString("- Weekly assessment of emotional regulation using standardized scales\n")
	b.WriteString("- Bi-weekly review of goal progress with patient\n")
	b.WriteString("- Monthly assessment of overall treatment efficacy\n\n")
	fmt.Fprintf(&b, "Treatment plan generated on %s based on AI-assisted therapy planning\n", now.Format("January 2, 2006"))

	planGoals := make([]Goal, 0, len(goals))
	for _, g := range goals {
		planGoals = append(planGoals, Goal{Name: g, PatientGoal: true})
	}
	return Plan{
		PatientID:   p.ID,
		Title:       "Treatment Plan for " + p.Name,
		Goals:       planGoals,
		Activities:  activities,
		GeneratedAt: now,
		Markdown:    b.String(),
	}
}

// FromSelection combines up to two of the patient's matched activities into one plan. Selected IDs
// that are not among the matches are ignored; matches keep their ranked order.
func FromSelection(p domain.Patient, matches []domain.Activity, selectedIDs []string, now time.Time) (Plan, error) {
	selected := make([]domain.Activity, 0, MaxSelected)
	for _, a := range matches {
		if len(selected) == MaxSelected {
			break
		}
		if slices.Contains(selectedIDs, a.ID) {
			selected = append(selected, a)
		}
	}
	if len(selected) == 0 {
		return Plan{}, &domain.ValidationError{Field: "activity_ids", Reason: "must select at least one matched activity"}
	}

	titles := make([]string, 0, len(selected))
	var goals []Goal
	for _, a := range selected {
		titles = append(titles, a.Title)
		for _, area := range a.Tags.GoalAreas {
			if !slices.ContainsFunc(goals, func(g Goal) bool { return g.Name == area }) {
				goals = append(goals, Goal{Name: area, PatientGoal: slices.Contains(p.TreatmentGoals, area)})
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Treatment Plan for %s\n\n", p.Name)
	fmt.Fprintf(&b, "Based on %s\n\n", strings.Join(titles, " & "))

	b.WriteString("## Activity Overview\n")
	fmt.Fprintf(&b, "This treatment plan combines elements from %d activities to create a personalized approach for %s's needs, focusing on %s.\n\n",
		len(selected), p.Name, strings.Join(head(p.TreatmentGoals, 2), " and "))

	b.WriteString("## Treatment Goals\n")
	for _, g := range goals {
		if g.PatientGoal {
			fmt.Fprintf(&b, "- %s ✓\n", g.Name)
		} else {
			fmt.Fprintf(&b, "- %s\n", g.Name)
		}
	}

	for i, a := range selected {
		fmt.Fprintf(&b, "\n## Activity %d: %s\n", i+1, a.Title)
		fmt.Fprintf(&b, "%s\n\n", a.Description)
		fmt.Fprintf(&b, "- Age Group: %s\n", strings.Join(a.Tags.AgeGroups, ", "))
		fmt.Fprintf(&b, "- Difficulty: %s\n", a.Tags.Difficulty)
		fmt.Fprintf(&b, "- Session Length: %s\n", a.Tags.SessionLength)
		if len(a.Materials) > 0 {
			b.WriteString("\n### Materials Needed\n")
			for _, m := range a.Materials {
				fmt.Fprintf(&b, "- %s\n", m)
			}
		}
	}

	b.WriteString("\n## Therapist Notes\n")
	fmt.Fprintf(&b, "This combined plan addresses %s's specific needs by incorporating elements from multiple activities. ", p.Name)
	b.WriteString("Adjust the difficulty or steps as needed based on patient response.")
	if interests := head(p.Interests, 2); len(interests) > 0 {
		fmt.Fprintf(&b, " Consider the patient's stated interests in %s to increase engagement.", strings.Join(interests, " and "))
	}
	b.WriteString("\n")

	return Plan{
		PatientID:   p.ID,
		Title:       "Treatment Plan for " + p.Name,
		Goals:       goals,
		Activities:  titles,
		GeneratedAt: now,
		Markdown:    b.String(),
	}, nil
}

func writeNumbered(b *strings.Builder, items []string) {
	for i, item := range items {
		fmt.Fprintf(b, "%d. %s\n", i+1, item)
	}
}

func head(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}
