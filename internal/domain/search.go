package domain

import (
	"slices"
	"strings"
)

// ActivityFilter narrows the catalog for browsing. Empty criteria match everything.
type ActivityFilter struct {
	Query        string
	GoalAreas    []string
	AgeGroups    []string
	Difficulties []Difficulty
}

// Matches reports whether the activity satisfies every populated criterion.
func (f ActivityFilter) Matches(a Activity) bool {
	if q := strings.ToLower(f.Query); q != "" {
		if !strings.Contains(strings.ToLower(a.Title), q) && !strings.Contains(strings.ToLower(a.Description), q) {
			return false
		}
	}
	if len(f.GoalAreas) > 0 && !containsAny(a.Tags.GoalAreas, f.GoalAreas) {
		return false
	}
	if len(f.AgeGroups) > 0 && !containsAny(a.Tags.AgeGroups, f.AgeGroups) {
		return false
	}
	if len(f.Difficulties) > 0 && !slices.Contains(f.Difficulties, a.Tags.Difficulty) {
		return false
	}
	return true
}

// FilterActivities keeps catalog order.
func FilterActivities(activities []Activity, filter ActivityFilter) []Activity {
	out := make([]Activity, 0, len(activities))
	for _, a := range activities {
		if filter.Matches(a) {
			out = append(out, a)
		}
	}
	return out
}

// Facets lists the distinct tag values present in the catalog.
type Facets struct {
	GoalAreas    []string     `json:"goal_areas"`
	AgeGroups    []string     `json:"age_groups"`
	Difficulties []Difficulty `json:"difficulties"`
}

// CollectFacets returns sorted unique tag values.
func CollectFacets(activities []Activity) Facets {
	var goals, ages []string
	var difficulties []Difficulty
	for _, a := range activities {
		goals = append(goals, a.Tags.GoalAreas...)
		ages = append(ages, a.Tags.AgeGroups...)
		difficulties = append(difficulties, a.Tags.Difficulty)
	}
	slices.Sort(goals)
	slices.Sort(ages)
	slices.Sort(difficulties)
	return Facets{
		GoalAreas:    nonNil(slices.Compact(goals)),
		AgeGroups:    nonNil(slices.Compact(ages)),
		Difficulties: nonNil(slices.Compact(difficulties)),
	}
}

// MatchesPatientQuery checks name, treatment goals and interests, case-insensitively.
func MatchesPatientQuery(p Patient, query string) bool {
	q := strings.ToLower(query)
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(p.Name), q) {
		return true
	}
	for _, goal := range p.TreatmentGoals {
		if strings.Contains(strings.ToLower(goal), q) {
			return true
		}
	}
	for _, interest := range p.Interests {
		if strings.Contains(strings.ToLower(interest), q) {
			return true
		}
	}
	return false
}

func containsAny(values, wanted []string) bool {
	for _, w := range wanted {
		if slices.Contains(values, w) {
			return true
		}
	}
	return false
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}
