// Package assistant drives treatment-planning conversations with deterministic, profile-driven
// replies.
package assistant

import (
	"fmt"
	"strings"

	"example.com/therapymatch/internal/domain"
)

// Recommendations is the number of activities suggested when a conversation opens.
const Recommendations = 3

// Placeholders for profile fields a patient record leaves empty.
const (
	missingGoal      = "General Wellbeing"
	missingChallenge = "current difficulties"
)

// StandardPrompt renders the intake prompt that opens every conversation.
func StandardPrompt(p domain.Patient) string {
	challenges := make([]string, 0, len(p.Challenges))
	for _, c := range p.Challenges {
		challenges = append(challenges, strings.ToLower(c))
	}

	description := p.AdditionalNotes + " "
	if len(p.Interests) > 0 {
		description += fmt.Sprintf("The patient's interests include %s.", strings.Join(p.Interests, ", "))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Patient: %s, Age: %d, %s\n\n", p.Name, p.Age, strings.Join(p.CulturalBackground, "/"))
	fmt.Fprintf(&b, "Presenting Issues: Patient %s.\n\n", strings.Join(challenges, " and "))
	fmt.Fprintf(&b, "Detailed Description: %s\n\n", description)
	fmt.Fprintf(&b, "Treatment Goals: %s\n\n", strings.Join(p.TreatmentGoals, ", "))
	b.WriteString("Please identify the 3 most relevant therapeutic activities for this patient based on their needs and profile. ")
	b.WriteString("Then provide a comprehensive therapy plan incorporating these activities.")
	return b.String()
}

// RecommendedName names the activity suggested at position index. Matched activities come first;
// past them the name is derived from the patient's goals and interests.
func RecommendedName(p domain.Patient, matches []domain.Activity, index int) string {
	if index < len(matches) {
		return matches[index].Title
	}
	switch index {
	case 0:
		return fmt.Sprintf("%s through %s", goal(p, 0), pick(p.Interests, "Creative Expression", 0))
	case 1:
		return fmt.Sprintf("Structured %s Exercises", goal(p, 1))
	case 2:
		return fmt.Sprintf("%s-Based Therapy Sessions", pick(p.Interests, "Personalized", 1, 0))
	}
	return fmt.Sprintf("Tailored Therapy Activity %d", index+1)
}

// RecommendedNames returns the first n recommended activity names.
func RecommendedNames(p domain.Patient, matches []domain.Activity, n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, RecommendedName(p, matches, i))
	}
	return out
}

// OpeningReply is the assistant's first answer to the intake prompt.
func OpeningReply(p domain.Patient, matches []domain.Activity) string {
	names := RecommendedNames(p, matches, Recommendations)

	var b strings.Builder
	fmt.Fprintf(&b, "Based on %s's profile and needs, I recommend these 3 most relevant therapeutic activities:\n\n", p.Name)
	fmt.Fprintf(&b, "1. **%s**: This activity supports %s by engaging the patient in structured exercises that build on their interest in %s.\n\n",
		names[0], goal(p, 0), pick(p.Interests, "relevant areas", 0))
	fmt.Fprintf(&b, "2. **%s**: Addresses %s through guided practice and helps overcome challenges with %s.\n\n",
		names[1], goal(p, 1), challenge(p, 0))
	fmt.Fprintf(&b, "3. **%s**: This activity incorporates %s to build skills in %s while addressing %s.\n\n",
		names[2], pick(p.Interests, "personal interests", 1, 0), goal(p, 2), challenge(p, 1))
	b.WriteString("Would you like me to elaborate on any of these activities or suggest a specific implementation plan?")
	return b.String()
}

// Reply answers a follow-up message. The topic is chosen by keywords in the message.
func Reply(p domain.Patient, message string) string {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "goal") || strings.Contains(msg, "plan"):
		return fmt.Sprintf("Based on %s's profile, I recommend focusing on these treatment goals: %s. "+
			"Would you like me to elaborate on specific strategies for any of these areas?",
			p.Name, strings.Join(p.TreatmentGoals, ", "))
	case strings.Contains(msg, "activity") || strings.Contains(msg, "exercise"):
		interests := p.Interests
		if len(interests) > 2 {
			interests = interests[:2]
		}
		return fmt.Sprintf("I can suggest several activities tailored to %s's interests in %s. "+
			"These would support the goals of %s and address the challenges of %s. "+
			"Would you like me to provide specific activity recommendations?",
			p.Name, strings.Join(interests, " and "), goal(p, 0), challenge(p, 0))
	case strings.Contains(msg, "challenge") || strings.Contains(msg, "difficult"):
		return fmt.Sprintf("I understand %s faces challenges with %s. "+
			"I've developed specific strategies to address these based on successful approaches for patients with similar profiles. "+
			"Would you like me to share these strategies?",
			p.Name, strings.Join(p.Challenges, " and "))
	}
	return fmt.Sprintf("Thank you for your input about %s. I've analyzed this information alongside their profile data. "+
		"I can help with developing personalized therapy plans, suggesting specific activities, or addressing particular challenges. "+
		"What specific aspect would you like me to focus on?", p.Name)
}

// goal returns treatment goal i, falling back to the first goal.
func goal(p domain.Patient, i int) string {
	return pick(p.TreatmentGoals, missingGoal, i, 0)
}

func challenge(p domain.Patient, i int) string {
	return pick(p.Challenges, missingChallenge, i, 0)
}

// pick returns the first populated entry among the candidate indexes, or fallback.
func pick(values []string, fallback string, indexes ...int) string {
	for _, i := range indexes {
		if i < len(values) && values[i] != "" {
			return values[i]
		}
	}
	return fallback
}
