package assistant

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/therapymatch/internal/domain"
	"example.com/therapymatch/internal/matcher"
	"example.com/therapymatch/internal/persistence/memory"
)

func newPlanner(t *testing.T) (*Planner, *memory.Repository) {
	t.Helper()
	repo, err := memory.NewSeededRepository()
	require.NoError(t, err)

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var seq int
	planner := NewPlanner(repo, repo, matcher.New(repo, repo),
		WithClock(func() time.Time { return clock }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	)
	return planner, repo
}

func patient(t *testing.T, repo *memory.Repository, id string) domain.Patient {
	t.Helper()
	p, err := repo.GetPatient(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return *p
}

func TestStandardPrompt(t *testing.T) {
	_, repo := newPlanner(t)
	prompt := StandardPrompt(patient(t, repo, "pat3"))

	require.True(t, strings.HasPrefix(prompt, "Patient: James Wilson, Age: 42, Canadian/Indigenous\n\n"))
	require.Contains(t, prompt, "Presenting Issues: Patient history of substance abuse and chronic pain and employment instability.")
	require.Contains(t, prompt, "The patient's interests include Nature, Fishing, Traditional crafts, Reading.")
	require.Contains(t, prompt, "Treatment Goals: Substance Abuse Recovery, Mindfulness, Stress Management")
	require.True(t, strings.HasSuffix(prompt, "comprehensive therapy plan incorporating these activities."))

	bare := StandardPrompt(domain.Patient{Name: "Sam", Age: 30, AdditionalNotes: "New referral."})
	require.NotContains(t, bare, "interests include")
}

func TestRecommendedNamesPreferMatches(t *testing.T) {
	_, repo := newPlanner(t)
	p := patient(t, repo, "pat1")
	matches, err := matcher.New(repo, repo).Match(context.Background(), p.ID)
	require.NoError(t, err)

	require.Equal(t, []string{
		"Color Emotion Cards",
		"Social Story Construction",
		"Video games-Based Therapy Sessions",
		"Tailored Therapy Activity 4",
	}, RecommendedNames(p, matches, 4))
}

func TestRecommendedNamesFallbacks(t *testing.T) {
	p := domain.Patient{Name: "Sam", TreatmentGoals: []string{"Focus"}}
	require.Equal(t, []string{
		"Focus through Creative Expression",
		"Structured Focus Exercises",
		"Personalized-Based Therapy Sessions",
	}, RecommendedNames(p, nil, 3))

	p.Interests = []string{"Chess"}
	require.Equal(t, "Chess-Based Therapy Sessions", RecommendedName(p, nil, 2))
}

func TestOpeningReply(t *testing.T) {
	_, repo := newPlanner(t)
	p := patient(t, repo, "pat4")
	reply := OpeningReply(p, []domain.Activity{{Title: "Memory Collage"}})

	require.Contains(t, reply, "Based on Suri Park's profile and needs")
	require.Contains(t, reply, "1. **Memory Collage**: This activity supports Memory Enhancement")
	require.Contains(t, reply, "build on their interest in Gardening.")
	require.Contains(t, reply, "2. **Structured Grief Processing Exercises**: Addresses Grief Processing")
	require.Contains(t, reply, "3. **Cooking-Based Therapy Sessions**: This activity incorporates Cooking to build skills in Social Connection while addressing Mild cognitive decline.")
}

func TestReplyRouting(t *testing.T) {
	_, repo := newPlanner(t)
	p := patient(t, repo, "pat5")

	cases := []struct {
		message string
		want    string
	}{
		{"What are the GOALS here?", "I recommend focusing on these treatment goals: Attention Focus, Social Skills, Emotional Regulation."},
		{"Can we revisit the plan", "treatment goals"},
		{"Suggest an exercise", "interests in Legos and Superheroes"},
		{"Which activity first?", "address the challenges of ADHD"},
		{"He finds this difficult", "faces challenges with ADHD and Difficulty following multi-step instructions and Impulsivity"},
		{"Thanks", "Thank you for your input about Zain Ahmed."},
	}
	for _, tc := range cases {
		require.Contains(t, Reply(p, tc.message), tc.want, tc.message)
	}

	require.Contains(t, Reply(p, "goal activity"), "treatment goals", "goal keywords win over activity keywords")
}

func TestPlannerConversationLifecycle(t *testing.T) {
	planner, _ := newPlanner(t)
	ctx := context.Background()

	chat, err := planner.StartChat(ctx, "pat1", "  Follow-up plan ")
	require.NoError(t, err)
	require.Equal(t, "id-1", chat.ID)
	require.Equal(t, "Follow-up plan", chat.Title)
	require.Len(t, chat.Messages, 2)
	require.Equal(t, domain.SenderUser, chat.Messages[0].Sender)
	require.Equal(t, domain.SenderAI, chat.Messages[1].Sender)
	require.Contains(t, chat.Messages[1].Content, "1. **Color Emotion Cards**")
	require.Equal(t, 2*time.Second, chat.Messages[1].Timestamp.Sub(chat.Messages[0].Timestamp))

	updated, err := planner.PostMessage(ctx, chat.ID, "Tell me about the challenges")
	require.NoError(t, err)
	require.Len(t, updated.Messages, 4)
	require.Contains(t, updated.Messages[3].Content, "faces challenges with")

	chats, err := planner.ListChats(ctx, "pat1")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	require.Equal(t, chat.ID, chats[0].ID)

	session, err := planner.Session(ctx, chat.ID)
	require.NoError(t, err)
	require.Equal(t, "Alex Thompson", session.Patient.Name)
	require.Len(t, session.Matches, 2)
	require.Len(t, session.Chat.Messages, 4)
}

func TestPlannerErrors(t *testing.T) {
	planner, _ := newPlanner(t)
	ctx := context.Background()

	_, err := planner.StartChat(ctx, "pat1", " ")
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "title", vErr.Field)

	_, err = planner.StartChat(ctx, "ghost", "Plan")
	require.ErrorIs(t, err, domain.ErrPatientNotFound)

	_, err = planner.ListChats(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrPatientNotFound)

	_, err = planner.PostMessage(ctx, "missing", "hello")
	require.ErrorIs(t, err, domain.ErrChatNotFound)

	_, err = planner.PostMessage(ctx, "chat1", "")
	require.ErrorAs(t, err, &vErr)
}
