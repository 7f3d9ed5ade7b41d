package seed

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/therapymatch/internal/domain"
)

func TestLoadSampleCatalog(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	require.Len(t, c.Activities, 5)
	require.Len(t, c.Patients, 5)
	require.Len(t, c.Chats, 5)

	first := c.Activities[0]
	require.Equal(t, "act1", first.ID)
	require.Equal(t, "Color Emotion Cards", first.Title)
	require.Equal(t, domain.DifficultyEasy, first.Tags.Difficulty)
	require.InDelta(t, 4.5, first.Effectiveness, 1e-9)
	require.Equal(t, 2025, first.CreatedAt.Year())

	require.Equal(t, "Suri Park", c.Patients[3].Name)
	require.Equal(t, 68, c.Patients[3].Age)

	chat := c.Chats[0]
	require.Equal(t, "pat1", chat.PatientID)
	require.Len(t, chat.Messages, 4)
	require.Equal(t, domain.SenderAI, chat.Messages[1].Sender)
	require.Contains(t, chat.Messages[1].Content, "1. **Color Emotion Cards**")
}

func TestLoadReturnsIndependentCopies(t *testing.T) {
	a := MustLoad()
	a.Activities[0].Title = "changed"
	b := MustLoad()
	require.Equal(t, "Color Emotion Cards", b.Activities[0].Title)
}

func TestParseRejectsInvalidRecords(t *testing.T) {
	_, err := Parse([]byte(`
activities:
  - id: bad
    title: Broken
    description: missing tags
    effectiveness: 3
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "seed activity bad")
}
