package moderation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModerator_CensorPlainWord(t *testing.T) {
	req := require.New(t)
	m, err := NewModerator([]string{"idiot"}, '*')
	req.NoError(err)

	censored, found := m.Censor("you idiot !")
	req.Equal("you ***** !", censored)
	req.Equal([]string{"idiot"}, found)
}

func TestModerator_CensorLeetSpeak(t *testing.T) {
	req := require.New(t)
	m, err := NewModerator([]string{"idiot"}, '*')
	req.NoError(err)

	censored, found := m.Censor("what an 1d10t move")
	req.NotContains(censored, "1d10t")
	req.Len(found, 1)
}

func TestModerator_CleanContentUntouched(t *testing.T) {
	req := require.New(t)
	m, err := NewModerator([]string{"idiot"}, '*')
	req.NoError(err)

	original := "perfectly fine message"
	censored, found := m.Censor(original)
	req.Equal(original, censored)
	req.Empty(found)
}

func TestLoadCensored(t *testing.T) {
	req := require.New(t)

	data, err := LoadCensored()
	req.NoError(err)
	req.NotEmpty(data.Words)
	req.Contains(data.Languages, "en")
	req.Contains(data.Languages, "fr")
	for _, w := range data.Words {
		req.False(strings.HasPrefix(w, "#"))
		req.Equal(strings.ToLower(w), w)
	}
}
