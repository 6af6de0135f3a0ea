package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalPair_OrderIndependent(t *testing.T) {
	req := require.New(t)

	a1, b1 := CanonicalPair("user-b", "user-a")
	a2, b2 := CanonicalPair("user-a", "user-b")

	req.Equal(a1, a2)
	req.Equal(b1, b2)
	req.Equal("user-a", a1)
	req.Equal("user-b", b1)
}

func TestConversation_OtherParticipant(t *testing.T) {
	req := require.New(t)
	conv := Conversation{Participants: [2]string{"alice", "bob"}}

	req.Equal("bob", conv.OtherParticipant("alice"))
	req.Equal("alice", conv.OtherParticipant("bob"))
	req.Equal("", conv.OtherParticipant("mallory"))
	req.False(conv.HasParticipant("mallory"))
}

func TestPreview_TruncatesWithoutSplittingRunes(t *testing.T) {
	req := require.New(t)

	short := "hello"
	req.Equal(short, Preview(short))

	long := strings.Repeat("é", PreviewMaxRunes+50)
	preview := Preview(long)
	req.Equal(PreviewMaxRunes, len([]rune(preview)))
	req.Equal(strings.Repeat("é", PreviewMaxRunes), preview)
}
