package citation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"qchat/internal/domain"
)

func attribution(title string, endOffset int) domain.SourceAttribution {
	return domain.SourceAttribution{
		Title:     title,
		URL:       "https://example.com/" + title,
		TextSpans: []domain.TextSpan{{EndOffset: endOffset}},
	}
}

func TestAnnotate_DistinctOffsetsProduceMarkers(t *testing.T) {
	turn := domain.Turn{
		Role: domain.RoleSystem,
		Body: "Hello world!!",
		Citations: []domain.SourceAttribution{
			attribution("a", 5),
			attribution("b", 5),
			attribution("c", 9),
		},
		HasCitations: true,
	}
	require.Equal(t, "Hello[1] wor[2]ld!!", Annotate(turn))
}

func TestAnnotate_OffsetAtEndOfBody(t *testing.T) {
	turn := domain.Turn{
		Role:      domain.RoleSystem,
		Body:      "Hello",
		Citations: []domain.SourceAttribution{attribution("a", 5)},
	}
	require.Equal(t, "Hello[1]", Annotate(turn))
}

func TestAnnotate_OffsetBeyondBodyClamped(t *testing.T) {
	turn := domain.Turn{
		Role:      domain.RoleSystem,
		Body:      "Hi",
		Citations: []domain.SourceAttribution{attribution("a", 99)},
	}
	require.Equal(t, "Hi[1]", Annotate(turn))
}

func TestAnnotate_UnsortedOffsetsCutAscending(t *testing.T) {
	turn := domain.Turn{
		Role: domain.RoleSystem,
		Body: "abcdef",
		Citations: []domain.SourceAttribution{
			attribution("late", 4),
			attribution("early", 2),
		},
	}
	require.Equal(t, "ab[1]cd[2]ef", Annotate(turn))
}

func TestAnnotate_UserTurnPassesThrough(t *testing.T) {
	turn := domain.Turn{Role: domain.RoleUser, Body: "what is the policy?"}
	require.Equal(t, "what is the policy?", Annotate(turn))
}

func TestAnnotate_SystemTurnWithoutCitations(t *testing.T) {
	turn := domain.Turn{Role: domain.RoleSystem, Body: "plain answer"}
	require.Equal(t, "plain answer", Annotate(turn))
}

func TestAnnotate_LineBreaksNormalizedOnEveryBranch(t *testing.T) {
	user := domain.Turn{Role: domain.RoleUser, Body: "line one\r\nline two"}
	require.Equal(t, "line one\nline two", Annotate(user))

	system := domain.Turn{Role: domain.RoleSystem, Body: "a\rb"}
	require.Equal(t, "a\nb", Annotate(system))

	cited := domain.Turn{
		Role:      domain.RoleSystem,
		Body:      "a\r\nb",
		Citations: []domain.SourceAttribution{attribution("x", 1)},
	}
	require.Equal(t, "a[1]\nb", Annotate(cited))
}

func TestAnnotate_CitationWithoutSpansIgnored(t *testing.T) {
	turn := domain.Turn{
		Role: domain.RoleSystem,
		Body: "abcdef",
		Citations: []domain.SourceAttribution{
			{Title: "no-span"},
			attribution("spanned", 3),
		},
	}
	require.Equal(t, "abc[1]def", Annotate(turn))
}

func TestDedupeAttributions_FirstSeenByTitle(t *testing.T) {
	in := []domain.SourceAttribution{
		attribution("A", 1),
		attribution("B", 2),
		attribution("A", 3),
		attribution("C", 4),
		attribution("B", 5),
	}
	out := DedupeAttributions(in)
	require.Len(t, out, 3)
	require.Equal(t, "A", out[0].Title)
	require.Equal(t, "B", out[1].Title)
	require.Equal(t, "C", out[2].Title)
	require.Equal(t, 1, out[0].CitationNumber)
	require.Equal(t, 2, out[1].CitationNumber)
	require.Equal(t, 3, out[2].CitationNumber)
}

func TestDedupeAttributions_EmptyInput(t *testing.T) {
	require.Empty(t, DedupeAttributions(nil))
}

func TestDedupeAttributions_DoesNotMutateInput(t *testing.T) {
	in := []domain.SourceAttribution{attribution("A", 1)}
	_ = DedupeAttributions(in)
	require.Zero(t, in[0].CitationNumber)
}

func TestTruncateTitle(t *testing.T) {
	long := make([]rune, 60)
	for i := range long {
		long[i] = 'x'
	}
	got := TruncateTitle(string(long))
	require.Equal(t, string(long[:50])+" ...", got)
	require.Equal(t, "short", TruncateTitle("short"))
}

func TestTruncateConversationTitle(t *testing.T) {
	long := make([]rune, 49)
	for i := range long {
		long[i] = 'y'
	}
	got := TruncateConversationTitle(string(long))
	require.Equal(t, string(long[:48])+" ...", got)

	exact := string(long[:48])
	require.Equal(t, exact, TruncateConversationTitle(exact))
}
