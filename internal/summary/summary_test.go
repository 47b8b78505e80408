package summary

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagevet/pagevet/internal/audit"
)

func TestTruncateKeepsShortInput(t *testing.T) {
	require.Equal(t, "hello", Truncate("hello", 100))
	require.Equal(t, "hello", Truncate("hello", 5))
}

func TestTruncateAppendsMarker(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := Truncate(long, 100)
	require.Len(t, got, 100)
	require.True(t, strings.HasSuffix(got, TruncationMarker))
}

func TestSummarizeIsDeterministic(t *testing.T) {
	pc := audit.PageContext{
		URL:               "https://example.com",
		VisibleText:       strings.Repeat("lorem ipsum ", 600),
		StructuredSignals: "HEADINGS:\n- Shop\n- Cart",
	}
	first := Summarize(pc)
	second := Summarize(pc)
	require.Equal(t, first, second)
	require.LessOrEqual(t, len(first), OverallBudget)
	require.Contains(t, first, "https://example.com")
}

func TestSummarizeTruncatesFromTailOnly(t *testing.T) {
	pc := audit.PageContext{
		URL:         "https://example.com",
		VisibleText: "START " + strings.Repeat("x", VisibleTextBudget*2),
	}
	got := Summarize(pc)
	require.Contains(t, got, "START")
	require.Contains(t, got, TruncationMarker)
}

func TestRuleSliceBudget(t *testing.T) {
	got := RuleSlice(strings.Repeat("y", OverallBudget))
	require.Len(t, got, RuleSliceBudget)
}
