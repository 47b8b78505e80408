package audit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeScanURLAddsScheme(t *testing.T) {
	got, err := NormalizeScanURL("example.com")
	require.NoError(t, err)
	require.Equal(t, "https://example.com", got)
}

func TestNormalizeScanURLKeepsExplicitScheme(t *testing.T) {
	got, err := NormalizeScanURL("http://Example.COM/shop?a=1")
	require.NoError(t, err)
	require.Equal(t, "http://example.com/shop?a=1", got)
}

func TestNormalizeScanURLRejectsBadSchemes(t *testing.T) {
	for _, raw := range []string{"ftp://example.com", "javascript://alert(1)", "", "   "} {
		_, err := NormalizeScanURL(raw)
		require.ErrorIs(t, err, ErrInvalidURL, "input %q", raw)
	}
}

func TestValidateRuleBoundaries(t *testing.T) {
	valid := Rule{ID: "r1", Title: "Has privacy policy", Description: "The page links to a privacy policy."}
	require.NoError(t, ValidateRule(valid))

	cases := map[string]Rule{
		"empty id":       {ID: " ", Title: "t", Description: "d"},
		"empty title":    {ID: "r1", Title: "", Description: "d"},
		"long title":     {ID: "r1", Title: strings.Repeat("x", MaxTitleLength+1), Description: "d"},
		"empty desc":     {ID: "r1", Title: "t", Description: ""},
		"oversized desc": {ID: "r1", Title: "t", Description: strings.Repeat("x", MaxDescriptionLen+1)},
	}
	for name, r := range cases {
		require.ErrorIs(t, ValidateRule(r), ErrInvalidInput, name)
	}
}

func TestValidateScanInputRejectsDuplicatesAndOverflow(t *testing.T) {
	rule := Rule{ID: "r1", Title: "t", Description: "d"}

	_, err := ValidateScanInput("example.com", []Rule{rule, rule})
	require.ErrorIs(t, err, ErrInvalidInput)

	many := make([]Rule, MaxRulesPerScan+1)
	for i := range many {
		many[i] = Rule{ID: string(rune('a' + i%26)) + string(rune('0'+i/26)), Title: "t", Description: "d"}
	}
	_, err = ValidateScanInput("example.com", many)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = ValidateScanInput("example.com", nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	normalized, err := ValidateScanInput("example.com", []Rule{rule})
	require.NoError(t, err)
	require.Equal(t, "https://example.com", normalized)
}

func TestClassifierClosedSet(t *testing.T) {
	c := NewClassifier()
	cases := []struct {
		rule Rule
		want RuleCategory
	}{
		{Rule{ID: "r1", Title: "No pure black backgrounds", Description: "Backgrounds must avoid #000"}, CategoryColor},
		{Rule{ID: "r2", Title: "Breadcrumbs visible", Description: "A breadcrumb trail appears near the top"}, CategoryNavigation},
		{Rule{ID: "r3", Title: "Below-fold images lazy load", Description: "Media below the viewport uses lazy loading"}, CategoryMedia},
		{Rule{ID: "r4", Title: "Speaks plainly", Description: "Nothing matches here"}, CategoryGeneric},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, c.Classify(tc.rule), tc.rule.ID)
	}
}

func TestClassifierCustomStrategyWins(t *testing.T) {
	always := func(Rule) (RuleCategory, bool) { return CategoryLayout, true }
	c := NewClassifier(always)
	require.Equal(t, CategoryLayout, c.Classify(Rule{ID: "r1", Title: "color", Description: "color"}))
}
