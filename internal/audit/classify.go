package audit

import "strings"

// RuleCategory is a closed set of tags describing what page signal a rule
// cares about. Categories steer which structured signals matter most when
// judging, and keep the keyword heuristics visible instead of buried in
// prompt text.
type RuleCategory string

// Known rule categories.
const (
	CategoryColor      RuleCategory = "color"
	CategoryLayout     RuleCategory = "layout"
	CategoryNavigation RuleCategory = "navigation"
	CategoryMedia      RuleCategory = "media"
	CategoryContent    RuleCategory = "content"
	CategoryGeneric    RuleCategory = "generic"
)

// CategoryStrategy inspects a rule and claims a category, or returns false
// to pass to the next strategy.
type CategoryStrategy func(Rule) (RuleCategory, bool)

// Classifier maps rules to categories via an ordered strategy chain, first
// claim wins.
type Classifier struct {
	strategies []CategoryStrategy
}

// NewClassifier builds a classifier. With no strategies the default keyword
// chain is used.
func NewClassifier(strategies ...CategoryStrategy) *Classifier {
	if len(strategies) == 0 {
		strategies = DefaultCategoryStrategies()
	}
	return &Classifier{strategies: strategies}
}

// Classify returns the first category claimed by a strategy, or
// CategoryGeneric when none matches.
func (c *Classifier) Classify(r Rule) RuleCategory {
	for _, s := range c.strategies {
		if cat, ok := s(r); ok {
			return cat
		}
	}
	return CategoryGeneric
}

// DefaultCategoryStrategies returns the built-in keyword heuristics, ordered
// from most to least specific.
func DefaultCategoryStrategies() []CategoryStrategy {
	return []CategoryStrategy{
		keywordStrategy(CategoryColor, "color", "colour", "contrast", "palette", "black", "background"),
		keywordStrategy(CategoryNavigation, "breadcrumb", "navigation", "menu", "link", "button", "checkout", "cart"),
		keywordStrategy(CategoryMedia, "image", "photo", "video", "lazy", "thumbnail", "alt text"),
		keywordStrategy(CategoryLayout, "layout", "heading", "header", "footer", "above the fold", "viewport"),
		keywordStrategy(CategoryContent, "text", "copy", "policy", "price", "description", "spelling"),
	}
}

func keywordStrategy(cat RuleCategory, keywords ...string) CategoryStrategy {
	return func(r Rule) (RuleCategory, bool) {
		haystack := strings.ToLower(r.Title + " " + r.Description)
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				return cat, true
			}
		}
		return "", false
	}
}
