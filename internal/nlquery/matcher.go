package nlquery

import (
	"regexp"
	"strings"

	"github.com/mobr-ai/capcache/internal/pattern"
)

// semanticGroup maps a canonical form to the term variants that collapse
// into it. Groups are applied in order; earlier groups win when variants
// overlap.
type semanticGroup struct {
	canonical string
	variants  []string
}

// Matcher collapses equivalent phrasings to canonical forms so that
// paraphrased queries produce the same cache key.
type Matcher struct {
	groups        []semanticGroup
	sugarPattern  *regexp.Regexp
	sugarWithViz  *regexp.Regexp
	variantSubs   []variantSub
	spacePattern  *regexp.Regexp
}

type variantSub struct {
	re        *regexp.Regexp
	canonical string
}

// NewMatcher builds a matcher from the pattern registry term lists.
func NewMatcher() *Matcher {
	m := &Matcher{
		groups: buildSemanticGroups(),
	}

	for _, g := range m.groups {
		for _, variant := range g.variants {
			m.variantSubs = append(m.variantSubs, variantSub{
				re:        regexp.MustCompile(`\b(` + regexp.QuoteMeta(variant) + `)\b`),
				canonical: g.canonical,
			})
		}
	}

	redundant := append(append([]string{}, pattern.SemanticSugar...), pattern.FillerWords...)
	m.sugarPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(redundant, "|") + `)\b`)
	m.sugarWithViz = regexp.MustCompile(`(?i)\b(` + strings.Join(append(redundant, "VIZ"), "|") + `)\b`)
	m.spacePattern = regexp.MustCompile(`\s+`)

	return m
}

// buildSemanticGroups returns comparison, possession, semantic, and chart
// groups in their application order.
func buildSemanticGroups() []semanticGroup {
	return []semanticGroup{
		// Comparison equivalents
		{"above", pattern.AboveTerms},
		{"below", pattern.BelowTerms},
		{"equals", pattern.EqualsTerms},
		// Possession equivalents
		{"hold", pattern.PossessionTerms},
		// Semantic groups
		{"latest", pattern.LatestTerms},
		{"oldest", pattern.EarliestTerms},
		{"count", pattern.CountTerms},
		{"sum", pattern.SumTerms},
		{"aggregate_time", pattern.AggregateTimeTerms},
		{"top_ranked", pattern.TopTerms},
		{"bottom_ranked", pattern.BottomTerms},
		// Chart groups
		{"bar", pattern.BarChartTerms},
		{"line", pattern.LineChartTerms},
		{"pie", pattern.PieChartTerms},
		{"table", pattern.TableTerms},
	}
}

// NormalizeForMatching replaces equivalent terms with canonical forms and
// strips words that do not change the meaning of the query.
func (m *Matcher) NormalizeForMatching(normalized string) string {
	result := normalized
	multiWord := len(strings.Fields(normalized)) > 1

	for _, sub := range m.variantSubs {
		result = sub.re.ReplaceAllString(result, sub.canonical)
	}

	// A chart-type word only matters when it is the whole query
	if multiWord {
		result = m.sugarWithViz.ReplaceAllString(result, "")
	} else {
		result = m.sugarPattern.ReplaceAllString(result, "")
	}

	result = m.spacePattern.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}
