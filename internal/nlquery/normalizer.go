// Package nlquery normalizes natural-language queries into canonical cache
// keys and extracts the concrete values destroyed by that normalization.
package nlquery

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/mobr-ai/capcache/internal/observability"
	"github.com/mobr-ai/capcache/internal/pattern"
)

// replacement pairs a compiled pattern with its substitution. Order of
// application matters, so these always live in slices, never maps.
type replacement struct {
	re   *regexp.Regexp
	repl string
}

// entityRule is a replacement with an optional exclusion on the text that
// follows the match.
type entityRule struct {
	re            *regexp.Regexp
	repl          string
	notFollowedBy *regexp.Regexp
}

// orderingRule marks whether the pattern carries an explicit count. Implicit
// forms get a count placeholder appended so "latest block" and "latest 1
// block" normalize identically.
type orderingRule struct {
	re       *regexp.Regexp
	repl     string
	explicit bool
}

// Normalizer turns raw natural-language queries into canonical,
// order-insensitive cache keys.
type Normalizer struct {
	matcher *Matcher
	log     *observability.Logger

	punct        *regexp.Regexp
	spaces       *regexp.Regexp
	possessive   *regexp.Regexp
	entityPlural *regexp.Regexp

	quantifier *regexp.Regexp
	definition *regexp.Regexp
	whatIs     *regexp.Regexp

	aggCountOf *regexp.Regexp
	aggOver    *regexp.Regexp

	ordinalDate      *regexp.Regexp
	monthOrdinalDate *regexp.Regexp

	limitExplicit *regexp.Regexp
	limitImplicit *regexp.Regexp

	entityRules []entityRule

	maxMinBound *regexp.Regexp
	maxCount    *regexp.Regexp
	minCount    *regexp.Regexp

	year        *regexp.Regexp
	monthYear   *regexp.Regexp
	periodRange *regexp.Regexp
	timeContext *regexp.Regexp
	isoMonth    *regexp.Regexp
	weekNumber  *regexp.Regexp

	temporal   []replacement
	comparison []replacement
	ordering   []orderingRule

	duration  *regexp.Regexp
	topN      *regexp.Regexp
	magnitude *regexp.Regexp

	defContext  *regexp.Regexp
	tokenWord   *regexp.Regexp
	tokenSuffix *regexp.Regexp

	formattedNumber *regexp.Regexp
	plainNumber     *regexp.Regexp
	pctSuffix       *regexp.Regexp

	nonWord *regexp.Regexp
}

// NewNormalizer compiles all normalization patterns. The first call loads
// the ontology labels, so construction is not free.
func NewNormalizer(log *observability.Logger) *Normalizer {
	preserved := pattern.PreservedExpressions()

	n := &Normalizer{
		matcher: NewMatcher(),
		log:     log,

		punct:        regexp.MustCompile(`[?.!,;:\-\(\)\[\]{}'"]+`),
		spaces:       regexp.MustCompile(`\s+`),
		possessive:   regexp.MustCompile(`\b(\w+)'s\b`),
		entityPlural: buildEntityPluralPattern(),

		quantifier: regexp.MustCompile(pattern.BuildPattern(pattern.CountTerms, true) + `\s+(of\s+)?`),
		definition: regexp.MustCompile(pattern.BuildPattern(pattern.DefinitionTerms, true) + `s?\s+(an?|the)?\s*`),
		whatIs:     regexp.MustCompile(`\bwhat\s+(is|are|was|were)\s+(an?|the)?\s*`),

		aggCountOf: regexp.MustCompile(`\b(number|count|amount|total)\s+of\s+([a-z]+)\s+(per|by|each|every)\s+`),
		aggOver:    regexp.MustCompile(`\b(over|across|through|throughout)\s+(time|period|duration)\b`),

		ordinalDate: regexp.MustCompile(`\b(\d{1,2})(` + strings.Join(pattern.OrdinalSuffixes, "|") + `)?\s*,?\s*(\d{4})\b`),
		monthOrdinalDate: regexp.MustCompile(`(?i)` + pattern.BuildPattern(pattern.MonthNames, true) +
			`\s+(\d{1,2})(st|nd|rd|th)?\s*,?\s*(\d{4})\b`),

		limitExplicit: regexp.MustCompile(pattern.BuildPattern(pattern.LatestTerms, true) +
			`\s+(\d+)\s+` + pattern.BuildPattern(preserved, false)),
		limitImplicit: regexp.MustCompile(pattern.BuildPattern(pattern.LatestTerms, true) +
			`\s+` + pattern.BuildPattern(preserved, false) + `\b`),

		entityRules: buildEntityRules(),

		maxMinBound: regexp.MustCompile(`\b(` + strings.Join(append(append([]string{}, pattern.MaxTerms...), pattern.MinTerms...), "|") + `)\s+(` +
			strings.Join(pattern.BoundTerms, "|") + `)`),
		maxCount: regexp.MustCompile(pattern.BuildPattern(pattern.MaxTerms, true) + `(\s+(?:number|count))`),
		minCount: regexp.MustCompile(pattern.BuildPattern(pattern.MinTerms, true) + `(\s+(?:number|count))`),

		year: regexp.MustCompile(`\b(` + strings.Join(pattern.TemporalPrepositions, "|") + `)?\s*\d{4}\b`),
		monthYear: regexp.MustCompile(pattern.BuildPattern(
			append(append([]string{}, pattern.MonthNames...), pattern.MonthAbbrev...), true) + `\s*\d{4}\b`),
		periodRange: regexp.MustCompile(pattern.BuildPattern(pattern.TimePeriodRangeTerms, true) +
			`\s+` + pattern.BuildPattern(pattern.TimePeriodUnits, true) + `\s+of\s+<<YEAR>>\b`),
		timeContext: regexp.MustCompile(pattern.BuildPattern(pattern.TemporalPrepositions, true) +
			`\s+(<<MONTH>>|<<YEAR>>)\b`),
		isoMonth:   regexp.MustCompile(`\b\d{4}-\d{2}\b`),
		weekNumber: regexp.MustCompile(`\bweek\s+\d+\b`),

		temporal:   buildTemporalReplacements(),
		comparison: buildComparisonReplacements(),
		ordering:   buildOrderingRules(),

		duration:  regexp.MustCompile(`(?i)\b(last|past|previous)\s+(\d+\s+)?(day|days|week|weeks|month|months|year|years)\b`),
		topN:      regexp.MustCompile(`\btop\s+\d+\b`),
		magnitude: regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s+(?:billion(?:s)?|million(?:s)?|thousand(?:s)?|hundred(?:s)?)\b`),

		defContext: regexp.MustCompile(`\b(` + strings.Join(pattern.DefinitionTerms, "|") +
			`)\s+(is|are|was|were)?\s+(a|an|the)?\s*\w+`),
		tokenWord:   regexp.MustCompile(`\b(ada|snek|hosky|[a-z]{3,10})\b`),
		tokenSuffix: regexp.MustCompile(`^\s+(holder|token|account)`),

		formattedNumber: regexp.MustCompile(`\b\d{1,3}(?:[,._]\d{3})+(?:\.\d+)?\b`),
		plainNumber:     regexp.MustCompile(`\b\d+(?:\.\d+)?\b`),
		pctSuffix:       regexp.MustCompile(`^\s*%`),

		nonWord: regexp.MustCompile(`[^\w\s]`),
	}

	return n
}

// buildEntityPluralPattern covers the ontology labels plus the static entity
// term lists so "accounts" and "account" normalize identically.
func buildEntityPluralPattern() *regexp.Regexp {
	terms := append([]string{}, pattern.Entities()...)
	terms = append(terms, pattern.TransactionTerms...)
	terms = append(terms, pattern.InputTerms...)
	terms = append(terms, pattern.OutputTerms...)
	terms = append(terms, pattern.PoolTerms...)
	terms = append(terms, pattern.BlockTerms...)
	terms = append(terms, pattern.EpochTerms...)
	terms = append(terms, pattern.TokenTerms...)
	terms = append(terms, pattern.AccountTerms...)

	escaped := make([]string, len(terms))
	for i, t := range terms {
		escaped[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(escaped, "|") + `)s\b`)
}

// buildEntityRules returns entity replacements, most specific first. The
// resolver keeps the longest match at each position, so broad single-word
// rules sit at the bottom.
func buildEntityRules() []entityRule {
	rule := func(expr, repl string) entityRule {
		return entityRule{re: regexp.MustCompile(expr), repl: repl}
	}
	entity := func(terms []string, repl string) entityRule {
		return rule(pattern.BuildEntityPattern(terms, true), repl)
	}

	rules := []entityRule{
		rule(pattern.BuildEntityPattern(pattern.TransactionTerms, true)+`\s+`+
			pattern.BuildPattern(pattern.TransactionDetailTerms, true), "ENTITY_TX_DETAIL"),
		rule(`\b(with|having)\s+`+pattern.BuildPattern(pattern.TransactionDetailTerms, true), "ENTITY_DETAIL"),

		rule(`\b(drep (registration|update|retirement))s?\b`, "ENTITY_DREP_CERT"),
		rule(`\b(stake pool retirement)s?\b`, "ENTITY_POOL_RETIREMENT"),
		entity(pattern.GovernanceProposalTerms, "ENTITY_PROPOSAL"),
		entity(pattern.VotingTerms, "ENTITY_VOTING_ANCHOR"),
		entity(pattern.CommitteeTerms, "ENTITY_COMMITTEE"),
		rule(`\b(committee (member|credential))s?\b`, "ENTITY_COMMITTEE_MEMBER"),
		rule(`\b((cold|hot) credential)s?\b`, "ENTITY_CREDENTIAL"),
		entity(pattern.DrepTerms, "ENTITY_DREP"),
		entity(pattern.DelegationTerms, "ENTITY_DELEGATION"),
		entity(pattern.VoteTerms, "ENTITY_VOTE"),
		entity(pattern.CertificateTerms, "ENTITY_CERTIFICATE"),
		entity(pattern.ConstitutionTerms, "ENTITY_CONSTITUTION"),

		entity(pattern.ScriptTerms, "ENTITY_SCRIPT"),
		entity(pattern.WitnessTerms, "ENTITY_WITNESS"),
		entity(pattern.DatumTerms, "ENTITY_DATUM"),
		entity(pattern.CostModelTerms, "ENTITY_COST_MODEL"),

		entity(pattern.TokenTerms, "ENTITY_TOKEN"),
		entity(pattern.AdaPotTerms, "ENTITY_ADA_POTS"),

		entity(pattern.ProtocolParamTerms, "ENTITY_PROTOCOL_PARAMS"),

		entity(pattern.StatusTerms, "ENTITY_STATUS"),
		rule(`\b((what is happening|what up (cardano)s?)s?)s?\b`, "ENTITY_STATUS"),

		entity(pattern.RewardTerms, "ENTITY_REWARD_WITHDRAWAL"),
		entity(pattern.InputTerms, "ENTITY_UTXO_INPUT"),
		entity(pattern.OutputTerms, "ENTITY_UTXO_OUTPUT"),
	}

	// "pool owner" is a property of a pool, not the pool entity itself
	poolRule := entity(pattern.PoolTerms, "ENTITY_POOL")
	poolRule.notFollowedBy = regexp.MustCompile(`^\s+owner`)
	rules = append(rules, poolRule)

	rules = append(rules,
		entity(pattern.AccountTerms, "ENTITY_ACCOUNT"),
		entity(pattern.TransactionTerms, "ENTITY_TX"),
		entity(pattern.BlockTerms, "ENTITY_BLOCK"),
		entity(pattern.EpochTerms, "ENTITY_EPOCH"),
	)
	return rules
}

func buildTemporalReplacements() []replacement {
	lists := [][]string{
		pattern.YearlyTerms,
		pattern.MonthlyTerms,
		pattern.WeeklyTerms,
		pattern.DailyTerms,
		pattern.EpochPeriodTerms,
	}
	out := make([]replacement, 0, len(lists))
	for _, terms := range lists {
		out = append(out, replacement{
			re:   regexp.MustCompile(pattern.BuildPattern(terms, true)),
			repl: "per <<PERIOD>>",
		})
	}
	return out
}

func buildComparisonReplacements() []replacement {
	return []replacement{
		{regexp.MustCompile(pattern.BuildPattern(pattern.AboveTerms, true)), "above"},
		{regexp.MustCompile(pattern.BuildPattern(pattern.BelowTerms, true)), "below"},
		{regexp.MustCompile(pattern.BuildPattern(pattern.EqualsTerms, true)), "equals"},
	}
}

func buildOrderingRules() []orderingRule {
	explicit := func(terms []string, repl string) orderingRule {
		return orderingRule{
			re:       regexp.MustCompile(pattern.BuildPattern(terms, true) + `\s+\d+\b`),
			repl:     repl,
			explicit: true,
		}
	}
	implicit := func(terms []string, repl string) orderingRule {
		return orderingRule{
			re:   regexp.MustCompile(pattern.BuildPattern(terms, true)),
			repl: repl,
		}
	}
	return []orderingRule{
		// Explicit number patterns (more specific, checked first)
		explicit(pattern.EarliestTerms, "<<ORDER_START>> <<N>>"),
		explicit(pattern.LatestTerms, "<<ORDER_END>> <<N>>"),
		explicit(pattern.TopTerms, "<<ORDER_TOP>> <<N>>"),
		explicit(pattern.BottomTerms, "<<ORDER_BOTTOM>> <<N>>"),
		// Implicit limit patterns (no number = limit 1)
		implicit(pattern.EarliestTerms, "<<ORDER_START>>"),
		implicit(pattern.LatestTerms, "<<ORDER_END>>"),
		implicit(pattern.TopTerms, "<<ORDER_TOP>>"),
		implicit(pattern.BottomTerms, "<<ORDER_BOTTOM>>"),
		// Max/Min patterns
		implicit(pattern.MaxTerms, "<<ORDER_MAX>>"),
		implicit(pattern.MinTerms, "<<ORDER_MIN>>"),
	}
}

// Normalize converts a natural-language query into its canonical cache-key
// form. It never returns an empty string: when symbolic normalization
// collapses the query below three characters, a bare lower-cased form is
// returned instead.
func (n *Normalizer) Normalize(query string) string {
	normalized := strings.ToLower(query)
	normalized = asciiFold(normalized)

	// Replace punctuation with spaces and normalize whitespace first
	normalized = n.punct.ReplaceAllString(normalized, " ")
	normalized = strings.TrimSpace(n.spaces.ReplaceAllString(normalized, " "))

	normalized = n.possessive.ReplaceAllString(normalized, "${1}")
	normalized = n.entityPlural.ReplaceAllString(normalized, "${1}")

	// Shadow multi-word expressions so token-level steps cannot fragment them
	expressionMap := map[string]string{}
	for i, expr := range pattern.PreservedExpressions() {
		if strings.Contains(normalized, expr) {
			placeholder := fmt.Sprintf("__EXPR%d__", i)
			expressionMap[placeholder] = strings.ReplaceAll(expr, " ", "_")
			normalized = strings.ReplaceAll(normalized, expr, placeholder)
		}
	}

	// Quantification before definitions: "how many" outranks "what"
	normalized = n.quantifier.ReplaceAllString(normalized, "<<QUANT_0>> ")
	normalized = n.definition.ReplaceAllString(normalized, "<<DEF_0>> ")
	normalized = n.whatIs.ReplaceAllString(normalized, "<<DEF_0>> ")

	normalized = n.aggCountOf.ReplaceAllString(normalized, "${2} per ")
	normalized = n.aggOver.ReplaceAllString(normalized, "over time")

	// Ordinal dates (1st, 2nd, 3rd, ...)
	normalized = n.ordinalDate.ReplaceAllString(normalized, "<<DAY>> <<YEAR>>")
	normalized = n.monthOrdinalDate.ReplaceAllString(normalized, "${1} <<DAY>> <<YEAR>>")

	normalized = n.limitExplicit.ReplaceAllString(normalized, "${1} <<N>> ${2}")
	normalized = n.limitImplicit.ReplaceAllString(normalized, "${1} <<N>> ${2}")

	normalized = n.resolveEntities(normalized)

	// "largest supply" is a quantity bound, not a ranking request
	if !n.maxMinBound.MatchString(normalized) {
		normalized = n.maxCount.ReplaceAllString(normalized, "<<ORDER_MAX>>${2}")
		normalized = n.minCount.ReplaceAllString(normalized, "<<ORDER_MIN>>${2}")
	}

	normalized = n.year.ReplaceAllString(normalized, " <<YEAR>> ")
	normalized = n.monthYear.ReplaceAllString(normalized, " <<MONTH>> ")
	normalized = n.periodRange.ReplaceAllString(normalized, "<<PERIOD_RANGE>>")
	normalized = n.timeContext.ReplaceAllString(normalized, "in <<TIME>>")
	normalized = n.isoMonth.ReplaceAllString(normalized, "<<MONTH>>")
	normalized = n.weekNumber.ReplaceAllString(normalized, "week <<N>>")
	normalized = strings.TrimSpace(n.spaces.ReplaceAllString(normalized, " "))

	for _, r := range n.temporal {
		normalized = r.re.ReplaceAllString(normalized, r.repl)
	}
	for _, r := range n.comparison {
		normalized = r.re.ReplaceAllString(normalized, r.repl)
	}
	for _, r := range n.ordering {
		repl := r.repl
		if !r.explicit {
			repl += " <<N>>"
		}
		normalized = r.re.ReplaceAllString(normalized, repl)
	}

	normalized = n.duration.ReplaceAllString(normalized, "<<DURATION>>")

	normalized = n.topN.ReplaceAllString(normalized, "top __N__")
	normalized = n.magnitude.ReplaceAllString(normalized, "<<N>>")

	normalized = n.collapseTokenNames(normalized)

	// Formatted numbers first so the plain pattern cannot fragment them
	normalized = replaceUnlessFollowed(n.formattedNumber, n.pctSuffix, normalized, "<<N>>")
	normalized = replaceUnlessFollowed(n.plainNumber, n.pctSuffix, normalized, "<<N>>")

	normalized = n.nonWord.ReplaceAllString(normalized, "")
	normalized = n.spaces.ReplaceAllString(normalized, " ")

	// Drop filler words, keeping the first question word aside
	var questionWords, contentWords []string
	for _, word := range strings.Fields(normalized) {
		switch {
		case strings.HasPrefix(word, "ENTITY_") || strings.HasPrefix(word, "<<"):
			contentWords = append(contentWords, word)
		case containsWord(pattern.QuestionWords, word) && len(questionWords) == 0:
			questionWords = append(questionWords, word)
		case !containsWord(pattern.FillerWords, word):
			contentWords = append(contentWords, word)
		}
	}

	result := strings.TrimSpace(strings.Join(contentWords, " "))
	for placeholder, expr := range expressionMap {
		result = strings.ReplaceAll(result, placeholder, expr)
	}

	// Semantic collapse runs before the final sort so multi-word variants
	// are still contiguous
	result = n.matcher.NormalizeForMatching(result)
	contentWords = strings.Fields(result)

	sort.Strings(contentWords)
	result = strings.TrimSpace(strings.Join(contentWords, " "))

	if len(result) < 3 {
		result = strings.TrimSpace(strings.Join(append(questionWords, contentWords...), " "))
	}

	if len(result) < 3 {
		if n.log != nil {
			n.log.Warn().Str("query", query).Msg("normalization produced too short result")
		}
		fallback := n.punct.ReplaceAllString(strings.ToLower(query), "")
		fallback = strings.Join(strings.Fields(fallback), " ")
		if fallback == "" {
			// An empty cache key would collide every degenerate query
			// onto one entry.
			fallback = strings.TrimSpace(strings.ToLower(query))
		}
		return fallback
	}

	if n.log != nil {
		n.log.Debug().Str("query", query).Str("normalized", result).Msg("normalized query")
	}
	return result
}

// SemanticVariant exposes the matcher pass on an already normalized key.
func (n *Normalizer) SemanticVariant(normalized string) string {
	return n.matcher.NormalizeForMatching(normalized)
}

// resolveEntities applies entity rules with longest-match-wins overlap
// resolution across all rules at once.
func (n *Normalizer) resolveEntities(s string) string {
	type span struct {
		start, end int
		repl       string
	}
	var matches []span
	for _, rule := range n.entityRules {
		for _, loc := range rule.re.FindAllStringIndex(s, -1) {
			if rule.notFollowedBy != nil && rule.notFollowedBy.MatchString(s[loc[1]:]) {
				continue
			}
			matches = append(matches, span{start: loc[0], end: loc[1], repl: rule.repl})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].start != matches[j].start {
			return matches[i].start < matches[j].start
		}
		return (matches[i].end - matches[i].start) > (matches[j].end - matches[j].start)
	})

	var b strings.Builder
	lastEnd := 0
	var used []span
	for _, m := range matches {
		overlaps := false
		for _, u := range used {
			if m.start < u.end && m.end > u.start {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		b.WriteString(s[lastEnd:m.start])
		b.WriteString(m.repl)
		used = append(used, m)
		lastEnd = m.end
	}
	b.WriteString(s[lastEnd:])
	return b.String()
}

// collapseTokenNames replaces short token-like words followed by
// holder/token/account with a token placeholder. Definition queries and
// words inside the likely grammatical subject are left alone: the heuristic
// trades precision for recall on purpose.
func (n *Normalizer) collapseTokenNames(s string) string {
	if n.defContext.MatchString(s) {
		return s
	}

	words := strings.Fields(s)
	if len(words) > 5 {
		words = words[:5]
	}
	subject := map[string]bool{}
	for _, w := range words {
		subject[w] = true
	}

	var b strings.Builder
	lastEnd := 0
	for _, loc := range n.tokenWord.FindAllStringIndex(s, -1) {
		if !n.tokenSuffix.MatchString(s[loc[1]:]) {
			continue
		}
		word := s[loc[0]:loc[1]]
		if containsWord(pattern.QuestionWords, word) || subject[word] {
			continue
		}
		b.WriteString(s[lastEnd:loc[0]])
		b.WriteString("<<TOKEN>>")
		lastEnd = loc[1]
	}
	b.WriteString(s[lastEnd:])
	return b.String()
}

// replaceUnlessFollowed substitutes every match of re whose trailing text
// does not match suffix.
func replaceUnlessFollowed(re, suffix *regexp.Regexp, s, repl string) string {
	var b strings.Builder
	lastEnd := 0
	for _, loc := range re.FindAllStringIndex(s, -1) {
		if suffix.MatchString(s[loc[1]:]) {
			continue
		}
		b.WriteString(s[lastEnd:loc[0]])
		b.WriteString(repl)
		lastEnd = loc[1]
	}
	b.WriteString(s[lastEnd:])
	return b.String()
}

// asciiFold decomposes accented characters and drops anything non-ASCII.
func asciiFold(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	for _, r := range decomposed {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func containsWord(list []string, word string) bool {
	for _, w := range list {
		if w == word {
			return true
		}
	}
	return false
}
