package nlquery

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mobr-ai/capcache/internal/observability"
	"github.com/mobr-ai/capcache/internal/pattern"
)

// adaCurrencyURI is the canonical ontology URI for the native currency.
const adaCurrencyURI = "https://mobr.ai/ont/cardano#cnt/ada"

type temporalRule struct {
	re     *regexp.Regexp
	period string
}

type orderingExtractRule struct {
	re       *regexp.Regexp
	ordering string
}

// Extractor harvests concrete, typed values from the raw (non-normalized)
// natural-language query. It is the mirror image of Normalizer: where the
// normalizer destroys specifics into symbols, the extractor collects the
// specifics for later re-injection.
type Extractor struct {
	log *observability.Logger

	adaRef   *regexp.Regexp
	temporal []temporalRule
	yearRe   *regexp.Regexp
	monthRe  *regexp.Regexp
	ordering []orderingExtractRule

	pctSymbol  *regexp.Regexp
	pctWord    *regexp.Regexp
	pctDecimal *regexp.Regexp

	topLimit      *regexp.Regexp
	termLimit     *regexp.Regexp
	limitUnit     *regexp.Regexp
	implicitLimit *regexp.Regexp

	tokenSuffixed   *regexp.Regexp
	tokenSuffix     *regexp.Regexp
	tokenFromSupply *regexp.Regexp

	poolID *regexp.Regexp

	magnitudeNum   *regexp.Regexp
	formattedNum   *regexp.Regexp
	plainNum       *regexp.Regexp
	separatorDigit *regexp.Regexp
	separators     *regexp.Regexp

	durationExplicit *regexp.Regexp
	durationImplicit *regexp.Regexp

	definitionTerms []*regexp.Regexp
	quantifierTerms []*regexp.Regexp
}

// NewExtractor compiles all extraction patterns.
func NewExtractor(log *observability.Logger) *Extractor {
	e := &Extractor{
		log: log,

		adaRef:   regexp.MustCompile(`(?i)\bADA\b`),
		temporal: buildTemporalExtractRules(),
		yearRe: regexp.MustCompile(`(?:(?:` + strings.Join(pattern.TemporalPrepositions, "|") + `)\s+)?(\d{4})\b`),
		monthRe: regexp.MustCompile(`(?i)\b(` + joinQuoted(append(append([]string{},
			pattern.MonthNames...), pattern.MonthAbbrev...)) + `)\b`),
		ordering: buildOrderingExtractRules(),

		pctSymbol:  regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*%`),
		pctWord:    regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s+percent`),
		pctDecimal: regexp.MustCompile(`\b(0\.\d+)\b`),

		topLimit: regexp.MustCompile(`(?i)\b(` + joinQuoted(pattern.TopTerms) + `)\s+(\d+)\b`),
		termLimit: regexp.MustCompile(`(?i)` + pattern.BuildPattern(
			append(append([]string{}, pattern.LatestTerms...), pattern.EarliestTerms...), true) + `\s+(\d+)\b`),
		limitUnit: regexp.MustCompile(`(?i)^\s*(?:hour|day|week|month|year|epoch)`),

		tokenSuffixed:   regexp.MustCompile(`\b([A-Z]{3,10})\b`),
		tokenSuffix:     regexp.MustCompile(`^\s+(?:holder|token|account|supply|balance)`),
		tokenFromSupply: regexp.MustCompile(`from\s+the\s+([A-Z]{3,10})\s+supply`),

		poolID: regexp.MustCompile(`(?i)\b(pool1[a-z0-9]{53})\b`),

		magnitudeNum:   regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s+(billion(?:s)?|million(?:s)?|thousand(?:s)?|hundred(?:s)?)\b`),
		formattedNum:   regexp.MustCompile(`\b\d{1,3}(?:[,._]\d{3})+(?:\.\d+)?\b`),
		plainNum:       regexp.MustCompile(`\b\d+(?:\.\d+)?\b`),
		separatorDigit: regexp.MustCompile(`\b\d{1,3}[,._]\d`),
		separators:     regexp.MustCompile(`[,._]`),

		durationExplicit: regexp.MustCompile(`(?i)\b(last|past|previous)\s+(\d+)\s+(day|days|week|weeks|month|months|year|years)\b`),
		durationImplicit: regexp.MustCompile(`(?i)\b(last|past|previous)\s+(day|week|month|year)\b`),
	}

	for _, term := range pattern.DefinitionTerms {
		e.definitionTerms = append(e.definitionTerms,
			regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(term)+`\b`))
	}
	for _, term := range pattern.CountTerms {
		e.quantifierTerms = append(e.quantifierTerms,
			regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(term)+`\b`))
	}

	// The implicit-limit probe needs ontology entity labels; without them
	// there is nothing safe to match
	if entities := pattern.Entities(); len(entities) > 0 {
		e.implicitLimit = regexp.MustCompile(`(?i)` + pattern.BuildPattern(
			append(append([]string{}, pattern.LatestTerms...), pattern.EarliestTerms...), true) +
			`\s+` + pattern.BuildPattern(entities, false) + `\b`)
	}

	return e
}

func buildTemporalExtractRules() []temporalRule {
	lists := []struct {
		terms  []string
		period string
	}{
		{pattern.YearlyTerms, "year"},
		{pattern.MonthlyTerms, "month"},
		{pattern.WeeklyTerms, "week"},
		{pattern.DailyTerms, "day"},
		{pattern.EpochPeriodTerms, "epoch"},
	}
	out := make([]temporalRule, 0, len(lists))
	for _, l := range lists {
		out = append(out, temporalRule{
			re:     regexp.MustCompile(`(?i)` + pattern.BuildPattern(l.terms, true)),
			period: l.period,
		})
	}
	return out
}

func buildOrderingExtractRules() []orderingExtractRule {
	withNumber := func(terms []string, ordering string) orderingExtractRule {
		return orderingExtractRule{
			re:       regexp.MustCompile(`(?i)` + pattern.BuildPattern(terms, true) + `\s+\d+`),
			ordering: ordering,
		}
	}
	bare := func(terms []string, ordering string) orderingExtractRule {
		return orderingExtractRule{
			re:       regexp.MustCompile(`(?i)` + pattern.BuildPattern(terms, true)),
			ordering: ordering,
		}
	}
	return []orderingExtractRule{
		// Patterns with explicit numbers
		withNumber(pattern.EarliestTerms, "ordering:ASC"),
		withNumber(pattern.LatestTerms, "ordering:DESC"),
		withNumber(pattern.TopTerms, "ordering:DESC"),
		withNumber(pattern.BottomTerms, "ordering:ASC"),
		// Patterns without numbers (implicit limit)
		bare(pattern.EarliestTerms, "ordering:ASC"),
		bare(pattern.LatestTerms, "ordering:DESC"),
		bare(pattern.TopTerms, "ordering:DESC"),
		bare(pattern.BottomTerms, "ordering:ASC"),
		bare(pattern.MaxTerms, "ordering:DESC"),
		bare(pattern.MinTerms, "ordering:ASC"),
	}
}

// Extract harvests all concrete values from the raw query.
func (e *Extractor) Extract(nlQuery string) *Values {
	v := &Values{}

	// Native currency reference
	if e.adaRef.MatchString(nlQuery) {
		v.Currencies = appendUnique(v.Currencies, adaCurrencyURI)
	}

	// Temporal periods
	for _, rule := range e.temporal {
		if rule.re.MatchString(nlQuery) {
			v.TemporalPeriods = appendUnique(v.TemporalPeriods, rule.period)
		}
	}

	// Years
	for _, m := range e.yearRe.FindAllStringSubmatch(nlQuery, -1) {
		year := m[1]
		if n, err := strconv.Atoi(year); err == nil && n >= 1900 && n <= 2100 {
			v.Years = appendUnique(v.Years, year)
		}
	}

	// Months (bare names; a trailing year is folded by normalization, not here)
	for _, m := range e.monthRe.FindAllStringSubmatch(nlQuery, -1) {
		v.Months = appendUnique(v.Months, strings.ToLower(m[1]))
	}

	// Ordering direction
	for _, rule := range e.ordering {
		if rule.re.MatchString(nlQuery) {
			v.Orderings = appendUnique(v.Orderings, rule.ordering)
		}
	}

	e.extractPercentages(nlQuery, v)
	e.extractLimits(nlQuery, v)
	e.extractTokens(nlQuery, v)
	e.extractPoolIDs(nlQuery, v)
	e.extractNumbers(nlQuery, v)
	e.extractDurations(nlQuery, v)

	// One definition term is enough to mark a definition query
	for i, re := range e.definitionTerms {
		if re.MatchString(nlQuery) {
			v.Definitions = appendUnique(v.Definitions, pattern.DefinitionTerms[i])
			break
		}
	}
	for i, re := range e.quantifierTerms {
		if re.MatchString(nlQuery) {
			v.Quantifiers = appendUnique(v.Quantifiers, pattern.CountTerms[i])
			break
		}
	}

	if e.log != nil {
		e.log.Debug().Str("query", nlQuery).Interface("values", v).Msg("extracted values")
	}
	return v
}

func (e *Extractor) extractPercentages(nlQuery string, v *Values) {
	// Percentages with % symbol
	for _, m := range e.pctSymbol.FindAllStringSubmatch(nlQuery, -1) {
		pct := m[1]
		if !contains(v.Percentages, pct) {
			v.Percentages = append(v.Percentages, pct)
			f, _ := strconv.ParseFloat(pct, 64)
			v.PercentagesDecimal = append(v.PercentagesDecimal, floatString(f/100))
		}
	}

	// "N percent" format
	for _, m := range e.pctWord.FindAllStringSubmatch(nlQuery, -1) {
		pct := m[1]
		if !contains(v.Percentages, pct) {
			v.Percentages = append(v.Percentages, pct)
			f, _ := strconv.ParseFloat(pct, 64)
			v.PercentagesDecimal = append(v.PercentagesDecimal,
				strconv.FormatFloat(f/100, 'f', 2, 64))
		}
	}

	// Bare decimal percentages
	for _, m := range e.pctDecimal.FindAllStringSubmatch(nlQuery, -1) {
		decimal := m[1]
		f, _ := strconv.ParseFloat(decimal, 64)
		if f > 0 && f < 1.0 && !contains(v.PercentagesDecimal, decimal) {
			v.PercentagesDecimal = append(v.PercentagesDecimal, decimal)
			pct := strings.TrimRight(strings.TrimRight(floatString(f*100), "0"), ".")
			if !contains(v.Percentages, pct) {
				v.Percentages = append(v.Percentages, pct)
			}
		}
	}
}

func (e *Extractor) extractLimits(nlQuery string, v *Values) {
	// Explicit limits (top N)
	for _, m := range e.topLimit.FindAllStringSubmatch(nlQuery, -1) {
		v.Limits = appendUnique(v.Limits, m[2])
	}

	// Explicit limits (latest N, first N), excluding time spans like
	// "latest 24 hours"
	for _, loc := range e.termLimit.FindAllStringSubmatchIndex(nlQuery, -1) {
		if e.limitUnit.MatchString(nlQuery[loc[1]:]) {
			continue
		}
		v.Limits = appendUnique(v.Limits, nlQuery[loc[4]:loc[5]])
	}

	// Implicit limit of 1 for a singular entity noun without a number
	if e.implicitLimit != nil && e.implicitLimit.MatchString(nlQuery) {
		v.Limits = appendUnique(v.Limits, "1")
	}
}

func (e *Extractor) extractTokens(nlQuery string, v *Values) {
	type hit struct {
		pos   int
		token string
	}
	var hits []hit

	for _, loc := range e.tokenSuffixed.FindAllStringSubmatchIndex(nlQuery, -1) {
		if e.tokenSuffix.MatchString(nlQuery[loc[1]:]) {
			hits = append(hits, hit{pos: loc[0], token: nlQuery[loc[2]:loc[3]]})
		}
	}
	for _, loc := range e.tokenFromSupply.FindAllStringSubmatchIndex(nlQuery, -1) {
		hits = append(hits, hit{pos: loc[2], token: nlQuery[loc[2]:loc[3]]})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	for _, h := range hits {
		v.Tokens = appendUnique(v.Tokens, strings.ToUpper(h.token))
	}
}

func (e *Extractor) extractPoolIDs(nlQuery string, v *Values) {
	for _, m := range e.poolID.FindAllStringSubmatch(nlQuery, -1) {
		v.PoolIDs = appendUnique(v.PoolIDs, strings.ToLower(m[1]))
	}
}

func (e *Extractor) extractNumbers(nlQuery string, v *Values) {
	multipliers := map[string]float64{
		"hundred":  100,
		"thousand": 1000,
		"million":  1000000,
		"billion":  1000000000,
	}

	// Unit-multiplied numbers ("2 million")
	for _, loc := range e.magnitudeNum.FindAllStringSubmatchIndex(nlQuery, -1) {
		num := nlQuery[loc[2]:loc[3]]
		unit := strings.TrimSuffix(strings.ToLower(nlQuery[loc[4]:loc[5]]), "s")
		base, _ := strconv.ParseFloat(num, 64)
		actual := int64(base * multipliers[unit])

		if e.adaContext(nlQuery, loc[0], loc[1]) {
			v.Numbers = appendUnique(v.Numbers, strconv.FormatInt(actual*1000000, 10))
		} else {
			v.Numbers = appendUnique(v.Numbers, strconv.FormatInt(actual, 10))
		}
	}

	// Formatted numbers with thousands separators
	for _, loc := range e.formattedNum.FindAllStringIndex(nlQuery, -1) {
		num := nlQuery[loc[0]:loc[1]]
		normalized := e.separators.ReplaceAllString(num, "")

		if contains(v.Limits, normalized) || contains(v.Percentages, normalized) ||
			contains(v.PercentagesDecimal, normalized) || contains(v.Years, normalized) ||
			contains(v.Numbers, normalized) {
			continue
		}

		if n, err := strconv.ParseInt(normalized, 10, 64); err == nil && e.adaContext(nlQuery, loc[0], loc[1]) {
			v.Numbers = append(v.Numbers, strconv.FormatInt(n*1000000, 10))
		} else {
			v.Numbers = append(v.Numbers, normalized)
		}
	}

	// Plain numbers, skipping digits that belong to a formatted number
	for _, loc := range e.plainNum.FindAllStringIndex(nlQuery, -1) {
		num := nlQuery[loc[0]:loc[1]]
		lo := loc[0] - 1
		if lo < 0 {
			lo = 0
		}
		hi := loc[1] + 2
		if hi > len(nlQuery) {
			hi = len(nlQuery)
		}
		if e.separatorDigit.MatchString(nlQuery[lo:hi]) {
			continue
		}

		if !contains(v.Limits, num) && !contains(v.Percentages, num) &&
			!contains(v.PercentagesDecimal, num) && !contains(v.Years, num) &&
			!contains(v.Numbers, num) {
			v.Numbers = append(v.Numbers, num)
		}
	}
}

func (e *Extractor) extractDurations(nlQuery string, v *Values) {
	dayEquivalent := map[string]int{
		"day": 1, "week": 7, "month": 30, "year": 365,
	}

	// "last N days/weeks/months/years", stored as days for comparison
	for _, m := range e.durationExplicit.FindAllStringSubmatch(nlQuery, -1) {
		n, _ := strconv.Atoi(m[2])
		unit := strings.TrimSuffix(strings.ToLower(m[3]), "s")
		if mult, ok := dayEquivalent[unit]; ok {
			v.Durations = appendUnique(v.Durations, "P"+strconv.Itoa(n*mult)+"D")
		}
	}

	// "last week/month/year" (implicit 1)
	for _, m := range e.durationImplicit.FindAllStringSubmatch(nlQuery, -1) {
		unit := strings.ToLower(m[2])
		if mult, ok := dayEquivalent[unit]; ok {
			v.Durations = appendUnique(v.Durations, "P"+strconv.Itoa(mult)+"D")
		}
	}
}

// adaContext reports whether the surrounding text mentions ADA, meaning an
// amount should be converted to lovelace.
func (e *Extractor) adaContext(s string, start, end int) bool {
	lo := start - 20
	if lo < 0 {
		lo = 0
	}
	hi := end + 10
	if hi > len(s) {
		hi = len(s)
	}
	return strings.Contains(strings.ToUpper(s[lo:hi]), "ADA")
}

// floatString formats a float the way dynamic languages print them, keeping
// a trailing ".0" on integral values so the later trim produces "50" from
// 50.0 and leaves "12.5" alone.
func floatString(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func joinQuoted(terms []string) string {
	escaped := make([]string, len(terms))
	for i, t := range terms {
		escaped[i] = regexp.QuoteMeta(t)
	}
	return strings.Join(escaped, "|")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func appendUnique(list []string, s string) []string {
	if contains(list, s) {
		return list
	}
	return append(list, s)
}
