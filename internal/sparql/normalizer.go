// Package sparql turns SPARQL query text into reusable cache templates
// and restores those templates into executable queries. Literals,
// URIs, temporal shapes and clause arguments are swapped for typed
// <<TYPE_n>> placeholders so that two queries differing only in their
// concrete values share a single cache entry.
package sparql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mobr-ai/capcache/internal/observability"
)

// Normalizer extracts literals and instance references from a SPARQL
// query body and replaces them with typed placeholders. It is safe for
// concurrent use; all per-call state lives in the run struct.
type Normalizer struct {
	log *observability.Logger

	injectStart  *regexp.Regexp
	injectDec    *regexp.Regexp
	currency     *regexp.Regexp
	compactURI   *regexp.Regexp
	yearLiteral  *regexp.Regexp
	periodShapes []periodShape
	orderClause  *regexp.Regexp
	percentage   *regexp.Regexp
	stringLit    *regexp.Regexp
	limitOffset  *regexp.Regexp
	formattedNum *regexp.Regexp
	plainNum     *regexp.Regexp
	separators   *regexp.Regexp
}

type periodShape struct {
	re   *regexp.Regexp
	kind string
}

var prefixBlock = regexp.MustCompile(`(?i)\A((?:PREFIX\s+\w+:\s*<[^>]+>\s*)+)`)

// NewNormalizer compiles the extraction patterns once. log may be nil.
func NewNormalizer(log *observability.Logger) *Normalizer {
	return &Normalizer{
		log:         log,
		injectStart: regexp.MustCompile(`(?i)INJECT(?:_FROM_PREVIOUS)?\(`),
		injectDec:   regexp.MustCompile(`\b0\.\d+\b`),
		currency:    regexp.MustCompile(`<http://www\.mobr\.ai/ontologies/cardano#cnt/[^>]+>`),
		compactURI:  regexp.MustCompile(`cardano:(?:addr|asset|stake|pool|tx)[a-zA-Z0-9]+`),
		yearLiteral: regexp.MustCompile(`"(\d{4})-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z"\^\^xsd:dateTime`),
		periodShapes: []periodShape{
			{regexp.MustCompile(`(?i)SUBSTR\s*\(\s*STR\s*\(\s*\?timestamp\s*\)\s*,\s*1\s*,\s*4\s*\)`), "YEAR"},
			{regexp.MustCompile(`(?i)SUBSTR\s*\(\s*STR\s*\(\s*\?timestamp\s*\)\s*,\s*1\s*,\s*7\s*\)`), "MONTH"},
			{regexp.MustCompile(`(?i)SUBSTR\s*\(\s*STR\s*\(\s*\?timestamp\s*\)\s*,\s*9\s*,\s*10\s*\)`), "DAY"},
			{regexp.MustCompile(`(?i)CONCAT\s*\([^)]*SUBSTR[^)]*week[^)]*\)`), "WEEK"},
			{regexp.MustCompile(`(?i)BIND\s*\(\s*\?epoch(?:No|Number)?\s+AS\s+\?timePeriod\s*\)`), "EPOCH"},
			{regexp.MustCompile(`(?i)GROUP\s+BY\s+\?timePeriod\b`), "GROUP"},
		},
		orderClause:  regexp.MustCompile(`(?i)ORDER\s+BY\s+(?:(?:ASC|DESC)\s*\([^\)]+\)|\?[\w]+(?:\s+(?:ASC|DESC))?)`),
		percentage:   regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%|0\.\d+`),
		stringLit:    regexp.MustCompile(`["']([^"']+)["']`),
		limitOffset:  regexp.MustCompile(`(?i)(LIMIT|OFFSET)\s+(\d+)`),
		formattedNum: regexp.MustCompile(`\b\d{1,3}(?:[,._]\d{3})+(?:\.\d+)?\b`),
		plainNum:     regexp.MustCompile(`\b\d+\b`),
		separators:   regexp.MustCompile(`[,._]`),
	}
}

// Normalize extracts values from a standalone query, starting all
// placeholder counters at zero.
func (n *Normalizer) Normalize(sparqlQuery string) (string, map[string]string) {
	return n.NormalizeWithCounters(sparqlQuery, &Counters{})
}

// NormalizeWithCounters extracts values using the supplied counters,
// which keeps placeholder numbering continuous across a list of
// sequential queries that share one placeholder map.
func (n *Normalizer) NormalizeWithCounters(sparqlQuery string, counters *Counters) (string, map[string]string) {
	if counters == nil {
		counters = &Counters{}
	}
	r := &run{n: n, counters: counters, placeholders: make(map[string]string)}

	prefixes, body := splitPrefixes(sparqlQuery)

	// Pass order matters. INJECT expressions go first so their nested
	// values are claimed before the generic passes see them, and the
	// period shapes go before year literals because a period BIND can
	// contain a four-digit substring.
	body = r.extractInject(body)
	body = r.extractCurrencies(body)
	body = r.extractCompactURIs(body)
	body = r.extractPeriods(body)
	body = r.extractYears(body)
	body = r.extractOrderClauses(body)
	body = r.extractPercentages(body)
	body = r.extractStrings(body)
	body = r.extractLimitOffset(body)
	body = r.extractFormattedNumbers(body)
	body = r.extractPlainNumbers(body)

	if prefixes != "" {
		body = prefixes + "\n\n" + body
	}

	if n.log != nil {
		n.log.Debug().Int("placeholders", len(r.placeholders)).Msg("normalized sparql query")
	}
	return body, r.placeholders
}

// splitPrefixes peels leading PREFIX declarations off a query so they
// are preserved verbatim and never scanned for values.
func splitPrefixes(sparqlQuery string) (prefixes, body string) {
	loc := prefixBlock.FindStringSubmatchIndex(sparqlQuery)
	if loc == nil {
		return "", sparqlQuery
	}
	return strings.TrimSpace(sparqlQuery[loc[2]:loc[3]]), strings.TrimSpace(sparqlQuery[loc[1]:])
}

// insidePlaceholder reports whether pos falls between an unclosed "<<"
// and its ">>". It is what lets every later pass rescan the partially
// placeholdered string without double-extracting.
func insidePlaceholder(text string, pos int) bool {
	head := text[:pos]
	return strings.Count(head, "<<") > strings.Count(head, ">>")
}

// run holds the mutable state of one normalization call.
type run struct {
	n            *Normalizer
	counters     *Counters
	placeholders map[string]string
}

func (r *run) place(prefix string, counter *int, original string) string {
	ph := fmt.Sprintf("<<%s_%d>>", prefix, *counter)
	*counter++
	r.placeholders[ph] = original
	return ph
}

// extractInject finds INJECT(...) and INJECT_FROM_PREVIOUS(...) call
// expressions by balanced-parenthesis scanning; a regex alone cannot
// bound an argument list that itself contains parens.
func (r *run) extractInject(text string) string {
	pos := 0
	for {
		loc := r.n.injectStart.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start := pos + loc[0]
		depth := 1
		i := pos + loc[1]
		for i < len(text) && depth > 0 {
			switch text[i] {
			case '(':
				depth++
			case ')':
				depth--
			}
			i++
		}
		if depth != 0 {
			break
		}

		ph := fmt.Sprintf("<<INJECT_%d>>", r.counters.Inject)
		r.counters.Inject++
		r.placeholders[ph] = r.parameterizeInjectDecimals(text[start:i])
		text = text[:start] + ph + text[i:]
		pos = start + len(ph)
	}
	return text
}

// parameterizeInjectDecimals replaces ratio thresholds like 0.51 inside
// an INJECT expression with nested <<PCT_DECIMAL_n>> placeholders.
// Right-to-left so earlier match offsets stay valid.
func (r *run) parameterizeInjectDecimals(injectText string) string {
	locs := r.n.injectDec.FindAllStringIndex(injectText, -1)
	result := injectText
	for i := len(locs) - 1; i >= 0; i-- {
		decimal := injectText[locs[i][0]:locs[i][1]]
		f, err := strconv.ParseFloat(decimal, 64)
		if err != nil || f <= 0 || f >= 1 {
			continue
		}
		ph := fmt.Sprintf("<<PCT_DECIMAL_%d>>", r.counters.Pct)
		r.counters.Pct++
		r.placeholders[ph] = decimal
		result = result[:locs[i][0]] + ph + result[locs[i][1]:]
	}
	return result
}

// rebuild replaces every match of re in textual order, skipping matches
// that start inside an existing placeholder. handler returns the
// placeholder text for one match, or ok=false to leave it alone.
func (r *run) rebuild(text string, re *regexp.Regexp, handler func(m []int) (string, bool)) string {
	locs := re.FindAllStringSubmatchIndex(text, -1)
	if locs == nil {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range locs {
		if m[0] < last || insidePlaceholder(text, m[0]) {
			continue
		}
		ph, ok := handler(m)
		if !ok {
			continue
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(ph)
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

func (r *run) extractCurrencies(text string) string {
	return r.rebuild(text, r.n.currency, func(m []int) (string, bool) {
		return r.place("CUR", &r.counters.Cur, text[m[0]:m[1]]), true
	})
}

func (r *run) extractCompactURIs(text string) string {
	return r.rebuild(text, r.n.compactURI, func(m []int) (string, bool) {
		return r.place("URI", &r.counters.URI, text[m[0]:m[1]]), true
	})
}

func (r *run) extractPeriods(text string) string {
	for _, shape := range r.n.periodShapes {
		kind := shape.kind
		text = r.rebuild(text, shape.re, func(m []int) (string, bool) {
			ph := fmt.Sprintf("<<PERIOD_%s_%d>>", kind, r.counters.Period)
			r.counters.Period++
			r.placeholders[ph] = text[m[0]:m[1]]
			return ph, true
		})
	}
	return text
}

func (r *run) extractYears(text string) string {
	return r.rebuild(text, r.n.yearLiteral, func(m []int) (string, bool) {
		return r.place("YEAR", &r.counters.Year, text[m[0]:m[1]]), true
	})
}

func (r *run) extractOrderClauses(text string) string {
	return r.rebuild(text, r.n.orderClause, func(m []int) (string, bool) {
		return r.place("ORDER", &r.counters.Order, text[m[0]:m[1]]), true
	})
}

func (r *run) extractPercentages(text string) string {
	return r.rebuild(text, r.n.percentage, func(m []int) (string, bool) {
		return r.place("PCT", &r.counters.Pct, text[m[0]:m[1]]), true
	})
}

func (r *run) extractStrings(text string) string {
	return r.rebuild(text, r.n.stringLit, func(m []int) (string, bool) {
		lit := text[m[0]:m[1]]
		if strings.Contains(lit, "<<") {
			return "", false
		}
		return r.place("STR", &r.counters.Str, lit), true
	})
}

// extractLimitOffset stores only the numeric argument; the LIMIT or
// OFFSET keyword stays in the template with its original casing.
func (r *run) extractLimitOffset(text string) string {
	return r.rebuild(text, r.n.limitOffset, func(m []int) (string, bool) {
		keyword := text[m[2]:m[3]]
		ph := r.place("LIM", &r.counters.Lim, text[m[4]:m[5]])
		return keyword + " " + ph, true
	})
}

func (r *run) extractFormattedNumbers(text string) string {
	return r.rebuild(text, r.n.formattedNum, func(m []int) (string, bool) {
		if r.shouldSkipNumber(text, m[0], m[1]) {
			return "", false
		}
		cleaned := r.n.separators.ReplaceAllString(text[m[0]:m[1]], "")
		return r.place("NUM", &r.counters.Num, cleaned), true
	})
}

func (r *run) extractPlainNumbers(text string) string {
	return r.rebuild(text, r.n.plainNum, func(m []int) (string, bool) {
		if r.shouldSkipNumber(text, m[0], m[1]) {
			return "", false
		}
		return r.place("NUM", &r.counters.Num, text[m[0]:m[1]]), true
	})
}

var numberSkipMarkers = []string{
	"<<", "://", "<http", "www.", ".org", ".com",
	"XMLSchema", "/ontologies/", "SUBSTR",
}

// shouldSkipNumber rejects digits that are structural rather than
// data: parts of URIs, schema references, placeholders already emitted
// by an earlier pass, or SUBSTR offset arguments.
func (r *run) shouldSkipNumber(text string, start, end int) bool {
	lo := start - 30
	if lo < 0 {
		lo = 0
	}
	hi := end + 30
	if hi > len(text) {
		hi = len(text)
	}
	context := text[lo:hi]
	for _, marker := range numberSkipMarkers {
		if strings.Contains(context, marker) {
			return true
		}
	}

	plo := start - 50
	if plo < 0 {
		plo = 0
	}
	phi := end + 10
	if phi > len(text) {
		phi = len(text)
	}
	substrParam := regexp.MustCompile(`(?i)SUBSTR\s*\([^,]+,\s*` + regexp.QuoteMeta(text[start:end]) + `(?:\s*[,)])`)
	return substrParam.MatchString(text[plo:phi])
}
