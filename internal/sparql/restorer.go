package sparql

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mobr-ai/capcache/internal/nlquery"
	"github.com/mobr-ai/capcache/internal/observability"
)

// defaultCurrency is substituted when neither the current query nor the
// cached template supplies a currency. An unbound currency slot would
// make the restored query nonsensical rather than merely imprecise.
const defaultCurrency = "<https://mobr.ai/ont/cardano#cnt/ada>"

// Restorer fills a cached SPARQL template back in with the values
// extracted from the current natural-language query. It never returns
// an error: when a slot cannot be filled it falls back to the cached
// value, then to a per-type default, and the caller detects any
// placeholder that survived all fallbacks.
type Restorer struct {
	log *observability.Logger

	index      *regexp.Regexp
	nested     *regexp.Regexp
	nestedKey  *regexp.Regexp
	substrCall *regexp.Regexp
	yearDigits *regexp.Regexp
	monthToken *regexp.Regexp
	duration   *regexp.Regexp
	direction  *regexp.Regexp
}

// NewRestorer compiles the restoration patterns once. log may be nil.
func NewRestorer(log *observability.Logger) *Restorer {
	return &Restorer{
		log:        log,
		index:      regexp.MustCompile(`_(\d+)>>`),
		nested:     regexp.MustCompile(`<<(?:PCT_DECIMAL|PCT|NUM|STR|LIM|CUR|URI)_\d+>>`),
		nestedKey:  regexp.MustCompile(`<<(\w+)_(\d+)>>`),
		substrCall: regexp.MustCompile(`(?i)SUBSTR\s*\([^,]+,\s*\d+\s*,\s*\d+\s*\)`),
		yearDigits: regexp.MustCompile(`\d{4}`),
		monthToken: regexp.MustCompile(`(?i)\d{4}-\d{2}|\b(january|february|march|april|may|june|july|august|september|october|november|december)\b`),
		duration:   regexp.MustCompile(`"P\d+[DWMY]"(?:\^\^xsd:(?:dayTimeDuration|duration))?`),
		direction:  regexp.MustCompile(`(?i)\b(ASC|DESC)\b`),
	}
}

// Restore substitutes current values into a normalized template.
// Temporal and ordering placeholders go first since their cached text
// can embed other placeholders; the rest are processed longest-first so
// that no placeholder name is clobbered by a shorter prefix of itself.
func (r *Restorer) Restore(template string, placeholders map[string]string, current *nlquery.Values) string {
	if current == nil {
		current = &nlquery.Values{}
	}
	prefixes, body := splitPrefixes(template)

	body = r.restoreTemporal(body, placeholders, current)
	body = r.restoreOrdering(body, placeholders, current)

	type entry struct {
		placeholder string
		cached      string
	}
	var remaining []entry
	for ph, cached := range placeholders {
		if !strings.Contains(body, ph) {
			continue
		}
		if strings.HasPrefix(ph, "<<YEAR_") || strings.HasPrefix(ph, "<<MONTH_") ||
			strings.HasPrefix(ph, "<<PERIOD_") || strings.HasPrefix(ph, "<<ORDER_") {
			continue
		}
		remaining = append(remaining, entry{ph, cached})
	}
	sort.Slice(remaining, func(i, j int) bool {
		if len(remaining[i].placeholder) != len(remaining[j].placeholder) {
			return len(remaining[i].placeholder) > len(remaining[j].placeholder)
		}
		return remaining[i].placeholder < remaining[j].placeholder
	})

	for _, e := range remaining {
		if replacement, ok := r.replacementFor(e.placeholder, e.cached, placeholders, current); ok {
			body = strings.ReplaceAll(body, e.placeholder, replacement)
		}
	}

	if prefixes != "" {
		body = prefixes + "\n\n" + body
	}
	return body
}

func (r *Restorer) replacementFor(placeholder, cached string, placeholders map[string]string, current *nlquery.Values) (string, bool) {
	switch {
	case strings.HasPrefix(placeholder, "<<INJECT_"):
		return r.restoreInject(cached, placeholders, current), true
	case strings.HasPrefix(placeholder, "<<PCT_DECIMAL_"):
		return r.cyclicValue(placeholder, current.PercentagesDecimal, cached, "0.01"), true
	case strings.HasPrefix(placeholder, "<<PCT_"):
		return r.cyclicValue(placeholder, current.Percentages, cached, "1"), true
	case strings.HasPrefix(placeholder, "<<NUM_"):
		return r.cyclicValue(placeholder, current.Numbers, cached, "1"), true
	case strings.HasPrefix(placeholder, "<<STR_"):
		return r.restoreString(placeholder, cached, current), true
	case strings.HasPrefix(placeholder, "<<LIM_"):
		return r.cyclicValue(placeholder, current.Limits, cached, "10"), true
	case strings.HasPrefix(placeholder, "<<CUR_"):
		return r.restoreCurrency(placeholder, cached, current), true
	case strings.HasPrefix(placeholder, "<<URI_"):
		return cached, true
	}
	return "", false
}

// restoreInject resolves the placeholders nested in a cached INJECT
// expression before substituting the expression back whole. Nested
// placeholders are handled in type-then-index order so that their
// values land in the order they were extracted.
func (r *Restorer) restoreInject(injectTemplate string, placeholders map[string]string, current *nlquery.Values) string {
	nested := r.nested.FindAllString(injectTemplate, -1)
	sort.Slice(nested, func(i, j int) bool {
		ti, ni := r.nestedSortKey(nested[i])
		tj, nj := r.nestedSortKey(nested[j])
		if ti != tj {
			return ti < tj
		}
		return ni < nj
	})

	restored := injectTemplate
	for _, ph := range nested {
		if replacement, ok := r.replacementFor(ph, placeholders[ph], placeholders, current); ok && replacement != "" {
			restored = strings.ReplaceAll(restored, ph, replacement)
		}
	}
	return restored
}

func (r *Restorer) nestedSortKey(placeholder string) (string, int) {
	m := r.nestedKey.FindStringSubmatch(placeholder)
	if m == nil {
		return "", 0
	}
	n, _ := strconv.Atoi(m[2])
	return m[1], n
}

// cyclicValue indexes the current-value list with the placeholder's own
// index modulo the list length, so a template that expected more values
// than the current query supplied reuses them round-robin.
func (r *Restorer) cyclicValue(placeholder string, values []string, cached, fallback string) string {
	if len(values) == 0 {
		if cached != "" {
			return cached
		}
		return fallback
	}
	idx, ok := r.placeholderIndex(placeholder)
	if !ok {
		return values[0]
	}
	return values[idx%len(values)]
}

func (r *Restorer) placeholderIndex(placeholder string) (int, bool) {
	m := r.index.FindStringSubmatch(placeholder)
	if m == nil {
		return 0, false
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return idx, true
}

// restoreString swaps in a token symbol from the current query while
// keeping the quote character the cached literal used.
func (r *Restorer) restoreString(placeholder, cached string, current *nlquery.Values) string {
	quote := `"`
	if strings.HasPrefix(cached, "'") {
		quote = "'"
	}

	if len(current.Tokens) > 0 {
		if idx, ok := r.placeholderIndex(placeholder); ok {
			return quote + current.Tokens[idx%len(current.Tokens)] + quote
		}
	}
	if cached != "" {
		return cached
	}
	return `""`
}

func (r *Restorer) restoreCurrency(placeholder, cached string, current *nlquery.Values) string {
	if len(current.Currencies) > 0 {
		if idx, ok := r.placeholderIndex(placeholder); ok {
			uri := strings.Trim(current.Currencies[idx%len(current.Currencies)], "<>")
			return "<" + uri + ">"
		}
	}
	if cached != "" {
		return "<" + strings.Trim(cached, "<>") + ">"
	}
	if r.log != nil {
		r.log.Warn().Str("placeholder", placeholder).Msg("no currency available, using default")
	}
	return defaultCurrency
}

// restoreTemporal handles period, year and month placeholders, in that
// order: a period's cached text can itself contain a year substring.
func (r *Restorer) restoreTemporal(body string, placeholders map[string]string, current *nlquery.Values) string {
	for _, ph := range sortedKeysWithPrefix(placeholders, "<<PERIOD_") {
		if !strings.Contains(body, ph) {
			continue
		}
		body = strings.ReplaceAll(body, ph, r.remapPeriod(placeholders[ph], current))
	}

	for _, ph := range sortedKeysWithPrefix(placeholders, "<<YEAR_") {
		if !strings.Contains(body, ph) {
			continue
		}
		replacement := placeholders[ph]
		if len(current.Years) > 0 {
			if idx, ok := r.placeholderIndex(ph); ok {
				replacement = r.yearDigits.ReplaceAllString(replacement, current.Years[idx%len(current.Years)])
			}
		}
		body = strings.ReplaceAll(body, ph, replacement)
	}

	for _, ph := range sortedKeysWithPrefix(placeholders, "<<MONTH_") {
		if !strings.Contains(body, ph) {
			continue
		}
		replacement := placeholders[ph]
		if len(current.Months) > 0 {
			if idx, ok := r.placeholderIndex(ph); ok {
				replacement = r.monthToken.ReplaceAllString(replacement, current.Months[idx%len(current.Months)])
			}
		}
		body = strings.ReplaceAll(body, ph, replacement)
	}

	// One duration per query: any cached duration literal takes the
	// first duration extracted from the current question.
	if len(current.Durations) > 0 {
		body = r.duration.ReplaceAllString(body, `"`+current.Durations[0]+`"^^xsd:dayTimeDuration`)
	}

	return body
}

// remapPeriod rewrites a cached SUBSTR truncation when the current
// query asks for a different granularity. Only the three known
// offset/length pairs are interchangeable; anything else is restored
// verbatim.
func (r *Restorer) remapPeriod(cached string, current *nlquery.Values) string {
	if len(current.TemporalPeriods) == 0 || !strings.Contains(cached, "SUBSTR") {
		return cached
	}

	cachedPeriod := ""
	switch {
	case strings.Contains(cached, ", 1, 4)"):
		cachedPeriod = "year"
	case strings.Contains(cached, ", 1, 7)"):
		cachedPeriod = "month"
	case strings.Contains(cached, ", 9, 10)"):
		cachedPeriod = "day"
	}

	period := current.TemporalPeriods[0]
	if cachedPeriod == "" || period == cachedPeriod {
		return cached
	}

	offsets := map[string][2]int{
		"year":  {1, 4},
		"month": {1, 7},
		"day":   {9, 10},
	}
	bounds, ok := offsets[period]
	if !ok {
		return cached
	}
	return r.substrCall.ReplaceAllString(cached, fmt.Sprintf("SUBSTR(STR(?timestamp), %d, %d)", bounds[0], bounds[1]))
}

// restoreOrdering keeps the cached ORDER BY clause but swaps its sort
// direction for the one the current query implies, when it implies one.
func (r *Restorer) restoreOrdering(body string, placeholders map[string]string, current *nlquery.Values) string {
	for _, ph := range sortedKeysWithPrefix(placeholders, "<<ORDER_") {
		replacement := placeholders[ph]
		if len(current.Orderings) > 0 {
			if parts := strings.SplitN(current.Orderings[0], ":", 2); len(parts) == 2 {
				replacement = r.direction.ReplaceAllString(replacement, parts[1])
			}
		}
		body = strings.ReplaceAll(body, ph, replacement)
	}
	return body
}

func sortedKeysWithPrefix(m map[string]string, prefix string) []string {
	var keys []string
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
