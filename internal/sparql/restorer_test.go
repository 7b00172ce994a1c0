package sparql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mobr-ai/capcache/internal/nlquery"
)

func TestRestorer_LimitValues(t *testing.T) {
	restorer := NewRestorer(nil)
	template := "SELECT ?s WHERE { ?s ?p ?o } LIMIT <<LIM_0>>"
	placeholders := map[string]string{"<<LIM_0>>": "10"}

	tests := []struct {
		name     string
		values   *nlquery.Values
		expected string
	}{
		{"current value wins", &nlquery.Values{Limits: []string{"5"}}, "SELECT ?s WHERE { ?s ?p ?o } LIMIT 5"},
		{"cached value fallback", &nlquery.Values{}, "SELECT ?s WHERE { ?s ?p ?o } LIMIT 10"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, restorer.Restore(template, placeholders, tc.values))
		})
	}
}

func TestRestorer_DefaultsWhenCacheEmpty(t *testing.T) {
	restorer := NewRestorer(nil)

	tests := []struct {
		name        string
		placeholder string
		expected    string
	}{
		{"limit default", "<<LIM_0>>", "10"},
		{"percentage default", "<<PCT_0>>", "1"},
		{"percentage decimal default", "<<PCT_DECIMAL_0>>", "0.01"},
		{"number default", "<<NUM_0>>", "1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			restored := restorer.Restore(tc.placeholder, map[string]string{tc.placeholder: ""}, &nlquery.Values{})
			assert.Equal(t, tc.expected, restored)
		})
	}
}

func TestRestorer_CyclicIndexing(t *testing.T) {
	restorer := NewRestorer(nil)
	template := "FILTER(?a > <<NUM_0>> && ?b > <<NUM_1>> && ?c > <<NUM_2>>)"
	placeholders := map[string]string{"<<NUM_0>>": "100", "<<NUM_1>>": "200", "<<NUM_2>>": "300"}

	restored := restorer.Restore(template, placeholders, &nlquery.Values{Numbers: []string{"7", "8"}})

	assert.Equal(t, "FILTER(?a > 7 && ?b > 8 && ?c > 7)", restored)
}

func TestRestorer_Currency(t *testing.T) {
	restorer := NewRestorer(nil)
	template := "?tx cardano:hasCurrency <<CUR_0>>"

	t.Run("current currency rewrapped", func(t *testing.T) {
		values := &nlquery.Values{Currencies: []string{"https://mobr.ai/ont/cardano#cnt/snek"}}
		restored := restorer.Restore(template, map[string]string{"<<CUR_0>>": ""}, values)
		assert.Equal(t, "?tx cardano:hasCurrency <https://mobr.ai/ont/cardano#cnt/snek>", restored)
	})

	t.Run("cached currency rewrapped", func(t *testing.T) {
		placeholders := map[string]string{"<<CUR_0>>": "<http://www.mobr.ai/ontologies/cardano#cnt/ada>"}
		restored := restorer.Restore(template, placeholders, &nlquery.Values{})
		assert.Equal(t, "?tx cardano:hasCurrency <http://www.mobr.ai/ontologies/cardano#cnt/ada>", restored)
	})

	t.Run("default when nothing available", func(t *testing.T) {
		restored := restorer.Restore(template, map[string]string{"<<CUR_0>>": ""}, &nlquery.Values{})
		assert.Equal(t, "?tx cardano:hasCurrency "+defaultCurrency, restored)
	})
}

func TestRestorer_StringQuoteStyle(t *testing.T) {
	restorer := NewRestorer(nil)

	tests := []struct {
		name     string
		cached   string
		tokens   []string
		expected string
	}{
		{"single quotes kept", "'SNEK'", []string{"HOSKY"}, "'HOSKY'"},
		{"double quotes kept", `"SNEK"`, []string{"HOSKY"}, `"HOSKY"`},
		{"cached kept without tokens", `"SNEK"`, nil, `"SNEK"`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			restored := restorer.Restore("?s rdfs:label <<STR_0>>", map[string]string{"<<STR_0>>": tc.cached}, &nlquery.Values{Tokens: tc.tokens})
			assert.Equal(t, "?s rdfs:label "+tc.expected, restored)
		})
	}
}

func TestRestorer_URIRestoredVerbatim(t *testing.T) {
	restorer := NewRestorer(nil)

	restored := restorer.Restore(
		"SELECT ?o WHERE { <<URI_0>> cardano:hasOutput ?o }",
		map[string]string{"<<URI_0>>": "cardano:addr1q9f8xkp3"},
		&nlquery.Values{},
	)

	assert.Equal(t, "SELECT ?o WHERE { cardano:addr1q9f8xkp3 cardano:hasOutput ?o }", restored)
}

func TestRestorer_OrderingDirectionSwap(t *testing.T) {
	restorer := NewRestorer(nil)
	placeholders := map[string]string{"<<ORDER_0>>": "ORDER BY DESC(?amount)"}

	t.Run("direction follows current query", func(t *testing.T) {
		restored := restorer.Restore("SELECT ?amount WHERE { ?t cardano:hasAmount ?amount } <<ORDER_0>>", placeholders, &nlquery.Values{Orderings: []string{"ordering:ASC"}})
		assert.Contains(t, restored, "ORDER BY ASC(?amount)")
	})

	t.Run("cached direction kept otherwise", func(t *testing.T) {
		restored := restorer.Restore("SELECT ?amount WHERE { ?t cardano:hasAmount ?amount } <<ORDER_0>>", placeholders, &nlquery.Values{})
		assert.Contains(t, restored, "ORDER BY DESC(?amount)")
	})
}

func TestRestorer_PeriodGranularityRemap(t *testing.T) {
	restorer := NewRestorer(nil)
	template := "BIND(<<PERIOD_YEAR_0>> AS ?period)"
	placeholders := map[string]string{"<<PERIOD_YEAR_0>>": "SUBSTR(STR(?timestamp), 1, 4)"}

	tests := []struct {
		name     string
		period   string
		expected string
	}{
		{"year to month", "month", "BIND(SUBSTR(STR(?timestamp), 1, 7) AS ?period)"},
		{"year to day", "day", "BIND(SUBSTR(STR(?timestamp), 9, 10) AS ?period)"},
		{"same granularity untouched", "year", "BIND(SUBSTR(STR(?timestamp), 1, 4) AS ?period)"},
		{"unknown granularity untouched", "week", "BIND(SUBSTR(STR(?timestamp), 1, 4) AS ?period)"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			restored := restorer.Restore(template, placeholders, &nlquery.Values{TemporalPeriods: []string{tc.period}})
			assert.Equal(t, tc.expected, restored)
		})
	}
}

func TestRestorer_YearSubstitution(t *testing.T) {
	restorer := NewRestorer(nil)
	template := "FILTER(?ts >= <<YEAR_0>>)"
	placeholders := map[string]string{"<<YEAR_0>>": `"2023-01-01T00:00:00Z"^^xsd:dateTime`}

	restored := restorer.Restore(template, placeholders, &nlquery.Values{Years: []string{"2024"}})

	assert.Equal(t, `FILTER(?ts >= "2024-01-01T00:00:00Z"^^xsd:dateTime)`, restored)
}

func TestRestorer_DurationSwap(t *testing.T) {
	restorer := NewRestorer(nil)
	template := `FILTER(?ts >= NOW() - "P30D"^^xsd:dayTimeDuration)`

	restored := restorer.Restore(template, map[string]string{}, &nlquery.Values{Durations: []string{"P7D"}})

	assert.Equal(t, `FILTER(?ts >= NOW() - "P7D"^^xsd:dayTimeDuration)`, restored)
}

func TestRestorer_InjectNestedValues(t *testing.T) {
	restorer := NewRestorer(nil)
	placeholders := map[string]string{
		"<<INJECT_0>>":      "INJECT(threshold(?stake), <<PCT_DECIMAL_0>>)",
		"<<PCT_DECIMAL_0>>": "0.51",
	}

	restored := restorer.Restore("SELECT ?p WHERE { <<INJECT_0>> }", placeholders, &nlquery.Values{PercentagesDecimal: []string{"0.67"}})

	assert.Equal(t, "SELECT ?p WHERE { INJECT(threshold(?stake), 0.67) }", restored)
}

func TestRestorer_PrefixesReattached(t *testing.T) {
	restorer := NewRestorer(nil)
	template := "PREFIX cardano: <http://www.mobr.ai/ontologies/cardano#>\n\nSELECT ?s WHERE { ?s ?p ?o } LIMIT <<LIM_0>>"

	restored := restorer.Restore(template, map[string]string{"<<LIM_0>>": "10"}, &nlquery.Values{})

	assert.Equal(t, "PREFIX cardano: <http://www.mobr.ai/ontologies/cardano#>\n\nSELECT ?s WHERE { ?s ?p ?o } LIMIT 10", restored)
}

func TestNormalizeRestoreRoundTrip(t *testing.T) {
	normalizer := NewNormalizer(nil)
	restorer := NewRestorer(nil)

	query := `SELECT ?tx WHERE { ?tx rdfs:label "SNEK" . FILTER(?amount > 1000000) } ORDER BY DESC(?amount) LIMIT 10`
	normalized, placeholders := normalizer.Normalize(query)

	assert.NotEqual(t, query, normalized)
	assert.Equal(t, query, restorer.Restore(normalized, placeholders, &nlquery.Values{}))
}
