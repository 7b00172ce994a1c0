package sparql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizer_PreservesPrefixes(t *testing.T) {
	normalizer := NewNormalizer(nil)

	query := "PREFIX cardano: <http://www.mobr.ai/ontologies/cardano#>\nSELECT ?s WHERE { ?s ?p ?o } LIMIT 10"
	normalized, placeholders := normalizer.Normalize(query)

	assert.True(t, strings.HasPrefix(normalized, "PREFIX cardano:"))
	assert.Contains(t, normalized, "LIMIT <<LIM_0>>")
	assert.Equal(t, "10", placeholders["<<LIM_0>>"])
}

func TestNormalizer_LimitAndOffset(t *testing.T) {
	normalizer := NewNormalizer(nil)

	normalized, placeholders := normalizer.Normalize("SELECT ?s WHERE { ?s ?p ?o } LIMIT 25 OFFSET 50")

	assert.Contains(t, normalized, "LIMIT <<LIM_0>>")
	assert.Contains(t, normalized, "OFFSET <<LIM_1>>")
	assert.Equal(t, "25", placeholders["<<LIM_0>>"])
	assert.Equal(t, "50", placeholders["<<LIM_1>>"])
}

func TestNormalizer_StringLiterals(t *testing.T) {
	normalizer := NewNormalizer(nil)

	tests := []struct {
		name   string
		query  string
		cached string
	}{
		{"double quoted", `SELECT ?s WHERE { ?s rdfs:label "SNEK" }`, `"SNEK"`},
		{"single quoted", `SELECT ?s WHERE { ?s rdfs:label 'HOSKY' }`, `'HOSKY'`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			normalized, placeholders := normalizer.Normalize(tc.query)

			assert.Contains(t, normalized, "<<STR_0>>")
			assert.NotContains(t, normalized, tc.cached)
			assert.Equal(t, tc.cached, placeholders["<<STR_0>>"])
		})
	}
}

func TestNormalizer_Numbers(t *testing.T) {
	normalizer := NewNormalizer(nil)

	t.Run("plain number", func(t *testing.T) {
		normalized, placeholders := normalizer.Normalize("SELECT ?tx WHERE { ?tx cardano:hasOutputSum ?amount . FILTER(?amount > 1000000) }")

		assert.Contains(t, normalized, "<<NUM_0>>")
		assert.Equal(t, "1000000", placeholders["<<NUM_0>>"])
	})

	t.Run("formatted number stored without separators", func(t *testing.T) {
		normalized, placeholders := normalizer.Normalize("SELECT ?tx WHERE { ?tx cardano:hasOutputSum ?amount . FILTER(?amount > 1,500,000) }")

		assert.Contains(t, normalized, "<<NUM_0>>")
		assert.Equal(t, "1500000", placeholders["<<NUM_0>>"])
	})

	t.Run("schema numbers stay structural", func(t *testing.T) {
		query := "SELECT ?v WHERE { ?s ?p ?v . FILTER(datatype(?v) = <http://www.w3.org/2001/XMLSchema#integer>) }"
		normalized, placeholders := normalizer.Normalize(query)

		assert.Equal(t, query, normalized)
		assert.Empty(t, placeholders)
	})

	t.Run("substr offsets stay structural", func(t *testing.T) {
		query := "SELECT ?y WHERE { ?b cardano:hasSlot ?slot . BIND(SUBSTR(?slot, 2) AS ?y) }"
		_, placeholders := normalizer.Normalize(query)

		for ph := range placeholders {
			assert.False(t, strings.HasPrefix(ph, "<<NUM_"), "unexpected number placeholder %s", ph)
		}
	})
}

func TestNormalizer_CurrencyURI(t *testing.T) {
	normalizer := NewNormalizer(nil)

	query := "SELECT ?amt WHERE { ?tx cardano:hasCurrency <http://www.mobr.ai/ontologies/cardano#cnt/ada> . ?tx cardano:hasAmount ?amt }"
	normalized, placeholders := normalizer.Normalize(query)

	assert.Contains(t, normalized, "<<CUR_0>>")
	assert.Equal(t, "<http://www.mobr.ai/ontologies/cardano#cnt/ada>", placeholders["<<CUR_0>>"])
}

func TestNormalizer_CompactURI(t *testing.T) {
	normalizer := NewNormalizer(nil)

	normalized, placeholders := normalizer.Normalize("SELECT ?o WHERE { cardano:addr1q9f8xkp3 cardano:hasOutput ?o }")

	assert.Contains(t, normalized, "<<URI_0>>")
	assert.Equal(t, "cardano:addr1q9f8xkp3", placeholders["<<URI_0>>"])
}

func TestNormalizer_TemporalPatterns(t *testing.T) {
	normalizer := NewNormalizer(nil)

	t.Run("year literal", func(t *testing.T) {
		query := `SELECT ?b WHERE { ?b cardano:hasTimestamp ?ts . FILTER(?ts >= "2023-01-01T00:00:00Z"^^xsd:dateTime) }`
		normalized, placeholders := normalizer.Normalize(query)

		assert.Contains(t, normalized, "<<YEAR_0>>")
		assert.Equal(t, `"2023-01-01T00:00:00Z"^^xsd:dateTime`, placeholders["<<YEAR_0>>"])
	})

	t.Run("period truncation claimed before year scan", func(t *testing.T) {
		query := "SELECT ?period WHERE { ?b cardano:hasTimestamp ?timestamp . BIND(SUBSTR(STR(?timestamp), 1, 4) AS ?period) }"
		normalized, placeholders := normalizer.Normalize(query)

		assert.Contains(t, normalized, "<<PERIOD_YEAR_0>>")
		assert.Equal(t, "SUBSTR(STR(?timestamp), 1, 4)", placeholders["<<PERIOD_YEAR_0>>"])
		for ph := range placeholders {
			assert.False(t, strings.HasPrefix(ph, "<<YEAR_"), "period body misread as year literal: %s", ph)
		}
	})

	t.Run("month truncation", func(t *testing.T) {
		query := "SELECT ?period WHERE { BIND(SUBSTR(STR(?timestamp), 1, 7) AS ?period) }"
		_, placeholders := normalizer.Normalize(query)

		assert.Equal(t, "SUBSTR(STR(?timestamp), 1, 7)", placeholders["<<PERIOD_MONTH_0>>"])
	})

	t.Run("epoch binding", func(t *testing.T) {
		query := "SELECT ?timePeriod WHERE { ?e cardano:hasEpochNo ?epochNo . BIND(?epochNo AS ?timePeriod) } GROUP BY ?timePeriod"
		normalized, placeholders := normalizer.Normalize(query)

		assert.Contains(t, normalized, "<<PERIOD_EPOCH_0>>")
		assert.Contains(t, normalized, "<<PERIOD_GROUP_1>>")
		assert.Equal(t, "BIND(?epochNo AS ?timePeriod)", placeholders["<<PERIOD_EPOCH_0>>"])
	})
}

func TestNormalizer_OrderBy(t *testing.T) {
	normalizer := NewNormalizer(nil)

	tests := []struct {
		name   string
		query  string
		cached string
	}{
		{"wrapped desc", "SELECT ?a WHERE { ?t cardano:hasAmount ?a } ORDER BY DESC(?a)", "ORDER BY DESC(?a)"},
		{"bare variable", "SELECT ?a WHERE { ?t cardano:hasAmount ?a } ORDER BY ?a", "ORDER BY ?a"},
		{"trailing direction", "SELECT ?a WHERE { ?t cardano:hasAmount ?a } ORDER BY ?a DESC", "ORDER BY ?a DESC"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			normalized, placeholders := normalizer.Normalize(tc.query)

			assert.Contains(t, normalized, "<<ORDER_0>>")
			assert.Equal(t, tc.cached, placeholders["<<ORDER_0>>"])
		})
	}
}

func TestNormalizer_Percentages(t *testing.T) {
	normalizer := NewNormalizer(nil)

	normalized, placeholders := normalizer.Normalize("SELECT ?p WHERE { ?p cardano:hasSaturation ?s . FILTER(?s > 0.85) }")

	assert.Contains(t, normalized, "<<PCT_0>>")
	assert.Equal(t, "0.85", placeholders["<<PCT_0>>"])
}

func TestNormalizer_InjectStatements(t *testing.T) {
	normalizer := NewNormalizer(nil)

	t.Run("decimal threshold nested", func(t *testing.T) {
		query := "SELECT ?p WHERE { INJECT(threshold(?stake), 0.51) }"
		normalized, placeholders := normalizer.Normalize(query)

		assert.Contains(t, normalized, "<<INJECT_0>>")
		require.Contains(t, placeholders, "<<INJECT_0>>")
		assert.Contains(t, placeholders["<<INJECT_0>>"], "<<PCT_DECIMAL_0>>")
		assert.Equal(t, "0.51", placeholders["<<PCT_DECIMAL_0>>"])
	})

	t.Run("balanced parens spanning nested calls", func(t *testing.T) {
		query := "SELECT ?p WHERE { INJECT_FROM_PREVIOUS(MAX(SUM(?a), ?b)) }"
		normalized, placeholders := normalizer.Normalize(query)

		assert.Contains(t, normalized, "<<INJECT_0>>")
		assert.Equal(t, "INJECT_FROM_PREVIOUS(MAX(SUM(?a), ?b))", placeholders["<<INJECT_0>>"])
	})
}

func TestNormalizer_SharedCounters(t *testing.T) {
	normalizer := NewNormalizer(nil)
	counters := &Counters{}

	_, first := normalizer.NormalizeWithCounters("SELECT ?s WHERE { ?s ?p ?o } LIMIT 10", counters)
	_, second := normalizer.NormalizeWithCounters("SELECT ?s WHERE { ?s ?p ?o } LIMIT 20", counters)

	assert.Equal(t, "10", first["<<LIM_0>>"])
	assert.Equal(t, "20", second["<<LIM_1>>"])
	assert.Equal(t, 2, counters.Lim)
}

func TestCounters_UpdateFromPlaceholder(t *testing.T) {
	tests := []struct {
		name        string
		placeholder string
		check       func(t *testing.T, c *Counters)
	}{
		{"num advances past index", "<<NUM_3>>", func(t *testing.T, c *Counters) { assert.Equal(t, 4, c.Num) }},
		{"pct decimal shares pct counter", "<<PCT_DECIMAL_1>>", func(t *testing.T, c *Counters) { assert.Equal(t, 2, c.Pct) }},
		{"inject", "<<INJECT_0>>", func(t *testing.T, c *Counters) { assert.Equal(t, 1, c.Inject) }},
		{"malformed index ignored", "<<NUM_x>>", func(t *testing.T, c *Counters) { assert.Equal(t, 0, c.Num) }},
		{"unknown type ignored", "<<PERIOD_YEAR_0>>", func(t *testing.T, c *Counters) { assert.Equal(t, 0, c.Period) }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := &Counters{}
			c.UpdateFromPlaceholder(tc.placeholder)
			tc.check(t, c)
		})
	}
}

func TestCounters_UpdateNeverRegresses(t *testing.T) {
	c := &Counters{Num: 5}
	c.UpdateFromPlaceholder("<<NUM_2>>")
	assert.Equal(t, 5, c.Num)
}
