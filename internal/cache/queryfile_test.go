package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryFile_SimplePair(t *testing.T) {
	content := `MESSAGE user how many blocks were minted in 2023
MESSAGE assistant SELECT (COUNT(?b) AS ?count) WHERE { ?b a cardano:Block }`

	pairs := ParseQueryFile(content)

	require.Len(t, pairs, 1)
	assert.Equal(t, "how many blocks were minted in 2023", pairs[0].NL)
	assert.Equal(t, "SELECT (COUNT(?b) AS ?count) WHERE { ?b a cardano:Block }", pairs[0].SPARQL)
}

func TestParseQueryFile_TripleQuotedBlock(t *testing.T) {
	content := `MESSAGE user what is the total stake
MESSAGE assistant """
SELECT (SUM(?stake) AS ?total)
WHERE { ?p cardano:hasStake ?stake }
"""
MESSAGE user how many pools are there
MESSAGE assistant SELECT (COUNT(?p) AS ?n) WHERE { ?p a cardano:Pool }`

	pairs := ParseQueryFile(content)

	require.Len(t, pairs, 2)
	assert.Equal(t, "what is the total stake", pairs[0].NL)
	assert.Equal(t, "SELECT (SUM(?stake) AS ?total)\nWHERE { ?p cardano:hasStake ?stake }", pairs[0].SPARQL)
	assert.Equal(t, "how many pools are there", pairs[1].NL)
}

func TestParseQueryFile_SequentialMarkers(t *testing.T) {
	content := `MESSAGE user top drep by voting power then their votes
MESSAGE assistant """
---query 1---
SELECT ?drep WHERE { ?drep cardano:hasVotingPower ?vp } ORDER BY DESC(?vp) LIMIT 1
---split---
---query 2---
SELECT ?vote WHERE { ?vote cardano:castBy ?drep }
"""`

	pairs := ParseQueryFile(content)

	require.Len(t, pairs, 1)
	assert.True(t, IsSequential(pairs[0].SPARQL))

	queries, err := ParseSequential(pairs[0].SPARQL)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Contains(t, queries[0].Query, "ORDER BY DESC(?vp)")
	assert.NotContains(t, queries[0].Query, "---split")
	assert.Contains(t, queries[1].Query, "cardano:castBy")
	assert.Empty(t, queries[0].InjectParams)
}

func TestParseQueryFile_EmptyAndMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
		count   int
	}{
		{"empty content", "", 0},
		{"user with no assistant", "MESSAGE user orphan question", 0},
		{"assistant with no user", "MESSAGE assistant SELECT ?s WHERE { ?s ?p ?o }", 0},
		{"blank lines between pairs", "MESSAGE user q1\n\nMESSAGE assistant SELECT ?a WHERE { ?a ?b ?c }\n\n", 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Len(t, ParseQueryFile(tc.content), tc.count)
		})
	}
}

func TestIsSequential(t *testing.T) {
	assert.True(t, IsSequential(`[{"query":"SELECT ?s WHERE { ?s ?p ?o }","inject_params":[]}]`))
	assert.False(t, IsSequential("SELECT ?s WHERE { ?s ?p ?o }"))
}
