package pattern

import (
	"os"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPattern(t *testing.T) {
	tests := []struct {
		name         string
		terms        []string
		wordBoundary bool
		match        []string
		noMatch      []string
	}{
		{
			name:         "word boundaries",
			terms:        []string{"pool", "block"},
			wordBoundary: true,
			match:        []string{"the pool here", "block"},
			noMatch:      []string{"pools", "blocker", "carpool"},
		},
		{
			name:         "no boundaries",
			terms:        []string{"pool"},
			wordBoundary: false,
			match:        []string{"pools", "carpool"},
		},
		{
			name:         "metacharacters escaped",
			terms:        []string{"a.b"},
			wordBoundary: true,
			match:        []string{"a.b"},
			noMatch:      []string{"axb"},
		},
		{
			name:         "empty list never matches",
			terms:        nil,
			wordBoundary: true,
			noMatch:      []string{"", "anything at all"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re, err := regexp.Compile(BuildPattern(tt.terms, tt.wordBoundary))
			require.NoError(t, err)
			for _, s := range tt.match {
				assert.True(t, re.MatchString(s), "expected match: %q", s)
			}
			for _, s := range tt.noMatch {
				assert.False(t, re.MatchString(s), "expected no match: %q", s)
			}
		})
	}
}

func TestBuildEntityPattern_PluralSuffix(t *testing.T) {
	re := regexp.MustCompile(BuildEntityPattern([]string{"pool"}, true))

	assert.True(t, re.MatchString("pool"))
	assert.True(t, re.MatchString("pools"))
	assert.False(t, re.MatchString("pooling"))
}

func TestLoadOntologyLabels(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/cardano.ttl"
	ttl := `
cnt:StakePool a owl:Class ;
    rdfs:label "Stake Pool" .

cnt:Block a owl:Class ;
    rdfs:label "Block" .
`
	require.NoError(t, os.WriteFile(path, []byte(ttl), 0o644))

	complexLabels, allLabels := loadOntologyLabels(path, nil)
	assert.Equal(t, []string{"stake pool"}, complexLabels)
	assert.Equal(t, []string{"stake pool", "block"}, allLabels)
}

func TestLoadOntologyLabels_MissingFile(t *testing.T) {
	complexLabels, allLabels := loadOntologyLabels("does/not/exist.ttl", nil)
	assert.Nil(t, complexLabels)
	assert.Nil(t, allLabels)
}

func TestPreservedExpressions_FallbackWithoutOntology(t *testing.T) {
	// The default ontology path does not exist relative to this package,
	// so the static expression list must back it up.
	assert.Equal(t, DefaultPreservedExpressions, PreservedExpressions())
	assert.Empty(t, Entities())
}
