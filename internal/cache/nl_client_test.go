package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *NLClient {
	t.Helper()
	return NewNLClient(NewMemoryClient(0), time.Hour, nil)
}

func TestNLClient_StoreAndLookup(t *testing.T) {
	nl := newTestClient(t)
	ctx := context.Background()

	err := nl.Store(ctx, "show top 5 pools", "SELECT ?p WHERE { ?p a cardano:Pool } ORDER BY DESC(?stake) LIMIT 5", StoreOptions{})
	require.NoError(t, err)

	result, err := nl.Lookup(ctx, "show top 5 pools")
	require.NoError(t, err)

	assert.Equal(t, "show top 5 pools", result.OriginalQuery)
	assert.NotEmpty(t, result.ID)
	assert.False(t, result.IsSequential)
	assert.Contains(t, result.RestoredQuery, "LIMIT 5")
	assert.Contains(t, result.RestoredQuery, "ORDER BY DESC(?stake)")
}

func TestNLClient_LookupAdaptsValues(t *testing.T) {
	nl := newTestClient(t)
	ctx := context.Background()

	err := nl.Store(ctx, "show top 5 pools", "SELECT ?p WHERE { ?p a cardano:Pool } ORDER BY DESC(?stake) LIMIT 5", StoreOptions{})
	require.NoError(t, err)

	// Same shape of question, different limit: one cache entry serves both.
	result, err := nl.Lookup(ctx, "show top 3 pools")
	require.NoError(t, err)

	assert.Contains(t, result.RestoredQuery, "LIMIT 3")
	assert.Equal(t, []string{"3"}, result.Values.Limits)
}

func TestNLClient_LookupMiss(t *testing.T) {
	nl := newTestClient(t)

	_, err := nl.Lookup(context.Background(), "how many blocks were minted yesterday")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestNLClient_IncompleteRestorationIsAMiss(t *testing.T) {
	mem := NewMemoryClient(0)
	nl := NewNLClient(mem, time.Hour, nil)
	ctx := context.Background()

	// An entry whose template references a placeholder its map never
	// defined cannot be restored and must surface as a miss.
	question := "how many pools are there"
	entry := Entry{
		ID:              "broken",
		NormalizedQuery: nl.NormalizeKey(question),
		SPARQLQuery:     "SELECT ?p WHERE { ?p a cardano:Pool } LIMIT <<LIM_7>>",
		PlaceholderMap:  map[string]string{},
	}
	payload, err := json.Marshal(entry)
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, cacheKeyPrefix+entry.NormalizedQuery, payload, time.Hour))

	_, err = nl.Lookup(ctx, question)
	assert.ErrorIs(t, err, ErrRestoreIncomplete)
}

func TestNLClient_SequentialEntrySharesCounters(t *testing.T) {
	nl := newTestClient(t)
	ctx := context.Background()

	sequential := `[{"query":"SELECT ?drep WHERE { ?drep cardano:hasVotingPower ?vp } LIMIT 1","inject_params":[]},{"query":"SELECT ?vote WHERE { ?vote cardano:castBy ?drep } LIMIT 20","inject_params":[]}]`
	err := nl.Store(ctx, "top drep then their votes", sequential, StoreOptions{})
	require.NoError(t, err)

	result, err := nl.Lookup(ctx, "top drep then their votes")
	require.NoError(t, err)
	require.True(t, result.IsSequential)

	// Both LIMIT arguments must have distinct placeholder names.
	assert.Contains(t, result.PlaceholderMap, "<<LIM_0>>")
	assert.Contains(t, result.PlaceholderMap, "<<LIM_1>>")

	queries, err := ParseSequential(result.RestoredQuery)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Contains(t, queries[0].Query, "LIMIT 1")
	assert.Contains(t, queries[1].Query, "LIMIT 20")
}

func TestNLClient_QueryCount(t *testing.T) {
	nl := newTestClient(t)
	ctx := context.Background()

	count, err := nl.QueryCount(ctx, "how many pools are there")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	require.NoError(t, nl.Store(ctx, "how many pools are there", "SELECT (COUNT(?p) AS ?n) WHERE { ?p a cardano:Pool }", StoreOptions{}))
	_, err = nl.Lookup(ctx, "how many pools are there")
	require.NoError(t, err)

	count, err = nl.QueryCount(ctx, "how many pools are there")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "one bump from store, one from lookup")
}

func TestNLClient_PopularQueries(t *testing.T) {
	nl := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, nl.Store(ctx, "how many pools are there", "SELECT (COUNT(?p) AS ?n) WHERE { ?p a cardano:Pool }", StoreOptions{}))
	require.NoError(t, nl.Store(ctx, "how many blocks are there", "SELECT (COUNT(?b) AS ?n) WHERE { ?b a cardano:Block }", StoreOptions{}))

	for i := 0; i < 3; i++ {
		_, err := nl.Lookup(ctx, "how many blocks are there")
		require.NoError(t, err)
	}

	popular, err := nl.PopularQueries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, popular, 2)
	assert.Equal(t, nl.NormalizeKey("how many blocks are there"), popular[0].Query)
	assert.Equal(t, int64(4), popular[0].Count)
	assert.Greater(t, popular[0].Count, popular[1].Count)
}

func TestNLClient_Precache(t *testing.T) {
	nl := newTestClient(t)
	ctx := context.Background()

	content := `MESSAGE user how many pools are there
MESSAGE assistant SELECT (COUNT(?p) AS ?n) WHERE { ?p a cardano:Pool }
MESSAGE user how many blocks are there
MESSAGE assistant SELECT (COUNT(?b) AS ?n) WHERE { ?b a cardano:Block }`

	stats := nl.Precache(ctx, content, time.Hour)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Cached)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, stats.Total, stats.Cached+stats.Failed+stats.Skipped)

	// Second run: everything is a duplicate.
	stats = nl.Precache(ctx, content, time.Hour)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 0, stats.Cached)
	assert.Equal(t, 2, stats.Skipped)

	// Precached entries start with a zero hit count.
	count, err := nl.QueryCount(ctx, "how many pools are there")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestNLClient_ClearAndInfo(t *testing.T) {
	nl := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, nl.Store(ctx, "how many pools are there", "SELECT (COUNT(?p) AS ?n) WHERE { ?p a cardano:Pool }", StoreOptions{}))
	require.NoError(t, nl.Store(ctx, "how many blocks are there", "SELECT (COUNT(?b) AS ?n) WHERE { ?b a cardano:Block }", StoreOptions{Precached: true}))

	info, err := nl.CacheInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Entries)
	assert.Equal(t, 1, info.Precached)
	assert.Equal(t, int64(1), info.TotalHits)

	require.NoError(t, nl.Clear(ctx))

	info, err = nl.CacheInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, info.Entries)
	assert.Equal(t, int64(0), info.TotalHits)

	_, err = nl.Lookup(ctx, "how many pools are there")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestNLClient_HealthCheck(t *testing.T) {
	nl := newTestClient(t)
	assert.NoError(t, nl.HealthCheck(context.Background()))
}
