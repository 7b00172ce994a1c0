package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mobr-ai/capcache/internal/nlquery"
	"github.com/mobr-ai/capcache/internal/observability"
	"github.com/mobr-ai/capcache/internal/sparql"
)

// ErrRestoreIncomplete indicates a cached template could not be fully
// restored for the current query. Callers treat it as a cache miss.
var ErrRestoreIncomplete = errors.New("restored query contains unresolved placeholders")

// ErrAlreadyCached indicates a store was skipped because the normalized
// key already exists.
var ErrAlreadyCached = errors.New("query already cached")

const (
	cacheKeyPrefix = "cache:"
	countKeyPrefix = "count:"
)

var unresolvedPlaceholder = regexp.MustCompile(`<<[A-Z]+(?:_[A-Z]+)*_\d+>>`)

// Entry is the JSON payload stored per normalized query.
type Entry struct {
	ID              string            `json:"id"`
	OriginalQuery   string            `json:"original_query"`
	NormalizedQuery string            `json:"normalized_query"`
	SPARQLQuery     string            `json:"sparql_query"`
	PlaceholderMap  map[string]string `json:"placeholder_map"`
	IsSequential    bool              `json:"is_sequential"`
	Precached       bool              `json:"precached"`
	CachedAt        time.Time         `json:"cached_at"`
}

// Result is a cache hit restored for the current query.
type Result struct {
	Entry
	RestoredQuery string
	Values        *nlquery.Values
}

// StoreOptions controls a Store call.
type StoreOptions struct {
	TTL          time.Duration // zero means the client default
	Precached    bool          // stored without execution results
	SkipExisting bool          // return ErrAlreadyCached instead of overwriting
}

// PrecacheStats summarizes one precache run.
// Total = Cached + Failed + Skipped.
type PrecacheStats struct {
	Total   int      `json:"total_queries"`
	Cached  int      `json:"cached_successfully"`
	Failed  int      `json:"failed"`
	Skipped int      `json:"skipped_duplicates"`
	Errors  []string `json:"errors,omitempty"`
}

// Info describes the current cache contents.
type Info struct {
	Entries   int   `json:"entries"`
	Precached int   `json:"precached"`
	TotalHits int64 `json:"total_hits"`
}

// PopularQuery is one entry of the hit-count ranking.
type PopularQuery struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// NLClient is the natural-language query cache. Keys are normalized
// question text; values are SPARQL templates with typed placeholders
// that get re-filled from each incoming question on lookup.
type NLClient struct {
	client     Client
	normalizer *nlquery.Normalizer
	extractor  *nlquery.Extractor
	sparqlNorm *sparql.Normalizer
	restorer   *sparql.Restorer
	ttl        time.Duration
	log        *observability.Logger
}

// NewNLClient builds an NL cache on top of a key-value client.
// log may be nil.
func NewNLClient(client Client, ttl time.Duration, log *observability.Logger) *NLClient {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &NLClient{
		client:     client,
		normalizer: nlquery.NewNormalizer(log),
		extractor:  nlquery.NewExtractor(log),
		sparqlNorm: sparql.NewNormalizer(log),
		restorer:   sparql.NewRestorer(log),
		ttl:        ttl,
		log:        log,
	}
}

// NormalizeKey exposes the cache-key normalization applied to incoming
// questions.
func (c *NLClient) NormalizeKey(nlQuery string) string {
	return c.normalizer.Normalize(nlQuery)
}

// Store normalizes both sides of a NL→SPARQL pair and caches the
// resulting template under the normalized question.
func (c *NLClient) Store(ctx context.Context, nlQuery, sparqlQuery string, opts StoreOptions) error {
	normalized := c.normalizer.Normalize(nlQuery)

	if opts.SkipExisting {
		exists, err := c.client.Exists(ctx, cacheKeyPrefix+normalized)
		if err != nil {
			return fmt.Errorf("check existing entry: %w", err)
		}
		if exists {
			return ErrAlreadyCached
		}
	}

	entry := Entry{
		ID:              uuid.NewString(),
		OriginalQuery:   nlQuery,
		NormalizedQuery: normalized,
		Precached:       opts.Precached,
		CachedAt:        time.Now().UTC(),
	}

	if IsSequential(sparqlQuery) {
		queries, err := ParseSequential(sparqlQuery)
		if err != nil {
			return fmt.Errorf("parse sequential queries: %w", err)
		}
		// One counter object across the whole batch keeps placeholder
		// names unique across queries that share this placeholder map.
		counters := &sparql.Counters{}
		merged := make(map[string]string)
		for i := range queries {
			normalizedQuery, placeholders := c.sparqlNorm.NormalizeWithCounters(queries[i].Query, counters)
			queries[i].Query = normalizedQuery
			for ph, val := range placeholders {
				merged[ph] = val
			}
		}
		encoded, err := json.Marshal(queries)
		if err != nil {
			return fmt.Errorf("encode sequential queries: %w", err)
		}
		entry.SPARQLQuery = string(encoded)
		entry.PlaceholderMap = merged
		entry.IsSequential = true
	} else {
		normalizedQuery, placeholders := c.sparqlNorm.Normalize(sparqlQuery)
		entry.SPARQLQuery = normalizedQuery
		entry.PlaceholderMap = placeholders
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+normalized, payload, ttl); err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}

	countKey := countKeyPrefix + normalized
	if opts.Precached {
		if err := c.client.Set(ctx, countKey, []byte("0"), ttl); err != nil {
			return fmt.Errorf("init count key: %w", err)
		}
	} else {
		if _, err := c.client.Incr(ctx, countKey); err != nil {
			return fmt.Errorf("increment count key: %w", err)
		}
		if err := c.client.Expire(ctx, countKey, ttl); err != nil {
			return fmt.Errorf("expire count key: %w", err)
		}
	}

	if c.log != nil {
		c.log.Debug().
			Str("normalized", normalized).
			Bool("sequential", entry.IsSequential).
			Bool("precached", entry.Precached).
			Msg("stored query template")
	}
	return nil
}

// Lookup normalizes the incoming question, fetches the matching
// template (exact key first, semantic-variant key second) and restores
// it with the values extracted from the raw question. A template that
// cannot be fully restored is reported as ErrRestoreIncomplete, never
// returned as a broken query.
func (c *NLClient) Lookup(ctx context.Context, nlQuery string) (*Result, error) {
	normalized := c.normalizer.Normalize(nlQuery)

	payload, err := c.client.Get(ctx, cacheKeyPrefix+normalized)
	if errors.Is(err, ErrCacheMiss) {
		variant := c.normalizer.SemanticVariant(normalized)
		if variant == normalized {
			return nil, ErrCacheMiss
		}
		payload, err = c.client.Get(ctx, cacheKeyPrefix+variant)
	}
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}

	values := c.extractor.Extract(nlQuery)

	var restored string
	if entry.IsSequential {
		queries, err := ParseSequential(entry.SPARQLQuery)
		if err != nil {
			return nil, fmt.Errorf("decode sequential entry: %w", err)
		}
		for i := range queries {
			queries[i].Query = c.restorer.Restore(queries[i].Query, entry.PlaceholderMap, values)
			if c.incomplete(nlQuery, queries[i].Query, &entry) {
				return nil, ErrRestoreIncomplete
			}
		}
		encoded, err := json.Marshal(queries)
		if err != nil {
			return nil, fmt.Errorf("encode restored queries: %w", err)
		}
		restored = string(encoded)
	} else {
		restored = c.restorer.Restore(entry.SPARQLQuery, entry.PlaceholderMap, values)
		if c.incomplete(nlQuery, restored, &entry) {
			return nil, ErrRestoreIncomplete
		}
	}

	if _, err := c.client.Incr(ctx, countKeyPrefix+entry.NormalizedQuery); err != nil && c.log != nil {
		c.log.Warn().Err(err).Msg("failed to bump hit counter")
	}

	return &Result{Entry: entry, RestoredQuery: restored, Values: values}, nil
}

func (c *NLClient) incomplete(nlQuery, restored string, entry *Entry) bool {
	residue := unresolvedPlaceholder.FindAllString(restored, -1)
	if len(residue) == 0 {
		return false
	}
	if c.log != nil {
		c.log.Warn().
			Str("query", nlQuery).
			Str("normalized", entry.NormalizedQuery).
			Strs("residue", residue).
			Msg("restoration left unresolved placeholders, treating as miss")
	}
	return true
}

// QueryCount returns how many times a question has been asked.
func (c *NLClient) QueryCount(ctx context.Context, nlQuery string) (int64, error) {
	normalized := c.normalizer.Normalize(nlQuery)
	payload, err := c.client.Get(ctx, countKeyPrefix+normalized)
	if errors.Is(err, ErrCacheMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	count, err := strconv.ParseInt(string(payload), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse count for %q: %w", normalized, err)
	}
	return count, nil
}

// PopularQueries returns the most-asked normalized questions, highest
// count first.
func (c *NLClient) PopularQueries(ctx context.Context, limit int) ([]PopularQuery, error) {
	if limit <= 0 {
		limit = 10
	}

	keys, err := c.client.KeysByPrefix(ctx, countKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list count keys: %w", err)
	}

	var ranked []PopularQuery
	for _, key := range keys {
		payload, err := c.client.Get(ctx, key)
		if err != nil {
			continue
		}
		count, err := strconv.ParseInt(string(payload), 10, 64)
		if err != nil {
			continue
		}
		ranked = append(ranked, PopularQuery{
			Query: key[len(countKeyPrefix):],
			Count: count,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Query < ranked[j].Query
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// Clear removes every cache entry and hit counter.
func (c *NLClient) Clear(ctx context.Context) error {
	if err := c.client.DeleteByPrefix(ctx, cacheKeyPrefix); err != nil {
		return fmt.Errorf("clear cache entries: %w", err)
	}
	if err := c.client.DeleteByPrefix(ctx, countKeyPrefix); err != nil {
		return fmt.Errorf("clear count keys: %w", err)
	}
	return nil
}

// CacheInfo summarizes current contents.
func (c *NLClient) CacheInfo(ctx context.Context) (*Info, error) {
	keys, err := c.client.KeysByPrefix(ctx, cacheKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list cache keys: %w", err)
	}

	info := &Info{Entries: len(keys)}
	for _, key := range keys {
		payload, err := c.client.Get(ctx, key)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(payload, &entry); err != nil {
			continue
		}
		if entry.Precached {
			info.Precached++
		}
	}

	countKeys, err := c.client.KeysByPrefix(ctx, countKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list count keys: %w", err)
	}
	for _, key := range countKeys {
		payload, err := c.client.Get(ctx, key)
		if err != nil {
			continue
		}
		if count, err := strconv.ParseInt(string(payload), 10, 64); err == nil {
			info.TotalHits += count
		}
	}

	return info, nil
}

// HealthCheck reports whether the backing store is reachable.
func (c *NLClient) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx)
}

// Precache parses MESSAGE user/assistant content and stores every pair,
// skipping questions that are already cached.
func (c *NLClient) Precache(ctx context.Context, content string, ttl time.Duration) *PrecacheStats {
	pairs := ParseQueryFile(content)
	stats := &PrecacheStats{Total: len(pairs)}

	for _, pair := range pairs {
		err := c.Store(ctx, pair.NL, pair.SPARQL, StoreOptions{
			TTL:          ttl,
			Precached:    true,
			SkipExisting: true,
		})
		switch {
		case errors.Is(err, ErrAlreadyCached):
			stats.Skipped++
		case err != nil:
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%.50s: %v", pair.NL, err))
			if c.log != nil {
				c.log.Error().Err(err).Str("query", pair.NL).Msg("failed to precache query")
			}
		default:
			stats.Cached++
		}
	}

	if c.log != nil {
		c.log.Info().
			Int("total", stats.Total).
			Int("cached", stats.Cached).
			Int("failed", stats.Failed).
			Int("skipped", stats.Skipped).
			Msg("precache completed")
	}
	return stats
}

// PrecacheFromFile reads a precache file and stores its pairs.
func (c *NLClient) PrecacheFromFile(ctx context.Context, path string, ttl time.Duration) (*PrecacheStats, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read precache file: %w", err)
	}
	return c.Precache(ctx, string(content), ttl), nil
}
