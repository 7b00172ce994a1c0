// Package engine is the public facade over the query cache core: NL
// normalization, value extraction, SPARQL template normalization and
// placeholder restoration. Callers that only need the four pure
// operations import this package instead of the internal ones.
package engine

import (
	"github.com/mobr-ai/capcache/internal/nlquery"
	"github.com/mobr-ai/capcache/internal/observability"
	"github.com/mobr-ai/capcache/internal/pattern"
	"github.com/mobr-ai/capcache/internal/sparql"
)

// Values holds the per-category value lists extracted from a raw
// natural-language query.
type Values = nlquery.Values

// Counters tracks placeholder numbering across sequential queries.
type Counters = sparql.Counters

// Engine bundles the four core operations behind one warm instance.
// It is safe for concurrent use; construction triggers the one-time
// ontology label load.
type Engine struct {
	normalizer *nlquery.Normalizer
	extractor  *nlquery.Extractor
	sparqlNorm *sparql.Normalizer
	restorer   *sparql.Restorer
}

// Options configures an Engine.
type Options struct {
	// OntologyPath points at the Turtle file supplying entity labels.
	// Empty keeps the default path.
	OntologyPath string
	// Logger receives debug/warn events. Nil disables logging.
	Logger *observability.Logger
}

// New creates an Engine and warms the pattern registry.
func New(opts Options) *Engine {
	if opts.OntologyPath != "" {
		pattern.SetOntologyPath(opts.OntologyPath)
	}
	if opts.Logger != nil {
		pattern.SetLogger(opts.Logger)
	}
	return &Engine{
		normalizer: nlquery.NewNormalizer(opts.Logger),
		extractor:  nlquery.NewExtractor(opts.Logger),
		sparqlNorm: sparql.NewNormalizer(opts.Logger),
		restorer:   sparql.NewRestorer(opts.Logger),
	}
}

// NormalizeQuery reduces a natural-language question to its canonical
// cache-key form. It never fails: unparseable input degrades to a bare
// lowercased fallback.
func (e *Engine) NormalizeQuery(raw string) string {
	return e.normalizer.Normalize(raw)
}

// SemanticVariant returns the secondary canonical key for an already
// normalized question.
func (e *Engine) SemanticVariant(normalized string) string {
	return e.normalizer.SemanticVariant(normalized)
}

// ExtractValues harvests typed values (limits, years, tokens, …) from a
// raw question. Categories with no matches come back as empty lists.
func (e *Engine) ExtractValues(raw string) *Values {
	return e.extractor.Extract(raw)
}

// NormalizeSPARQL replaces literals and instance references in a SPARQL
// query with typed placeholders, returning the template and the
// placeholder→value map. Pass the same Counters across the queries of a
// sequential batch; nil starts numbering at zero.
func (e *Engine) NormalizeSPARQL(sparqlQuery string, counters *Counters) (string, map[string]string) {
	if counters == nil {
		return e.sparqlNorm.Normalize(sparqlQuery)
	}
	return e.sparqlNorm.NormalizeWithCounters(sparqlQuery, counters)
}

// RestoreSPARQL fills a template back in with the values of the current
// question. It always returns a string; the caller must treat residual
// <<TYPE_n>> tokens as a restoration failure.
func (e *Engine) RestoreSPARQL(template string, placeholders map[string]string, current *Values) string {
	return e.restorer.Restore(template, placeholders, current)
}
