package pattern

import (
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/mobr-ai/capcache/internal/observability"
)

var (
	mu           sync.Mutex
	ontologyPath = "ontologies/cardano.ttl"
	logger       *observability.Logger

	loadOnce             sync.Once
	preservedExpressions []string
	entityLabels         []string
)

var labelPattern = regexp.MustCompile(`rdfs:label\s+"([^"]+)"`)

// SetOntologyPath overrides the Turtle file consulted for domain labels.
// It has no effect once the labels have been loaded.
func SetOntologyPath(path string) {
	mu.Lock()
	defer mu.Unlock()
	ontologyPath = path
}

// SetLogger installs a logger for load diagnostics. Loading is silent
// without one.
func SetLogger(l *observability.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// loadOntologyLabels reads rdfs:label values from the Turtle ontology file.
// Multi-word labels become preserved expressions; every label becomes an
// entity label.
func loadOntologyLabels(path string, log *observability.Logger) (complexLabels, allLabels []string) {
	content, err := os.ReadFile(path)
	if err != nil {
		if log != nil {
			log.Warn().Str("path", path).Err(err).Msg("ontology file not readable")
		}
		return nil, nil
	}

	for _, m := range labelPattern.FindAllStringSubmatch(string(content), -1) {
		label := strings.TrimSpace(strings.ToLower(m[1]))
		if label == "" {
			continue
		}
		if len(strings.Fields(label)) > 1 {
			complexLabels = append(complexLabels, label)
		}
		allLabels = append(allLabels, label)
	}

	if log != nil {
		log.Info().
			Str("path", path).
			Int("complex_labels", len(complexLabels)).
			Int("entity_labels", len(allLabels)).
			Msg("loaded ontology labels")
	}
	return complexLabels, allLabels
}

func ensureExpressions() {
	loadOnce.Do(func() {
		mu.Lock()
		path := ontologyPath
		log := logger
		mu.Unlock()

		complexLabels, allLabels := loadOntologyLabels(path, log)
		if len(complexLabels) == 0 {
			if log != nil {
				log.Warn().Msg("no ontology labels loaded, using default preserved expressions")
			}
			complexLabels = DefaultPreservedExpressions
		}
		preservedExpressions = complexLabels
		entityLabels = allLabels
	})
}

// PreservedExpressions returns the multi-word domain expressions that
// normalization must keep intact as single tokens.
func PreservedExpressions() []string {
	ensureExpressions()
	return preservedExpressions
}

// Entities returns every ontology label in singular form. Empty when the
// ontology could not be loaded.
func Entities() []string {
	ensureExpressions()
	return entityLabels
}
