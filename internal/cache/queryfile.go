package cache

import (
	"encoding/json"
	"regexp"
	"strings"
)

// QueryPair is one natural-language question and the SPARQL that answers
// it, parsed from a precache file. For sequential entries SPARQL holds a
// JSON array of SequentialQuery objects rather than a single query.
type QueryPair struct {
	NL     string
	SPARQL string
}

// SequentialQuery is one step of a multi-query answer. InjectParams
// names the bindings carried over from the previous step's results.
type SequentialQuery struct {
	Query        string   `json:"query"`
	InjectParams []string `json:"inject_params"`
}

var (
	queryMarker = regexp.MustCompile(`---query\s+\d+[^-]*---`)
	splitMarker = regexp.MustCompile(`---split[^-]*---`)
)

// ParseQueryFile parses precache file content into query pairs.
//
// The format is line oriented:
//
//	MESSAGE user <natural language query>
//	MESSAGE assistant """
//	<sparql, possibly multi-line>
//	"""
//
// The assistant body may also start on the MESSAGE line. Bodies
// containing ---query N--- markers are sequential answers and come back
// as a JSON array of SequentialQuery objects.
func ParseQueryFile(content string) []QueryPair {
	var pairs []QueryPair

	var nl string
	var sparqlLines []string
	inSPARQL := false
	inTripleQuotes := false

	flush := func() {
		if nl == "" || len(sparqlLines) == 0 {
			return
		}
		pairs = append(pairs, QueryPair{
			NL:     nl,
			SPARQL: extractSPARQL(strings.TrimSpace(strings.Join(sparqlLines, "\n"))),
		})
	}

	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" && !inSPARQL {
			continue
		}

		switch {
		case strings.HasPrefix(stripped, "MESSAGE user"):
			flush()
			nl = strings.TrimSpace(strings.TrimPrefix(stripped, "MESSAGE user"))
			sparqlLines = nil
			inSPARQL = false
			inTripleQuotes = false

		case strings.HasPrefix(stripped, "MESSAGE assistant"):
			inSPARQL = true
			remaining := strings.TrimSpace(strings.TrimPrefix(stripped, "MESSAGE assistant"))
			if remaining == `"""` {
				inTripleQuotes = true
			} else if remaining != "" {
				sparqlLines = append(sparqlLines, remaining)
			}

		case inSPARQL:
			if stripped == `"""` {
				if inTripleQuotes {
					inTripleQuotes = false
					inSPARQL = false
				} else {
					inTripleQuotes = true
				}
				continue
			}
			if inTripleQuotes || !strings.HasPrefix(stripped, "MESSAGE") {
				sparqlLines = append(sparqlLines, strings.TrimRight(line, " \t"))
			}
		}
	}
	flush()

	return pairs
}

// extractSPARQL strips triple-quote fencing and converts sequential
// bodies into their JSON array form.
func extractSPARQL(sparql string) string {
	if strings.HasPrefix(sparql, `"""`) && strings.HasSuffix(sparql, `"""`) && len(sparql) >= 6 {
		sparql = strings.TrimSpace(sparql[3 : len(sparql)-3])
	}

	if !strings.Contains(sparql, "---split") && !strings.Contains(sparql, "---query") {
		return sparql
	}

	var queries []SequentialQuery
	for _, part := range queryMarker.Split(sparql, -1)[1:] {
		part = strings.TrimSpace(part)
		if part == "" || strings.HasPrefix(part, "---") {
			continue
		}
		part = strings.TrimSpace(splitMarker.ReplaceAllString(part, ""))
		queries = append(queries, SequentialQuery{Query: part, InjectParams: []string{}})
	}

	encoded, err := json.Marshal(queries)
	if err != nil {
		return sparql
	}
	return string(encoded)
}

// IsSequential reports whether a SPARQL payload is a JSON array of
// sequential queries rather than a single query.
func IsSequential(sparql string) bool {
	trimmed := strings.TrimSpace(sparql)
	return strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")
}

// ParseSequential decodes a sequential SPARQL payload.
func ParseSequential(sparql string) ([]SequentialQuery, error) {
	var queries []SequentialQuery
	if err := json.Unmarshal([]byte(sparql), &queries); err != nil {
		return nil, err
	}
	return queries, nil
}
