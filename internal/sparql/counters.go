package sparql

import (
	"strconv"
	"strings"
)

// Counters tracks per-type placeholder numbering during normalization.
// A zero value starts every counter at zero. When a batch of sequential
// queries must share numbering, pass the same Counters to each
// NormalizeWithCounters call; when rehydrating from a cached placeholder
// map, feed each key through UpdateFromPlaceholder first.
type Counters struct {
	Pct        int
	Num        int
	Str        int
	Lim        int
	URI        int
	Cur        int
	Inject     int
	Year       int
	Month      int
	Day        int
	Period     int
	Order      int
	Duration   int
	Definition int
	Quantifier int
}

// UpdateFromPlaceholder advances the matching counter past the index
// embedded in a placeholder such as "<<NUM_3>>". Unrecognized or
// malformed placeholders are ignored.
func (c *Counters) UpdateFromPlaceholder(placeholder string) {
	targets := []struct {
		prefix  string
		counter *int
	}{
		{"<<INJECT_", &c.Inject},
		{"<<PCT_DECIMAL_", &c.Pct},
		{"<<PCT_", &c.Pct},
		{"<<NUM_", &c.Num},
		{"<<STR_", &c.Str},
		{"<<LIM_", &c.Lim},
		{"<<URI_", &c.URI},
		{"<<CUR_", &c.Cur},
		{"<<DURATION_", &c.Duration},
		{"<<DEF_", &c.Definition},
		{"<<QUANT_", &c.Quantifier},
	}

	for _, t := range targets {
		if !strings.HasPrefix(placeholder, t.prefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(placeholder, t.prefix), ">>"))
		if err != nil {
			return
		}
		if idx+1 > *t.counter {
			*t.counter = idx + 1
		}
		return
	}
}
