package nlquery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractor_RankedQueryValues(t *testing.T) {
	e := NewExtractor(nil)

	v := e.Extract("show top 5 stake pools in 2023 with 2.5% stake")

	assert.Equal(t, []string{"5"}, v.Limits)
	assert.Equal(t, []string{"2023"}, v.Years)
	assert.Equal(t, []string{"ordering:DESC"}, v.Orderings)
	assert.Equal(t, []string{"2.5"}, v.Percentages)
	assert.Equal(t, []string{"0.025"}, v.PercentagesDecimal)
	assert.Empty(t, v.Numbers)
}

func TestExtractor_AdaAmountsBecomeLovelace(t *testing.T) {
	e := NewExtractor(nil)

	v := e.Extract("wallets holding more than 5 million ADA in the last 30 days")

	assert.Equal(t, []string{adaCurrencyURI}, v.Currencies)
	// The magnitude value is converted; the raw digits are still collected
	assert.Equal(t, []string{"5000000000000", "5", "30"}, v.Numbers)
	assert.Equal(t, []string{"P30D"}, v.Durations)
	assert.Contains(t, v.Orderings, "ordering:DESC")
	// "last 30 days" is a time span, not a result limit
	assert.Empty(t, v.Limits)
}

func TestExtractor_Percentages(t *testing.T) {
	e := NewExtractor(nil)

	tests := []struct {
		name         string
		query        string
		wantPct      []string
		wantDecimals []string
	}{
		{
			name:         "percent sign",
			query:        "pools with over 3% saturation",
			wantPct:      []string{"3"},
			wantDecimals: []string{"0.03"},
		},
		{
			name:         "percent word",
			query:        "pools with 50 percent saturation",
			wantPct:      []string{"50"},
			wantDecimals: []string{"0.50"},
		},
		{
			name:         "bare decimal",
			query:        "addresses controlling 0.25 of the stake",
			wantPct:      []string{"25"},
			wantDecimals: []string{"0.25"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := e.Extract(tt.query)
			assert.Equal(t, tt.wantPct, v.Percentages)
			assert.Equal(t, tt.wantDecimals, v.PercentagesDecimal)
		})
	}
}

func TestExtractor_TemporalValues(t *testing.T) {
	e := NewExtractor(nil)

	v := e.Extract("rewards per epoch in march 2024")

	assert.Equal(t, []string{"epoch"}, v.TemporalPeriods)
	assert.Equal(t, []string{"march"}, v.Months)
	assert.Equal(t, []string{"2024"}, v.Years)
}

func TestExtractor_Tokens(t *testing.T) {
	e := NewExtractor(nil)

	v := e.Extract("how many SNEK holders are there")
	assert.Equal(t, []string{"SNEK"}, v.Tokens)
	assert.Equal(t, []string{"how many"}, v.Quantifiers)

	v = e.Extract("tokens burned from the HOSKY supply")
	assert.Equal(t, []string{"HOSKY"}, v.Tokens)
}

func TestExtractor_PoolIDs(t *testing.T) {
	e := NewExtractor(nil)

	id := "pool1" + strings.Repeat("a", 53)
	v := e.Extract("delegation history for " + id)

	assert.Equal(t, []string{id}, v.PoolIDs)
}

func TestExtractor_ImplicitDuration(t *testing.T) {
	e := NewExtractor(nil)

	v := e.Extract("blocks minted in the past week")

	assert.Equal(t, []string{"P7D"}, v.Durations)
	assert.Contains(t, v.Orderings, "ordering:ASC")
}

func TestExtractor_DefinitionQueries(t *testing.T) {
	e := NewExtractor(nil)

	v := e.Extract("what is a stake pool")
	assert.Equal(t, []string{"what"}, v.Definitions)
	assert.Empty(t, v.Quantifiers)
}

func TestExtractor_YearBounds(t *testing.T) {
	e := NewExtractor(nil)

	// Four-digit numbers outside a plausible year range are plain numbers
	v := e.Extract("blocks with slot 8999 in 2022")
	assert.Equal(t, []string{"2022"}, v.Years)
	assert.Contains(t, v.Numbers, "8999")
}
