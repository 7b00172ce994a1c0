package nlquery

// Values holds every concrete value harvested from a raw natural-language
// query, one ordered list per category. Order is first-seen order in the
// query: restoration indexes into these lists positionally, so it must be
// preserved.
type Values struct {
	Percentages        []string `json:"percentages"`
	PercentagesDecimal []string `json:"percentages_decimal"`
	Limits             []string `json:"limits"`
	Currencies         []string `json:"currencies"`
	Tokens             []string `json:"tokens"`
	Numbers            []string `json:"numbers"`
	TemporalPeriods    []string `json:"temporal_periods"`
	Years              []string `json:"years"`
	Months             []string `json:"months"`
	Orderings          []string `json:"orderings"`
	Durations          []string `json:"durations"`
	Definitions        []string `json:"definitions"`
	Quantifiers        []string `json:"quantifiers"`
	PoolIDs            []string `json:"pool_ids"`
}

// IsEmpty reports whether nothing was extracted.
func (v *Values) IsEmpty() bool {
	return len(v.Percentages) == 0 && len(v.PercentagesDecimal) == 0 &&
		len(v.Limits) == 0 && len(v.Currencies) == 0 &&
		len(v.Tokens) == 0 && len(v.Numbers) == 0 &&
		len(v.TemporalPeriods) == 0 && len(v.Years) == 0 &&
		len(v.Months) == 0 && len(v.Orderings) == 0 &&
		len(v.Durations) == 0 && len(v.Definitions) == 0 &&
		len(v.Quantifiers) == 0 && len(v.PoolIDs) == 0
}
