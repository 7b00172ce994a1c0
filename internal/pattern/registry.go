// Package pattern holds the static term catalog and regex builders that
// drive natural-language query normalization and value extraction.
package pattern

import (
	"regexp"
	"strings"
)

// DefaultPreservedExpressions is the fallback list of multi-word domain
// expressions used when the ontology file cannot be read.
var DefaultPreservedExpressions = []string{
	"asset policy", "proof of work", "proof of stake", "stake pool",
	"native token", "smart contract", "ada pots", "pot transfer",
	"collateral input", "collateral output", "reference input",
	"fungible token", "chain selection rule",
}

// Temporal terms.
var (
	YearlyTerms          = []string{"yearly", "annually", "per year", "each year", "every year"}
	MonthlyTerms         = []string{"monthly", "per month", "each month", "every month"}
	WeeklyTerms          = []string{"weekly", "per week", "each week", "every week"}
	DailyTerms           = []string{"daily", "per day", "each day", "every day"}
	EpochPeriodTerms     = []string{"per epoch", "each epoch", "every epoch", "by epoch"}
	TemporalPrepositions = []string{"in", "on", "at", "of", "for", "during"}
)

// Month names.
var (
	MonthNames = []string{
		"january", "february", "march", "april", "may", "june",
		"july", "august", "september", "october", "november", "december",
	}
	MonthAbbrev = []string{
		"jan", "feb", "mar", "apr", "may", "jun",
		"jul", "aug", "sep", "oct", "nov", "dec",
	}
)

var (
	TimePeriodRangeTerms = []string{"first", "last", "second", "third"}
	TimePeriodUnits      = []string{"week", "day", "month", "hour", "epoch"}
)

// Ordering terms.
var (
	MaxTerms           = []string{"largest", "biggest", "highest", "greatest", "maximum", "max"}
	MinTerms           = []string{"smallest", "lowest", "least", "minimum", "min"}
	TemporalStateTerms = []string{"current", "present", "now", "today"}
	LatestTerms        = append([]string{
		"latest", "most recent", "newest", "last",
		"recent", "recently", "fresh", "up to date", "updated",
	}, TemporalStateTerms...)
	EarliestTerms = []string{
		"oldest", "older", "past", "first", "earliest",
		"long ago", "initial", "beginning", "original",
	}
	CountTerms = []string{
		"how many", "number of", "count", "amount of",
		"quantity", "how much",
	}
	SumTerms = []string{
		"sum", "total", "add up", "aggregate", "combined",
		"accumulated", "overall amount",
	}
	AggregateTimeTerms = []string{"per year", "per month", "per day", "by year", "by month"}
	TopTerms           = []string{
		"top", "largest", "biggest", "highest", "most",
		"best", "leading", "upper", "ascending", "asc",
		"top ranked", "greatest", "max", "maximum",
	}
	BottomTerms = []string{
		"bottom", "lowest", "smallest", "least", "worst",
		"lower", "descending", "desc", "bottom ranked",
		"min", "minimum",
	}
	OrdinalSuffixes = []string{"st", "nd", "rd", "th"}
)

// SemanticSugar lists words that carry no analytical meaning once the query
// has been normalized.
var SemanticSugar = []string{
	"create", "created", "plot", "draw", "indeed", "very", "too", "so", "make", "compose",
	"visualization", "cardano", "count", "network", "represent", "table", "versus",
	"against", "pie", "pizza", "recorded", "storage", "storaged", "with", "all",
	"history", "ever", "over time", "historical", "progression", "evolution",
}

// Comparison terms.
var (
	AboveTerms = []string{
		"above", "over", "more than", "greater than", "exceeding",
		"beyond", "higher than", "greater", ">", "at least",
	}
	BelowTerms = []string{
		"below", "under", "less than", "fewer than", "lower than",
		"smaller than", "<", "at most",
	}
	EqualsTerms = []string{
		"equals", "equal to", "exactly", "same as", "match",
		"matches", "identical to", "=", "precisely",
	}
)

// BoundTerms guard max/min collapse: "largest supply" is a quantity
// comparison, not a ranking request.
var BoundTerms = []string{"supply", "value", "amount", "limit"}

// Entity terms (words only, patterns generated dynamically).
var (
	TransactionTerms        = []string{"transaction", "tx"}
	TransactionDetailTerms  = []string{"script", "json", "metadata", "datum", "redeemer"}
	PoolTerms               = []string{"stake pool", "pool", "off chain stake pool data"}
	BlockTerms              = []string{"block"}
	EpochTerms              = []string{"epoch"}
	TokenTerms              = []string{"cnt", "native token", "cardano native token", "token", "nft", "fungible token"}
	GovernanceProposalTerms = []string{"governance", "proposal", "action"}
	VotingTerms             = []string{"vote", "voting", "voting anchor"}
	CommitteeTerms          = []string{"committee"}
	DrepTerms               = []string{"drep", "delegate representative"}
	DelegationTerms         = []string{"delegation", "stake delegation"}
	VoteTerms               = []string{"vote"}
	CertificateTerms        = []string{"certificate", "cert"}
	ConstitutionTerms       = []string{"constitution"}
	ScriptTerms             = []string{"script", "smart contract"}
	WitnessTerms            = []string{"witness"}
	DatumTerms              = []string{"datum", "data"}
	CostModelTerms          = []string{"cost model"}
	AdaPotTerms             = []string{"ada pot", "pot", "treasury", "reserves"}
	ProtocolParamTerms      = []string{"protocol parameter", "protocol params", "parameters"}
	StatusTerms             = []string{"status", "state", "health"}
	RewardTerms             = []string{"reward", "withdrawal", "reward withdrawal"}
	InputTerms              = []string{"input", "utxo input"}
	OutputTerms             = []string{"output", "utxo output"}
	AccountTerms            = []string{"account", "stake account", "wallet"}
)

// Chart types.
var (
	BarChartTerms = []string{"bar", "bar chart", "bars", "histogram", "column chart"}
	LineChartTerms = []string{
		"line", "line chart", "timeseries", "time serie", "trend",
		"timeline", "curve", "line graph",
	}
	PieChartTerms = []string{"pie", "pie chart", "pizza", "donut", "doughnut", "circle chart"}
	TableTerms    = []string{
		"list", "table", "tabular", "display", "show", "get", "grid",
		"dataset", "row", "column",
	}
)

var DefinitionTerms = []string{"define", "explain", "describe", "tell me about", "whats", "what"}

var PossessionTerms = []string{
	"hold", "holds", "has", "have", "own", "possess", "possesses",
	"contain", "contains", "include", "includes", "carrying", "carry",
}

// FillerWords are dropped from normalized queries (shared across normalizers).
var FillerWords = []string{
	"please", "could", "can", "you", "me", "the", "i", "be",
	"is", "are", "was", "were", "your", "my", "exist", "at",
	"a", "an", "of", "in", "on", "yours", "to", "cardano",
	"do", "does", "ever", "with", "having", "from", "there",
}

var QuestionWords = []string{"who", "what", "when", "where", "why", "which", "how many", "how much", "how long"}

// BuildPattern joins escaped terms with alternation, optionally wrapped in
// word boundaries. An empty term list yields a pattern that matches nothing.
func BuildPattern(terms []string, wordBoundary bool) string {
	if len(terms) == 0 {
		// regexp that can never match; callers build patterns from lists
		// that may be empty when the ontology is unavailable
		return `\b\B`
	}
	escaped := make([]string, len(terms))
	for i, term := range terms {
		escaped[i] = regexp.QuoteMeta(term)
	}
	alternation := strings.Join(escaped, "|")
	if wordBoundary {
		return `\b(` + alternation + `)\b`
	}
	return `(` + alternation + `)`
}

// BuildEntityPattern builds an entity pattern with an optional plural suffix.
func BuildEntityPattern(baseTerms []string, plural bool) string {
	suffix := ""
	if plural {
		suffix = "s?"
	}
	return BuildPattern(baseTerms, true) + suffix
}
