package domain

// Pair is one trading pair as reported by the market-data collaborator.
type Pair struct {
	TokenAddress   string
	Symbol         string
	Chain          string
	PriceUSD       float64
	Volume24hUSD   float64
	LiquidityUSD   float64
	PriceChange24h float64 // percent
}

// SafetyVerdict is the outcome of the safety-check collaborator for a token.
type SafetyVerdict string

const (
	SafetyVerdictSafe       SafetyVerdict = "safe"
	SafetyVerdictRisky      SafetyVerdict = "risky"
	SafetyVerdictUnsafe     SafetyVerdict = "unsafe"
	SafetyVerdictUnverified SafetyVerdict = "unverified"
)

// SafetyReport carries the verdict plus provider detail for audit events.
type SafetyReport struct {
	Verdict SafetyVerdict
	Score   float64
	Detail  string
}

// Candidate is a token that survived the discovery filters, carrying its
// market snapshot, safety verdict, and momentum score.
type Candidate struct {
	Pair
	Safety    SafetyReport
	Score     float64
	Reasoning string
}

// Fill is the normalized result of an executed (or simulated) trade.
type Fill struct {
	Price    float64
	Quantity float64
	TxRef    string
	DryRun   bool
}
