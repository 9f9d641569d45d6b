// Package anomaly implements statistical anomaly scoring for transaction
// batches.
//
// Every transaction is scored as the sum of two terms: a per-account z-score
// magnitude computed over the amounts in the current batch, and fixed
// business-rule increments for large amounts and high-risk categories.
// Records at or above the configured threshold are flagged. Scoring is a
// pure in-memory computation with no I/O and no error path.
package anomaly

import (
	"math"
	"strings"

	"txnsentinel/internal/transaction"
)

// Rule-term increments.
const (
	largeAmountBonus   = 1.5
	riskyCategoryBonus = 0.75
)

// Default thresholds.
const (
	DefaultZThreshold      = 3.0
	DefaultAmountThreshold = 10000
)

// highRiskCategories is the fixed set matched case-insensitively.
var highRiskCategories = map[string]struct{}{
	"crypto":   {},
	"gambling": {},
}

// Config holds the scoring thresholds. It is an immutable value passed at
// engine construction so repeated runs over the same input are reproducible.
type Config struct {
	// ZThreshold is the score at or above which a transaction is flagged.
	ZThreshold float64
	// AmountThreshold is the absolute amount at or above which the large
	// amount rule applies. The comparison is inclusive.
	AmountThreshold float64
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		ZThreshold:      DefaultZThreshold,
		AmountThreshold: DefaultAmountThreshold,
	}
}

// Engine scores transaction batches against a fixed configuration.
type Engine struct {
	cfg Config
}

// NewEngine creates a scoring engine with the given thresholds.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the engine's thresholds.
func (e *Engine) Config() Config {
	return e.cfg
}

// groupStats holds the per-account statistics for one batch.
type groupStats struct {
	mean float64
	std  float64
}

// ScoreBatch computes an anomaly score and flag for every transaction,
// mutating the records in place. Grouping considers only the transactions in
// this call; each invocation is independently scoped to its own input set.
func (e *Engine) ScoreBatch(txns []*transaction.Transaction) {
	byAccount := make(map[string][]float64)
	for _, t := range txns {
		byAccount[t.AccountID] = append(byAccount[t.AccountID], t.Amount)
	}

	stats := make(map[string]groupStats, len(byAccount))
	for account, amounts := range byAccount {
		stats[account] = computeStats(amounts)
	}

	for _, t := range txns {
		s, ok := stats[t.AccountID]
		if !ok {
			s = groupStats{mean: 0, std: 1}
		}
		score := zScore(t.Amount, s) + e.ruleTerm(t)
		t.AnomalyScore = score
		t.IsAnomaly = score >= e.cfg.ZThreshold
	}
}

// computeStats returns the mean and population standard deviation of the
// amounts. An empty group yields (0, 1); a zero deviation (all amounts
// identical) is substituted with 1 to avoid division by zero.
func computeStats(amounts []float64) groupStats {
	if len(amounts) == 0 {
		return groupStats{mean: 0, std: 1}
	}

	var sum float64
	for _, a := range amounts {
		sum += a
	}
	mean := sum / float64(len(amounts))

	var varSum float64
	for _, a := range amounts {
		d := a - mean
		varSum += d * d
	}
	std := math.Sqrt(varSum / float64(len(amounts)))
	if std == 0 {
		std = 1
	}

	return groupStats{mean: mean, std: std}
}

// zScore is the unsigned z-score magnitude of the amount against its group.
func zScore(amount float64, s groupStats) float64 {
	return math.Abs(amount-s.mean) / s.std
}

// ruleTerm sums the fixed business-rule increments. Both rules can apply to
// the same transaction.
func (e *Engine) ruleTerm(t *transaction.Transaction) float64 {
	var score float64
	if math.Abs(t.Amount) >= e.cfg.AmountThreshold {
		score += largeAmountBonus
	}
	if _, risky := highRiskCategories[strings.ToLower(t.Category)]; risky {
		score += riskyCategoryBonus
	}
	return score
}
