// Package transaction defines the transaction record, the persistence
// interface, and its in-memory and PostgreSQL implementations.
package transaction

import (
	"errors"
	"math"
	"time"
)

var (
	ErrNotFound     = errors.New("transaction: not found")
	ErrDuplicateKey = errors.New("transaction: duplicate idempotency key")
)

// Transaction is the unit of work flowing through the pipeline.
//
// A record is created once, at first ingestion, with the anomaly fields at
// their zero values. The scoring engine overwrites AnomalyScore and IsAnomaly
// on every pass; AnomalyReason is attached at most once, and only to a
// flagged record. Records are never deleted.
type Transaction struct {
	ID        string         `json:"id"`
	Key       string         `json:"key"` // caller-supplied idempotency key
	AccountID string         `json:"accountId"`
	Amount    float64        `json:"amount"`
	Currency  string         `json:"currency"`
	Merchant  string         `json:"merchant"`
	Category  string         `json:"category"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	AnomalyScore  float64 `json:"anomalyScore"`
	IsAnomaly     bool    `json:"isAnomaly"`
	AnomalyReason string  `json:"anomalyReason,omitempty"` // empty = absent

	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy. Stores hand out clones so callers can mutate
// freely without racing the store's own copy.
func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.Metadata != nil {
		c.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Input is a single candidate transaction in an ingest batch.
type Input struct {
	Key       string         `json:"key" binding:"required"`
	AccountID string         `json:"accountId" binding:"required"`
	Amount    float64        `json:"amount"`
	Currency  string         `json:"currency"`
	Merchant  string         `json:"merchant"`
	Category  string         `json:"category"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Valid reports whether the input is well-formed enough to score and store.
func (in *Input) Valid() bool {
	return in.Key != "" && in.AccountID != "" &&
		!math.IsNaN(in.Amount) && !math.IsInf(in.Amount, 0)
}

// OrderBy selects the sort order for listing queries.
type OrderBy string

const (
	OrderByTimestamp OrderBy = "timestamp" // timestamp descending
	OrderByScore     OrderBy = "score"     // anomaly score descending
)

// Query filters and pages a listing. Zero-value fields are ignored.
type Query struct {
	AccountID     string
	MinScore      *float64
	OnlyAnomalies bool
	From          *time.Time // inclusive
	To            *time.Time // inclusive
	OrderBy       OrderBy
	Limit         int
	Offset        int
}

// Stats summarizes the stored transaction set.
type Stats struct {
	TotalTransactions int64     `json:"totalTransactions"`
	TotalAnomalies    int64     `json:"totalAnomalies"`
	TotalAccounts     int64     `json:"totalAccounts"`
	MaxAnomalyScore   float64   `json:"maxAnomalyScore"`
	UpdatedAt         time.Time `json:"updatedAt"`
}
