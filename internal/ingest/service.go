// Package ingest implements the write path of the pipeline: idempotent batch
// ingestion, scoring of newly materialized records, and on-demand rescoring
// of stored history.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"txnsentinel/internal/anomaly"
	"txnsentinel/internal/idgen"
	"txnsentinel/internal/insight"
	"txnsentinel/internal/metrics"
	"txnsentinel/internal/realtime"
	"txnsentinel/internal/traces"
	"txnsentinel/internal/transaction"
	"txnsentinel/internal/validation"
)

// Resolution states for a batch item.
const (
	ResolutionCreated   = "created"
	ResolutionDuplicate = "duplicate"
)

// ItemResult is the per-item outcome of an ingest call. For duplicates the
// transaction is the previously stored record, untouched by this call.
type ItemResult struct {
	Key         string                   `json:"key"`
	Resolution  string                   `json:"resolution"`
	Transaction *transaction.Transaction `json:"transaction"`
}

// Result summarizes one ingest call.
type Result struct {
	Items      []ItemResult `json:"items"`
	Created    int          `json:"created"`
	Duplicates int          `json:"duplicates"`
	Flagged    int          `json:"flagged"`
}

// Service coordinates validation, dedup, scoring, persistence, and
// post-commit fan-out for ingest batches.
type Service struct {
	store      transaction.Store
	engine     *anomaly.Engine
	dispatcher *insight.Dispatcher
	hub        *realtime.Hub // optional
	logger     *slog.Logger
}

// NewService creates an ingest service. The hub may be nil when realtime
// streaming is not wired, as in most tests.
func NewService(store transaction.Store, engine *anomaly.Engine, dispatcher *insight.Dispatcher, hub *realtime.Hub, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		engine:     engine,
		dispatcher: dispatcher,
		hub:        hub,
		logger:     logger,
	}
}

// Ingest validates and persists a batch. The whole batch is rejected if any
// item fails validation; nothing is written in that case. Items whose key is
// already stored resolve to the existing record and are not rescored. Newly
// materialized records are scored against each other, grouped per account
// within this call only, then persisted atomically.
func (s *Service) Ingest(ctx context.Context, inputs []transaction.Input) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "ingest.batch", traces.BatchSize(len(inputs)))
	defer span.End()

	if errs := validateBatch(inputs); len(errs) > 0 {
		return nil, errs
	}

	// First occurrence wins for keys repeated within the batch.
	seen := make(map[string]int, len(inputs))
	var deduped []transaction.Input
	for _, in := range inputs {
		if _, dup := seen[in.Key]; dup {
			continue
		}
		seen[in.Key] = len(deduped)
		deduped = append(deduped, in)
	}

	now := time.Now().UTC()
	var fresh []*transaction.Transaction
	resolutions := make(map[string]*transaction.Transaction, len(deduped))

	for _, in := range deduped {
		existing, err := s.store.GetByKey(ctx, in.Key)
		if err == nil {
			resolutions[in.Key] = existing
			continue
		}
		if err != transaction.ErrNotFound {
			return nil, fmt.Errorf("resolving key %q: %w", in.Key, err)
		}

		t := &transaction.Transaction{
			ID:        idgen.Transaction(),
			Key:       in.Key,
			AccountID: in.AccountID,
			Amount:    in.Amount,
			Currency:  in.Currency,
			Merchant:  validation.SanitizeString(in.Merchant, validation.MaxStringLength),
			Category:  validation.SanitizeString(in.Category, validation.MaxStringLength),
			Timestamp: in.Timestamp,
			Metadata:  in.Metadata,
			CreatedAt: now,
		}
		if t.Timestamp.IsZero() {
			t.Timestamp = now
		}
		fresh = append(fresh, t)
	}

	// Existing records keep their scores; only this call's new records form
	// the scoring population.
	s.engine.ScoreBatch(fresh)

	if len(fresh) > 0 {
		if err := s.store.Create(ctx, fresh); err != nil {
			return nil, fmt.Errorf("persisting batch: %w", err)
		}
	}
	for _, t := range fresh {
		resolutions[t.Key] = t
	}

	// One item per input position. A key repeated within the batch resolves
	// to the instance staged by its first occurrence.
	res := &Result{Items: make([]ItemResult, 0, len(inputs))}
	counted := make(map[string]bool, len(deduped))
	for _, in := range inputs {
		t := resolutions[in.Key]
		item := ItemResult{Key: in.Key, Transaction: t}
		if containsID(fresh, t.ID) && !counted[in.Key] {
			item.Resolution = ResolutionCreated
			res.Created++
		} else {
			item.Resolution = ResolutionDuplicate
			res.Duplicates++
		}
		counted[in.Key] = true
		res.Items = append(res.Items, item)
	}

	s.postCommit(ctx, fresh, res)
	return res, nil
}

// postCommit handles everything downstream of a successful write: metrics,
// explanation dispatch, and realtime fan-out. All of it is best-effort.
func (s *Service) postCommit(ctx context.Context, fresh []*transaction.Transaction, res *Result) {
	metrics.TransactionsIngestedTotal.WithLabelValues(ResolutionCreated).Add(float64(res.Created))
	metrics.TransactionsIngestedTotal.WithLabelValues(ResolutionDuplicate).Add(float64(res.Duplicates))

	for _, t := range fresh {
		if t.IsAnomaly {
			res.Flagged++
			metrics.AnomaliesFlaggedTotal.Inc()
		}
	}

	if s.dispatcher != nil {
		s.dispatcher.Annotate(ctx, fresh)
	}

	if s.hub != nil {
		for _, t := range fresh {
			s.hub.BroadcastTransaction(t)
		}
	}

	if res.Flagged > 0 {
		s.logger.Info("batch ingested",
			"created", res.Created,
			"duplicates", res.Duplicates,
			"flagged", res.Flagged)
	}
}

// Recompute rescores every stored record whose timestamp falls in the
// inclusive window, grouped per account across the matched set. A nil bound
// is unbounded on that side. Flags may change in either direction; attached
// reasons are never touched. Returns the number of records rescored.
func (s *Service) Recompute(ctx context.Context, from, to *time.Time) (int, error) {
	ctx, span := traces.StartSpan(ctx, "ingest.recompute")
	defer span.End()

	matched, err := s.store.ListByTimeRange(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("loading window: %w", err)
	}
	if len(matched) == 0 {
		return 0, nil
	}

	s.engine.ScoreBatch(matched)

	if err := s.store.UpdateScores(ctx, matched); err != nil {
		return 0, fmt.Errorf("persisting rescored batch: %w", err)
	}

	metrics.RecomputeRunsTotal.Inc()
	metrics.RecomputedTransactionsTotal.Add(float64(len(matched)))
	s.logger.Info("recompute finished", "records", len(matched))

	return len(matched), nil
}

func validateBatch(inputs []transaction.Input) validation.ValidationErrors {
	errs := validation.Validate(validation.BatchSize("transactions", len(inputs)))
	for i, in := range inputs {
		prefix := fmt.Sprintf("transactions[%d].", i)
		errs = append(errs, validation.Validate(
			validation.Required(prefix+"key", in.Key),
			validation.Required(prefix+"accountId", in.AccountID),
			validation.FiniteAmount(prefix+"amount", in.Amount),
			validation.ValidCurrency(prefix+"currency", in.Currency),
			validation.MaxLength(prefix+"merchant", in.Merchant, validation.MaxStringLength),
			validation.MaxLength(prefix+"category", in.Category, validation.MaxStringLength),
		)...)
	}
	return errs
}

func containsID(txns []*transaction.Transaction, id string) bool {
	for _, t := range txns {
		if t.ID == id {
			return true
		}
	}
	return false
}
