// Package insight attaches short natural-language risk explanations to
// flagged transactions.
//
// The explanation collaborator is strictly best-effort: transport errors,
// quota errors, malformed responses, and disabled configuration all collapse
// to the same terminal state, an unexplained record. Nothing in this package
// ever propagates an explanation failure to its caller.
package insight

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"txnsentinel/internal/metrics"
	"txnsentinel/internal/traces"
	"txnsentinel/internal/transaction"
)

// ErrUnavailable signals that no explanation could be produced. Callers of
// the dispatcher never see it; it exists so explainer implementations have a
// single way to say "no answer".
var ErrUnavailable = errors.New("insight: explanation unavailable")

// Explainer produces a short risk explanation for a transaction.
type Explainer interface {
	Explain(ctx context.Context, txn *transaction.Transaction) (string, error)
}

// Disabled is the Explainer used when explanations are turned off. It always
// reports no answer, so callers need no conditional branching.
type Disabled struct{}

func (Disabled) Explain(ctx context.Context, txn *transaction.Transaction) (string, error) {
	return "", ErrUnavailable
}

// defaultWorkers bounds the fan-out of concurrent collaborator calls.
const defaultWorkers = 4

// Dispatcher coordinates explanation calls for flagged transactions.
type Dispatcher struct {
	explainer Explainer
	store     transaction.Store
	logger    *slog.Logger
	workers   int
}

// NewDispatcher creates a dispatcher. The store is used to persist attached
// reasons best-effort; it may be nil in pure in-memory scoring tests.
func NewDispatcher(explainer Explainer, store transaction.Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		explainer: explainer,
		store:     store,
		logger:    logger,
		workers:   defaultWorkers,
	}
}

// WithWorkers overrides the worker-pool size.
func (d *Dispatcher) WithWorkers(n int) *Dispatcher {
	if n > 0 {
		d.workers = n
	}
	return d
}

// Annotate attempts to explain every flagged, unexplained transaction in the
// batch, mutating records in place. Calls fan out across a worker pool; each
// worker touches only its own record, so no locking is needed between them.
// Annotate never fails: records the collaborator could not explain are left
// unchanged.
func (d *Dispatcher) Annotate(ctx context.Context, txns []*transaction.Transaction) {
	var pending []*transaction.Transaction
	for _, t := range txns {
		if t.IsAnomaly && t.AnomalyReason == "" {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return
	}

	ctx, span := traces.StartSpan(ctx, "insight.annotate")
	defer span.End()

	workers := d.workers
	if workers > len(pending) {
		workers = len(pending)
	}

	work := make(chan *transaction.Transaction)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for t := range work {
				d.AnnotateOne(ctx, t)
			}
		}()
	}
	for _, t := range pending {
		work <- t
	}
	close(work)
	wg.Wait()
}

// AnnotateOne attempts a single explanation and reports whether a reason was
// attached. It is a no-op for unflagged or already-explained records, so
// calling it twice never re-derives an explanation.
func (d *Dispatcher) AnnotateOne(ctx context.Context, txn *transaction.Transaction) bool {
	if !txn.IsAnomaly || txn.AnomalyReason != "" {
		return false
	}

	reason, err := d.explainer.Explain(ctx, txn)
	if err != nil || reason == "" {
		metrics.ExplanationRequestsTotal.WithLabelValues("unavailable").Inc()
		if err != nil && !errors.Is(err, ErrUnavailable) {
			d.logger.Debug("explanation failed", "txn", txn.ID, "error", err)
		}
		return false
	}

	txn.AnomalyReason = reason
	metrics.ExplanationRequestsTotal.WithLabelValues("ok").Inc()

	if d.store != nil {
		if err := d.store.SetReason(ctx, txn.ID, reason); err != nil {
			d.logger.Warn("failed to persist explanation", "txn", txn.ID, "error", err)
		}
	}
	return true
}
