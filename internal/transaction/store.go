package transaction

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store is the persistence interface for transaction records.
//
// Create and UpdateScores are atomic over their whole batch: either every
// record in the slice is persisted or none is. The unique constraint on Key
// is the authoritative idempotency guard; callers' lookups are an
// optimization, not the enforcement mechanism.
type Store interface {
	// Create persists a batch of new records. A record whose key already
	// exists is silently skipped (existing record wins).
	Create(ctx context.Context, txns []*Transaction) error

	GetByKey(ctx context.Context, key string) (*Transaction, error)
	GetByID(ctx context.Context, id string) (*Transaction, error)

	// UpdateScores overwrites anomaly score and flag for every record in the
	// batch. Reasons are not touched.
	UpdateScores(ctx context.Context, txns []*Transaction) error

	// SetReason attaches an explanation to a flagged record. It is a no-op
	// when the record is not flagged or already has a reason.
	SetReason(ctx context.Context, id, reason string) error

	List(ctx context.Context, q Query) ([]*Transaction, error)

	// ListByTimeRange returns every record whose timestamp falls in the
	// inclusive window. A nil bound is unbounded on that side.
	ListByTimeRange(ctx context.Context, from, to *time.Time) ([]*Transaction, error)

	Stats(ctx context.Context) (*Stats, error)
}

// MemoryStore is a thread-safe in-memory Store for demo and test use.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Transaction
	byKey map[string]*Transaction
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*Transaction),
		byKey: make(map[string]*Transaction),
	}
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(ctx context.Context, txns []*Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range txns {
		if _, exists := m.byKey[t.Key]; exists {
			continue // existing record wins
		}
		c := t.Clone()
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		m.byID[c.ID] = c
		m.byKey[c.Key] = c
	}
	return nil
}

func (m *MemoryStore) GetByKey(ctx context.Context, key string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (m *MemoryStore) UpdateScores(ctx context.Context, txns []*Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range txns {
		stored, ok := m.byID[t.ID]
		if !ok {
			return ErrNotFound
		}
		stored.AnomalyScore = t.AnomalyScore
		stored.IsAnomaly = t.IsAnomaly
	}
	return nil
}

func (m *MemoryStore) SetReason(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !stored.IsAnomaly || stored.AnomalyReason != "" {
		return nil
	}
	stored.AnomalyReason = reason
	return nil
}

func (m *MemoryStore) List(ctx context.Context, q Query) ([]*Transaction, error) {
	m.mu.RLock()
	matched := make([]*Transaction, 0, len(m.byID))
	for _, t := range m.byID {
		if !matches(t, q) {
			continue
		}
		matched = append(matched, t.Clone())
	}
	m.mu.RUnlock()

	if q.OrderBy == OrderByScore {
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].AnomalyScore != matched[j].AnomalyScore {
				return matched[i].AnomalyScore > matched[j].AnomalyScore
			}
			return strings.Compare(matched[i].ID, matched[j].ID) < 0
		})
	} else {
		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
				return matched[i].Timestamp.After(matched[j].Timestamp)
			}
			return strings.Compare(matched[i].ID, matched[j].ID) < 0
		})
	}

	return page(matched, q.Limit, q.Offset), nil
}

func (m *MemoryStore) ListByTimeRange(ctx context.Context, from, to *time.Time) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Transaction
	for _, t := range m.byID {
		if from != nil && t.Timestamp.Before(*from) {
			continue
		}
		if to != nil && t.Timestamp.After(*to) {
			continue
		}
		result = append(result, t.Clone())
	}
	return result, nil
}

func (m *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{UpdatedAt: time.Now().UTC()}
	accounts := make(map[string]struct{})
	for _, t := range m.byID {
		stats.TotalTransactions++
		if t.IsAnomaly {
			stats.TotalAnomalies++
		}
		if t.AnomalyScore > stats.MaxAnomalyScore {
			stats.MaxAnomalyScore = t.AnomalyScore
		}
		accounts[t.AccountID] = struct{}{}
	}
	stats.TotalAccounts = int64(len(accounts))
	return stats, nil
}

func matches(t *Transaction, q Query) bool {
	if q.AccountID != "" && t.AccountID != q.AccountID {
		return false
	}
	if q.MinScore != nil && t.AnomalyScore < *q.MinScore {
		return false
	}
	if q.OnlyAnomalies && !t.IsAnomaly {
		return false
	}
	if q.From != nil && t.Timestamp.Before(*q.From) {
		return false
	}
	if q.To != nil && t.Timestamp.After(*q.To) {
		return false
	}
	return true
}

func page(items []*Transaction, limit, offset int) []*Transaction {
	if offset >= len(items) {
		return []*Transaction{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
