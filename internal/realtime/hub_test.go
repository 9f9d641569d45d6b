package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"txnsentinel/internal/transaction"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

func txnEvent(accountID string, score float64, flagged bool) *Event {
	return &Event{
		Type:      EventTransaction,
		Timestamp: time.Now(),
		Data: &transaction.Transaction{
			ID:           "txn_1",
			AccountID:    accountID,
			AnomalyScore: score,
			IsAnomaly:    flagged,
		},
	}
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	if !h.shouldSend(client, txnEvent("acct-1", 0, false)) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventAnomaly},
	}}

	anomaly := &Event{Type: EventAnomaly}
	plain := &Event{Type: EventTransaction}

	if !h.shouldSend(client, anomaly) {
		t.Error("Should receive anomaly events")
	}
	if h.shouldSend(client, plain) {
		t.Error("Should NOT receive plain transaction events")
	}
}

func TestShouldSend_AccountFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Accounts: []string{"acct-1"},
	}}

	if !h.shouldSend(client, txnEvent("acct-1", 0, false)) {
		t.Error("Should match on account")
	}
	if h.shouldSend(client, txnEvent("acct-2", 0, false)) {
		t.Error("Should NOT match unrelated accounts")
	}
}

func TestShouldSend_MinScoreFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		MinScore: 2.0,
	}}

	if !h.shouldSend(client, txnEvent("acct-1", 3.5, true)) {
		t.Error("Should receive high-score event")
	}
	if h.shouldSend(client, txnEvent("acct-1", 0.5, false)) {
		t.Error("Should NOT receive low-score event")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	if !h.shouldSend(client, txnEvent("acct-1", 0, false)) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestShouldSend_NilData(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Accounts: []string{"acct-1"},
		MinScore: 1.0,
	}}

	// Event with no payload should not crash; filters can't apply so it passes
	event := &Event{Type: EventTransaction}
	if !h.shouldSend(client, event) {
		t.Error("Nil data should pass through when filters cannot be evaluated")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Broadcast an event
	h.Broadcast(txnEvent("acct-1", 0, false))
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(txnEvent("acct-1", 4.2, true))

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_BroadcastTransaction_EventKind(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventAnomaly}},
	}
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Unflagged record goes out as a transaction event, filtered out here
	h.BroadcastTransaction(&transaction.Transaction{ID: "txn_1", AccountID: "acct-1"})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive plain transaction event")
	default:
	}

	// Flagged record goes out as an anomaly event
	h.BroadcastTransaction(&transaction.Transaction{
		ID: "txn_2", AccountID: "acct-1", AnomalyScore: 4.5, IsAnomaly: true,
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive anomaly event")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}
