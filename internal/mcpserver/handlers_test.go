package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	client := NewClient(Config{APIURL: ts.URL})
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func anomalyItem(id, account string, amount, score float64, reason string) map[string]any {
	return map[string]any{
		"id":            id,
		"accountId":     account,
		"amount":        amount,
		"currency":      "usd",
		"merchant":      "Acme Corp",
		"anomalyScore":  score,
		"isAnomaly":     true,
		"anomalyReason": reason,
		"timestamp":     "2026-03-15T12:00:00Z",
	}
}

// ============================================================
// Client tests
// ============================================================

func TestClient_DoRequest_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "not_found",
			"message": "transaction not found",
		})
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})
	_, err := client.GetTransaction(context.Background(), "txn_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "transaction not found")
}

func TestClient_DoRequest_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})
	_, err := client.GetStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_DoRequest_ConnectionRefused(t *testing.T) {
	client := NewClient(Config{APIURL: "http://127.0.0.1:1"})
	_, err := client.GetStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_DoRequest_CancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.GetStats(ctx)
	require.Error(t, err)
}

func TestClient_ListAnomalies_QueryParams(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})
	_, err := client.ListAnomalies(context.Background(), "acct-7", "2.5", 10)
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "accountId=acct-7")
	assert.Contains(t, gotQuery, "minScore=2.5")
	assert.Contains(t, gotQuery, "limit=10")
}

func TestClient_ListAnomalies_NoParams(t *testing.T) {
	var gotURL string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})
	_, err := client.ListAnomalies(context.Background(), "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "/v1/anomalies", gotURL)
}

func TestClient_RecomputeScores_OmitsEmptyBounds(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"recomputed":0}`))
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})
	_, err := client.RecomputeScores(context.Background(), "2026-01-01T00:00:00Z", "")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01T00:00:00Z", gotBody["from"])
	_, hasTo := gotBody["to"]
	assert.False(t, hasTo, "empty bound should be omitted from the body")
}

// ============================================================
// Handler tests
// ============================================================

func TestHandleListAnomalies_FormatsRecords(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/anomalies", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				anomalyItem("txn_aaa", "acct-1", 9500, 4.2, "Amount far above account baseline"),
				anomalyItem("txn_bbb", "acct-2", 120, 3.1, ""),
			},
		})
	}))
	defer done()

	result, err := h.HandleListAnomalies(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 anomalous transaction(s)")
	assert.Contains(t, text, "txn_aaa")
	assert.Contains(t, text, "Account: acct-1")
	assert.Contains(t, text, "9500.00 USD")
	assert.Contains(t, text, "Score: 4.20")
	assert.Contains(t, text, "Amount far above account baseline")
}

func TestHandleListAnomalies_Empty(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[],"pagination":{"limit":20,"offset":0,"count":0,"hasMore":false}}`))
	}))
	defer done()

	result, err := h.HandleListAnomalies(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "No anomalies found.", resultText(t, result))
}

func TestHandleListAnomalies_PassesFilters(t *testing.T) {
	var gotQuery string
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer done()

	_, err := h.HandleListAnomalies(context.Background(), makeRequest(map[string]any{
		"account_id": "acct-9",
		"min_score":  "3.5",
		"limit":      5,
	}))
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "accountId=acct-9")
	assert.Contains(t, gotQuery, "minScore=3.5")
	assert.Contains(t, gotQuery, "limit=5")
}

func TestHandleListAnomalies_APIError(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "internal_error", "message": "database unavailable"})
	}))
	defer done()

	result, err := h.HandleListAnomalies(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "database unavailable")
}

func TestHandleListTransactions_MarksFlagged(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transactions", r.URL.Path)
		normal := map[string]any{
			"id": "txn_nnn", "accountId": "acct-1", "amount": 25.0,
			"currency": "usd", "anomalyScore": 0.2, "isAnomaly": false,
			"timestamp": "2026-03-15T12:00:00Z",
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{normal, anomalyItem("txn_fff", "acct-1", 9500, 4.2, "")},
		})
	}))
	defer done()

	result, err := h.HandleListTransactions(context.Background(), makeRequest(map[string]any{
		"account_id": "acct-1",
	}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "txn_nnn (normal)")
	assert.Contains(t, text, "txn_fff (FLAGGED)")
}

func TestHandleGetTransaction_Flagged(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transactions/txn_aaa", r.URL.Path)
		_ = json.NewEncoder(w).Encode(anomalyItem("txn_aaa", "acct-1", 9500, 4.2, ""))
	}))
	defer done()

	result, err := h.HandleGetTransaction(context.Background(), makeRequest(map[string]any{
		"transaction_id": "txn_aaa",
	}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Status: FLAGGED")
	assert.Contains(t, text, "explain_transaction")
}

func TestHandleGetTransaction_Normal(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "txn_bbb", "accountId": "acct-1", "amount": 25.0,
			"currency": "usd", "anomalyScore": 0.4, "isAnomaly": false,
		})
	}))
	defer done()

	result, err := h.HandleGetTransaction(context.Background(), makeRequest(map[string]any{
		"transaction_id": "txn_bbb",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Status: normal")
}

func TestHandleGetTransaction_MissingID(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("API should not be called")
	}))
	defer done()

	result, err := h.HandleGetTransaction(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "transaction_id is required")
}

func TestHandleExplainTransaction_ReturnsReason(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/insights/txn_aaa", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "txn_aaa", "isAnomaly": true, "anomalyScore": 4.2,
			"anomalyReason": "This amount is 40x the account's typical spend.",
			"explained":     true,
		})
	}))
	defer done()

	result, err := h.HandleExplainTransaction(context.Background(), makeRequest(map[string]any{
		"transaction_id": "txn_aaa",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "40x the account's typical spend")
}

func TestHandleExplainTransaction_NotFlagged(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "txn_bbb", "isAnomaly": false, "anomalyScore": 0.3, "explained": false,
		})
	}))
	defer done()

	result, err := h.HandleExplainTransaction(context.Background(), makeRequest(map[string]any{
		"transaction_id": "txn_bbb",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "not flagged")
}

func TestHandleExplainTransaction_ExplanationUnavailable(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "txn_ccc", "isAnomaly": true, "anomalyScore": 3.8, "explained": false,
		})
	}))
	defer done()

	result, err := h.HandleExplainTransaction(context.Background(), makeRequest(map[string]any{
		"transaction_id": "txn_ccc",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError, "unavailable explanation is not an error")
	assert.Contains(t, resultText(t, result), "no explanation is available")
}

func TestHandleRecomputeScores_FullHistory(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/recompute", r.URL.Path)
		_, _ = w.Write([]byte(`{"recomputed":42}`))
	}))
	defer done()

	result, err := h.HandleRecomputeScores(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Rescored 42 transaction(s)")
	assert.Contains(t, text, "full history")
}

func TestHandleRecomputeScores_Window(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"recomputed":7}`))
	}))
	defer done()

	result, err := h.HandleRecomputeScores(context.Background(), makeRequest(map[string]any{
		"from": "2026-03-01T00:00:00Z",
		"to":   "2026-03-31T23:59:59Z",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "2026-03-01T00:00:00Z to 2026-03-31T23:59:59Z")
}

func TestHandleRecomputeScores_InvalidTimestamp(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("API should not be called")
	}))
	defer done()

	result, err := h.HandleRecomputeScores(context.Background(), makeRequest(map[string]any{
		"from": "yesterday",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "RFC 3339")
}

func TestHandleGetStats_FormatsSummary(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/stats", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalTransactions": 1250,
			"totalAnomalies":    17,
			"totalAccounts":     84,
			"maxAnomalyScore":   6.91,
		})
	}))
	defer done()

	result, err := h.HandleGetStats(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Total transactions: 1250")
	assert.Contains(t, text, "Flagged anomalies:  17")
	assert.Contains(t, text, "Highest score:      6.91")
}
