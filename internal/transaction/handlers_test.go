package transaction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handlerRouter(t *testing.T) (*gin.Engine, *MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := NewMemoryStore()
	router := gin.New()
	NewHandler(store).RegisterRoutes(router.Group("/v1"))
	return router, store
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

type listResponse struct {
	Transactions []*Transaction `json:"transactions"`
	Pagination   struct {
		Count   int  `json:"count"`
		HasMore bool `json:"hasMore"`
	} `json:"pagination"`
}

func TestListTransactions(t *testing.T) {
	router, store := handlerRouter(t)
	seedListFixtures(t, store)

	w := get(router, "/v1/transactions")
	require.Equal(t, http.StatusOK, w.Code)

	var res listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Transactions, 4)
	assert.Equal(t, "txn_4", res.Transactions[0].ID) // newest first
	assert.False(t, res.Pagination.HasMore)
}

func TestListTransactions_Filtered(t *testing.T) {
	router, store := handlerRouter(t)
	seedListFixtures(t, store)

	w := get(router, "/v1/transactions?accountId=acct-1&minScore=1.0")
	require.Equal(t, http.StatusOK, w.Code)

	var res listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, "txn_2", res.Transactions[0].ID)
}

func TestListTransactions_Window(t *testing.T) {
	router, store := handlerRouter(t)
	seedListFixtures(t, store)

	w := get(router, "/v1/transactions?from=2026-03-01T13:00:00Z&to=2026-03-01T14:00:00Z")
	require.Equal(t, http.StatusOK, w.Code)

	var res listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Len(t, res.Transactions, 2) // bounds are inclusive
}

func TestListTransactions_Paging(t *testing.T) {
	router, store := handlerRouter(t)
	seedListFixtures(t, store)

	w := get(router, "/v1/transactions?limit=3")
	require.Equal(t, http.StatusOK, w.Code)

	var res listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Len(t, res.Transactions, 3)
	assert.True(t, res.Pagination.HasMore)
}

func TestListTransactions_MalformedParams(t *testing.T) {
	router, _ := handlerRouter(t)

	for _, path := range []string{
		"/v1/transactions?minScore=abc",
		"/v1/transactions?from=yesterday",
		"/v1/transactions?orderBy=color",
	} {
		w := get(router, path)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestGetTransaction(t *testing.T) {
	router, store := handlerRouter(t)
	seedListFixtures(t, store)

	w := get(router, "/v1/transactions/txn_2")
	require.Equal(t, http.StatusOK, w.Code)

	var txn Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txn))
	assert.Equal(t, "k2", txn.Key)
	assert.True(t, txn.IsAnomaly)

	w = get(router, "/v1/transactions/txn_missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAnomalies(t *testing.T) {
	router, store := handlerRouter(t)
	seedListFixtures(t, store)

	w := get(router, "/v1/anomalies")
	require.Equal(t, http.StatusOK, w.Code)

	var res listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Transactions, 2)
	// Highest score first, flagged only
	assert.Equal(t, "txn_2", res.Transactions[0].ID)
	assert.Equal(t, "txn_4", res.Transactions[1].ID)
	for _, txn := range res.Transactions {
		assert.True(t, txn.IsAnomaly)
	}
}

func TestGetStats(t *testing.T) {
	router, store := handlerRouter(t)
	seedListFixtures(t, store)

	w := get(router, "/v1/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var stats Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(4), stats.TotalTransactions)
	assert.Equal(t, int64(2), stats.TotalAnomalies)
	assert.False(t, stats.UpdatedAt.IsZero())
}

// sanity check that store context plumbing does not block
func TestStoreContextPassthrough(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := store.List(ctx, Query{})
	assert.NoError(t, err)
}
