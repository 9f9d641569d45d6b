package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers implements the MCP tool handlers against the txnsentinel API.
type Handlers struct {
	client *Client
}

// NewHandlers creates handlers backed by the given API client.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// HandleListAnomalies handles the list_anomalies tool.
func (h *Handlers) HandleListAnomalies(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accountID := req.GetString("account_id", "")
	minScore := req.GetString("min_score", "")
	limit := req.GetInt("limit", 20)

	result, err := h.client.ListAnomalies(ctx, accountID, minScore, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list anomalies: %v", err)), nil
	}

	records := parseListItems(result)
	if len(records) == 0 {
		return mcp.NewToolResultText("No anomalies found."), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d anomalous transaction(s):\n\n", len(records)))
	for i, rec := range records {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, getString(rec, "id")))
		sb.WriteString(fmt.Sprintf("   Account: %s\n", getString(rec, "accountId")))
		sb.WriteString(fmt.Sprintf("   Amount: %s\n", formatAmount(getFloat(rec, "amount"), getString(rec, "currency"))))
		if merchant := getString(rec, "merchant"); merchant != "" {
			sb.WriteString(fmt.Sprintf("   Merchant: %s\n", merchant))
		}
		sb.WriteString(fmt.Sprintf("   Score: %.2f\n", getFloat(rec, "anomalyScore")))
		if reason := getString(rec, "anomalyReason"); reason != "" {
			sb.WriteString(fmt.Sprintf("   Reason: %s\n", reason))
		}
		if ts := getString(rec, "timestamp"); ts != "" {
			sb.WriteString(fmt.Sprintf("   Time: %s\n", ts))
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleListTransactions handles the list_transactions tool.
func (h *Handlers) HandleListTransactions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accountID := req.GetString("account_id", "")
	limit := req.GetInt("limit", 20)

	result, err := h.client.ListTransactions(ctx, accountID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list transactions: %v", err)), nil
	}

	records := parseListItems(result)
	if len(records) == 0 {
		return mcp.NewToolResultText("No transactions found."), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d transaction(s):\n\n", len(records)))
	for i, rec := range records {
		status := "normal"
		if flagged, ok := rec["isAnomaly"].(bool); ok && flagged {
			status = "FLAGGED"
		}
		sb.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, getString(rec, "id"), status))
		sb.WriteString(fmt.Sprintf("   Account: %s\n", getString(rec, "accountId")))
		sb.WriteString(fmt.Sprintf("   Amount: %s\n", formatAmount(getFloat(rec, "amount"), getString(rec, "currency"))))
		sb.WriteString(fmt.Sprintf("   Score: %.2f\n", getFloat(rec, "anomalyScore")))
		if ts := getString(rec, "timestamp"); ts != "" {
			sb.WriteString(fmt.Sprintf("   Time: %s\n", ts))
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleGetTransaction handles the get_transaction tool.
func (h *Handlers) HandleGetTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("transaction_id")
	if err != nil {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}

	result, err := h.client.GetTransaction(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get transaction: %v", err)), nil
	}

	var rec map[string]any
	if err := json.Unmarshal(result, &rec); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Transaction %s\n", getString(rec, "id")))
	sb.WriteString(fmt.Sprintf("  Account: %s\n", getString(rec, "accountId")))
	sb.WriteString(fmt.Sprintf("  Amount: %s\n", formatAmount(getFloat(rec, "amount"), getString(rec, "currency"))))
	if merchant := getString(rec, "merchant"); merchant != "" {
		sb.WriteString(fmt.Sprintf("  Merchant: %s\n", merchant))
	}
	if category := getString(rec, "category"); category != "" {
		sb.WriteString(fmt.Sprintf("  Category: %s\n", category))
	}
	if ts := getString(rec, "timestamp"); ts != "" {
		sb.WriteString(fmt.Sprintf("  Time: %s\n", ts))
	}
	sb.WriteString(fmt.Sprintf("  Anomaly score: %.2f\n", getFloat(rec, "anomalyScore")))
	if flagged, ok := rec["isAnomaly"].(bool); ok && flagged {
		sb.WriteString("  Status: FLAGGED\n")
		if reason := getString(rec, "anomalyReason"); reason != "" {
			sb.WriteString(fmt.Sprintf("  Reason: %s\n", reason))
		} else {
			sb.WriteString("  Reason: not yet explained (use explain_transaction)\n")
		}
	} else {
		sb.WriteString("  Status: normal\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleExplainTransaction handles the explain_transaction tool.
func (h *Handlers) HandleExplainTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("transaction_id")
	if err != nil {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}

	result, err := h.client.ExplainTransaction(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to explain transaction: %v", err)), nil
	}

	var rec map[string]any
	if err := json.Unmarshal(result, &rec); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	flagged, _ := rec["isAnomaly"].(bool)
	if !flagged {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Transaction %s is not flagged as anomalous (score %.2f); nothing to explain.",
			getString(rec, "id"), getFloat(rec, "anomalyScore"))), nil
	}

	reason := getString(rec, "anomalyReason")
	if reason == "" {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Transaction %s is flagged (score %.2f) but no explanation is available right now. Try again later.",
			getString(rec, "id"), getFloat(rec, "anomalyScore"))), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Transaction %s (score %.2f):\n\n", getString(rec, "id"), getFloat(rec, "anomalyScore")))
	sb.WriteString(reason)
	sb.WriteString("\n")
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleRecomputeScores handles the recompute_scores tool.
func (h *Handlers) HandleRecomputeScores(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from := req.GetString("from", "")
	to := req.GetString("to", "")

	for name, v := range map[string]string{"from": from, "to": to} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339, v); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid %s timestamp %q: must be RFC 3339", name, v)), nil
		}
	}

	result, err := h.client.RecomputeScores(ctx, from, to)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to recompute scores: %v", err)), nil
	}

	var resp struct {
		Recomputed int `json:"recomputed"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	window := "the full history"
	switch {
	case from != "" && to != "":
		window = fmt.Sprintf("the window %s to %s", from, to)
	case from != "":
		window = fmt.Sprintf("everything from %s onward", from)
	case to != "":
		window = fmt.Sprintf("everything up to %s", to)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Rescored %d transaction(s) over %s.", resp.Recomputed, window)), nil
}

// HandleGetStats handles the get_stats tool.
func (h *Handlers) HandleGetStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.client.GetStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get stats: %v", err)), nil
	}

	var rec map[string]any
	if err := json.Unmarshal(result, &rec); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("Pipeline statistics:\n")
	sb.WriteString(fmt.Sprintf("  Total transactions: %.0f\n", getFloat(rec, "totalTransactions")))
	sb.WriteString(fmt.Sprintf("  Flagged anomalies:  %.0f\n", getFloat(rec, "totalAnomalies")))
	sb.WriteString(fmt.Sprintf("  Distinct accounts:  %.0f\n", getFloat(rec, "totalAccounts")))
	sb.WriteString(fmt.Sprintf("  Highest score:      %.2f\n", getFloat(rec, "maxAnomalyScore")))
	return mcp.NewToolResultText(sb.String()), nil
}

// parseListItems extracts the items array from a paginated list response.
func parseListItems(raw json.RawMessage) []map[string]any {
	var resp struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil
	}
	return resp.Items
}

func formatAmount(amount float64, currency string) string {
	if currency == "" {
		return fmt.Sprintf("%.2f", amount)
	}
	return fmt.Sprintf("%.2f %s", amount, strings.ToUpper(currency))
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getFloat(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}
