package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the txnsentinel MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolListAnomalies = mcp.NewTool("list_anomalies",
	mcp.WithDescription(
		"List transactions flagged as anomalous, highest scores first. "+
			"Use this to see what the scoring engine currently considers suspicious."),
	mcp.WithString("account_id",
		mcp.Description("Filter by account identifier (e.g. 'acct-42')")),
	mcp.WithString("min_score",
		mcp.Description("Only return records at or above this anomaly score (e.g. '3.0')")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of records to return (default 20)")),
)

var ToolListTransactions = mcp.NewTool("list_transactions",
	mcp.WithDescription(
		"List recent transactions, newest first, flagged or not. "+
			"Use list_anomalies instead when only suspicious activity matters."),
	mcp.WithString("account_id",
		mcp.Description("Filter by account identifier")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of records to return (default 20)")),
)

var ToolGetTransaction = mcp.NewTool("get_transaction",
	mcp.WithDescription(
		"Fetch a single transaction record by ID, including its anomaly score, "+
			"flag, and attached explanation if one exists."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("The transaction's ID (e.g. 'txn_1a2b...')")),
)

var ToolExplainTransaction = mcp.NewTool("explain_transaction",
	mcp.WithDescription(
		"Request a natural-language risk explanation for a flagged transaction. "+
			"If the record already has an explanation it is returned as-is; "+
			"unflagged records have nothing to explain."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("The transaction's ID")),
)

var ToolRecomputeScores = mcp.NewTool("recompute_scores",
	mcp.WithDescription(
		"Rescore stored transaction history over an optional time window. "+
			"Grouping is per account across the matched set, so flags may change "+
			"in either direction. Omit both bounds to rescore everything."),
	mcp.WithString("from",
		mcp.Description("Inclusive window start, RFC 3339 (e.g. '2026-03-01T00:00:00Z')")),
	mcp.WithString("to",
		mcp.Description("Inclusive window end, RFC 3339")),
)

var ToolGetStats = mcp.NewTool("get_stats",
	mcp.WithDescription(
		"Get pipeline statistics: total transactions, flagged anomalies, "+
			"distinct accounts, and the highest anomaly score on record."),
)
