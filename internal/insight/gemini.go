package insight

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"txnsentinel/internal/circuitbreaker"
	"txnsentinel/internal/retry"
	"txnsentinel/internal/transaction"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

const systemPrompt = "You are a risk analyst AI. Given a transaction, assess if it's anomalous or risky. " +
	"Explain briefly (<=60 words) citing specific details like unusual amount, merchant, time, or category. " +
	"Output: 'risk: <low|medium|high>; reason: <short explanation>'"

// GeminiExplainer asks a Gemini model for a short risk explanation.
// Calls retry on transient failures; repeated failures trip a circuit
// breaker so a degraded upstream doesn't stall the annotation workers.
type GeminiExplainer struct {
	client  *genai.Client
	model   string
	breaker *circuitbreaker.Breaker
}

// NewGeminiExplainer creates a Gemini-backed explainer. The API key comes
// from configuration; an empty model falls back to DefaultGeminiModel.
func NewGeminiExplainer(ctx context.Context, apiKey, model string) (*GeminiExplainer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiExplainer{
		client:  client,
		model:   model,
		breaker: circuitbreaker.New("gemini", 5, 30*time.Second),
	}, nil
}

// Explain summarizes the transaction for the model and returns its verdict.
// Any transport error, quota error, or empty response yields ErrUnavailable.
func (g *GeminiExplainer) Explain(ctx context.Context, txn *transaction.Transaction) (string, error) {
	userMsg := fmt.Sprintf(
		"Assess risk for: id=%s, account=%s, amount=%g %s, merchant='%s', category='%s', timestamp='%s'",
		txn.Key, txn.AccountID, txn.Amount, txn.Currency, txn.Merchant, txn.Category,
		txn.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
	)

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: userMsg}},
		},
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
		Temperature:       genai.Ptr[float32](0.2),
		MaxOutputTokens:   120,
	}

	if !g.breaker.Allow() {
		return "", fmt.Errorf("%w: circuit open", ErrUnavailable)
	}

	var resp *genai.GenerateContentResponse
	err := retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		var callErr error
		resp, callErr = g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
		return callErr
	})
	if err != nil {
		g.breaker.RecordFailure()
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	g.breaker.RecordSuccess()

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrUnavailable
	}
	return text, nil
}
