// Package nlp provides the outbound client for the classification service.
package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eroshenko/chatdesk/internal/domain"
)

// Dependency is the circuit-breaker name for the classification service.
const Dependency = "nlp_service"

// Client wraps the classification service's parse endpoint. Every call
// carries a short timeout; retry count and backoff are policy, not
// constants.
type Client struct {
	parseURL string
	http     *http.Client
	attempts int
	backoff  time.Duration
}

// NewClient creates a classification client. attempts counts the first
// call, so attempts=1 means single-shot.
func NewClient(baseURL string, timeout time.Duration, attempts int, backoff time.Duration) *Client {
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		parseURL: baseURL + "/nlp/parse",
		http:     &http.Client{Timeout: timeout},
		attempts: attempts,
		backoff:  backoff,
	}
}

type parseThresholds struct {
	ConfidenceHigh   float64 `json:"confidence_high"`
	ConfidenceMedium float64 `json:"confidence_medium"`
}

type parseRequest struct {
	Text               string              `json:"text"`
	AISettings         parseThresholds     `json:"ai_settings"`
	EscalationKeywords []string            `json:"escalation_keywords"`
	IntentPhrases      map[string][]string `json:"intent_phrases"`
}

// Parse classifies text, passing the tenant's routing thresholds as
// fractions of the percentage threshold. Any transport failure, timeout, or
// non-2xx response is returned as an error; the caller owns breaker
// bookkeeping and fallback substitution.
func (c *Client) Parse(ctx context.Context, text string, settings domain.AISettings, keywords []string, phrases map[string][]string) (*domain.Classification, error) {
	if keywords == nil {
		keywords = []string{}
	}
	if phrases == nil {
		phrases = map[string][]string{}
	}
	payload := parseRequest{
		Text: text,
		AISettings: parseThresholds{
			ConfidenceHigh:   float64(settings.ConfidenceThreshold) / 100,
			ConfidenceMedium: float64(settings.ConfidenceThreshold-20) / 100,
		},
		EscalationKeywords: keywords,
		IntentPhrases:      phrases,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode parse request: %w", err)
	}

	var lastErr error
	for i := 0; i < c.attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		result, err := c.parseOnce(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) parseOnce(ctx context.Context, body []byte) (*domain.Classification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.parseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build parse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classification call: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("classification call: unexpected status %d", resp.StatusCode)
	}

	var result domain.Classification
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode classification result: %w", err)
	}
	return &result, nil
}

// SystemErrorResult is the synthetic result substituted when the
// classification call fails in transport.
func SystemErrorResult() *domain.Classification {
	return syntheticResult(domain.IntentSystemError)
}

// SystemUnavailableResult is the synthetic result substituted when the
// breaker is open and the call is skipped entirely.
func SystemUnavailableResult() *domain.Classification {
	return syntheticResult(domain.IntentSystemUnavailable)
}

func syntheticResult(intent string) *domain.Classification {
	return &domain.Classification{
		Intent:              intent,
		Confidence:          0,
		Entities:            map[string]string{},
		Route:               domain.RouteFallback,
		HandoffDetected:     true,
		FallbackSuggestions: []string{},
	}
}
