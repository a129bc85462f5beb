// Package admin provides the client for the admin-service data origin.
//
// Tenant configuration (AI settings, escalation keywords, the intent-phrase
// export) is resolved cache-then-origin and degrades to documented defaults
// when the origin is unreachable, so message processing never blocks on the
// admin service. The live agent roster is always fetched from the origin.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/eroshenko/chatdesk/internal/cache"
	"github.com/eroshenko/chatdesk/internal/domain"
)

// Client talks to the admin service over HTTP/JSON.
type Client struct {
	baseURL  string
	http     *http.Client
	cache    *cache.Cache
	tenantID int64
}

// NewClient creates an admin client scoped to one tenant.
func NewClient(baseURL string, timeout time.Duration, configCache *cache.Cache, tenantID int64) *Client {
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: timeout},
		cache:    configCache,
		tenantID: tenantID,
	}
}

// AISettings resolves the tenant's routing thresholds. On any origin or
// cache failure the documented default (threshold 60) is substituted.
func (c *Client) AISettings(ctx context.Context) domain.AISettings {
	key := fmt.Sprintf("ai-settings:%d", c.tenantID)

	var settings domain.AISettings
	if hit, err := c.cache.Get(ctx, key, &settings); err == nil && hit {
		return settings
	} else if err != nil {
		slog.Warn("AI settings cache lookup failed", "error", err)
	}

	path := fmt.Sprintf("/user/%d/ai-settings", c.tenantID)
	if err := c.getJSON(ctx, path, &settings); err != nil {
		slog.Warn("AI settings fetch failed, using defaults", "error", err)
		return domain.DefaultAISettings()
	}

	if err := c.cache.Set(ctx, key, settings, cache.MediumTTL); err != nil {
		slog.Warn("AI settings cache store failed", "error", err)
	}
	return settings
}

// EscalationKeywords resolves the tenant's handoff keyword list, degrading
// to an empty list on failure.
func (c *Client) EscalationKeywords(ctx context.Context) []string {
	key := fmt.Sprintf("escalation-keywords:%d", c.tenantID)

	var keywords []string
	if hit, err := c.cache.Get(ctx, key, &keywords); err == nil && hit {
		return keywords
	} else if err != nil {
		slog.Warn("Escalation keywords cache lookup failed", "error", err)
	}

	var payload struct {
		Keywords []string `json:"keywords"`
	}
	path := fmt.Sprintf("/user/%d/escalation-keywords", c.tenantID)
	if err := c.getJSON(ctx, path, &payload); err != nil {
		slog.Warn("Escalation keywords fetch failed, using empty list", "error", err)
		return []string{}
	}
	keywords = payload.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	if err := c.cache.Set(ctx, key, keywords, cache.MediumTTL); err != nil {
		slog.Warn("Escalation keywords cache store failed", "error", err)
	}
	return keywords
}

// IntentPhrases resolves the global intent-phrase table from the NLP
// export, degrading to an empty mapping on failure. The table changes
// rarely, so it is cached with the long TTL.
func (c *Client) IntentPhrases(ctx context.Context) map[string][]string {
	const key = "intent-phrases"

	var phrases map[string][]string
	if hit, err := c.cache.Get(ctx, key, &phrases); err == nil && hit {
		return phrases
	} else if err != nil {
		slog.Warn("Intent phrases cache lookup failed", "error", err)
	}

	var payload struct {
		Intents []struct {
			Name    string   `json:"name"`
			Phrases []string `json:"phrases"`
		} `json:"intents"`
	}
	if err := c.getJSON(ctx, "/nlp/export", &payload); err != nil {
		slog.Warn("Intent phrase export fetch failed, using empty table", "error", err)
		return map[string][]string{}
	}

	phrases = make(map[string][]string, len(payload.Intents))
	for _, intent := range payload.Intents {
		phrases[intent.Name] = intent.Phrases
	}

	if err := c.cache.Set(ctx, key, phrases, cache.LongTTL); err != nil {
		slog.Warn("Intent phrase cache store failed", "error", err)
	}
	return phrases
}

// AvailableAgents fetches the live roster of agents eligible for
// escalation assignment. Roster freshness matters, so this is never cached.
func (c *Client) AvailableAgents(ctx context.Context) ([]domain.Agent, error) {
	var payload struct {
		Agents []domain.Agent `json:"agents"`
	}
	if err := c.getJSON(ctx, "/agents/available", &payload); err != nil {
		return nil, fmt.Errorf("fetch available agents: %w", err)
	}
	return payload.Agents, nil
}

// Agent roster statuses.
const (
	AgentBusy      = "busy"
	AgentAvailable = "available"
)

// SetAgentStatus marks an agent busy or available in the roster. Called by
// the realtime layer on agent connect/disconnect.
func (c *Client) SetAgentStatus(ctx context.Context, agentID int64, status string) error {
	body, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return fmt.Errorf("encode agent status: %w", err)
	}

	url := fmt.Sprintf("%s/agents/%d/status", c.baseURL, agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build agent status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("set agent status: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("set agent status: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("request %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}
	return nil
}
