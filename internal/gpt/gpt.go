package gpt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"home-autopilot/internal/actions"
	"home-autopilot/internal/rules"
	"home-autopilot/internal/stats"
)

const systemPrompt = "Du bist ein Assistent für Hausautomatisierung. " +
	"Du erhältst Messwerte, Abweichungen und vorgeschlagene Maßnahmen als JSON. " +
	"Antworte ausschließlich mit einem JSON-Array von Objekten {\"id\", \"description\"}, " +
	"das die Beschreibungen der Maßnahmen präzisiert. Erfinde keine neuen Maßnahmen."

// Enricher refines proposed actions with model-generated descriptions.
type Enricher interface {
	Enrich(ctx context.Context, record *stats.Record, deviations []rules.Deviation, proposed []actions.Action) ([]actions.Action, error)
}

// Options configure the OpenAI chat completions client.
type Options struct {
	APIKey  string
	APIBase string
	Model   string
	Timeout time.Duration
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  zerolog.Logger
}

// NewClient constructs an enrichment client. The API key must be set.
func NewClient(opts Options, logger zerolog.Logger) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gpt api key is required")
	}
	base := strings.TrimRight(opts.APIBase, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		apiKey:  opts.APIKey,
		apiBase: base,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "gpt").Logger(),
	}, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type suggestion struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Enrich sends the cycle context to the model and applies returned description
// refinements to matching actions. Unmatched suggestions are dropped.
func (c *Client) Enrich(ctx context.Context, record *stats.Record, deviations []rules.Deviation, proposed []actions.Action) ([]actions.Action, error) {
	if len(proposed) == 0 {
		return proposed, nil
	}

	payload, err := json.Marshal(map[string]any{
		"stats":      record,
		"deviations": deviations,
		"actions":    proposed,
	})
	if err != nil {
		return proposed, fmt.Errorf("marshal gpt payload: %w", err)
	}

	reqBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(payload)},
		},
	})
	if err != nil {
		return proposed, fmt.Errorf("marshal chat request: %w", err)
	}

	url := c.apiBase + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return proposed, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return proposed, fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return proposed, fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return proposed, fmt.Errorf("chat completions status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return proposed, fmt.Errorf("decode chat response: %w", err)
	}
	if decoded.Error != nil {
		return proposed, fmt.Errorf("chat completions error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return proposed, fmt.Errorf("chat completions returned no choices")
	}

	suggestions, err := parseSuggestions(decoded.Choices[0].Message.Content)
	if err != nil {
		return proposed, err
	}

	byID := make(map[string]string, len(suggestions))
	for _, s := range suggestions {
		if s.ID != "" && strings.TrimSpace(s.Description) != "" {
			byID[s.ID] = strings.TrimSpace(s.Description)
		}
	}

	enriched := make([]actions.Action, len(proposed))
	copy(enriched, proposed)
	applied := 0
	for i := range enriched {
		if desc, ok := byID[enriched[i].ID]; ok {
			enriched[i].Description = desc
			applied++
		}
	}

	c.logger.Debug().Int("suggestions", len(suggestions)).Int("applied", applied).Msg("GPT-Anreicherung abgeschlossen")
	return enriched, nil
}

// parseSuggestions tolerates fenced code blocks around the JSON array.
func parseSuggestions(content string) ([]suggestion, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var suggestions []suggestion
	if err := json.Unmarshal([]byte(trimmed), &suggestions); err != nil {
		return nil, fmt.Errorf("parse gpt suggestions: %w", err)
	}
	return suggestions, nil
}

var _ Enricher = (*Client)(nil)
