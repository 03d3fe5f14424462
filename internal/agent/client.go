// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package agent classifies attachment bundles with an AI service. It
// sends the extracted document text to a chat/completions endpoint with
// a fixed analyst instruction set, validates the response against a
// strict JSON schema, and returns a verdict with structured fields. A
// schema-invalid response is a ClassificationError (retryable), never an
// implicit "invalid" verdict.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/archiver/internal/config"
	"github.com/bcem/archiver/internal/models"
)

// ClassificationError reports an AI call that failed or returned a
// schema-invalid response. Retryable errors (transport failure, timeout,
// rate limit, malformed response) are retried with backoff; the rest
// (bad credentials) fail the bundle immediately.
type ClassificationError struct {
	Reason    string
	Retryable bool
	Err       error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification: %s: %v", e.Reason, e.Err)
	}
	return "classification: " + e.Reason
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// Client calls the AI classification service.
type Client struct {
	cfg    config.AgentConfig
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a validation agent client.
func NewClient(cfg config.AgentConfig, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = 48000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Validate classifies one bundle's documents and returns the verdict.
// Retryable classification errors are retried with exponential backoff
// up to MaxAttempts; the caller maps an exhausted error to a skipped
// outcome, never to a rejected one.
func (c *Client) Validate(ctx context.Context, docs []Document) (models.Verdict, error) {
	rid := uuid.New().String()

	c.logger.Info("agent.validate.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"documents", len(docs),
	)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		verdict, err := c.classify(ctx, rid, attempt, docs)
		if err == nil {
			c.logger.Info("agent.validate.ok",
				"req_id", rid,
				"attempt", attempt,
				"valid", verdict.Valid,
				"confidence", verdict.Confidence,
			)
			return verdict, nil
		}
		lastErr = err

		var cerr *ClassificationError
		if !errors.As(err, &cerr) || !cerr.Retryable {
			return models.Verdict{}, err
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}

		backoff := c.cfg.RetryBackoff << (attempt - 1)
		c.logger.Warn("agent.validate.retry",
			"req_id", rid,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return models.Verdict{}, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return models.Verdict{}, fmt.Errorf("classification attempts exhausted after %d tries: %w", c.cfg.MaxAttempts, lastErr)
}

// wireVerdict mirrors the JSON the model must return.
type wireVerdict struct {
	Valid          bool    `json:"valid"`
	Confidence     float64 `json:"confidence"`
	DocumentNumber string  `json:"document_number"`
	EventDate      string  `json:"event_date"`
	ClientName     string  `json:"client_name"`
	Reason         string  `json:"reason"`
}

// classify performs a single chat/completions call.
func (c *Client) classify(ctx context.Context, rid string, attempt int, docs []Document) (models.Verdict, error) {
	schema := buildVerdictJSONSchema()

	instructions := analystInstructions
	if policy := strings.TrimSpace(c.cfg.BundlePolicy); policy != "" {
		instructions += "\n\nBundle policy: " + policy
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": instructions},
			{"role": "user", "content": buildUserPrompt(docs, c.cfg.MaxInputChars)},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	raw, err := c.post(ctx, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", body)
	if err != nil {
		return models.Verdict{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return models.Verdict{}, &ClassificationError{Reason: "decode response", Retryable: true, Err: err}
	}
	if len(cc.Choices) == 0 {
		return models.Verdict{}, &ClassificationError{Reason: "no choices in response", Retryable: true}
	}
	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))

	if err := validateJSONAgainstSchema(schema, content); err != nil {
		c.logger.Warn("agent.validate.schema_invalid",
			"req_id", rid,
			"attempt", attempt,
			"error", err,
		)
		return models.Verdict{}, &ClassificationError{Reason: "schema validation failed", Retryable: true, Err: err}
	}

	var wire wireVerdict
	if err := json.Unmarshal(content, &wire); err != nil {
		return models.Verdict{}, &ClassificationError{Reason: "unmarshal verdict", Retryable: true, Err: err}
	}

	verdict := models.Verdict{
		Valid:      wire.Valid,
		Confidence: wire.Confidence,
		Reason:     wire.Reason,
	}
	if !wire.Valid {
		return verdict, nil
	}

	eventDate, err := time.Parse("2006-01-02", wire.EventDate)
	if err != nil {
		return models.Verdict{}, &ClassificationError{Reason: "unparseable event date", Retryable: true, Err: err}
	}

	verdict.Fields = &models.StructuredFields{
		EventDate:      eventDate,
		DocumentNumber: normalizeDocumentNumber(wire.DocumentNumber),
		ClientName:     strings.TrimSpace(wire.ClientName),
	}
	if verdict.Fields.DocumentNumber == "" || verdict.Fields.ClientName == "" {
		return models.Verdict{}, &ClassificationError{Reason: "empty structured field", Retryable: true}
	}

	return verdict, nil
}

// post sends the request and classifies transport failures. 429 and
// 5xx-class responses are retryable; 401/403 are not.
func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ClassificationError{Reason: "transport failure", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ClassificationError{Reason: "read response", Retryable: true, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return raw, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &ClassificationError{
			Reason:    fmt.Sprintf("service returned HTTP %d", resp.StatusCode),
			Retryable: true,
		}
	default:
		return nil, &ClassificationError{
			Reason:    fmt.Sprintf("service returned HTTP %d: %s", resp.StatusCode, truncate(string(raw), 512)),
			Retryable: false,
		}
	}
}

// normalizeDocumentNumber left-pads all-digit BEO numbers to five digits,
// matching the canonical archive layout.
func normalizeDocumentNumber(n string) string {
	n = strings.TrimSpace(n)
	if n == "" {
		return ""
	}
	for len(n) < 5 {
		n = "0" + n
	}
	return n
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
