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

// Package queue publishes per-bundle outcome records to a Redis list so
// downstream reporting (dashboards, notification bots) can consume them
// without touching the archive itself.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/archiver/internal/models"
)

// Publisher sends outcome records to a Redis queue.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// envelope wraps an outcome for transport.
type envelope struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	RecordedAt string         `json:"recorded_at"`
	Outcome    models.Outcome `json:"outcome"`
}

// PublishOutcome serialises one bundle outcome and pushes it onto the
// queue. Failures are the caller's to log; the archive result stands
// regardless.
func (p *Publisher) PublishOutcome(ctx context.Context, runID string, outcome models.Outcome) error {
	msg := envelope{
		ID:         uuid.New().String(),
		RunID:      runID,
		RecordedAt: time.Now().UTC().Format(time.RFC3339),
		Outcome:    outcome,
	}

	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(msgJSON)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Debug("published outcome to queue",
		"message_id", outcome.MessageID,
		"status", outcome.Status,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
