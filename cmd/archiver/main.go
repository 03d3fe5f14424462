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

// BEO Archiver
//
// One-shot command that scans a mailbox for attachment bundles, asks the
// AI analyst whether each bundle is a valid signed BEO submission, and
// files the valid ones into the year/month/day/event archive (local disk
// or OneDrive).
//
// Usage:
//
//	go run ./cmd/archiver/ [--mailbox me] [--since 720h] [--limit 0]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bcem/archiver/internal/agent"
	"github.com/bcem/archiver/internal/archive"
	"github.com/bcem/archiver/internal/config"
	"github.com/bcem/archiver/internal/dedup"
	"github.com/bcem/archiver/internal/extract"
	"github.com/bcem/archiver/internal/graph"
	"github.com/bcem/archiver/internal/journal"
	"github.com/bcem/archiver/internal/models"
	"github.com/bcem/archiver/internal/pipeline"
	"github.com/bcem/archiver/internal/queue"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	mailboxFlag := flag.String("mailbox", "", "Mailbox to scan (default from config; \"me\" = signed-in user)")
	sinceFlag := flag.String("since", "720h", "Lookback duration (e.g. 168h for 1 week, 720h for 30 days)")
	limitFlag := flag.Int("limit", 0, "Maximum bundles to process (0 = no limit)")
	flag.Parse()

	sinceDuration, err := time.ParseDuration(*sinceFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --since duration %q: %v\n", *sinceFlag, err)
		os.Exit(1)
	}

	slog.Info("starting BEO archiver")

	// --- Load Configuration ---
	// A configuration error is the only condition that aborts the run;
	// everything past this point is captured per bundle.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	mailbox := cfg.Mailbox
	if *mailboxFlag != "" {
		mailbox = *mailboxFlag
	}

	slog.Info("configuration loaded",
		"mailbox", mailbox,
		"backend", cfg.Backend,
		"model", cfg.Agent.Model,
		"workers", cfg.Workers,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runID := uuid.New().String()

	// --- Connect to Redis (optional: dedup + outcome queue) ---
	var filter *dedup.Filter
	var publisher *queue.Publisher
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		publisher = queue.NewPublisher(rdb, cfg.OutcomesQueue)
		if err := publisher.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		filter = dedup.NewFilter(rdb, cfg.DedupTTL)
		slog.Info("connected to Redis")
	}

	// --- Connect to Postgres (optional: outcome journal) ---
	var store *journal.Store
	if cfg.DatabaseURL != "" {
		pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		store, err = journal.NewStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise outcome journal", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")
	}

	// --- Build Graph HTTP client ---
	graphClient := buildGraphClient(ctx, cfg.Graph)

	// --- Archive Store ---
	var archiveStore archive.Store
	switch cfg.Backend {
	case config.BackendOneDrive:
		archiveStore = archive.NewDriveStore(graphClient, graphBaseURL, logger)
	default:
		archiveStore = archive.NewLocalStore(cfg.BasePath, logger)
	}

	// --- Fetch bundles from the mailbox ---
	fetcher := graph.NewFetcher(graphClient, graphBaseURL)
	bundles, err := fetcher.FetchBundles(ctx, mailbox, time.Now().UTC().Add(-sinceDuration), *limitFlag)
	if err != nil {
		slog.Error("mailbox scan failed", "error", err)
		os.Exit(1)
	}
	if len(bundles) == 0 {
		slog.Info("no attachment bundles to process")
		return
	}

	// --- Run the pipeline ---
	orchestrator := pipeline.New(pipeline.Config{
		Extractor: extract.NewExtractor(extract.Config{Pdftotext: cfg.Pdftotext}, logger),
		Validator: agent.NewClient(cfg.Agent, logger),
		Store:     archiveStore,
		Dedup:     dedupOrNil(filter),
		Workers:   cfg.Workers,
		Logger:    logger,
	})

	start := time.Now()
	outcomes := orchestrator.Run(ctx, bundles)

	// --- Report outcomes ---
	counts := map[models.OutcomeStatus]int{}
	for _, o := range outcomes {
		counts[o.Status]++

		slog.Info("bundle outcome",
			"message_id", o.MessageID,
			"status", o.Status,
			"detail", o.Detail,
			"location", o.Location,
		)

		if store != nil {
			if err := store.Record(ctx, runID, o); err != nil {
				slog.Warn("journal write failed", "message_id", o.MessageID, "error", err)
			}
		}
		if publisher != nil {
			if err := publisher.PublishOutcome(ctx, runID, o); err != nil {
				slog.Warn("outcome publish failed", "message_id", o.MessageID, "error", err)
			}
		}
	}

	slog.Info("run complete",
		"run_id", runID,
		"bundles", len(outcomes),
		"saved", counts[models.StatusSaved],
		"rejected", counts[models.StatusRejected],
		"skipped", counts[models.StatusSkipped],
		"elapsed", time.Since(start),
	)
}

// buildGraphClient returns an authenticated Graph HTTP client: a static
// token source when an already-valid access token was supplied, app
// credentials otherwise.
func buildGraphClient(ctx context.Context, g config.GraphConfig) *http.Client {
	if g.AccessToken != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: g.AccessToken})
		return oauth2.NewClient(ctx, src)
	}

	creds := &clientcredentials.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", g.TenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	return creds.Client(ctx)
}

// dedupOrNil avoids handing the orchestrator a non-nil interface that
// wraps a nil *dedup.Filter.
func dedupOrNil(f *dedup.Filter) pipeline.DedupFilter {
	if f == nil {
		return nil
	}
	return f
}
