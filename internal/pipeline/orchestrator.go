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

// Package pipeline drives attachment bundles through extraction,
// classification, path resolution, and archival. Bundles are independent
// units of work processed by a bounded worker pool; one bundle's failure
// never aborts its siblings, and the pool size caps in-flight AI calls.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bcem/archiver/internal/agent"
	"github.com/bcem/archiver/internal/archive"
	"github.com/bcem/archiver/internal/models"
)

// Extractor converts one attachment's PDF bytes into ordered page texts.
type Extractor interface {
	ExtractPages(ctx context.Context, filename string, pdf []byte) ([]string, error)
}

// Validator classifies a bundle's documents and returns a verdict.
type Validator interface {
	Validate(ctx context.Context, docs []agent.Document) (models.Verdict, error)
}

// DedupFilter reports whether a message has been processed before.
type DedupFilter interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
}

// Config holds dependencies for the orchestrator. Dedup is optional.
type Config struct {
	Extractor Extractor
	Validator Validator
	Store     archive.Store
	Dedup     DedupFilter
	Workers   int
	Logger    *slog.Logger
}

// Orchestrator runs the validate-extract-file pipeline.
type Orchestrator struct {
	extractor Extractor
	validator Validator
	store     archive.Store
	dedup     DedupFilter
	workers   int
	logger    *slog.Logger
}

// New creates a pipeline orchestrator.
func New(cfg Config) *Orchestrator {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		extractor: cfg.Extractor,
		validator: cfg.Validator,
		store:     cfg.Store,
		dedup:     cfg.Dedup,
		workers:   workers,
		logger:    logger,
	}
}

// Run processes all bundles with bounded parallelism and returns one
// terminal outcome per bundle, in completion order.
func (o *Orchestrator) Run(ctx context.Context, bundles []models.AttachmentBundle) []models.Outcome {
	jobs := make(chan models.AttachmentBundle)
	results := make(chan models.Outcome)

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for bundle := range jobs {
				results <- o.processBundle(ctx, bundle)
			}
		}(i + 1)
	}

	go func() {
		defer close(jobs)
		for _, b := range bundles {
			select {
			case jobs <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]models.Outcome, 0, len(bundles))
	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// processBundle walks one bundle through the state machine:
// Received -> TextExtracted -> Classified -> {PathResolved -> Stored | Invalid | Skipped}.
func (o *Orchestrator) processBundle(ctx context.Context, bundle models.AttachmentBundle) models.Outcome {
	log := o.logger.With("message_id", bundle.MessageID)
	log.Info("bundle received",
		"subject", bundle.Subject,
		"attachments", len(bundle.Attachments),
	)

	if o.dedup != nil {
		isNew, err := o.dedup.IsNew(ctx, bundle.MessageID)
		if err != nil {
			log.Warn("dedup check failed", "error", err)
		} else if !isNew {
			log.Info("bundle already processed")
			return skipped(bundle, "duplicate message")
		}
	}

	// TextExtracted: an unreadable attachment skips the whole bundle,
	// since validity may depend on every document in it.
	docs := make([]agent.Document, 0, len(bundle.Attachments))
	for _, att := range bundle.Attachments {
		pages, err := o.extractor.ExtractPages(ctx, att.Filename, att.Content)
		if err != nil {
			log.Warn("text extraction failed", "attachment", att.Filename, "error", err)
			return skipped(bundle, fmt.Sprintf("extract %s: %v", att.Filename, err))
		}
		docs = append(docs, agent.Document{Name: att.Filename, Pages: pages})
	}
	log.Debug("bundle text extracted", "documents", len(docs))

	// Classified: exhausted retries or a dead credential are reported
	// as skipped with the failure reason, never as a false rejection.
	verdict, err := o.validator.Validate(ctx, docs)
	if err != nil {
		log.Warn("classification failed", "error", err)
		return skipped(bundle, err.Error())
	}

	if !verdict.Valid {
		reason := verdict.Reason
		if reason == "" {
			reason = "not a valid signed BEO bundle"
		}
		log.Info("bundle rejected", "reason", reason, "confidence", verdict.Confidence)
		return models.Outcome{
			MessageID: bundle.MessageID,
			Subject:   bundle.Subject,
			Status:    models.StatusRejected,
			Detail:    reason,
		}
	}

	// PathResolved
	path := archive.ResolvePath(*verdict.Fields)
	log.Info("bundle classified valid",
		"document_number", verdict.Fields.DocumentNumber,
		"client", verdict.Fields.ClientName,
		"path", path.String(),
	)

	// Stored: every PDF of the valid bundle lands in the event folder.
	// WriteFileIfAbsent makes reruns and overlapping verdicts no-ops.
	folder, err := o.store.EnsureFolder(ctx, path)
	if err != nil {
		log.Error("ensure folder failed", "path", path.String(), "error", err)
		return skipped(bundle, fmt.Sprintf("storage: %v", err))
	}

	var location string
	created := 0
	for _, att := range bundle.Attachments {
		res, err := o.store.WriteFileIfAbsent(ctx, folder, archive.SafeFilename(att.Filename), att.Content)
		if err != nil {
			log.Error("write file failed", "attachment", att.Filename, "error", err)
			return skipped(bundle, fmt.Sprintf("storage: %v", err))
		}
		if res.Created {
			created++
		}
		if location == "" {
			location = res.Location
		}
	}

	log.Info("bundle archived",
		"location", location,
		"files", len(bundle.Attachments),
		"created", created,
	)

	return models.Outcome{
		MessageID: bundle.MessageID,
		Subject:   bundle.Subject,
		Status:    models.StatusSaved,
		Detail:    fmt.Sprintf("%d file(s), %d new", len(bundle.Attachments), created),
		Location:  location,
	}
}

func skipped(bundle models.AttachmentBundle, reason string) models.Outcome {
	return models.Outcome{
		MessageID: bundle.MessageID,
		Subject:   bundle.Subject,
		Status:    models.StatusSkipped,
		Detail:    reason,
	}
}
