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

// Package extract converts raw PDF bytes into ordered per-page plain text
// by shelling out to pdftotext (poppler). Pages with no extractable text
// (scanned images) come back as empty strings, not errors — downstream
// stages treat empty text as low-confidence content.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ExtractionError reports a PDF that could not be parsed at all
// (corrupt, encrypted, zero-length).
type ExtractionError struct {
	Filename string
	Stderr   string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("extract %s: %v", e.Filename, e.Err)
	}
	return fmt.Sprintf("extract: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Config for the text extractor.
type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
}

// Extractor produces ordered page texts from PDF bytes.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// NewExtractor creates a text extractor backed by pdftotext.
func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// ExtractPages extracts the text of every page of the given PDF, in page
// order. The filename is used for diagnostics only.
func (e *Extractor) ExtractPages(ctx context.Context, filename string, pdf []byte) ([]string, error) {
	if len(pdf) == 0 {
		return nil, &ExtractionError{Filename: filename, Err: fmt.Errorf("empty attachment")}
	}

	tmp, err := os.CreateTemp("", "beo-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil {
			e.logger.Warn("failed to remove temp file", "path", tmp.Name(), "error", err)
		}
	}()
	if _, err := tmp.Write(pdf); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", tmp.Name(), "-")
	if err != nil {
		return nil, &ExtractionError{Filename: filename, Stderr: string(errb), Err: err}
	}

	pages := splitPages(string(out))

	e.logger.Debug("extracted pdf text",
		"filename", filename,
		"pages", len(pages),
		"bytes", len(out),
	)

	return pages, nil
}

// splitPages splits pdftotext output on the form-feed page separator.
// A trailing form feed after the last page is dropped; interior empty
// pages are preserved.
func splitPages(text string) []string {
	text = strings.TrimSuffix(text, "\f")
	pages := strings.Split(text, "\f")
	for i, p := range pages {
		pages[i] = strings.TrimRight(p, "\n")
	}
	return pages
}
