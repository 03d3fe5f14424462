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

// Package graph retrieves inbox messages and their PDF attachments from
// the Microsoft Graph API, producing the attachment bundles the pipeline
// validates. It is the mail-side boundary collaborator: subject and
// received time ride along for diagnostics only.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/bcem/archiver/internal/models"
)

// Fetcher lists messages with attachments and builds bundles.
type Fetcher struct {
	httpClient   *http.Client
	graphBaseURL string
	pageDelay    time.Duration // delay between pages to avoid throttling
}

// NewFetcher creates a Graph API bundle fetcher. The http.Client must
// carry a valid Graph credential.
func NewFetcher(httpClient *http.Client, graphBaseURL string) *Fetcher {
	return &Fetcher{
		httpClient:   httpClient,
		graphBaseURL: graphBaseURL,
		pageDelay:    500 * time.Millisecond,
	}
}

// FetchBundles lists inbox messages with attachments received within the
// lookback window and returns one AttachmentBundle per message that
// carries at least one PDF. Messages without PDF attachments are
// dropped. limit <= 0 means no limit.
func (f *Fetcher) FetchBundles(ctx context.Context, mailbox string, since time.Time, limit int) ([]models.AttachmentBundle, error) {
	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("hasAttachments eq true and receivedDateTime ge %s", since.UTC().Format(time.RFC3339)))
	params.Set("$select", "id,subject,receivedDateTime")
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$top", "50")

	listURL := fmt.Sprintf("%s/%s/mailFolders/inbox/messages?%s", f.graphBaseURL, mailboxPath(mailbox), params.Encode())

	var bundles []models.AttachmentBundle
	pageCount := 0
	for nextURL := listURL; nextURL != ""; {
		// Rate limit between pages
		if pageCount > 0 {
			select {
			case <-ctx.Done():
				return bundles, ctx.Err()
			case <-time.After(f.pageDelay):
			}
		}

		page, err := f.fetchPage(ctx, nextURL)
		if err != nil {
			return bundles, fmt.Errorf("fetch page %d: %w", pageCount, err)
		}
		pageCount++

		slog.Debug("message page fetched",
			"mailbox", mailbox,
			"page", pageCount,
			"messages", len(page.Value),
		)

		for _, msg := range page.Value {
			attachments, err := f.fetchAttachments(ctx, mailbox, msg.ID)
			if err != nil {
				slog.Warn("fetch attachments failed",
					"message_id", msg.ID,
					"error", err,
				)
				continue
			}

			bundle := buildBundle(msg, attachments)
			if bundle == nil {
				continue
			}
			bundles = append(bundles, *bundle)

			if limit > 0 && len(bundles) >= limit {
				slog.Info("bundle limit reached", "limit", limit)
				return bundles, nil
			}
		}

		nextURL = page.NextLink
	}

	slog.Info("inbox scan complete",
		"mailbox", mailbox,
		"pages", pageCount,
		"bundles", len(bundles),
	)

	return bundles, nil
}

// fetchPage retrieves a single page of messages from the list endpoint.
func (f *Fetcher) fetchPage(ctx context.Context, pageURL string) (*messagesResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", "odata.maxpagesize=50")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch messages page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Error("messages list error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("messages list returned HTTP %d", resp.StatusCode)
	}

	var page messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode messages response: %w", err)
	}

	return &page, nil
}

// fetchAttachments retrieves the attachments of one message.
func (f *Fetcher) fetchAttachments(ctx context.Context, mailbox, messageID string) ([]graphAttachment, error) {
	attURL := fmt.Sprintf("%s/%s/messages/%s/attachments", f.graphBaseURL, mailboxPath(mailbox), messageID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, attURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch attachments: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		slog.Warn("message not found (may have been deleted)", "message_id", messageID)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachments list returned HTTP %d", resp.StatusCode)
	}

	var list attachmentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode attachments response: %w", err)
	}

	return list.Value, nil
}

// mailboxPath maps a mailbox identifier to a Graph resource path.
// "me" addresses the signed-in user; anything else is a user ID or UPN.
func mailboxPath(mailbox string) string {
	if mailbox == "" || mailbox == "me" {
		return "me"
	}
	return "users/" + url.PathEscape(mailbox)
}
