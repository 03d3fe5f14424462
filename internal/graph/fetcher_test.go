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

package graph

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestFetcher(serverURL string) *Fetcher {
	f := NewFetcher(http.DefaultClient, serverURL)
	f.pageDelay = time.Millisecond
	return f
}

// pdfAttachment builds a Graph file attachment with base64 PDF content.
func pdfAttachment(name, content string) map[string]any {
	return map[string]any{
		"@odata.type":  "#microsoft.graph.fileAttachment",
		"name":         name,
		"contentType":  "application/pdf",
		"size":         len(content),
		"contentBytes": base64.StdEncoding.EncodeToString([]byte(content)),
	}
}

// TestFetchBundles_BuildsBundles verifies a message with PDF attachments
// becomes one bundle with decoded content in attachment order.
func TestFetchBundles_BuildsBundles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if strings.HasSuffix(r.URL.Path, "/mailFolders/inbox/messages") {
			json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]string{
					{"id": "msg-1", "subject": "BEO 12345", "receivedDateTime": "2026-11-20T10:00:00Z"},
				},
			})
			return
		}
		if strings.HasSuffix(r.URL.Path, "/messages/msg-1/attachments") {
			json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]any{
					pdfAttachment("hospitality.pdf", "form-bytes"),
					pdfAttachment("beo.pdf", "order-bytes"),
				},
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	bundles, err := newTestFetcher(server.URL).FetchBundles(context.Background(), "me", time.Now().Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("FetchBundles failed: %v", err)
	}

	if len(bundles) != 1 {
		t.Fatalf("expected 1 bundle, got %d", len(bundles))
	}
	b := bundles[0]
	if b.MessageID != "msg-1" || b.Subject != "BEO 12345" {
		t.Errorf("unexpected bundle header: %+v", b)
	}
	if len(b.Attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(b.Attachments))
	}
	if b.Attachments[0].Filename != "hospitality.pdf" || string(b.Attachments[0].Content) != "form-bytes" {
		t.Errorf("attachment 0 = %q / %q", b.Attachments[0].Filename, b.Attachments[0].Content)
	}
	if b.Attachments[1].Filename != "beo.pdf" || string(b.Attachments[1].Content) != "order-bytes" {
		t.Errorf("attachment 1 = %q / %q", b.Attachments[1].Filename, b.Attachments[1].Content)
	}
}

// TestFetchBundles_FiltersNonPDF verifies that non-PDF attachments are
// dropped and a message left with none yields no bundle.
func TestFetchBundles_FiltersNonPDF(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if strings.HasSuffix(r.URL.Path, "/mailFolders/inbox/messages") {
			json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]string{
					{"id": "msg-1", "subject": "mixed", "receivedDateTime": "2026-11-20T10:00:00Z"},
					{"id": "msg-2", "subject": "images only", "receivedDateTime": "2026-11-20T11:00:00Z"},
				},
			})
			return
		}
		if strings.HasSuffix(r.URL.Path, "/messages/msg-1/attachments") {
			json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]any{
					{
						"@odata.type":  "#microsoft.graph.fileAttachment",
						"name":         "photo.jpg",
						"contentType":  "image/jpeg",
						"contentBytes": base64.StdEncoding.EncodeToString([]byte("jpeg")),
					},
					pdfAttachment("beo.pdf", "order"),
				},
			})
			return
		}
		if strings.HasSuffix(r.URL.Path, "/messages/msg-2/attachments") {
			json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]any{
					{
						"@odata.type":  "#microsoft.graph.fileAttachment",
						"name":         "logo.png",
						"contentType":  "image/png",
						"contentBytes": base64.StdEncoding.EncodeToString([]byte("png")),
					},
				},
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	bundles, err := newTestFetcher(server.URL).FetchBundles(context.Background(), "me", time.Now().Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("FetchBundles failed: %v", err)
	}

	if len(bundles) != 1 {
		t.Fatalf("expected 1 bundle, got %d", len(bundles))
	}
	if len(bundles[0].Attachments) != 1 || bundles[0].Attachments[0].Filename != "beo.pdf" {
		t.Errorf("unexpected attachments: %+v", bundles[0].Attachments)
	}
}

// TestFetchBundles_Pagination verifies the nextLink chain is followed.
func TestFetchBundles_Pagination(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, "/mailFolders/inbox/messages"):
			json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]string{
					{"id": "msg-1", "subject": "one", "receivedDateTime": "2026-11-20T10:00:00Z"},
				},
				"@odata.nextLink": server.URL + "/page2",
			})
		case r.URL.Path == "/page2":
			json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]string{
					{"id": "msg-2", "subject": "two", "receivedDateTime": "2026-11-19T10:00:00Z"},
				},
			})
		case strings.Contains(r.URL.Path, "/attachments"):
			json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]any{pdfAttachment("doc.pdf", "content")},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	bundles, err := newTestFetcher(server.URL).FetchBundles(context.Background(), "me", time.Now().Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("FetchBundles failed: %v", err)
	}
	if len(bundles) != 2 {
		t.Fatalf("expected 2 bundles across pages, got %d", len(bundles))
	}
	if bundles[0].MessageID != "msg-1" || bundles[1].MessageID != "msg-2" {
		t.Errorf("unexpected bundle order: %s, %s", bundles[0].MessageID, bundles[1].MessageID)
	}
}

// TestFetchBundles_Limit verifies the limit caps the bundle count.
func TestFetchBundles_Limit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if strings.HasSuffix(r.URL.Path, "/mailFolders/inbox/messages") {
			var msgs []map[string]string
			for i := 1; i <= 5; i++ {
				msgs = append(msgs, map[string]string{
					"id":               fmt.Sprintf("msg-%d", i),
					"subject":          fmt.Sprintf("subject %d", i),
					"receivedDateTime": "2026-11-20T10:00:00Z",
				})
			}
			json.NewEncoder(w).Encode(map[string]any{"value": msgs})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{pdfAttachment("doc.pdf", "content")},
		})
	}))
	defer server.Close()

	bundles, err := newTestFetcher(server.URL).FetchBundles(context.Background(), "me", time.Now().Add(-time.Hour), 2)
	if err != nil {
		t.Fatalf("FetchBundles failed: %v", err)
	}
	if len(bundles) != 2 {
		t.Errorf("expected 2 bundles with limit=2, got %d", len(bundles))
	}
}

// TestFetchBundles_SkipsBadBase64 verifies an attachment with corrupt
// content encoding is skipped rather than failing the message.
func TestFetchBundles_SkipsBadBase64(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if strings.HasSuffix(r.URL.Path, "/mailFolders/inbox/messages") {
			json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]string{
					{"id": "msg-1", "subject": "s", "receivedDateTime": "2026-11-20T10:00:00Z"},
				},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{
					"@odata.type":  "#microsoft.graph.fileAttachment",
					"name":         "broken.pdf",
					"contentType":  "application/pdf",
					"contentBytes": "!!!not-base64!!!",
				},
				pdfAttachment("good.pdf", "fine"),
			},
		})
	}))
	defer server.Close()

	bundles, err := newTestFetcher(server.URL).FetchBundles(context.Background(), "me", time.Now().Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("FetchBundles failed: %v", err)
	}
	if len(bundles) != 1 || len(bundles[0].Attachments) != 1 {
		t.Fatalf("unexpected bundles: %+v", bundles)
	}
	if bundles[0].Attachments[0].Filename != "good.pdf" {
		t.Errorf("surviving attachment = %q", bundles[0].Attachments[0].Filename)
	}
}

// TestMailboxPath verifies the me / users/<id> resource mapping.
func TestMailboxPath(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"me", "me"},
		{"", "me"},
		{"events@hotel.example", "users/events@hotel.example"},
	}
	for _, c := range cases {
		if got := mailboxPath(c.in); got != c.want {
			t.Errorf("mailboxPath(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
