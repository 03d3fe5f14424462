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

package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DriveStore archives files to the signed-in user's OneDrive via the
// Microsoft Graph drive API. The http.Client must already carry a valid
// access credential (oauth2 transport); credential acquisition is out of
// scope. Write-once semantics rest on Graph's own conflict behaviour:
// folder creation and file upload both use conflictBehavior=fail, and a
// 409 is treated as "already there", never as an error.
type DriveStore struct {
	httpClient   *http.Client
	graphBaseURL string
	backoff      time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	driveID string
}

// NewDriveStore creates a OneDrive archive store.
func NewDriveStore(httpClient *http.Client, graphBaseURL string, logger *slog.Logger) *DriveStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DriveStore{
		httpClient:   httpClient,
		graphBaseURL: graphBaseURL,
		backoff:      time.Second,
		logger:       logger,
	}
}

// driveItem is the subset of the Graph drive item response we read.
type driveItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	WebURL string `json:"webUrl"`
}

// resolveDrive fetches and caches the signed-in user's drive ID.
func (s *DriveStore) resolveDrive(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.driveID != "" {
		return s.driveID, nil
	}

	var item driveItem
	err := retryTransient(ctx, s.backoff, func() error {
		return s.getJSON(ctx, s.graphBaseURL+"/me/drive", &item)
	})
	if err != nil {
		return "", err
	}
	if item.ID == "" {
		return "", &StorageError{Op: "resolve drive", Err: fmt.Errorf("drive response missing id")}
	}

	s.driveID = item.ID
	s.logger.Info("resolved OneDrive drive", "drive_id", s.driveID)
	return s.driveID, nil
}

// EnsureFolder walks the segment chain, creating each missing level.
// Concurrent callers creating the same chain cannot fail each other: a
// 409 on creation means another caller won the race, which is success.
func (s *DriveStore) EnsureFolder(ctx context.Context, segments Path) (Folder, error) {
	driveID, err := s.resolveDrive(ctx)
	if err != nil {
		return Folder{}, err
	}

	current := ""
	for _, segment := range segments {
		next := segment
		if current != "" {
			next = current + "/" + segment
		}

		err := retryTransient(ctx, s.backoff, func() error {
			return s.ensureSegment(ctx, driveID, current, segment, next)
		})
		if err != nil {
			return Folder{}, err
		}
		current = next
	}

	return Folder{Segments: segments, Location: current}, nil
}

// ensureSegment checks one path level and creates it if missing.
func (s *DriveStore) ensureSegment(ctx context.Context, driveID, parent, segment, path string) error {
	getURL := fmt.Sprintf("%s/drives/%s/root:/%s", s.graphBaseURL, driveID, escapeDrivePath(path))
	status, _, err := s.do(ctx, http.MethodGet, getURL, "", nil)
	if err != nil {
		return &StorageError{Op: "check folder", Transient: true, Err: err}
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return statusError("check folder", status)
	}

	childrenURL := fmt.Sprintf("%s/drives/%s/root/children", s.graphBaseURL, driveID)
	if parent != "" {
		childrenURL = fmt.Sprintf("%s/drives/%s/root:/%s:/children", s.graphBaseURL, driveID, escapeDrivePath(parent))
	}

	body, _ := json.Marshal(map[string]any{
		"name":                              segment,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "fail",
	})

	status, _, err = s.do(ctx, http.MethodPost, childrenURL, "application/json", body)
	if err != nil {
		return &StorageError{Op: "create folder", Transient: true, Err: err}
	}
	switch {
	case status == http.StatusCreated || status == http.StatusOK:
		s.logger.Debug("created drive folder", "path", path)
		return nil
	case status == http.StatusConflict:
		// Another caller created it first.
		return nil
	default:
		return statusError("create folder", status)
	}
}

// WriteFileIfAbsent checks for an existing file at the resolved path and
// uploads only when absent. The existing file's webUrl is returned with
// Created=false; upload conflicts (a concurrent writer) resolve the same
// way.
func (s *DriveStore) WriteFileIfAbsent(ctx context.Context, folder Folder, filename string, data []byte) (WriteResult, error) {
	driveID, err := s.resolveDrive(ctx)
	if err != nil {
		return WriteResult{}, err
	}

	path := folder.Location + "/" + filename

	var result WriteResult
	err = retryTransient(ctx, s.backoff, func() error {
		itemURL := fmt.Sprintf("%s/drives/%s/root:/%s", s.graphBaseURL, driveID, escapeDrivePath(path))
		status, raw, err := s.do(ctx, http.MethodGet, itemURL, "", nil)
		if err != nil {
			return &StorageError{Op: "check file", Transient: true, Err: err}
		}
		switch {
		case status == http.StatusOK:
			var item driveItem
			if err := json.Unmarshal(raw, &item); err != nil {
				return &StorageError{Op: "check file", Err: fmt.Errorf("decode item: %w", err)}
			}
			result = WriteResult{Created: false, Location: locationOrPath(item.WebURL, path)}
			return nil
		case status != http.StatusNotFound:
			return statusError("check file", status)
		}

		uploadURL := fmt.Sprintf("%s/drives/%s/root:/%s:/content?@microsoft.graph.conflictBehavior=fail",
			s.graphBaseURL, driveID, escapeDrivePath(path))
		status, raw, err = s.do(ctx, http.MethodPut, uploadURL, "application/pdf", data)
		if err != nil {
			return &StorageError{Op: "upload file", Transient: true, Err: err}
		}
		switch {
		case status == http.StatusOK || status == http.StatusCreated:
			var item driveItem
			if err := json.Unmarshal(raw, &item); err != nil {
				return &StorageError{Op: "upload file", Err: fmt.Errorf("decode item: %w", err)}
			}
			result = WriteResult{Created: true, Location: locationOrPath(item.WebURL, path)}
			return nil
		case status == http.StatusConflict:
			// A concurrent writer got there first; the file exists.
			result = WriteResult{Created: false, Location: path}
			return nil
		default:
			return statusError("upload file", status)
		}
	})
	if err != nil {
		return WriteResult{}, err
	}

	return result, nil
}

// do performs one Graph request and returns the status and body.
func (s *DriveStore) do(ctx context.Context, method, url, contentType string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

// getJSON fetches a URL and decodes the JSON response into out.
func (s *DriveStore) getJSON(ctx context.Context, url string, out any) error {
	status, raw, err := s.do(ctx, http.MethodGet, url, "", nil)
	if err != nil {
		return &StorageError{Op: "get", Transient: true, Err: err}
	}
	if status != http.StatusOK {
		return statusError("get", status)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &StorageError{Op: "get", Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// statusError classifies a Graph HTTP status: throttling and 5xx are
// transient, authorization failures are permanent.
func statusError(op string, status int) *StorageError {
	transient := status == http.StatusTooManyRequests || status >= 500
	return &StorageError{
		Op:        op,
		Transient: transient,
		Err:       fmt.Errorf("graph API returned HTTP %d", status),
	}
}

// escapeDrivePath URL-escapes each segment of a drive-relative path
// while preserving the separators.
func escapeDrivePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

func locationOrPath(webURL, path string) string {
	if webURL != "" {
		return webURL
	}
	return path
}
