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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// driveServer is a minimal in-memory Graph drive for testing the OneDrive
// store: it tracks folders and files by path and honours
// conflictBehavior=fail semantics.
type driveServer struct {
	mu      sync.Mutex
	folders map[string]bool
	files   map[string][]byte
	puts    int
}

func newDriveServer() *driveServer {
	return &driveServer{
		folders: make(map[string]bool),
		files:   make(map[string][]byte),
	}
}

func (d *driveServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Path == "/me/drive" {
			json.NewEncoder(w).Encode(map[string]string{"id": "drive-1"})
			return
		}

		d.mu.Lock()
		defer d.mu.Unlock()

		// PUT /drives/drive-1/root:/<path>:/content
		if r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, ":/content") {
			path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/drives/drive-1/root:/"), ":/content")
			d.puts++
			if _, ok := d.files[path]; ok {
				w.WriteHeader(http.StatusConflict)
				return
			}
			body, _ := io.ReadAll(r.Body)
			d.files[path] = body
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{
				"id":     "item-" + path,
				"name":   path[strings.LastIndex(path, "/")+1:],
				"webUrl": "https://onedrive.example/" + path,
			})
			return
		}

		// POST .../children — folder creation
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/children") {
			parent := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/drives/drive-1/root"), "/children")
			parent = strings.TrimSuffix(strings.TrimPrefix(parent, ":/"), ":")

			var req struct {
				Name string `json:"name"`
			}
			json.NewDecoder(r.Body).Decode(&req)

			path := req.Name
			if parent != "" {
				path = parent + "/" + req.Name
			}
			if d.folders[path] {
				w.WriteHeader(http.StatusConflict)
				return
			}
			d.folders[path] = true
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"id": "folder-" + path, "name": req.Name})
			return
		}

		// GET /drives/drive-1/root:/<path> — item lookup
		if r.Method == http.MethodGet {
			path := strings.TrimPrefix(r.URL.Path, "/drives/drive-1/root:/")
			if _, ok := d.files[path]; ok {
				json.NewEncoder(w).Encode(map[string]string{
					"id":     "item-" + path,
					"webUrl": "https://onedrive.example/" + path,
				})
				return
			}
			if d.folders[path] {
				json.NewEncoder(w).Encode(map[string]string{"id": "folder-" + path})
				return
			}
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.WriteHeader(http.StatusBadRequest)
	}
}

func newTestDriveStore(serverURL string) *DriveStore {
	s := NewDriveStore(http.DefaultClient, serverURL, nil)
	s.backoff = time.Millisecond
	return s
}

// TestDriveStore_EnsureFolder verifies that the full segment chain is
// created level by level and re-ensuring succeeds via 409 handling.
func TestDriveStore_EnsureFolder(t *testing.T) {
	drive := newDriveServer()
	server := httptest.NewServer(drive.handler())
	defer server.Close()

	store := newTestDriveStore(server.URL)
	ctx := context.Background()

	segments := Path{"2026", "11", "23", "00042 - Acme Corp"}
	folder, err := store.EnsureFolder(ctx, segments)
	if err != nil {
		t.Fatalf("EnsureFolder failed: %v", err)
	}

	if folder.Location != "2026/11/23/00042 - Acme Corp" {
		t.Errorf("folder location = %q", folder.Location)
	}

	for _, path := range []string{"2026", "2026/11", "2026/11/23", "2026/11/23/00042 - Acme Corp"} {
		if !drive.folders[path] {
			t.Errorf("folder %q not created", path)
		}
	}

	// Existing chain: every level 409s or 200s, all treated as success.
	if _, err := store.EnsureFolder(ctx, segments); err != nil {
		t.Errorf("re-ensure failed: %v", err)
	}
}

// TestDriveStore_WriteFileIfAbsent verifies upload of a new file and the
// skip path for an existing one.
func TestDriveStore_WriteFileIfAbsent(t *testing.T) {
	drive := newDriveServer()
	server := httptest.NewServer(drive.handler())
	defer server.Close()

	store := newTestDriveStore(server.URL)
	ctx := context.Background()

	folder, err := store.EnsureFolder(ctx, Path{"2026", "1", "1", "12345 - Acme"})
	if err != nil {
		t.Fatalf("EnsureFolder failed: %v", err)
	}

	first, err := store.WriteFileIfAbsent(ctx, folder, "beo.pdf", []byte("pdf-bytes"))
	if err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if !first.Created {
		t.Error("first write: expected Created=true")
	}
	if !strings.Contains(first.Location, "beo.pdf") {
		t.Errorf("location = %q, expected webUrl containing filename", first.Location)
	}

	second, err := store.WriteFileIfAbsent(ctx, folder, "beo.pdf", []byte("other-bytes"))
	if err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if second.Created {
		t.Error("second write: expected Created=false")
	}
	if drive.puts != 1 {
		t.Errorf("expected 1 upload, server saw %d", drive.puts)
	}
}

// TestDriveStore_UploadConflict verifies that a 409 on upload (concurrent
// writer) resolves as Created=false, not an error.
func TestDriveStore_UploadConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/me/drive":
			json.NewEncoder(w).Encode(map[string]string{"id": "drive-1"})
		case r.Method == http.MethodGet:
			// File never visible on the existence check...
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut:
			// ...but the upload always conflicts.
			w.WriteHeader(http.StatusConflict)
		}
	}))
	defer server.Close()

	store := newTestDriveStore(server.URL)
	res, err := store.WriteFileIfAbsent(context.Background(), Folder{Location: "2026/1/1/1 - X"}, "f.pdf", []byte("x"))
	if err != nil {
		t.Fatalf("WriteFileIfAbsent failed: %v", err)
	}
	if res.Created {
		t.Error("expected Created=false on upload conflict")
	}
}

// TestDriveStore_TransientRetry verifies that 503 responses are retried
// and a later success wins.
func TestDriveStore_TransientRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/me/drive" {
			attempts++
			if attempts < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"id": "drive-1"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "folder"})
	}))
	defer server.Close()

	store := newTestDriveStore(server.URL)
	if _, err := store.resolveDrive(context.Background()); err != nil {
		t.Fatalf("resolveDrive failed after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

// TestDriveStore_PermanentError verifies that a 403 is not retried.
func TestDriveStore_PermanentError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	store := newTestDriveStore(server.URL)
	if _, err := store.resolveDrive(context.Background()); err == nil {
		t.Fatal("expected error for 403")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt (no retry), got %d", attempts)
	}
}
