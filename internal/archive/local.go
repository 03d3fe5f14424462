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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// LocalStore archives files under a base directory on the local
// filesystem. Idempotence rests on the filesystem's own atomicity:
// MkdirAll for folder chains, O_CREATE|O_EXCL for write-once files.
type LocalStore struct {
	base   string
	logger *slog.Logger
}

// NewLocalStore creates a local archive store rooted at base.
func NewLocalStore(base string, logger *slog.Logger) *LocalStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalStore{base: base, logger: logger}
}

// EnsureFolder creates the full segment chain under the base directory.
// Existing segments, in full or in part, are success.
func (s *LocalStore) EnsureFolder(_ context.Context, segments Path) (Folder, error) {
	dir := filepath.Join(append([]string{s.base}, segments...)...)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Folder{}, &StorageError{Op: "ensure folder", Transient: false, Err: err}
	}
	return Folder{Segments: segments, Location: dir}, nil
}

// WriteFileIfAbsent writes the file exactly once. A file that already
// exists under the folder is a no-op reporting Created=false, so
// retried runs and overlapping verdicts for the same event never
// produce duplicates.
func (s *LocalStore) WriteFileIfAbsent(_ context.Context, folder Folder, filename string, data []byte) (WriteResult, error) {
	path := filepath.Join(folder.Location, filename)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		s.logger.Info("file already archived", "path", path)
		return WriteResult{Created: false, Location: path}, nil
	}
	if err != nil {
		return WriteResult{}, &StorageError{Op: "create file", Transient: false, Err: err}
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		// A partial file would break write-once semantics on rerun.
		os.Remove(path)
		return WriteResult{}, &StorageError{Op: "write file", Transient: false, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return WriteResult{}, &StorageError{Op: "close file", Transient: false, Err: fmt.Errorf("close %s: %w", path, err)}
	}

	return WriteResult{Created: true, Location: path}, nil
}
