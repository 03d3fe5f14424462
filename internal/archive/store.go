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
	"time"
)

// Folder is a handle to an ensured folder chain.
type Folder struct {
	Segments Path
	// Location is backend-specific: an absolute directory for the local
	// store, a drive-relative path for OneDrive.
	Location string
}

// WriteResult reports whether a file was created or already present.
type WriteResult struct {
	Created  bool
	Location string
}

// Store is the storage-backend contract: ensure a folder chain exists
// and write a file exactly once. Both operations are idempotent and safe
// under concurrent calls for the same path; "already exists" is success,
// not an error.
type Store interface {
	EnsureFolder(ctx context.Context, segments Path) (Folder, error)
	WriteFileIfAbsent(ctx context.Context, folder Folder, filename string, data []byte) (WriteResult, error)
}

// StorageError reports a backend failure. Transient errors (timeouts,
// throttling, 5xx responses) are retried inside the store; permanent
// ones (permission, authorization) surface to the caller and fail only
// the current item.
type StorageError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// storageRetries bounds transient-error retries inside a store.
const storageRetries = 3

// retryTransient runs fn, retrying with doubling backoff while it
// returns a transient StorageError.
func retryTransient(ctx context.Context, backoff time.Duration, fn func() error) error {
	var err error
	for attempt := 0; attempt < storageRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		var serr *StorageError
		if !errors.As(err, &serr) || !serr.Transient || attempt == storageRetries-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff << attempt):
		}
	}
	return err
}
