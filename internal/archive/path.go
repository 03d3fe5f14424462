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

// Package archive resolves deterministic storage paths for validated BEO
// documents and writes them exactly once to a local or OneDrive backend.
package archive

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bcem/archiver/internal/models"
)

// Path is the ordered sequence of sanitized archive segments:
// [year, month, day, "<document_number> - <client_name>"].
type Path []string

// String renders the path with forward slashes for logs and locations.
func (p Path) String() string {
	return strings.Join(p, "/")
}

// ResolvePath maps structured fields to archive segments. It is a pure
// function: the same fields always yield byte-identical segments. Date
// parts are plain decimal without zero padding (day "1", not "01").
func ResolvePath(fields models.StructuredFields) Path {
	folder := SanitizeSegment(fmt.Sprintf("%s - %s", fields.DocumentNumber, fields.ClientName))
	return Path{
		strconv.Itoa(fields.EventDate.Year()),
		strconv.Itoa(int(fields.EventDate.Month())),
		strconv.Itoa(fields.EventDate.Day()),
		folder,
	}
}

// SanitizeSegment replaces characters that are illegal in filesystem or
// drive path segments with "_" and trims surrounding whitespace. It is
// deterministic and idempotent: sanitizing an already-sanitized segment
// is a no-op. An empty result becomes "Unknown".
func SanitizeSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteByte('_')
		case strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "Unknown"
	}
	return out
}

// SafeFilename sanitizes an attachment filename and guarantees a .pdf
// extension, defaulting to "document.pdf".
func SafeFilename(name string) string {
	if strings.TrimSpace(name) == "" {
		return "document.pdf"
	}
	safe := SanitizeSegment(name)
	if !strings.HasSuffix(strings.ToLower(safe), ".pdf") {
		safe += ".pdf"
	}
	return safe
}
