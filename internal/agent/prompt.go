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

package agent

import (
	"fmt"
	"strings"
)

// analystInstructions is the fixed instruction set describing what a
// valid BEO bundle looks like. The bundle-composition policy sentence is
// appended from configuration (BundlePolicy) so deployments can decide
// whether a single combined PDF satisfies validity or separate cover and
// order documents are required.
const analystInstructions = `You are a document analyst. The user will provide the full text extracted from the PDF attachments of a single email, with an explicit marker between documents.

Your task:
1. Determine whether the attachments together contain BOTH:
   (a) A Hospitality form that is SIGNED (signed by a person, not just a blank form).
   (b) A BEO (Banquet Event Order) sheet referencing the same event.

2. If and only if both are present, extract:
   - document_number: the BEO number, a five-digit number (e.g. 12345). Return only the digits as a string.
   - event_date: the date of the BEO as an ISO-8601 date (YYYY-MM-DD).
   - client_name: the organization name from the "Client/Organization" field. Use the organization/company name only, NOT the individual person or contact name.

Return ONLY JSON matching the provided schema. Set valid=true with a confidence between 0 and 1 only when both (a) and (b) are present and all three fields were extracted. Otherwise set valid=false, include a short reason, and omit the other fields. Never output null.`

const documentBreak = "\n\n===== DOCUMENT BREAK =====\n\n"

// Document is the extracted text of one attachment, in bundle order.
type Document struct {
	Name  string
	Pages []string
}

// buildUserPrompt concatenates the (possibly truncated) document texts in
// attachment order with an explicit break marker between documents.
func buildUserPrompt(docs []Document, maxChars int) string {
	perDoc := maxChars
	if len(docs) > 1 {
		perDoc = maxChars / len(docs)
	}

	var b strings.Builder
	b.WriteString("Below is the text extracted from the PDF attachments of one email.\n\n---\n")
	for i, d := range docs {
		if i > 0 {
			b.WriteString(documentBreak)
		}
		fmt.Fprintf(&b, "Document %d: %s\n\n", i+1, d.Name)
		b.WriteString(truncatePages(d.Pages, perDoc))
	}
	b.WriteString("\n---\n\nBased on these documents only, return the structured response.")
	return b.String()
}

// truncatePages joins a page sequence, enforcing a character budget with
// a deterministic policy: keep whole pages from the head and the tail of
// the sequence and drop middle pages first, marking the gap. The same
// input always produces the same output.
func truncatePages(pages []string, maxChars int) string {
	const pageSep = "\n\n"

	total := 0
	for _, p := range pages {
		total += len(p) + len(pageSep)
	}
	if maxChars <= 0 || total <= maxChars {
		return strings.Join(pages, pageSep)
	}

	headBudget := maxChars / 2
	tailBudget := maxChars - headBudget

	var head []string
	used := 0
	for _, p := range pages {
		if used+len(p)+len(pageSep) > headBudget {
			break
		}
		head = append(head, p)
		used += len(p) + len(pageSep)
	}

	var tail []string
	used = 0
	for i := len(pages) - 1; i > len(head)-1; i-- {
		p := pages[i]
		if used+len(p)+len(pageSep) > tailBudget {
			break
		}
		tail = append([]string{p}, tail...)
		used += len(p) + len(pageSep)
	}

	omitted := len(pages) - len(head) - len(tail)
	if omitted <= 0 {
		return strings.Join(pages, pageSep)
	}

	// An oversized page still has to be cut somewhere: keep its head.
	if len(head) == 0 && len(tail) == 0 {
		p := pages[0]
		if len(p) > maxChars {
			p = p[:maxChars]
		}
		if len(pages) == 1 {
			return p + pageSep + "[... truncated ...]"
		}
		return p + fmt.Sprintf("%s[... %d page(s) omitted ...]", pageSep, len(pages)-1)
	}

	parts := append([]string{}, head...)
	parts = append(parts, fmt.Sprintf("[... %d page(s) omitted ...]", omitted))
	parts = append(parts, tail...)
	return strings.Join(parts, pageSep)
}
