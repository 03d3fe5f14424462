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

// Package models defines the data structures shared across the archiver.
package models

import "time"

// Attachment is a single PDF file carried by an email message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
}

// AttachmentBundle is the set of PDF attachments from one email message.
// A bundle is the unit of validation: a valid BEO submission may span
// several attachments (signed hospitality form + event order sheet).
// Subject and ReceivedAt are diagnostics only; they never feed path
// resolution.
type AttachmentBundle struct {
	MessageID   string       `json:"message_id"`
	Subject     string       `json:"subject"`
	ReceivedAt  time.Time    `json:"received_at"`
	Attachments []Attachment `json:"attachments"`
}

// StructuredFields are the identifying fields extracted from a valid
// BEO bundle. All three are non-zero whenever the struct is present.
type StructuredFields struct {
	EventDate      time.Time `json:"event_date"`
	DocumentNumber string    `json:"document_number"`
	ClientName     string    `json:"client_name"`
}

// Verdict is the outcome of classifying one bundle. Fields is non-nil
// if and only if Valid is true.
type Verdict struct {
	Valid      bool              `json:"valid"`
	Confidence float64           `json:"confidence"`
	Fields     *StructuredFields `json:"fields,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}

// OutcomeStatus is the terminal state of one bundle.
type OutcomeStatus string

const (
	StatusSaved    OutcomeStatus = "saved"
	StatusRejected OutcomeStatus = "rejected"
	StatusSkipped  OutcomeStatus = "skipped"
)

// Outcome is the single result record emitted per bundle for the
// reporting boundary (CLI rendering, outcome queue, journal).
type Outcome struct {
	MessageID string        `json:"message_id"`
	Subject   string        `json:"subject,omitempty"`
	Status    OutcomeStatus `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	Location  string        `json:"location,omitempty"`
}
