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
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"github.com/bcem/archiver/internal/models"
)

// messagesResponse represents a page of the /messages list response.
type messagesResponse struct {
	Value    []messageStub `json:"value"`
	NextLink string        `json:"@odata.nextLink"`
}

// messageStub is a minimal message from the list endpoint.
type messageStub struct {
	ID               string `json:"id"`
	Subject          string `json:"subject"`
	ReceivedDateTime string `json:"receivedDateTime"`
}

// attachmentsResponse represents the /messages/{id}/attachments response.
type attachmentsResponse struct {
	Value []graphAttachment `json:"value"`
}

// graphAttachment is one attachment entry. ContentBytes is base64 and
// only present for file attachments (not item or reference attachments).
type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	Size         int    `json:"size"`
	ContentBytes string `json:"contentBytes"`
}

const fileAttachmentType = "#microsoft.graph.fileAttachment"

// buildBundle converts a message and its attachments into an
// AttachmentBundle, keeping only decodable PDF file attachments.
// Returns nil when the message carries no PDFs.
func buildBundle(msg messageStub, attachments []graphAttachment) *models.AttachmentBundle {
	received, err := time.Parse(time.RFC3339, msg.ReceivedDateTime)
	if err != nil {
		received = time.Time{}
	}

	bundle := &models.AttachmentBundle{
		MessageID:  msg.ID,
		Subject:    msg.Subject,
		ReceivedAt: received,
	}

	for _, att := range attachments {
		if att.ODataType != fileAttachmentType || !isPDF(att) {
			continue
		}

		content, err := base64.StdEncoding.DecodeString(att.ContentBytes)
		if err != nil {
			slog.Warn("attachment content not decodable",
				"message_id", msg.ID,
				"attachment", att.Name,
				"error", err,
			)
			continue
		}

		bundle.Attachments = append(bundle.Attachments, models.Attachment{
			Filename:    att.Name,
			ContentType: att.ContentType,
			Content:     content,
		})
	}

	if len(bundle.Attachments) == 0 {
		return nil
	}
	return bundle
}

// isPDF accepts attachments by declared content type, falling back to
// the filename extension when the sender declared a generic type.
func isPDF(att graphAttachment) bool {
	ct := strings.ToLower(att.ContentType)
	if strings.Contains(ct, "application/pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(att.Name), ".pdf")
}
