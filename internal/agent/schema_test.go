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

import "testing"

// TestVerdictSchema exercises the conditional requirement: identifying
// fields are mandatory exactly when valid=true.
func TestVerdictSchema(t *testing.T) {
	schema := buildVerdictJSONSchema()

	cases := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{
			"valid with all fields",
			`{"valid": true, "confidence": 0.9, "document_number": "12345", "event_date": "2026-11-23", "client_name": "Acme"}`,
			false,
		},
		{
			"invalid with reason only",
			`{"valid": false, "confidence": 0.8, "reason": "no signature"}`,
			false,
		},
		{
			"valid missing fields",
			`{"valid": true, "confidence": 0.9}`,
			true,
		},
		{
			"non-numeric document number",
			`{"valid": true, "confidence": 0.9, "document_number": "BEO-1", "event_date": "2026-11-23", "client_name": "Acme"}`,
			true,
		},
		{
			"malformed date",
			`{"valid": true, "confidence": 0.9, "document_number": "1", "event_date": "Nov 23 2026", "client_name": "Acme"}`,
			true,
		},
		{
			"confidence out of range",
			`{"valid": false, "confidence": 1.5}`,
			true,
		},
		{
			"unknown extra field",
			`{"valid": false, "confidence": 0.5, "notes": "hm"}`,
			true,
		},
		{
			"missing confidence",
			`{"valid": false}`,
			true,
		},
	}

	for _, c := range cases {
		err := validateJSONAgainstSchema(schema, []byte(c.payload))
		if c.wantErr && err == nil {
			t.Errorf("%s: expected validation error", c.name)
		}
		if !c.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", c.name, err)
		}
	}
}
