// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultForRecord(t *testing.T) {
	fields := map[string]json.RawMessage{
		"country": json.RawMessage(`"UK"`),
		"pmid":    json.RawMessage(`"model guess"`),
	}

	tests := []struct {
		name   string
		rec    Record
		wantID string
	}{
		{name: "numeric token", rec: Record{Identifier: "31245", RawIdentifier: json.RawMessage(`31245`)}, wantID: `31245`},
		{name: "string token", rec: Record{Identifier: "31245", RawIdentifier: json.RawMessage(`"31245"`)}, wantID: `"31245"`},
		{name: "no token", rec: Record{Identifier: "A1"}, wantID: `"A1"`},
		{name: "token disagrees with identifier", rec: Record{Identifier: "B", RawIdentifier: json.RawMessage(`7`)}, wantID: `"B"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ResultForRecord("pmid", tt.rec, fields)
			assert.Equal(t, tt.rec.Identifier, res.Identifier)
			assert.Equal(t, tt.wantID, string(res.Fields["pmid"]))
			assert.Equal(t, `"UK"`, string(res.Fields["country"]))
		})
	}
	assert.Equal(t, `"model guess"`, string(fields["pmid"]), "input map is not modified")
}

func TestIdentifierFromJSON(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{raw: `"123"`, want: "123", wantOK: true},
		{raw: ` 456 `, want: "456", wantOK: true},
		{raw: `"  "`, wantOK: false},
		{raw: `null`, wantOK: false},
		{raw: `{}`, wantOK: false},
		{raw: ``, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := IdentifierFromJSON(json.RawMessage(tt.raw))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
