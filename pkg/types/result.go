// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Result field keys produced by the built-in templates.
const (
	KeyExposures   = "exposures"
	KeyOutcomes    = "outcomes"
	KeyMethods     = "methods"
	KeyResults     = "results"
	KeyInstitution = "institution"
	KeyCountry     = "country"
)

// ExtractionResult is the structured output derived from one Record. Fields
// holds the model's JSON object as returned, with the record identifier
// written under the collection's identifier key.
type ExtractionResult struct {
	// Identifier matches the Identifier of the source Record.
	Identifier string `json:"-" yaml:"-"`

	// Fields is the JSON object returned by the model plus the identifier.
	Fields map[string]json.RawMessage `json:"-" yaml:"-"`
}

// NewExtractionResult tags fields with identifier under idKey. Any value the
// model produced under idKey is overwritten. The fields map is copied.
func NewExtractionResult(idKey, identifier string, fields map[string]json.RawMessage) ExtractionResult {
	tagged := make(map[string]json.RawMessage, len(fields)+1)
	for k, v := range fields {
		tagged[k] = v
	}
	raw, _ := json.Marshal(identifier)
	tagged[idKey] = raw
	return ExtractionResult{Identifier: identifier, Fields: tagged}
}

// ResultForRecord tags fields with the record's identifier, keeping the
// input's JSON token so a numeric PMID is written back as a number. Records
// without a usable raw token fall back to NewExtractionResult.
func ResultForRecord(idKey string, rec Record, fields map[string]json.RawMessage) ExtractionResult {
	res := NewExtractionResult(idKey, rec.Identifier, fields)
	if id, ok := IdentifierFromJSON(rec.RawIdentifier); ok && id == rec.Identifier {
		res.Fields[idKey] = bytes.TrimSpace(rec.RawIdentifier)
	}
	return res
}

// ResultFromObject rebuilds an ExtractionResult from a serialized object,
// reading the identifier from idKey.
func ResultFromObject(idKey string, obj map[string]json.RawMessage) (ExtractionResult, error) {
	raw, ok := obj[idKey]
	if !ok {
		return ExtractionResult{}, fmt.Errorf("result has no %q field", idKey)
	}
	id, ok := IdentifierFromJSON(raw)
	if !ok {
		return ExtractionResult{}, fmt.Errorf("result field %q is not a string or number: %s", idKey, string(raw))
	}
	return ExtractionResult{Identifier: id, Fields: obj}, nil
}

// MarshalJSON writes the tagged field object.
func (r ExtractionResult) MarshalJSON() ([]byte, error) {
	if r.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Fields)
}

// Traits decodes the list stored under key ("exposures" or "outcomes").
// A missing key yields an empty list.
func (r ExtractionResult) Traits(key string) ([]Trait, error) {
	var traits []Trait
	if err := r.decode(key, &traits); err != nil {
		return nil, err
	}
	return traits, nil
}

// Methods decodes the matched analytical method names.
func (r ExtractionResult) Methods() ([]string, error) {
	var methods []string
	if err := r.decode(KeyMethods, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

// Tally decodes the null/non-null result tally, or nil when absent.
func (r ExtractionResult) Tally() (*ResultTally, error) {
	if _, ok := r.Fields[KeyResults]; !ok {
		return nil, nil
	}
	var t ResultTally
	if err := r.decode(KeyResults, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Affiliation returns the institution and country fields of an affiliation
// pass result. Missing fields are returned as empty strings.
func (r ExtractionResult) Affiliation() (institution, country string, err error) {
	if err = r.decode(KeyInstitution, &institution); err != nil {
		return "", "", err
	}
	if err = r.decode(KeyCountry, &country); err != nil {
		return "", "", err
	}
	return institution, country, nil
}

func (r ExtractionResult) decode(key string, v any) error {
	raw, ok := r.Fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding %q of %s: %w", key, r.Identifier, err)
	}
	return nil
}

// Trait is one extracted exposure or outcome with its topical category.
type Trait struct {
	// ID is the ordinal the model assigned ("1", "2", ...).
	ID FlexString `json:"id" yaml:"id"`

	// Trait is the exposure or outcome name as written in the abstract.
	Trait string `json:"trait" yaml:"trait"`

	// Category is one of the taxonomy groups, or a model-chosen group.
	Category string `json:"category" yaml:"category"`
}

// ResultTally counts null and non-null results reported by an abstract.
type ResultTally struct {
	Null    int `json:"null" yaml:"null"`
	NonNull int `json:"non-null" yaml:"non-null"`
}

// FlexString accepts a JSON string or number and keeps its text form.
// Models are inconsistent about quoting ordinal ids.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	s, ok := IdentifierFromJSON(data)
	if !ok {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = FlexString(s)
	return nil
}

// IdentifierFromJSON converts a JSON string or number into its text form.
// It reports false for any other JSON value, including empty strings.
func IdentifierFromJSON(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false
		}
		return n.String(), true
	}
	return "", false
}
