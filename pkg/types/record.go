// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "encoding/json"

// Record is one input unit: a PubMed abstract and its author affiliations,
// keyed by a stable identifier. Records are immutable once loaded.
type Record struct {
	// Identifier is unique within an input collection and stable across runs
	// (e.g. a PMID). Numeric JSON identifiers keep their literal text.
	Identifier string `json:"identifier" yaml:"identifier"`

	// RawIdentifier is the identifier token as it appeared in the input
	// (a JSON string or number). Empty for records built in code.
	RawIdentifier json.RawMessage `json:"-" yaml:"-"`

	// Text is the primary free-text field (the abstract body). Nil means the
	// field was absent or null; the batch runner skips such records.
	Text *string `json:"text,omitempty" yaml:"text,omitempty"`

	// Affiliation is the raw author-affiliation string consumed by the
	// affiliation pass. Nil when absent.
	Affiliation *string `json:"affiliation,omitempty" yaml:"affiliation,omitempty"`
}

// HasText reports whether the primary text field is present.
func (r Record) HasText() bool {
	return r.Text != nil
}

// Field returns the named text field and whether it is present.
// Known names are "text" and "affiliation".
func (r Record) Field(name string) (string, bool) {
	var v *string
	switch name {
	case FieldText:
		v = r.Text
	case FieldAffiliation:
		v = r.Affiliation
	}
	if v == nil {
		return "", false
	}
	return *v, true
}

// Record field names a prompt template may consume.
const (
	FieldText        = "text"
	FieldAffiliation = "affiliation"
)
