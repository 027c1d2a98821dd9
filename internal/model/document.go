// Package model defines the wire and storage representation of a document.
//
// A document is an arbitrary JSON object plus two reserved attributes,
// "_id" and "_rev". Since the attribute set is open-ended we represent the
// body as a generic map rather than a fixed struct, and merge new input
// over existing state key-wise (input wins on collision) — this is the
// standard way to model "arbitrary JSON object" in a statically typed
// language without losing unknown fields.
package model

import "encoding/json"

// IDField and RevField are the two reserved, always-present attributes.
const (
	IDField  = "_id"
	RevField = "_rev"
)

// Document is an arbitrary JSON object keyed by attribute name.
type Document map[string]any

// Clone returns a shallow copy of d. Nested values (slices, maps) are
// shared with the original — callers that mutate stored documents after
// reading them must not rely on deep isolation.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ID returns the document's "_id" attribute, or "" if absent or not a string.
func (d Document) ID() string {
	if d == nil {
		return ""
	}
	s, _ := d[IDField].(string)
	return s
}

// Rev returns the document's "_rev" attribute, or "" if absent or not a string.
func (d Document) Rev() string {
	if d == nil {
		return ""
	}
	s, _ := d[RevField].(string)
	return s
}

// WithID returns a copy of d with "_id" forced to id.
func (d Document) WithID(id string) Document {
	out := d.Clone()
	if out == nil {
		out = Document{}
	}
	out[IDField] = id
	return out
}

// WithRev returns a copy of d with "_rev" forced to rev.
func (d Document) WithRev(rev string) Document {
	out := d.Clone()
	if out == nil {
		out = Document{}
	}
	out[RevField] = rev
	return out
}

// Merge overlays patch onto base: every key in patch wins, every key in
// base not present in patch is preserved. Neither argument is mutated.
func Merge(base, patch Document) Document {
	out := make(Document, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Marshal and Unmarshal round-trip a Document through the JSON encoding
// used for both KV storage (internal/kv) and the HTTP wire format.

func Marshal(d Document) ([]byte, error) {
	return json.Marshal(d)
}

func Unmarshal(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return d, nil
}
