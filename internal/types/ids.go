// Package types holds the stable identifiers and data model shared across
// the symbol agent runtime, the session service, and the search/replace engine.
package types

import "github.com/oklog/ulid/v2"

// SymbolId identifies a symbol by name and, once located, the file it lives in.
// A SymbolId with an empty File is "new": it names a symbol yet to be created.
// Equality is over both fields, matching the source's located/new distinction.
type SymbolId struct {
	Name string `json:"name"`
	File string `json:"file,omitempty"`
}

// IsNew reports whether this id has not yet been bound to a file.
func (s SymbolId) IsNew() bool { return s.File == "" }

// Key returns a value suitable for use as a map key; SymbolId is already
// comparable, but Key documents the equality contract at call sites.
func (s SymbolId) Key() SymbolId { return s }

func (s SymbolId) String() string {
	if s.File == "" {
		return s.Name
	}
	return s.File + "::" + s.Name
}

// Position is a zero-based line/column in a file.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open [Start, End) span of Positions within a single file.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Empty reports whether the range spans zero characters, the condition under
// which a UserContext Selection is ignored.
func (r Range) Empty() bool { return r.Start == r.End }

// Overlaps reports whether r and o share at least one line.
func (r Range) Overlaps(o Range) bool {
	return r.Start.Line <= o.End.Line && o.Start.Line <= r.End.Line
}

// SessionId, ExchangeId and RequestId are ulid-backed opaque strings, matching
// the ulid.Make() id generation the session/message layer already used.
type (
	SessionId  string
	ExchangeId string
	RequestId  string
)

// NewSessionId mints a new session identifier.
func NewSessionId() SessionId { return SessionId(ulid.Make().String()) }

// NewExchangeId mints a new exchange identifier.
func NewExchangeId() ExchangeId { return ExchangeId(ulid.Make().String()) }

// NewRequestId mints a new request identifier.
func NewRequestId() RequestId { return RequestId(ulid.Make().String()) }

// EditRequestId identifies one streamed apply-edit run, so Start/Delta/End
// events for concurrent edits to the same file stay individually attributable.
type EditRequestId string

// NewEditRequestId mints a new streamed-edit identifier.
func NewEditRequestId() EditRequestId { return EditRequestId(ulid.Make().String()) }
