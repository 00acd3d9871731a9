package slimsearch

import "errors"

// Sentinel errors returned by the public API. All carry the
// "slimsearch: " prefix; callers match with errors.Is.
var (
	// ErrMissingID is returned when a document has no value for the
	// configured ID field.
	ErrMissingID = errors.New("slimsearch: document does not have an ID field")

	// ErrDuplicateID is returned by Add when the document's ID is
	// already present in the index.
	ErrDuplicateID = errors.New("slimsearch: duplicate ID")

	// ErrUnknownID is returned by Remove, Discard, and Replace when
	// the given ID is not present in the index.
	ErrUnknownID = errors.New("slimsearch: ID not present in the index")

	// ErrMissingField is returned when a search or boost option names
	// a field that was not declared at construction.
	ErrMissingField = errors.New("slimsearch: unknown field")

	// ErrIncompatibleVersion is returned by LoadJSON when the
	// serialized payload's version is not supported.
	ErrIncompatibleVersion = errors.New("slimsearch: incompatible serialized index version")

	// ErrInvalidOption is returned by New and LoadJSON when the given
	// Options are unusable (no fields, negative BM25 parameters, and
	// the like).
	ErrInvalidOption = errors.New("slimsearch: invalid option")
)
