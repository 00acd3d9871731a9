// Package store implements the inverted-index data model: postings
// keyed by term -> field -> document, per-document field-length
// tables, the external-id <-> short-id maps, and dirt accounting for
// the vacuum lifecycle. It is the IndexStore of the design.
package store

import (
	"fmt"
	"sync"

	"github.com/nullstream/slimsearch/internal/radix"
)

// ShortID is the engine's internal, monotonically increasing document
// identifier. Short-ids are never reassigned within the lifetime of a
// Store; removed ids leave holes.
type ShortID uint32

// FieldID is the dense, small-integer identifier assigned to a
// declared field by declaration order.
type FieldID int

// ErrDuplicateID is returned by AllocateShortID when the external id
// is already mapped to a live document.
var ErrDuplicateID = fmt.Errorf("duplicate id")

// term is the radix tree's value type: the postings for one
// dictionary term, by field and by document.
type term struct {
	fields map[FieldID]map[ShortID]int
}

// Store holds the full inverted-index data model described in the
// design's data-model section. All exported methods are safe for
// concurrent use: mutating methods and the vacuum pass take the write
// lock, read methods take the read lock.
type Store struct {
	mu sync.RWMutex

	fieldNames []string
	fieldIndex map[string]FieldID

	terms *radix.Tree[*term]

	idToShort map[any]ShortID
	shortToID map[ShortID]any

	fieldLength map[ShortID][]int
	avgLength   []float64

	stored map[ShortID]map[string]any

	documentCount int
	dirtCount     int
	nextID        ShortID
}

// New creates an empty Store with the given declared field names,
// frozen in declaration order.
func New(fields []string) *Store {
	fieldIndex := make(map[string]FieldID, len(fields))
	for i, f := range fields {
		fieldIndex[f] = FieldID(i)
	}
	return &Store{
		fieldNames:  append([]string{}, fields...),
		fieldIndex:  fieldIndex,
		terms:       radix.New[*term](),
		idToShort:   make(map[any]ShortID),
		shortToID:   make(map[ShortID]any),
		fieldLength: make(map[ShortID][]int),
		avgLength:   make([]float64, len(fields)),
		stored:      make(map[ShortID]map[string]any),
	}
}

// NumFields returns the number of declared fields.
func (s *Store) NumFields() int { return len(s.fieldNames) }

// FieldID returns the FieldID for a declared field name.
func (s *Store) FieldID(name string) (FieldID, bool) {
	id, ok := s.fieldIndex[name]
	return id, ok
}

// FieldName returns the declared name for a FieldID.
func (s *Store) FieldName(id FieldID) string {
	if int(id) < 0 || int(id) >= len(s.fieldNames) {
		return ""
	}
	return s.fieldNames[id]
}

// FieldNames returns the declared fields in declaration order.
func (s *Store) FieldNames() []string {
	return append([]string{}, s.fieldNames...)
}

// AllocateShortID installs both id maps, extends fieldLength with a
// zero-filled row, increments documentCount, and returns the new
// ShortID. It fails with ErrDuplicateID if externalID is already
// mapped to a live document.
func (s *Store) AllocateShortID(externalID any) (ShortID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.idToShort[externalID]; exists {
		return 0, ErrDuplicateID
	}
	id := s.nextID
	s.nextID++
	s.idToShort[externalID] = id
	s.shortToID[id] = externalID
	s.fieldLength[id] = make([]int, len(s.fieldNames))
	s.documentCount++
	return id, nil
}

// SetFieldLength records the token count of field for document id and
// folds it into the running mean for that field, using the current
// documentCount as the sample size (the document must already be
// counted, i.e. this runs after AllocateShortID).
func (s *Store) SetFieldLength(id ShortID, field FieldID, length int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.fieldLength[id]
	if int(field) < len(row) {
		row[field] = length
	}
	n := s.documentCount
	if n <= 0 {
		return
	}
	avg := s.avgLength[field]
	s.avgLength[field] = avg + (float64(length)-avg)/float64(n)
}

// AdjustFieldLengthOnRemoval folds the removal of one document's field
// length out of the running mean, using documentCount-1 (the sample
// size after the removal) as the divisor. It must be called before
// ReleaseDocument decrements documentCount.
func (s *Store) AdjustFieldLengthOnRemoval(field FieldID, length int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	newCount := s.documentCount - 1
	if newCount <= 0 {
		s.avgLength[field] = 0
		return
	}
	avg := s.avgLength[field]
	s.avgLength[field] = avg + (avg-float64(length))/float64(newCount)
}

// ReleaseDocument removes both id maps and the fieldLength row for id,
// and decrements documentCount. It does not touch postings or dirt
// accounting; callers (remove/discard) handle those separately.
func (s *Store) ReleaseDocument(id ShortID) (externalID any, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	externalID, ok = s.shortToID[id]
	if !ok {
		return nil, false
	}
	delete(s.shortToID, id)
	delete(s.idToShort, externalID)
	delete(s.fieldLength, id)
	s.documentCount--
	return externalID, true
}

// Tombstone releases the document mapped to externalID and marks it
// dirty, leaving its postings in place for vacuum to sweep. It does
// not adjust avgFieldLength (the document's body is not available to
// discard).
func (s *Store) Tombstone(externalID any) (ShortID, bool) {
	s.mu.RLock()
	id, ok := s.idToShort[externalID]
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if _, ok := s.ReleaseDocument(id); !ok {
		return 0, false
	}
	s.mu.Lock()
	s.dirtCount++
	s.mu.Unlock()
	return id, true
}

// AddPosting increments the (term, field, id) frequency, creating the
// term's dictionary entry and field map lazily.
func (s *Store) AddPosting(id ShortID, field FieldID, t string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.terms.Fetch(t, func() *term {
		return &term{fields: make(map[FieldID]map[ShortID]int)}
	})
	docs, ok := entry.fields[field]
	if !ok {
		docs = make(map[ShortID]int)
		entry.fields[field] = docs
	}
	docs[id]++
}

// RemovePosting decrements the (term, field, id) frequency, deleting
// it at zero and pruning empty field maps and, finally, the term
// itself. It reports whether the posting was present.
func (s *Store) RemovePosting(id ShortID, field FieldID, t string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.terms.Get(t)
	if !ok {
		return false
	}
	docs, ok := entry.fields[field]
	if !ok {
		return false
	}
	if _, ok := docs[id]; !ok {
		return false
	}
	docs[id]--
	if docs[id] <= 0 {
		delete(docs, id)
	}
	if len(docs) == 0 {
		delete(entry.fields, field)
	}
	if len(entry.fields) == 0 {
		s.terms.Delete(t)
	}
	return true
}

// IsLive reports whether id currently maps to a live document.
func (s *Store) IsLive(id ShortID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.shortToID[id]
	return ok
}

// ExternalIDOf returns the external id mapped to a short-id.
func (s *Store) ExternalIDOf(id ShortID) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.shortToID[id]
	return v, ok
}

// ShortIDOf returns the short-id mapped to an external id.
func (s *Store) ShortIDOf(externalID any) (ShortID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.idToShort[externalID]
	return v, ok
}

// FieldLength returns a copy of the per-field token-count row for id.
func (s *Store) FieldLength(id ShortID) ([]int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.fieldLength[id]
	if !ok {
		return nil, false
	}
	return append([]int{}, row...), true
}

// AvgFieldLength returns a copy of the current average-length vector.
func (s *Store) AvgFieldLength() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]float64{}, s.avgLength...)
}

// SetStoredFields installs the caller-selected projection of a
// document, retrievable alongside search hits.
func (s *Store) SetStoredFields(id ShortID, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored[id] = fields
}

// StoredFields returns the stored projection for id.
func (s *Store) StoredFields(id ShortID) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.stored[id]
	return v, ok
}

// DropStoredFields removes the stored projection for id (used by
// remove and by discard, which drops it immediately rather than
// waiting for vacuum).
func (s *Store) DropStoredFields(id ShortID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stored, id)
}

// DocumentCount returns the number of currently live documents.
func (s *Store) DocumentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.documentCount
}

// DirtCount returns the number of tombstoned documents whose postings
// have not yet been swept by vacuum.
func (s *Store) DirtCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirtCount
}

// DirtFactor is dirtCount / (1 + documentCount + dirtCount).
func (s *Store) DirtFactor() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return float64(s.dirtCount) / float64(1+s.documentCount+s.dirtCount)
}

// TermCount returns the number of distinct terms in the dictionary.
func (s *Store) TermCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terms.Len()
}

// PostingSnapshot is a defensive copy of one term's postings, safe to
// read after the Store's lock has been released.
type PostingSnapshot struct {
	Term     string
	Fields   map[FieldID]map[ShortID]int
	Distance int
}

// LookupExact returns a snapshot of the postings for an exact
// dictionary term.
func (s *Store) LookupExact(t string) (PostingSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.terms.Get(t)
	if !ok {
		return PostingSnapshot{}, false
	}
	return PostingSnapshot{Term: t, Fields: copyFields(entry.fields)}, true
}

// LookupPrefix returns a snapshot of the postings for every
// dictionary term beginning with prefix.
func (s *Store) LookupPrefix(prefix string) []PostingSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := s.terms.AtPrefix(prefix)
	out := make([]PostingSnapshot, len(matches))
	for i, kv := range matches {
		out[i] = PostingSnapshot{Term: kv.Key, Fields: copyFields(kv.Value.fields)}
	}
	return out
}

// LookupFuzzy returns a snapshot of the postings for every dictionary
// term within maxDistance edits of t.
func (s *Store) LookupFuzzy(t string, maxDistance int) []PostingSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := s.terms.FuzzyGet(t, maxDistance)
	out := make([]PostingSnapshot, 0, len(matches))
	for key, m := range matches {
		out = append(out, PostingSnapshot{Term: key, Fields: copyFields(m.Value.fields), Distance: m.Distance})
	}
	return out
}

func copyFields(src map[FieldID]map[ShortID]int) map[FieldID]map[ShortID]int {
	out := make(map[FieldID]map[ShortID]int, len(src))
	for f, docs := range src {
		inner := make(map[ShortID]int, len(docs))
		for id, freq := range docs {
			inner[id] = freq
		}
		out[f] = inner
	}
	return out
}

// DistinctDocs returns the number of distinct document ids referenced
// across all fields in a posting snapshot (document frequency).
func (p PostingSnapshot) DistinctDocs() int {
	seen := make(map[ShortID]struct{})
	for _, docs := range p.Fields {
		for id := range docs {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// VacuumBatch walks up to limit terms starting at start (inclusive,
// lexicographic), removes any posting entries whose ShortID is not in
// isLive, and prunes terms that become empty. It returns the last
// term key visited so the caller can resume on the next batch, and
// the number of terms visited (0 means the dictionary was exhausted).
func (s *Store) VacuumBatch(start string, limit int, isLive func(ShortID) bool) (last string, visited int) {
	// isLive may itself take s.mu (Store.IsLive does), so it is
	// consulted before the write lock; a dead short-id never revives.
	s.mu.RLock()
	live := map[ShortID]bool{}
	s.terms.WalkFrom(start, limit, func(_ string, t *term) bool {
		for _, docs := range t.fields {
			for id := range docs {
				live[id] = true
			}
		}
		return true
	})
	s.mu.RUnlock()
	for id := range live {
		live[id] = isLive(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type pending struct {
		key    string
		remove bool
	}
	var toDelete []pending

	last, visited = s.terms.WalkFrom(start, limit, func(key string, t *term) bool {
		for field, docs := range t.fields {
			for id := range docs {
				if alive, seen := live[id]; seen && !alive {
					delete(docs, id)
				}
			}
			if len(docs) == 0 {
				delete(t.fields, field)
			}
		}
		if len(t.fields) == 0 {
			toDelete = append(toDelete, pending{key: key})
		}
		return true
	})
	for _, p := range toDelete {
		s.terms.Delete(p.key)
	}
	return last, visited
}

// ResetDirt zeroes the dirt counter, called once a vacuum pass
// completes.
func (s *Store) ResetDirt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirtCount = 0
}

// RecomputeAvgFieldLength recomputes avgFieldLength from scratch by
// scanning fieldLength, eliminating any drift accumulated from
// remove's best-effort incremental adjustment. Called once a vacuum
// pass completes.
func (s *Store) RecomputeAvgFieldLength() {
	s.mu.Lock()
	defer s.mu.Unlock()
	sums := make([]float64, len(s.fieldNames))
	for _, row := range s.fieldLength {
		for f, v := range row {
			if f < len(sums) {
				sums[f] += float64(v)
			}
		}
	}
	n := float64(len(s.fieldLength))
	for f := range sums {
		if n > 0 {
			s.avgLength[f] = sums[f] / n
		} else {
			s.avgLength[f] = 0
		}
	}
}

// AllShortIDs returns every short-id currently mapped to a live
// document. Used by JSON export.
func (s *Store) AllShortIDs() []ShortID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ShortID, 0, len(s.shortToID))
	for id := range s.shortToID {
		out = append(out, id)
	}
	return out
}

// NextID returns the next short-id that will be allocated.
func (s *Store) NextID() ShortID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID
}

// WalkTerms visits every (term, postings) pair in lexicographic order,
// under a read lock for the duration of the call. Used by JSON export.
func (s *Store) WalkTerms(fn func(term string, fields map[FieldID]map[ShortID]int)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.terms.Walk(func(key string, t *term) bool {
		fn(key, t.fields)
		return true
	})
}

// LoadState rebuilds the store from externally supplied state, used
// by JSON import. It replaces any existing content.
func (s *Store) LoadState(
	fieldNames []string,
	nextID ShortID,
	idToShort map[any]ShortID,
	fieldLength map[ShortID][]int,
	avgLength []float64,
	stored map[ShortID]map[string]any,
	dirtCount int,
	index map[string]map[FieldID]map[ShortID]int,
) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fieldNames = append([]string{}, fieldNames...)
	s.fieldIndex = make(map[string]FieldID, len(fieldNames))
	for i, f := range fieldNames {
		s.fieldIndex[f] = FieldID(i)
	}
	s.nextID = nextID
	s.idToShort = make(map[any]ShortID, len(idToShort))
	s.shortToID = make(map[ShortID]any, len(idToShort))
	for ext, id := range idToShort {
		s.idToShort[ext] = id
		s.shortToID[id] = ext
	}
	s.fieldLength = fieldLength
	s.avgLength = append([]float64{}, avgLength...)
	s.stored = stored
	s.dirtCount = dirtCount
	s.documentCount = len(idToShort)

	s.terms = radix.New[*term]()
	for t, fields := range index {
		s.terms.Set(t, &term{fields: fields})
	}
}
