package slimsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nullstream/slimsearch/internal/store"
)

// serializationVersion is the current on-wire format version.
const serializationVersion = 2

// serializedIndex is the JSON shape of a dumped index. Short-ids and
// field-ids appear as stringified keys, since JSON object keys are
// always strings.
type serializedIndex struct {
	DocumentCount      int                       `json:"documentCount"`
	NextID             uint32                    `json:"nextId"`
	DocumentIDs        map[string]any            `json:"documentIds"`
	FieldIDs           map[string]int            `json:"fieldIds"`
	FieldLength        map[string][]int          `json:"fieldLength"`
	AverageFieldLength []float64                 `json:"averageFieldLength"`
	StoredFields       map[string]map[string]any `json:"storedFields"`
	DirtCount          int                       `json:"dirtCount"`
	Version            int                       `json:"version"`
	Index              []indexEntry              `json:"index"`
}

// indexEntry is one dictionary term with its postings, serialized as
// the two-element array [term, {fieldId: {shortId: freq}}]. The
// per-field value is kept raw on decode because version 1 wrapped it
// in a {df, ds} envelope.
type indexEntry struct {
	Term   string
	Fields map[string]json.RawMessage
}

func (e indexEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Term, e.Fields})
}

func (e *indexEntry) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &e.Term); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &e.Fields)
}

// legacyPostings is the version-1 per-field posting shape.
type legacyPostings struct {
	DF int            `json:"df"`
	DS map[string]int `json:"ds"`
}

// ToJSON serializes the full index state, including dirt accounting,
// in the current format version. Terms are emitted in lexicographic
// order, so dumps of equal indexes are byte-identical.
func (ix *Index) ToJSON() ([]byte, error) {
	s := serializedIndex{
		DocumentCount:      ix.store.DocumentCount(),
		NextID:             uint32(ix.store.NextID()),
		DocumentIDs:        map[string]any{},
		FieldIDs:           map[string]int{},
		FieldLength:        map[string][]int{},
		AverageFieldLength: ix.store.AvgFieldLength(),
		StoredFields:       map[string]map[string]any{},
		DirtCount:          ix.store.DirtCount(),
		Version:            serializationVersion,
	}
	for i, f := range ix.store.FieldNames() {
		s.FieldIDs[f] = i
	}
	for _, sid := range ix.store.AllShortIDs() {
		key := strconv.FormatUint(uint64(sid), 10)
		ext, _ := ix.store.ExternalIDOf(sid)
		s.DocumentIDs[key] = ext
		if row, ok := ix.store.FieldLength(sid); ok {
			s.FieldLength[key] = row
		}
		if stored, ok := ix.store.StoredFields(sid); ok {
			s.StoredFields[key] = stored
		}
	}
	var marshalErr error
	ix.store.WalkTerms(func(term string, fields map[store.FieldID]map[store.ShortID]int) {
		if marshalErr != nil {
			return
		}
		entry := indexEntry{Term: term, Fields: map[string]json.RawMessage{}}
		for fieldID, docs := range fields {
			inner := make(map[string]int, len(docs))
			for sid, freq := range docs {
				inner[strconv.FormatUint(uint64(sid), 10)] = freq
			}
			raw, err := json.Marshal(inner)
			if err != nil {
				marshalErr = err
				return
			}
			entry.Fields[strconv.Itoa(int(fieldID))] = raw
		}
		s.Index = append(s.Index, entry)
	})
	if marshalErr != nil {
		return nil, marshalErr
	}
	return json.Marshal(s)
}

// LoadJSON rebuilds an index from a ToJSON dump. The given Options
// must declare the same fields, in the same order, as the index that
// produced the dump. Version-1 dumps are accepted; their dirt state
// is unknown, so the loaded index starts with a dirt count of zero.
func LoadJSON(data []byte, opts Options) (*Index, error) {
	return loadJSON(data, opts, nil)
}

// LoadJSONAsync is LoadJSON with a cooperative cancellation point
// between posting-rebuild batches, for loading large dumps without
// wedging the caller past its deadline.
func LoadJSONAsync(ctx context.Context, data []byte, opts Options) (*Index, error) {
	return loadJSON(data, opts, func() error { return ctx.Err() })
}

const loadBatchSize = 1000

func loadJSON(data []byte, opts Options, yield func() error) (*Index, error) {
	var s serializedIndex
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}
	if s.Version != 1 && s.Version != serializationVersion {
		return nil, fmt.Errorf("%w %d", ErrIncompatibleVersion, s.Version)
	}

	ix, err := New(opts)
	if err != nil {
		return nil, err
	}
	if len(s.FieldIDs) != len(ix.opts.Fields) {
		return nil, fmt.Errorf("%w: serialized fields do not match declared fields", ErrInvalidOption)
	}
	for name, id := range s.FieldIDs {
		declared, ok := ix.store.FieldID(name)
		if !ok || int(declared) != id {
			return nil, fmt.Errorf("%w: serialized field %q does not match declared fields", ErrInvalidOption, name)
		}
	}

	idToShort := make(map[any]store.ShortID, len(s.DocumentIDs))
	for key, ext := range s.DocumentIDs {
		sid, err := parseShortID(key)
		if err != nil {
			return nil, err
		}
		idToShort[ext] = sid
	}
	fieldLength := make(map[store.ShortID][]int, len(s.FieldLength))
	for key, row := range s.FieldLength {
		sid, err := parseShortID(key)
		if err != nil {
			return nil, err
		}
		fieldLength[sid] = row
	}
	stored := make(map[store.ShortID]map[string]any, len(s.StoredFields))
	for key, fields := range s.StoredFields {
		sid, err := parseShortID(key)
		if err != nil {
			return nil, err
		}
		stored[sid] = fields
	}

	index := make(map[string]map[store.FieldID]map[store.ShortID]int, len(s.Index))
	for i, entry := range s.Index {
		if yield != nil && i%loadBatchSize == 0 {
			if err := yield(); err != nil {
				return nil, err
			}
		}
		fields, err := decodePostings(entry, s.Version)
		if err != nil {
			return nil, err
		}
		index[entry.Term] = fields
	}

	dirt := s.DirtCount
	if s.Version == 1 {
		dirt = 0
	}
	ix.store.LoadState(opts.Fields, store.ShortID(s.NextID), idToShort,
		fieldLength, s.AverageFieldLength, stored, dirt, index)
	return ix, nil
}

func decodePostings(entry indexEntry, version int) (map[store.FieldID]map[store.ShortID]int, error) {
	fields := make(map[store.FieldID]map[store.ShortID]int, len(entry.Fields))
	for fieldKey, raw := range entry.Fields {
		fieldID, err := strconv.Atoi(fieldKey)
		if err != nil {
			return nil, fmt.Errorf("%w: bad field id %q in serialized index", ErrInvalidOption, fieldKey)
		}
		var docs map[string]int
		if version == 1 {
			var legacy legacyPostings
			if err := json.Unmarshal(raw, &legacy); err != nil {
				return nil, fmt.Errorf("%w: bad v1 postings for term %q: %v", ErrInvalidOption, entry.Term, err)
			}
			docs = legacy.DS
		} else if err := json.Unmarshal(raw, &docs); err != nil {
			return nil, fmt.Errorf("%w: bad postings for term %q: %v", ErrInvalidOption, entry.Term, err)
		}
		inner := make(map[store.ShortID]int, len(docs))
		for docKey, freq := range docs {
			sid, err := parseShortID(docKey)
			if err != nil {
				return nil, err
			}
			inner[sid] = freq
		}
		fields[store.FieldID(fieldID)] = inner
	}
	return fields, nil
}

func parseShortID(key string) (store.ShortID, error) {
	v, err := strconv.ParseUint(key, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad short-id %q in serialized index", ErrInvalidOption, key)
	}
	return store.ShortID(v), nil
}
