package query

import (
	"sort"

	"github.com/nullstream/slimsearch/internal/store"
)

// docScore is the accumulated contribution of one query term across
// all of its matched candidates and fields, for one document.
type docScore struct {
	Score float64
	Match MatchInfo
}

type candidate struct {
	term       string
	multiplier float64
	snapshot   store.PostingSnapshot
}

// expandTerm resolves one query term (at position pos in terms) into
// a map of document scores, by exact/prefix/fuzzy expansion against
// st followed by BM25+ scoring across opts.Fields. The second return
// value carries, per matched document, the single dictionary term
// whose individual contribution was highest; AutoSuggest uses it to
// pick which expansion represents this position in a suggestion
// phrase, while Search only needs the full per-term docScore map.
func expandTerm(st *store.Store, q string, pos int, terms []string, opts SearchOptions) (map[ShortID]*docScore, map[ShortID]string) {
	candidates := map[string]candidate{}

	consider := func(snap store.PostingSnapshot, multiplier float64) {
		if existing, ok := candidates[snap.Term]; !ok || multiplier > existing.multiplier {
			candidates[snap.Term] = candidate{term: snap.Term, multiplier: multiplier, snapshot: snap}
		}
	}

	if snap, ok := st.LookupExact(q); ok {
		consider(snap, 1*editWeight(0))
	}
	if opts.Prefix != nil && opts.Prefix(q, pos, terms) {
		for _, snap := range st.LookupPrefix(q) {
			distance := len(snap.Term) - len(q)
			consider(snap, opts.Weights.Prefix*editWeight(distance))
		}
	}
	if opts.Fuzzy != nil {
		if f := opts.Fuzzy(q, pos, terms); f != 0 {
			maxDistance := maxDistanceFor(f, len(q), opts.MaxFuzzy)
			for _, snap := range st.LookupFuzzy(q, maxDistance) {
				consider(snap, opts.Weights.Fuzzy*editWeight(snap.Distance))
			}
		}
	}

	result := make(map[ShortID]*docScore)
	bestContribution := make(map[ShortID]float64)
	winner := make(map[ShortID]string)
	n := float64(st.DocumentCount())
	avgLens := st.AvgFieldLength()

	for _, c := range candidates {
		df := float64(c.snapshot.DistinctDocs())
		for _, fieldName := range opts.Fields {
			fieldID, ok := st.FieldID(fieldName)
			if !ok {
				continue
			}
			docs, ok := c.snapshot.Fields[fieldID]
			if !ok {
				continue
			}
			avgLen := avgLens[fieldID]
			if avgLen == 0 {
				continue
			}
			fieldBoost := 1.0
			if opts.Boost != nil {
				if b, ok := opts.Boost[fieldName]; ok {
					fieldBoost = b
				}
			}
			for docID, tf := range docs {
				if !st.IsLive(docID) {
					continue
				}
				row, ok := st.FieldLength(docID)
				if !ok {
					continue
				}
				fieldLen := float64(row[fieldID])
				contribution := bm25Plus(float64(tf), df, n, fieldLen, avgLen, *opts.BM25) * fieldBoost * c.multiplier

				entry := result[docID]
				if entry == nil {
					entry = &docScore{Match: MatchInfo{}}
					result[docID] = entry
				}
				entry.Score += contribution
				entry.Match[c.term] = insertSorted(entry.Match[c.term], fieldName)

				if contribution > bestContribution[docID] {
					bestContribution[docID] = contribution
					winner[docID] = c.term
				}
			}
		}
	}

	if opts.BoostTerm != nil {
		factor := opts.BoostTerm(q, pos, terms)
		for _, e := range result {
			e.Score *= factor
		}
	}

	return result, winner
}

func insertSorted(fields []string, name string) []string {
	i := sort.SearchStrings(fields, name)
	if i < len(fields) && fields[i] == name {
		return fields
	}
	fields = append(fields, "")
	copy(fields[i+1:], fields[i:])
	fields[i] = name
	return fields
}
