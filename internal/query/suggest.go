package query

import (
	"sort"
	"strings"
)

// Suggestion is one auto-completed phrase.
type Suggestion struct {
	Phrase string
	Score  float64
	Terms  []string
}

// AutoSuggest tokenizes text the same way Search does, expands every
// position by prefix and fuzzy match (unless the caller's options set
// their own Prefix or Fuzzy, which replace these defaults), and for
// every document that matched at
// least one position builds a phrase from the winning expansion at
// each position. Phrases that recur across documents have their
// scores summed; the result is sorted by descending score.
func (e *Engine) AutoSuggest(text string, opts SearchOptions) []Suggestion {
	autosuggestDefaults := Merge(e.Defaults, SearchOptions{
		Prefix: func(string, int, []string) bool { return true },
		Fuzzy:  func(string, int, []string) float64 { return 0.2 },
	})
	effective := Merge(autosuggestDefaults, opts)

	terms := e.effectiveTerms(text)
	if len(terms) == 0 {
		return nil
	}

	type positionResult struct {
		scores map[ShortID]*docScore
		winner map[ShortID]string
	}
	perPosition := make([]positionResult, len(terms))
	for i, t := range terms {
		scores, winner := expandTerm(e.Store, t, i, terms, effective)
		perPosition[i] = positionResult{scores: scores, winner: winner}
	}

	docIDs := map[ShortID]struct{}{}
	for _, p := range perPosition {
		for docID := range p.scores {
			docIDs[docID] = struct{}{}
		}
	}

	phraseScore := map[string]float64{}
	phraseTerms := map[string][]string{}
	for docID := range docIDs {
		words := make([]string, 0, len(terms))
		var score float64
		matched := false
		for _, p := range perPosition {
			w, ok := p.winner[docID]
			if !ok {
				continue
			}
			matched = true
			words = append(words, w)
			score += p.scores[docID].Score
		}
		if !matched {
			continue
		}
		phrase := strings.Join(words, " ")
		phraseScore[phrase] += score
		if _, ok := phraseTerms[phrase]; !ok {
			phraseTerms[phrase] = append([]string{}, words...)
		}
	}

	suggestions := make([]Suggestion, 0, len(phraseScore))
	for phrase, score := range phraseScore {
		suggestions = append(suggestions, Suggestion{Phrase: phrase, Score: score, Terms: phraseTerms[phrase]})
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].Phrase < suggestions[j].Phrase
	})
	return suggestions
}
