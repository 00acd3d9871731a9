// The bench harness indexes a synthetic corpus in-process and measures
// search latency across exact, prefix, fuzzy, and boolean query mixes,
// then discards a slice of the corpus and times a vacuum pass.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/nullstream/slimsearch"
)

var vocabulary = []string{
	"search", "engine", "index", "ranking", "document", "query", "token",
	"prefix", "fuzzy", "boolean", "phrase", "suggest", "vacuum", "radix",
	"tree", "score", "field", "boost", "filter", "match", "term", "text",
	"title", "corpus", "library", "memory", "cache", "batch", "stream",
	"shard", "merge", "stemming", "stopword", "weight", "latency",
}

func main() {
	docCount := flag.Int("docs", 50000, "number of synthetic documents to index")
	queryCount := flag.Int("queries", 10000, "number of queries per mix")
	discardPct := flag.Int("discard", 20, "percent of documents to discard before vacuum")
	seed := flag.Int64("seed", 42, "corpus random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	ix, err := slimsearch.New(slimsearch.Options{
		Fields:            []string{"title", "text"},
		StoreFields:       []string{"title"},
		DisableAutoVacuum: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating index: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== slimsearch bench ===")
	fmt.Printf("Documents: %d\n", *docCount)
	fmt.Printf("Queries:   %d per mix\n", *queryCount)
	fmt.Println()

	docs := make([]slimsearch.Document, *docCount)
	for i := range docs {
		docs[i] = slimsearch.Document{
			"id":    fmt.Sprintf("doc-%d", i),
			"title": randomPhrase(rng, 3),
			"text":  randomPhrase(rng, 40),
		}
	}

	start := time.Now()
	if err := ix.AddAllAsync(context.Background(), docs); err != nil {
		fmt.Fprintf(os.Stderr, "indexing corpus: %v\n", err)
		os.Exit(1)
	}
	indexElapsed := time.Since(start)
	fmt.Printf("Indexed %d docs in %s (%.0f docs/sec), %d terms\n",
		*docCount, indexElapsed.Round(time.Millisecond),
		float64(*docCount)/indexElapsed.Seconds(), ix.TermCount())
	fmt.Println()

	mixes := []struct {
		name  string
		query func() (slimsearch.Query, []slimsearch.SearchOptions)
	}{
		{"exact", func() (slimsearch.Query, []slimsearch.SearchOptions) {
			return slimsearch.StringQuery(randomPhrase(rng, 2)), nil
		}},
		{"prefix", func() (slimsearch.Query, []slimsearch.SearchOptions) {
			term := vocabulary[rng.Intn(len(vocabulary))]
			q := slimsearch.StringQuery(term[:3])
			return q, []slimsearch.SearchOptions{{
				Prefix: func(string, int, []string) bool { return true },
			}}
		}},
		{"fuzzy", func() (slimsearch.Query, []slimsearch.SearchOptions) {
			return slimsearch.StringQuery(misspell(rng, vocabulary[rng.Intn(len(vocabulary))])),
				[]slimsearch.SearchOptions{{
					Fuzzy: func(string, int, []string) float64 { return 0.2 },
				}}
		}},
		{"boolean", func() (slimsearch.Query, []slimsearch.SearchOptions) {
			return &slimsearch.Composition{
				CombineWith: slimsearch.AND,
				Queries: []slimsearch.Query{
					slimsearch.StringQuery(vocabulary[rng.Intn(len(vocabulary))]),
					slimsearch.StringQuery(vocabulary[rng.Intn(len(vocabulary))]),
				},
			}, nil
		}},
	}

	for _, mix := range mixes {
		latencies := make([]time.Duration, 0, *queryCount)
		hits := 0
		for i := 0; i < *queryCount; i++ {
			q, opts := mix.query()
			qStart := time.Now()
			results, err := ix.Search(q, opts...)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s query failed: %v\n", mix.name, err)
				os.Exit(1)
			}
			latencies = append(latencies, time.Since(qStart))
			if len(results) > 0 {
				hits++
			}
		}
		report(mix.name, latencies, hits, *queryCount)
	}

	discardCount := *docCount * *discardPct / 100
	for i := 0; i < discardCount; i++ {
		if err := ix.Discard(fmt.Sprintf("doc-%d", i)); err != nil {
			fmt.Fprintf(os.Stderr, "discard: %v\n", err)
			os.Exit(1)
		}
	}
	stats := ix.Stats()
	fmt.Printf("Discarded %d docs (dirt factor %.2f)\n", discardCount, stats.DirtFactor)

	vacStart := time.Now()
	if err := ix.Vacuum(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "vacuum: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Vacuumed in %s (%d terms remain, dirt factor %.2f)\n",
		time.Since(vacStart).Round(time.Millisecond), ix.TermCount(), ix.Stats().DirtFactor)
}

func randomPhrase(rng *rand.Rand, words int) string {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = vocabulary[rng.Intn(len(vocabulary))]
	}
	return strings.Join(parts, " ")
}

// misspell swaps one interior character so fuzzy matching has work to do.
func misspell(rng *rand.Rand, word string) string {
	if len(word) < 4 {
		return word
	}
	b := []byte(word)
	i := 1 + rng.Intn(len(b)-2)
	b[i] = byte('a' + rng.Intn(26))
	return string(b)
}

func report(name string, latencies []time.Duration, hits, total int) {
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg := sum / time.Duration(len(latencies))
	fmt.Printf("--- %s (%d queries, %.1f%% with hits) ---\n",
		name, total, float64(hits)/float64(total)*100)
	fmt.Printf("Avg: %s  P50: %s  P95: %s  P99: %s  Max: %s\n",
		avg, percentile(latencies, 50), percentile(latencies, 95),
		percentile(latencies, 99), latencies[len(latencies)-1])
	fmt.Println()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
