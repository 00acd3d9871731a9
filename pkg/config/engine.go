package config

import (
	"github.com/nullstream/slimsearch"
)

// Options converts the YAML engine section into the library's Options.
// Zero-valued tuning fields are left unset so the library's own
// defaults apply; the prefix/fuzzy weights and the BM25 constants are
// each passed as a group once any of their fields is non-zero, and a
// zero field inside such a group is then used as 0.
func (e EngineConfig) Options() slimsearch.Options {
	opts := slimsearch.Options{
		Fields:            e.Fields,
		StoreFields:       e.StoreFields,
		IDField:           e.IDField,
		DisableAutoVacuum: !e.AutoVacuum,
		Vacuum: slimsearch.VacuumOptions{
			BatchSize:     e.BatchSize,
			BatchWait:     e.BatchWait,
			MinDirtCount:  e.MinDirtCount,
			MinDirtFactor: e.MinDirtFactor,
		},
	}
	if e.MaxFuzzy > 0 {
		opts.SearchOptions.MaxFuzzy = e.MaxFuzzy
	}
	if e.PrefixWeight > 0 || e.FuzzyWeight > 0 {
		opts.SearchOptions.Weights = &slimsearch.Weights{
			Prefix: e.PrefixWeight,
			Fuzzy:  e.FuzzyWeight,
		}
	}
	if e.BM25K > 0 || e.BM25B > 0 || e.BM25D > 0 {
		opts.SearchOptions.BM25 = &slimsearch.BM25Params{
			K: e.BM25K,
			B: e.BM25B,
			D: e.BM25D,
		}
	}
	return opts
}
