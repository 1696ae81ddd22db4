package search

import (
	"fmt"
	"sort"
)

// DefaultRRFConstant is the standard RRF smoothing parameter (spec.md
// §4.7/§8: "k = 60").
const DefaultRRFConstant = 60

// RRFFusion combines independently ranked result lists by reciprocal
// rank fusion: score_fused(d) = Σ 1/(k + rank(d)).
type RRFFusion struct {
	K int
}

// NewRRFFusion returns an RRFFusion with the default k=60.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// NewRRFFusionWithK returns an RRFFusion with a custom k; k<=0 defaults
// to DefaultRRFConstant.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse merges any number of ranked result lists (e.g. the lexical list
// and the semantic list that make up Hybrid mode) into one ranked
// list. Duplicates are merged on (File, LineStart), per spec.md §4.7
// ("merged on (file, span)"). Ties after fusion are broken by
// (File, LineStart) ascending — not by chunk id, since stable content
// hashes carry no useful line ordering.
func (f *RRFFusion) Fuse(lists ...[]*Result) []*Result {
	type accumulator struct {
		result *Result
		score  float64
	}

	scores := make(map[string]*accumulator)
	order := make([]string, 0)

	for _, list := range lists {
		for rank, r := range list {
			key := fusionKey(r)
			acc, ok := scores[key]
			if !ok {
				acc = &accumulator{result: r}
				scores[key] = acc
				order = append(order, key)
			}
			acc.score += 1.0 / float64(f.K+rank+1)
		}
	}

	out := make([]*Result, 0, len(order))
	for _, key := range order {
		acc := scores[key]
		cp := *acc.result
		cp.Score = acc.score
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].LineStart < out[j].LineStart
	})

	return out
}

func fusionKey(r *Result) string {
	return fmt.Sprintf("%s:%d", r.File, r.LineStart)
}
