package resolver

import (
	"sort"

	"github.com/pmezard/go-difflib/difflib"
)

// splitChars breaks a string into per-rune elements for the sequence
// matcher, which operates on string slices.
func splitChars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// CloseMatches returns the candidates whose similarity ratio to target meets
// cutoff, best match first, at most n results. The two cheaper ratio upper
// bounds are checked before the full ratio to keep large gazetteers fast.
func CloseMatches(target string, candidates []string, n int, cutoff float64) []string {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}

	type scored struct {
		name  string
		ratio float64
	}

	matcher := difflib.NewMatcher(nil, splitChars(target))

	var results []scored
	for _, candidate := range candidates {
		matcher.SetSeq1(splitChars(candidate))
		if matcher.RealQuickRatio() < cutoff {
			continue
		}
		if matcher.QuickRatio() < cutoff {
			continue
		}
		if ratio := matcher.Ratio(); ratio >= cutoff {
			results = append(results, scored{name: candidate, ratio: ratio})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ratio > results[j].ratio
	})

	if len(results) > n {
		results = results[:n]
	}

	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.name
	}
	return out
}

// BestMatch returns the single closest candidate at or above cutoff, or an
// empty string.
func BestMatch(target string, candidates []string, cutoff float64) string {
	matches := CloseMatches(target, candidates, 1, cutoff)
	if len(matches) == 0 {
		return ""
	}
	return matches[0]
}
