// Package resolver implements the staged heuristic pipeline that assigns a
// thoroughfare and house identifier to raw multi-line addresses. Cheap,
// confident rules run first; each later pass only sees what earlier passes
// left unresolved.
package resolver

import (
	"strings"

	"github.com/constituency-streets/internal/logging"
	"github.com/constituency-streets/internal/models"
)

// fuzzyCutoff is the similarity ratio a gazetteer match must reach
const fuzzyCutoff = 0.9

// Summary reports how a batch's addresses were resolved, for logging and
// the status API.
type Summary struct {
	Total        int
	PreLabeled   int
	FuzzyMatched int
	Substring    int
	RegexParsed  int
	LastResort   int
	POBoxes      int
	Unresolved   int
}

// Add merges another batch's summary into this one
func (s *Summary) Add(other Summary) {
	s.Total += other.Total
	s.PreLabeled += other.PreLabeled
	s.FuzzyMatched += other.FuzzyMatched
	s.Substring += other.Substring
	s.RegexParsed += other.RegexParsed
	s.LastResort += other.LastResort
	s.POBoxes += other.POBoxes
	s.Unresolved += other.Unresolved
}

// Resolver resolves one district batch at a time. Stateless between
// batches; the found-road set never leaks across invocations.
type Resolver struct {
	logger *logging.Logger
}

// New creates a resolver
func New(logger *logging.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// foundRoads accumulates road names discovered in one batch in insertion
// order, so the substring pass scans deterministically.
type foundRoads struct {
	seen  map[string]struct{}
	names []string
}

func newFoundRoads() *foundRoads {
	return &foundRoads{seen: make(map[string]struct{})}
}

func (f *foundRoads) add(name string) {
	if _, ok := f.seen[name]; ok {
		return
	}
	f.seen[name] = struct{}{}
	f.names = append(f.names, name)
}

// ResolveBatch mutates every address in the batch so thoroughfare and house
// identifier are populated, leaving all other fields untouched. roads is the
// district's known road-name set. Already-labeled addresses are kept as-is,
// which makes re-runs idempotent.
func (r *Resolver) ResolveBatch(addresses []*models.Address, roads []string) Summary {
	summary := Summary{Total: len(addresses)}
	found := newFoundRoads()

	// Pass 0: accept thoroughfares the provider already supplied.
	var unresolved []*models.Address
	for _, a := range addresses {
		if a.Thoroughfare != "" {
			found.add(a.Thoroughfare)
			summary.PreLabeled++
			continue
		}
		unresolved = append(unresolved, a)
	}

	unresolved = r.fuzzyPass(unresolved, roads, found, &summary)
	unresolved = r.substringPass(unresolved, found, &summary)
	unresolved = r.regexPass(unresolved, &summary)
	unresolved = r.lastResortPass(unresolved, &summary)
	summary.Unresolved = len(unresolved)

	for _, a := range addresses {
		a.HouseIdentifier = deriveHouseIdentifier(a)
	}

	if r.logger != nil {
		r.logger.WithFields(map[string]interface{}{
			"total":       summary.Total,
			"pre_labeled": summary.PreLabeled,
			"fuzzy":       summary.FuzzyMatched,
			"substring":   summary.Substring,
			"regex":       summary.RegexParsed,
			"last_resort": summary.LastResort,
			"po_boxes":    summary.POBoxes,
			"unresolved":  summary.Unresolved,
		}).Debug("resolved address batch")
	}

	return summary
}

// fuzzyPass matches each line against the district road set. A PO box line
// consumes the address with an intentionally empty thoroughfare. The first
// matching line fixes the thoroughfare; later lines are still scanned so
// their roads enrich the batch's found set, but never overwrite it.
func (r *Resolver) fuzzyPass(addresses []*models.Address, roads []string, found *foundRoads, summary *Summary) []*models.Address {
	var remaining []*models.Address

	for _, a := range addresses {
		resolved := false
		for _, line := range a.Lines() {
			if line == "" {
				continue
			}
			if !resolved && IsPOBox(line) {
				// Resolved with no thoroughfare; must not reach later passes.
				summary.POBoxes++
				resolved = true
				break
			}
			if match := BestMatch(line, roads, fuzzyCutoff); match != "" {
				found.add(match)
				if !resolved {
					a.Thoroughfare = match
					summary.FuzzyMatched++
					resolved = true
				}
			}
		}
		if !resolved {
			remaining = append(remaining, a)
		}
	}
	return remaining
}

// substringPass looks for any road discovered earlier in this batch
// occurring inside a line, case-insensitively. First hit wins.
func (r *Resolver) substringPass(addresses []*models.Address, found *foundRoads, summary *Summary) []*models.Address {
	var remaining []*models.Address

	for _, a := range addresses {
		resolved := false
	lines:
		for _, line := range a.Lines() {
			if line == "" {
				continue
			}
			for _, road := range found.names {
				if containsFold(line, road) {
					a.Thoroughfare = road
					summary.Substring++
					resolved = true
					break lines
				}
			}
		}
		if !resolved {
			remaining = append(remaining, a)
		}
	}
	return remaining
}

// regexPass takes the remainder after a leading unit token as the street,
// unless it names an organisation or PO box.
func (r *Resolver) regexPass(addresses []*models.Address, summary *Summary) []*models.Address {
	var remaining []*models.Address

	for _, a := range addresses {
		resolved := false
		for _, line := range a.Lines() {
			_, rest, ok := SplitHouseNumber(line)
			if !ok || IsOrganisation(rest) {
				continue
			}
			a.Thoroughfare = strings.TrimSpace(rest)
			summary.RegexParsed++
			resolved = true
			break
		}
		if !resolved {
			remaining = append(remaining, a)
		}
	}
	return remaining
}

// lastResortPass scans lines in reverse and takes the first non-empty line
// that is not an organisation, verbatim.
func (r *Resolver) lastResortPass(addresses []*models.Address, summary *Summary) []*models.Address {
	var remaining []*models.Address

	for _, a := range addresses {
		lines := a.Lines()
		resolved := false
		for i := len(lines) - 1; i >= 0; i-- {
			line := lines[i]
			if line == "" || IsOrganisation(line) {
				continue
			}
			a.Thoroughfare = line
			summary.LastResort++
			resolved = true
			break
		}
		if !resolved {
			remaining = append(remaining, a)
		}
	}
	return remaining
}

// deriveHouseIdentifier applies the house-identifier law: line1 verbatim
// when the thoroughfare does not occur in it, otherwise the leading unit
// token of line1 when present, otherwise line1.
func deriveHouseIdentifier(a *models.Address) string {
	if !containsFold(a.Line1, a.Thoroughfare) {
		return a.Line1
	}
	if unit, _, ok := SplitHouseNumber(a.Line1); ok && unit != "" {
		return unit
	}
	return a.Line1
}
