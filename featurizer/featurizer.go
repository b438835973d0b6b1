// Package featurizer converts raw text into the inputs the solving
// pipeline consumes: a term vocabulary, term frequency counts, and a
// symmetric term association matrix. It performs no solving of its own.
package featurizer

import (
	"regexp"
	"sort"
	"strings"
)

const (
	// MaxTerms caps the vocabulary per featurized text.
	MaxTerms = 150

	// minTermLength drops fragments too short to be meaningful entities.
	minTermLength = 3
)

// Proper-noun phrases: one or more capitalized words.
var phrasePattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)

// Co-occurrence segment boundaries: sentence ends, commas, and the
// coordinating conjunctions that usually separate clauses.
var segmentPattern = regexp.MustCompile(`[.!?]\s+|,\s+|\s+and\s+|\s+but\s+`)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(
		"the a an and or but if then else when at from by for with about " +
			"against between into through during before after above below to " +
			"up down in out on off over under again further once here there " +
			"all any both each few more most other some such no nor not only " +
			"own same so than too very s t can will just don should now d ll m o " +
			"is are was were be been being have has had do does did am " +
			"it its itself they them their theirs themselves what which who " +
			"whom this that these those " +
			"i me my myself we our ours ourselves you your yours yourself " +
			"yourselves he him his himself she her hers herself") {
		stopwords[w] = struct{}{}
	}
}

// Features is the mathematical shadow of one text: the vocabulary in
// frequency order, per-term occurrence counts, and Assoc[i][j] holding the
// number of segments where terms i and j co-occur.
type Features struct {
	Terms  []string
	Counts map[string]int
	Assoc  [][]float64
}

// Featurizer extracts features from raw text.
type Featurizer struct{}

// New creates a Featurizer.
func New() *Featurizer {
	return &Featurizer{}
}

// Featurize runs extraction and association building in one pass.
func (f *Featurizer) Featurize(text string) *Features {
	terms := f.ExtractTerms(text)
	assoc, counts := f.BuildAssociation(text, terms)
	return &Features{Terms: terms, Counts: counts, Assoc: assoc}
}

// ExtractTerms pulls candidate entities with the capitalized-phrase
// heuristic, strips stopwords from each phrase, and returns the top
// MaxTerms by frequency. Ties keep first-appearance order so extraction
// is deterministic.
func (f *Featurizer) ExtractTerms(text string) []string {
	raw := phrasePattern.FindAllString(text, -1)

	counts := map[string]int{}
	order := map[string]int{}
	unique := []string{}
	for _, candidate := range raw {
		kept := []string{}
		for _, part := range strings.Fields(candidate) {
			if _, stop := stopwords[strings.ToLower(part)]; !stop {
				kept = append(kept, part)
			}
		}
		if len(kept) == 0 {
			continue
		}
		term := strings.Join(kept, " ")
		if len(term) < minTermLength {
			continue
		}
		if _, seen := counts[term]; !seen {
			order[term] = len(order)
			unique = append(unique, term)
		}
		counts[term]++
	}

	sort.SliceStable(unique, func(i, j int) bool {
		if counts[unique[i]] != counts[unique[j]] {
			return counts[unique[i]] > counts[unique[j]]
		}
		return order[unique[i]] < order[unique[j]]
	})
	if len(unique) > MaxTerms {
		unique = unique[:MaxTerms]
	}
	return unique
}

// BuildAssociation constructs the symmetric co-occurrence matrix over the
// given vocabulary, counting segment-level cliques: every pair of distinct
// terms appearing in the same segment gains one link. It also returns
// per-term occurrence counts over the segments.
func (f *Featurizer) BuildAssociation(text string, terms []string) ([][]float64, map[string]int) {
	n := len(terms)
	assoc := make([][]float64, n)
	for i := range assoc {
		assoc[i] = make([]float64, n)
	}
	counts := map[string]int{}

	// Bond multi-word terms so token scanning cannot match fragments.
	// Longest first, so "Blue Whale Shark" bonds before "Blue Whale".
	bonded := make([]string, n)
	index := map[string]int{}
	sorted := make([]int, n)
	for i := range sorted {
		sorted[i] = i
	}
	sort.SliceStable(sorted, func(a, b int) bool {
		return len(terms[sorted[a]]) > len(terms[sorted[b]])
	})
	for i, term := range terms {
		bonded[i] = strings.ReplaceAll(term, " ", "_")
		index[bonded[i]] = i
	}

	for _, segment := range segmentPattern.Split(text, -1) {
		for _, i := range sorted {
			if strings.Contains(terms[i], " ") {
				segment = strings.ReplaceAll(segment, terms[i], bonded[i])
			}
		}

		found := map[int]struct{}{}
		for _, token := range strings.Fields(segment) {
			token = strings.Trim(token, `.,;:"'`)
			if i, ok := index[token]; ok {
				found[i] = struct{}{}
				counts[terms[i]]++
			}
		}

		members := make([]int, 0, len(found))
		for i := range found {
			members = append(members, i)
		}
		sort.Ints(members)
		for a := 0; a < len(members); a++ {
			for b := a + 1; b < len(members); b++ {
				assoc[members[a]][members[b]]++
				assoc[members[b]][members[a]]++
			}
		}
	}

	return assoc, counts
}
