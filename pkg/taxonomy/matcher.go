package taxonomy

import (
	"strings"
	"unicode"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultCutoff is the minimum similarity score accepted as a real match
// (spec §4.4).
const DefaultCutoff = 0.30

// Matcher scores a raw category string against a loaded Tree.
type Matcher struct {
	Tree   Tree
	Cutoff float64
}

// NewMatcher builds a Matcher over tree using cutoff as the rejection
// threshold. A cutoff <= 0 uses DefaultCutoff.
func NewMatcher(tree Tree, cutoff float64) *Matcher {
	if cutoff <= 0 {
		cutoff = DefaultCutoff
	}
	return &Matcher{Tree: tree, Cutoff: cutoff}
}

// FindBestCategory scores raw against every full path in the tree and
// returns the best (path, confidence). An empty raw string, or a best
// score below the cutoff, returns ("Uncategorized", 0.0) per spec §4.4.
func (m *Matcher) FindBestCategory(raw string) (string, float64) {
	if strings.TrimSpace(raw) == "" {
		return "Uncategorized", 0.0
	}

	var bestPath string
	var bestScore float64
	for _, path := range m.Tree.AllPaths() {
		score := similarity(raw, path)
		if score > bestScore {
			bestScore = score
			bestPath = path
		}
	}

	if bestPath == "" || bestScore < m.Cutoff {
		return "Uncategorized", 0.0
	}
	return bestPath, round3(bestScore)
}

// similarity uses difflib.SequenceMatcher.ratio()'s formula: twice the
// number of matching characters divided by the combined length of both
// strings, where "matching" is measured over the Myers diff's equal-ops.
// That count is a longest-common-subsequence length, so on some inputs it
// is higher than difflib's matching-block count and the score differs.
func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)

	var matching int
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			matching += len([]rune(d.Text))
		}
	}

	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 0
	}
	return 2 * float64(matching) / float64(total)
}

func round3(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}

var naturalLanguagePrefixes = []string{
	"i'm", "im", "sure", "here", "here's", "heres", "certainly", "of course",
}

// IsValidCandidate applies the validity gate from spec §4.4: reject
// anything that looks like prose rather than a taxonomy path.
func IsValidCandidate(candidate string) bool {
	trimmed := strings.TrimSpace(candidate)
	if len(trimmed) < 3 || len(trimmed) > 200 {
		return false
	}
	if len(strings.Fields(trimmed)) > 10 {
		return false
	}

	lower := strings.ToLower(trimmed)
	for _, prefix := range naturalLanguagePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return hasLetters(trimmed)
}

func hasLetters(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
