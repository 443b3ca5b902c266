package consolidate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/halcyard/engram/pkg/types"
)

// Contradiction is a pair of fragments asserting incompatible facts about
// the same subject.
type Contradiction struct {
	A      types.MemoryFragment
	B      types.MemoryFragment
	Reason string
}

// ContradictionStrategy detects contradicting fragment pairs. The default
// polarity scanner is intentionally narrow; callers with better semantics
// can plug in their own without touching the pipeline.
type ContradictionStrategy interface {
	Detect(fragments []types.MemoryFragment) []Contradiction
}

// polarityPair is one positive/negative pattern pair. Both sides capture
// the subject as the first group; a contradiction requires the same
// subject token on both sides.
type polarityPair struct {
	label    string
	positive *regexp.Regexp
	negative *regexp.Regexp
}

// PolarityStrategy scans fragment pairs against a fixed set of polarity
// pattern pairs. Same-timestamp pairs are skipped: without ordering there
// is no basis for resolution.
type PolarityStrategy struct {
	pairs []polarityPair
}

var _ ContradictionStrategy = (*PolarityStrategy)(nil)

// NewPolarityStrategy creates the default detector.
func NewPolarityStrategy() *PolarityStrategy {
	return &PolarityStrategy{
		pairs: []polarityPair{
			{
				label:    "negated statement",
				positive: regexp.MustCompile(`(?i)\b(\w+) is (?:\w+)`),
				negative: regexp.MustCompile(`(?i)\b(\w+) is not\b`),
			},
			{
				label:    "changed employer",
				positive: regexp.MustCompile(`(?i)\b(\w+) works at\b`),
				negative: regexp.MustCompile(`(?i)\b(\w+) left\b`),
			},
			{
				label:    "changed location",
				positive: regexp.MustCompile(`(?i)\b(\w+) lives in\b`),
				negative: regexp.MustCompile(`(?i)\b(\w+) moved from\b`),
			},
		},
	}
}

// Detect reports every fragment pair where one side matches a positive
// pattern and the other the paired negative pattern with the same subject.
func (s *PolarityStrategy) Detect(fragments []types.MemoryFragment) []Contradiction {
	var out []Contradiction
	for i := 0; i < len(fragments); i++ {
		for j := i + 1; j < len(fragments); j++ {
			a, b := fragments[i], fragments[j]
			if a.Timestamp.Equal(b.Timestamp) {
				continue
			}
			for _, pair := range s.pairs {
				subject, ok := pair.match(a.Content, b.Content)
				if !ok {
					subject, ok = pair.match(b.Content, a.Content)
				}
				if ok {
					out = append(out, Contradiction{
						A:      a,
						B:      b,
						Reason: fmt.Sprintf("%s about %q", pair.label, subject),
					})
					break
				}
			}
		}
	}
	return out
}

// match checks positive against the first text and negative against the
// second, returning the shared subject when both hit.
func (p *polarityPair) match(positiveText, negativeText string) (string, bool) {
	pos := p.positive.FindStringSubmatch(positiveText)
	if pos == nil {
		return "", false
	}
	// A text matching the negative form is not a positive assertion, even
	// when the looser positive pattern also happens to match it.
	if n := p.negative.FindStringSubmatch(positiveText); n != nil && strings.EqualFold(n[1], pos[1]) {
		return "", false
	}
	neg := p.negative.FindStringSubmatch(negativeText)
	if neg == nil {
		return "", false
	}
	if !strings.EqualFold(pos[1], neg[1]) {
		return "", false
	}
	return pos[1], true
}
