package unify

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Matcher scores how alike two already-normalized identity strings are,
// on a 0..1 scale. The metric is pluggable so the threshold semantics in the
// config stay meaningful if the algorithm is swapped.
type Matcher interface {
	Similarity(a, b string) float64
}

type JaroWinklerMatcher struct {
	metric *metrics.JaroWinkler
}

func NewJaroWinklerMatcher() *JaroWinklerMatcher {
	return &JaroWinklerMatcher{metric: metrics.NewJaroWinkler()}
}

func (m *JaroWinklerMatcher) Similarity(a, b string) float64 {
	return strutil.Similarity(a, b, m.metric)
}

// NormalizeIdentity lowercases and collapses whitespace so that casing and
// formatting differences never decide an identity match.
func NormalizeIdentity(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(strings.TrimSpace(value)), " "))
}
