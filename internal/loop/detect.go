package loop

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// fingerprintLen is the number of hex characters kept from the digest.
const fingerprintLen = 16

// Fingerprint returns a short digest of an iteration's output. It is only
// compared for equality.
func Fingerprint(output string) string {
	sum := blake3.Sum256([]byte(output))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// repeatDetector counts consecutive iterations whose output matches the
// previous one. Trivial repeats forgive one earlier match instead of
// counting.
type repeatDetector struct {
	threshold      int
	minSubstantial int

	last  string
	count int
}

func newRepeatDetector(threshold, minSubstantial int, lastHash string) *repeatDetector {
	return &repeatDetector{threshold: threshold, minSubstantial: minSubstantial, last: lastHash}
}

// observe records one iteration's output and reports its fingerprint and
// whether the run should stop as repeated.
func (d *repeatDetector) observe(output string) (hash string, repeated bool) {
	hash = Fingerprint(output)
	substantial := len(strings.TrimSpace(output)) >= d.minSubstantial

	if hash == d.last {
		if substantial {
			d.count++
		} else {
			d.count = max(d.count-1, 0)
		}
	} else {
		d.count = 0
	}
	d.last = hash
	return hash, substantial && d.count >= d.threshold
}

// stagnation compares successive activity scores. The counter lives in
// RunState so it survives a resume.
type stagnation struct {
	threshold int
	lastScore int
}

// observe updates count for score and reports whether the run has
// stagnated.
func (s *stagnation) observe(score int, count *int) bool {
	if score == s.lastScore {
		*count++
	} else {
		*count = 0
	}
	s.lastScore = score
	return *count >= s.threshold
}
