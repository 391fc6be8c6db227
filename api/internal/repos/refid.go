package repos

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"
)

// RefIDPattern matches a public reference id, e.g. CMP-20260115-4821.
var RefIDPattern = regexp.MustCompile(`^CMP-\d{8}-\d{4}$`)

// NewRefID produces a candidate reference id for the given day. Collisions
// are possible and are resolved by the caller retrying against the unique
// index on ref_id.
func NewRefID(now time.Time) string {
	return fmt.Sprintf("CMP-%s-%04d", now.Format("20060102"), 1000+rand.IntN(9000))
}

// LooksLikeRefID reports whether a citizen-typed token is plausibly a
// reference id. Matching is case-insensitive since users retype these.
func LooksLikeRefID(s string) bool {
	return RefIDPattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}
