package classify

import (
	"strings"

	"github.com/Doomsbay/ContigKit/internal/errors"
)

// Policy resolves a set of matched classes before first-match applies.
type Policy interface {
	Resolve(matched []string) (label string, ok bool)
}

// Overlap fires when both A and B matched and yields "A/B".
type Overlap struct {
	A, B string
}

// Label is the synthesized class, e.g. "megaplasmid/chromid".
func (o Overlap) Label() string {
	return o.A + "/" + o.B
}

func (o Overlap) Resolve(matched []string) (string, bool) {
	var hasA, hasB bool
	for _, m := range matched {
		hasA = hasA || m == o.A
		hasB = hasB || m == o.B
	}
	if hasA && hasB {
		return o.Label(), true
	}
	return "", false
}

// DefaultPolicies returns the built-in megaplasmid/chromid overlap.
func DefaultPolicies() []Policy {
	return []Policy{Overlap{A: "megaplasmid", B: "chromid"}}
}

// ParseOverlap parses "a/b".
func ParseOverlap(s string) (Overlap, error) {
	a, b, ok := strings.Cut(strings.TrimSpace(s), "/")
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if !ok || a == "" || b == "" || strings.Contains(b, "/") {
		return Overlap{}, errors.Newf("overlap %q: want two classes as a/b", s)
	}
	if a == b {
		return Overlap{}, errors.Newf("overlap %q: classes must differ", s)
	}
	return Overlap{A: a, B: b}, nil
}

// ParsePolicies parses "a/b" overlap pairs in priority order.
func ParsePolicies(pairs []string) ([]Policy, error) {
	out := make([]Policy, 0, len(pairs))
	for _, s := range pairs {
		if strings.TrimSpace(s) == "" {
			continue
		}
		o, err := ParseOverlap(s)
		if err != nil {
			return nil, errors.WithHint(err, "overlaps are written like megaplasmid/chromid")
		}
		out = append(out, o)
	}
	return out, nil
}
