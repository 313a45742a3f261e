// Package classify labels contigs with an ordered rule table.
//
// Every rule is evaluated against a record and the matches are reduced in a
// fixed order: overlap policies first, then the earliest matching rule, then
// Unknown. The engine holds no mutable state, so one Engine may classify
// contigs from any number of goroutines.
package classify

import (
	"go.uber.org/zap"

	"github.com/Doomsbay/ContigKit/internal/errors"
	"github.com/Doomsbay/ContigKit/internal/features"
	"github.com/Doomsbay/ContigKit/internal/logger"
	"github.com/Doomsbay/ContigKit/internal/progress"
	"github.com/Doomsbay/ContigKit/internal/rules"
)

// Unknown is assigned when no rule matches.
const Unknown = rules.Unknown

// Features is what a rule needs to know about a contig. Gene names are
// normalized; a gene the record does not carry counts as 0.
type Features interface {
	Length() (int, bool)
	GeneCount(gene string) int
}

// identified records name themselves in errors.
type identified interface {
	ContigID() string
}

// Match reports whether f satisfies every predicate of r. The caller must
// have checked that the length is known.
func Match(r rules.Rule, f Features) bool {
	length, _ := f.Length()
	size := float64(length)
	if size < r.MinSize || size > r.MaxSize {
		return false
	}
	if len(r.MustPresent) > 0 {
		present := false
		for _, g := range r.MustPresent {
			if f.GeneCount(g) > 0 {
				present = true
				break
			}
		}
		if !present {
			return false
		}
	}
	for _, g := range r.MustAbsent {
		if f.GeneCount(g) != 0 {
			return false
		}
	}
	return true
}

// Engine classifies records against one rule table.
type Engine struct {
	rules    rules.Rules
	policies []Policy
}

// New builds an engine. With no policies the engine reduces by first match
// only; pass DefaultPolicies() for the standard overlap handling.
func New(rs rules.Rules, policies ...Policy) (*Engine, error) {
	if err := rs.Validate(""); err != nil {
		return nil, err
	}
	for _, p := range policies {
		if o, ok := p.(Overlap); ok {
			for _, class := range []string{o.A, o.B} {
				if !rs.Has(class) {
					logger.Warn("overlap policy names a class with no rule",
						zap.String("policy", o.Label()),
						zap.String("class", class),
					)
				}
			}
		}
	}
	return &Engine{rules: rs, policies: append([]Policy(nil), policies...)}, nil
}

// Rules returns the engine's rule table.
func (e *Engine) Rules() rules.Rules {
	return e.rules
}

// Evaluate returns the classes of every matching rule, in table order.
func (e *Engine) Evaluate(f Features) ([]string, error) {
	if _, ok := f.Length(); !ok {
		key := ""
		if id, ok := f.(identified); ok {
			key = id.ContigID()
		}
		return nil, &errors.MissingKeyError{Key: key, Reason: "contig has no length"}
	}
	var matched []string
	for _, r := range e.rules {
		if Match(r, f) {
			matched = append(matched, r.Class)
		}
	}
	return matched, nil
}

// Classify returns the label for f.
func (e *Engine) Classify(f Features) (string, error) {
	matched, err := e.Evaluate(f)
	if err != nil {
		return "", err
	}
	return e.reduce(matched), nil
}

func (e *Engine) reduce(matched []string) string {
	for _, p := range e.policies {
		if label, ok := p.Resolve(matched); ok {
			return label
		}
	}
	if len(matched) > 0 {
		return matched[0]
	}
	return Unknown
}

// Counts maps a label to the number of contigs that received it.
type Counts map[string]int

// ClassifyAll labels every row of table in order, writing Contig.Class.
// It stops at the first error and leaves later rows unlabeled.
func (e *Engine) ClassifyAll(table *features.Table, bar *progress.Bar) (Counts, error) {
	counts := make(Counts)
	for _, c := range table.Rows {
		label, err := e.Classify(c)
		if err != nil {
			return nil, errors.Wrapf(err, "classify %s", c.ID)
		}
		c.Class = label
		counts[label]++
		bar.Increment()
	}
	bar.Finish()
	return counts, nil
}
