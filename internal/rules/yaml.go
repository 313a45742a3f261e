package rules

import (
	"io"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Doomsbay/ContigKit/internal/errors"
)

type yamlTable struct {
	Rules []yaml.Node `yaml:"rules"`
}

type yamlRule struct {
	Class       string   `yaml:"class"`
	MinSize     *float64 `yaml:"min_size"`
	MaxSize     *float64 `yaml:"max_size"`
	MustPresent []string `yaml:"must_present"`
	MustAbsent  []string `yaml:"must_absent"`
}

// ParseYAML parses a rule table of the form
//
//	rules:
//	  - class: chromosome
//	    min_size: 2
//	    max_size: 10
//	    must_present: [ribosomal_RNA]
//
// Sizes are megabases, as in the TSV form.
func ParseYAML(r io.Reader, path string) (Rules, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewIOError("read", path, err)
	}
	var doc yamlTable
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.RuleInvalidf(path, 0, "decode yaml: %v", err)
	}

	rs := make(Rules, 0, len(doc.Rules))
	for i := range doc.Rules {
		node := &doc.Rules[i]
		line := int64(node.Line)
		var yr yamlRule
		if err := node.Decode(&yr); err != nil {
			return nil, errors.RuleInvalidf(path, line, "decode rule: %v", err)
		}
		rule := Rule{
			Class:       strings.TrimSpace(yr.Class),
			MustPresent: normalizeList(yr.MustPresent),
			MustAbsent:  normalizeList(yr.MustAbsent),
			Line:        line,
		}
		if rule.MinSize, err = yamlBound(yr.MinSize, path, line, "min_size"); err != nil {
			return nil, err
		}
		if rule.MaxSize, err = yamlBound(yr.MaxSize, path, line, "max_size"); err != nil {
			return nil, err
		}
		rs = append(rs, rule)
	}
	if err := rs.Validate(path); err != nil {
		return nil, err
	}
	return rs, nil
}

func yamlBound(v *float64, path string, line int64, name string) (float64, error) {
	if v == nil {
		return 0, errors.RuleInvalidf(path, line, "%s is required", name)
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, errors.RuleInvalidf(path, line, "%s is not a number of megabases", name)
	}
	if *v < 0 {
		return 0, errors.RuleInvalidf(path, line, "%s %v is negative", name, *v)
	}
	return MbToBases(*v), nil
}

// normalizeList accepts both list entries and comma-joined strings.
func normalizeList(in []string) []string {
	var out []string
	for _, item := range in {
		out = append(out, SplitGenes(item)...)
	}
	return out
}
