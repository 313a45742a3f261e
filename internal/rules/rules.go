// Package rules loads the ordered classification rule table. Tables come as
// tab-separated text (the externally authored format) or as YAML; both
// produce the same Rules value with bounds in base pairs and gene names
// normalized for matrix lookups.
package rules

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Doomsbay/ContigKit/internal/errors"
	"github.com/Doomsbay/ContigKit/internal/genes"
	"github.com/Doomsbay/ContigKit/internal/tsv"
)

// Unknown is the label for contigs no rule matches. Rule tables may not use it.
const Unknown = "unknown"

const basesPerMb = 1e6

//go:embed default_rules.tsv
var defaultTable string

// Rule is one row of the rule table. Bounds are inclusive, in base pairs.
type Rule struct {
	Class       string
	MinSize     float64
	MaxSize     float64
	MustPresent []string
	MustAbsent  []string
	// Line is the source line, 0 for rules built in code.
	Line int64
}

// Rules is a validated table. Order is priority.
type Rules []Rule

// Genes returns every gene the table references, by first appearance
// scanning must-present then must-absent of each rule top to bottom.
func (rs Rules) Genes() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range rs {
		for _, list := range [][]string{r.MustPresent, r.MustAbsent} {
			for _, g := range list {
				if _, ok := seen[g]; ok {
					continue
				}
				seen[g] = struct{}{}
				out = append(out, g)
			}
		}
	}
	return out
}

// Classes returns the distinct class names in table order.
func (rs Rules) Classes() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range rs {
		if _, ok := seen[r.Class]; ok {
			continue
		}
		seen[r.Class] = struct{}{}
		out = append(out, r.Class)
	}
	return out
}

// Has reports whether any rule carries class.
func (rs Rules) Has(class string) bool {
	for _, r := range rs {
		if r.Class == class {
			return true
		}
	}
	return false
}

// Validate checks every rule and the table as a whole.
func (rs Rules) Validate(path string) error {
	if len(rs) == 0 {
		return errors.WithHint(errors.RuleInvalidf(path, 0, "no rules"), "add at least one rule row below the header")
	}
	for _, r := range rs {
		switch {
		case r.Class == "":
			return errors.RuleInvalidf(path, r.Line, "empty class name")
		case r.Class == Unknown:
			return errors.RuleInvalidf(path, r.Line, "class %q is reserved for unmatched contigs", Unknown)
		case r.MinSize < 0 || r.MaxSize < 0:
			return errors.RuleInvalidf(path, r.Line, "%s: negative size bound", r.Class)
		case r.MinSize > r.MaxSize:
			return errors.RuleInvalidf(path, r.Line, "%s: min_size %s Mb is greater than max_size %s Mb",
				r.Class, formatMb(r.MinSize), formatMb(r.MaxSize))
		}
	}
	return nil
}

// Default returns the built-in rule table.
func Default() Rules {
	rs, err := ParseTSV(strings.NewReader(defaultTable), "default_rules.tsv")
	if err != nil {
		panic(fmt.Sprintf("built-in rule table: %v", err))
	}
	return rs
}

// Load reads a rule table, choosing YAML for .yaml/.yml (optionally .gz)
// and TSV otherwise.
func Load(path string) (Rules, error) {
	in, err := tsv.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = in.Close()
	}()

	name := strings.TrimSuffix(strings.ToLower(path), ".gz")
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return ParseYAML(in, path)
	default:
		return ParseTSV(in, path)
	}
}

// ParseTSV parses the tab-separated rule table. A header row whose first cell
// is "class" is optional; blank lines and lines starting with # are skipped.
// Trailing empty gene cells may be omitted.
func ParseTSV(r io.Reader, path string) (Rules, error) {
	var rs Rules
	headerChecked := false
	opts := tsv.DefaultOptions()
	opts.Path = path
	opts.Workers = 1

	err := tsv.Parse(context.Background(), r, opts, func(row tsv.Row) error {
		if row.Blank() || strings.HasPrefix(strings.TrimSpace(string(row.Fields[0])), "#") {
			return nil
		}
		cells := row.Strings()
		if !headerChecked {
			headerChecked = true
			if strings.TrimSpace(cells[0]) == "class" {
				return nil
			}
		}
		if len(cells) < 3 || len(cells) > 5 {
			return errors.RuleInvalidf(path, row.Line, "expected 3 to 5 columns (class, min_size, max_size, must_present, must_absent), got %d", len(cells))
		}
		for len(cells) < 5 {
			cells = append(cells, "")
		}
		rule := Rule{
			Class:       strings.TrimSpace(cells[0]),
			MustPresent: SplitGenes(cells[3]),
			MustAbsent:  SplitGenes(cells[4]),
			Line:        row.Line,
		}
		var err error
		if rule.MinSize, err = parseMb(cells[1], path, row.Line, "min_size"); err != nil {
			return err
		}
		if rule.MaxSize, err = parseMb(cells[2], path, row.Line, "max_size"); err != nil {
			return err
		}
		rs = append(rs, rule)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := rs.Validate(path); err != nil {
		return nil, err
	}
	return rs, nil
}

// SplitGenes parses a comma-separated gene cell. Empty entries are dropped so
// an empty cell means no constraint.
func SplitGenes(cell string) []string {
	var out []string
	for _, part := range strings.Split(cell, ",") {
		if g := genes.Normalize(part); g != "" {
			out = append(out, g)
		}
	}
	return out
}

// MbToBases converts megabases to base pairs, snapping float noise such as
// 0.35*1e6 to the nearest integer.
func MbToBases(mb float64) float64 {
	v := mb * basesPerMb
	if r := math.Round(v); math.Abs(v-r) < 1e-6 {
		return r
	}
	return v
}

func parseMb(cell, path string, line int64, name string) (float64, error) {
	raw := strings.TrimSpace(cell)
	mb, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(mb) || math.IsInf(mb, 0) {
		return 0, errors.RuleInvalidf(path, line, "%s %q is not a number of megabases", name, raw)
	}
	if mb < 0 {
		return 0, errors.RuleInvalidf(path, line, "%s %q is negative", name, raw)
	}
	return MbToBases(mb), nil
}

func formatMb(bases float64) string {
	return strconv.FormatFloat(bases/basesPerMb, 'f', -1, 64)
}

// WriteTSV writes the table back in the tab-separated format, sizes in Mb
// and gene names in their normalized form.
func (rs Rules) WriteTSV(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "class\tmin_size(Mb)\tmax_size(Mb)\tkey_genes_must_present\tkey_genes_must_absent"); err != nil {
		return err
	}
	for _, r := range rs {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Class, formatMb(r.MinSize), formatMb(r.MaxSize),
			strings.Join(r.MustPresent, ","), strings.Join(r.MustAbsent, ",")); err != nil {
			return err
		}
	}
	return nil
}
