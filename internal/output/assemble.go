// Package output fixes the column layout of the labeled contig table and
// serializes it as TSV, Parquet and a JSON run report.
package output

import (
	"strconv"

	"github.com/Doomsbay/ContigKit/internal/errors"
	"github.com/Doomsbay/ContigKit/internal/features"
	"github.com/Doomsbay/ContigKit/internal/rules"
)

// ClassColumn is the header of the label column.
const ClassColumn = "class"

// Kind says where a column's values come from and how they are typed.
type Kind int

const (
	KindPassThrough Kind = iota
	KindLength
	KindGC
	KindFeatures
	KindClass
	KindGene
)

// Column is one output column. Index points into the stats cells for
// stats-derived kinds and into Table.Genes for KindGene.
type Column struct {
	Name  string
	Kind  Kind
	Index int
}

// Assembled is a classified table with its final column order.
type Assembled struct {
	Columns []Column
	Table   *features.Table
}

// Columns computes the output layout: stats columns in header order
// with class right after GC, then gene columns in rule reference order, then
// the remaining gene columns in encounter order.
func Columns(table *features.Table, rs rules.Rules) []Column {
	stats := table.Stats
	featuresCol := stats.FeaturesColumn()
	cols := make([]Column, 0, len(stats.Columns)+1+len(table.Genes()))
	for i, name := range stats.Columns {
		kind := KindPassThrough
		switch {
		case name == features.ColLength:
			kind = KindLength
		case name == features.ColGC:
			kind = KindGC
		case featuresCol != "" && name == featuresCol:
			kind = KindFeatures
		}
		cols = append(cols, Column{Name: name, Kind: kind, Index: i})
		if kind == KindGC {
			cols = append(cols, Column{Name: ClassColumn, Kind: KindClass, Index: -1})
		}
	}

	geneIdx := make(map[string]int)
	for i, g := range table.Genes() {
		geneIdx[g] = i
	}
	placed := make(map[string]struct{})
	for _, g := range rs.Genes() {
		idx, ok := geneIdx[g]
		if !ok {
			continue
		}
		placed[g] = struct{}{}
		cols = append(cols, Column{Name: g, Kind: KindGene, Index: idx})
	}
	for i, g := range table.Genes() {
		if _, ok := placed[g]; ok {
			continue
		}
		cols = append(cols, Column{Name: g, Kind: KindGene, Index: i})
	}
	return cols
}

// Assemble lays out a classified table. Every contig must carry a class and
// column names must be unique.
func Assemble(table *features.Table, rs rules.Rules) (*Assembled, error) {
	if table == nil || table.Stats == nil {
		return nil, errors.New("assemble: nil table")
	}
	cols := Columns(table, rs)
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if _, dup := seen[c.Name]; dup {
			return nil, errors.WithHintf(
				errors.Malformedf(table.Stats.Path, 1, c.Name, "output column %q appears twice", c.Name),
				"rename the stats column or the gene so that %q is unique", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	for _, row := range table.Rows {
		if row.Class == "" {
			return nil, errors.Newf("assemble: contig %s has not been classified", row.ID)
		}
	}
	return &Assembled{Columns: cols, Table: table}, nil
}

// Header returns the column names in output order.
func (a *Assembled) Header() []string {
	out := make([]string, len(a.Columns))
	for i, c := range a.Columns {
		out[i] = c.Name
	}
	return out
}

// Cell renders one value as written to the TSV output.
func (a *Assembled) Cell(row *features.Contig, c Column) string {
	switch c.Kind {
	case KindLength:
		return strconv.Itoa(row.StatsRow.Length)
	case KindGC:
		return strconv.FormatFloat(row.GC, 'f', 2, 64)
	case KindClass:
		return row.Class
	case KindGene:
		return strconv.Itoa(row.Counts()[c.Index])
	default:
		return row.Cells[c.Index]
	}
}
