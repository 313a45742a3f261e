package features

import (
	"go.uber.org/zap"

	"github.com/Doomsbay/ContigKit/internal/errors"
	"github.com/Doomsbay/ContigKit/internal/genes"
	"github.com/Doomsbay/ContigKit/internal/logger"
)

// Contig is one merged feature record: a stats row plus a gene count for
// every gene column of its table.
type Contig struct {
	*StatsRow
	Class string

	table  *Table
	counts []int
}

// Length returns the contig length in base pairs and whether it is known.
func (c *Contig) Length() (int, bool) {
	return c.StatsRow.Length, c.HasLength
}

// GeneCount returns the count for a normalized gene name; genes that are not
// columns of the table count as 0.
func (c *Contig) GeneCount(gene string) int {
	idx, ok := c.table.geneIndex[gene]
	if !ok {
		return 0
	}
	return c.counts[idx]
}

// Counts returns the gene counts aligned with Table.Genes.
func (c *Contig) Counts() []int {
	return c.counts
}

// Table is the merged feature table. Every row carries the same gene
// columns in the same order.
type Table struct {
	Stats *Stats
	Rows  []*Contig
	// Dropped lists matrix contigs with no stats row, in matrix order.
	Dropped []string

	genes     []string
	geneIndex map[string]int
}

// Genes returns the gene columns: matrix genes in encounter order followed
// by extra genes that no hit mentioned.
func (t *Table) Genes() []string {
	return append([]string(nil), t.genes...)
}

// Merge left-joins matrix onto stats by contig id. Every stats contig
// appears once in stats order; absent gene counts are 0. extraGenes (already
// normalized, typically the genes named by the rule table) become zero-filled
// columns when the matrix never saw them. Matrix contigs missing from stats
// are dropped with a warning since their length is unknown.
func Merge(stats *Stats, matrix *genes.Matrix, extraGenes ...string) (*Table, error) {
	if stats == nil {
		return nil, errors.New("merge: nil stats table")
	}
	if matrix == nil {
		matrix = genes.NewMatrix()
	}

	t := &Table{Stats: stats, geneIndex: make(map[string]int)}
	addGene := func(g string) {
		if _, ok := t.geneIndex[g]; ok {
			return
		}
		t.geneIndex[g] = len(t.genes)
		t.genes = append(t.genes, g)
	}
	for _, g := range matrix.Genes() {
		addGene(g)
	}
	for _, g := range extraGenes {
		addGene(g)
	}

	known := make(map[string]struct{}, len(stats.Rows))
	t.Rows = make([]*Contig, 0, len(stats.Rows))
	for _, row := range stats.Rows {
		known[row.ID] = struct{}{}
		counts := make([]int, len(t.genes))
		if matrix.Has(row.ID) {
			for i, g := range t.genes {
				counts[i] = matrix.Count(row.ID, g)
			}
		}
		t.Rows = append(t.Rows, &Contig{StatsRow: row, table: t, counts: counts})
	}

	for _, id := range matrix.Contigs() {
		if _, ok := known[id]; ok {
			continue
		}
		t.Dropped = append(t.Dropped, id)
		logger.Warn("dropping contig with gene hits but no stats row",
			zap.String("contig_id", id),
			zap.String("stats", stats.Path),
		)
	}
	if len(t.Dropped) > 0 {
		logger.Warn("contigs dropped from merge", zap.Int("dropped", len(t.Dropped)))
	}
	return t, nil
}

// DroppedErrors describes each dropped contig as a non-fatal MissingKeyError.
func (t *Table) DroppedErrors() []error {
	out := make([]error, 0, len(t.Dropped))
	for _, id := range t.Dropped {
		out = append(out, &errors.MissingKeyError{Path: t.Stats.Path, Key: id, Reason: "gene hits but no stats row"})
	}
	return out
}

// ContigID returns the stats row id.
func (c *Contig) ContigID() string {
	return c.ID
}
