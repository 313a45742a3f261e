// Package genes aggregates long-format marker-gene hits into a per-contig
// gene count matrix.
package genes

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/Doomsbay/ContigKit/internal/errors"
	"github.com/Doomsbay/ContigKit/internal/tsv"
)

// Hit columns, in file order.
const (
	colContig = iota
	colCount
	colMarkerType
	colGene
	hitColumns
)

var hitColumnNames = [hitColumns]string{"contig_id", "count", "marker_type", "gene_name"}

// Normalize returns the canonical display form of a gene name: surrounding
// whitespace trimmed and underscores replaced with spaces. Matrix columns
// and rule references must both pass through here or lookups miss.
func Normalize(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), "_", " ")
}

// Hit is one row of marker-gene caller output.
type Hit struct {
	Contig     string
	Count      int
	MarkerType string
	Gene       string
}

// Matrix holds summed hit counts per contig and gene. Genes and contigs keep
// first-encounter order.
type Matrix struct {
	genes     []string
	geneIndex map[string]int

	contigs []string
	counts  map[string]map[string]int
	markers map[string]map[string]int
}

// NewMatrix returns an empty matrix.
func NewMatrix() *Matrix {
	return &Matrix{
		geneIndex: make(map[string]int),
		counts:    make(map[string]map[string]int),
		markers:   make(map[string]map[string]int),
	}
}

// Add folds one hit into the matrix. The gene name is normalized here.
func (m *Matrix) Add(h Hit) {
	gene := Normalize(h.Gene)
	if _, ok := m.geneIndex[gene]; !ok {
		m.geneIndex[gene] = len(m.genes)
		m.genes = append(m.genes, gene)
	}
	row, ok := m.counts[h.Contig]
	if !ok {
		row = make(map[string]int)
		m.counts[h.Contig] = row
		m.markers[h.Contig] = make(map[string]int)
		m.contigs = append(m.contigs, h.Contig)
	}
	row[gene] += h.Count
	m.markers[h.Contig][h.MarkerType] += h.Count
}

// Genes returns the gene columns in first-encounter order.
func (m *Matrix) Genes() []string {
	return append([]string(nil), m.genes...)
}

// Contigs returns the contigs with at least one hit, in first-encounter order.
func (m *Matrix) Contigs() []string {
	return append([]string(nil), m.contigs...)
}

// Has reports whether contig has any hit row.
func (m *Matrix) Has(contig string) bool {
	_, ok := m.counts[contig]
	return ok
}

// Count returns the summed count for contig and an already normalized gene
// name, 0 when absent.
func (m *Matrix) Count(contig, gene string) int {
	return m.counts[contig][gene]
}

// MarkerTotal returns the summed count of every hit of markerType on contig.
func (m *Matrix) MarkerTotal(contig, markerType string) int {
	return m.markers[contig][markerType]
}

// Read parses a headerless hits table (contig_id, count, marker_type,
// gene_name). Any malformed row aborts the read; path is only used in
// error messages.
func Read(ctx context.Context, r io.Reader, path string, opts tsv.Options) (*Matrix, error) {
	m := NewMatrix()
	opts.Path = path
	err := tsv.Parse(ctx, r, opts, func(row tsv.Row) error {
		if row.Blank() {
			return nil
		}
		h, err := parseHit(row, path)
		if err != nil {
			return err
		}
		m.Add(h)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ReadFile opens path (plain or .gz) and reads it with Read.
func ReadFile(ctx context.Context, path string, opts tsv.Options) (*Matrix, error) {
	in, err := tsv.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = in.Close()
	}()
	return Read(ctx, in, path, opts)
}

func parseHit(row tsv.Row, path string) (Hit, error) {
	if len(row.Fields) != hitColumns {
		return Hit{}, errors.Malformedf(path, row.Line, "", "expected %d columns (%s), got %d",
			hitColumns, strings.Join(hitColumnNames[:], ", "), len(row.Fields))
	}
	contig := strings.TrimSpace(string(row.Fields[colContig]))
	if contig == "" {
		return Hit{}, errors.Malformedf(path, row.Line, hitColumnNames[colContig], "empty contig id")
	}
	gene := strings.TrimSpace(string(row.Fields[colGene]))
	if gene == "" {
		return Hit{}, errors.Malformedf(path, row.Line, hitColumnNames[colGene], "empty gene name")
	}
	raw := strings.TrimSpace(string(row.Fields[colCount]))
	count, err := strconv.Atoi(raw)
	if err != nil {
		return Hit{}, errors.Malformedf(path, row.Line, hitColumnNames[colCount], "count %q is not an integer", raw)
	}
	if count < 0 {
		return Hit{}, errors.Malformedf(path, row.Line, hitColumnNames[colCount], "negative count %d", count)
	}
	return Hit{
		Contig:     contig,
		Count:      count,
		MarkerType: strings.TrimSpace(string(row.Fields[colMarkerType])),
		Gene:       gene,
	}, nil
}
