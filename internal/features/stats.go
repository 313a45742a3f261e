// Package features reads the per-contig statistics table and left-joins gene
// counts onto it, producing the feature table the classifier consumes.
package features

import (
	"context"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/Doomsbay/ContigKit/internal/errors"
	"github.com/Doomsbay/ContigKit/internal/tsv"
)

// Stats table column names.
const (
	ColContig   = "contig_id"
	ColLength   = "length"
	ColGC       = "GC"
	ColFeatures = "features"
)

// featureColumnAliases are accepted for the optional feature count column.
var featureColumnAliases = []string{ColFeatures, "feature_count"}

// StatsRow is one contig of the stats table.
type StatsRow struct {
	Line        int64
	ID          string
	Length      int
	HasLength   bool
	GC          float64
	Features    int
	HasFeatures bool
	// Cells holds the raw value of every header column.
	Cells []string
}

// Stats is a parsed stats table. Columns keep header order.
type Stats struct {
	Path    string
	Columns []string
	Rows    []*StatsRow

	idIdx, lengthIdx, gcIdx, featuresIdx int
}

// FeaturesColumn returns the name of the feature count column, or "".
func (s *Stats) FeaturesColumn() string {
	if s.featuresIdx < 0 {
		return ""
	}
	return s.Columns[s.featuresIdx]
}

// ReadStats parses a stats table with header. contig_id, length and GC are
// required; every other column passes through untouched.
func ReadStats(ctx context.Context, r io.Reader, path string, opts tsv.Options) (*Stats, error) {
	s := &Stats{Path: path}
	seen := make(map[string]int64)
	opts.Path = path
	opts.SkipHeaderTick = true

	err := tsv.Parse(ctx, r, opts, func(row tsv.Row) error {
		if s.Columns == nil {
			return s.readHeader(row)
		}
		if row.Blank() {
			return nil
		}
		rec, err := s.parseRow(row)
		if err != nil {
			return err
		}
		if first, dup := seen[rec.ID]; dup {
			return errors.Malformedf(path, row.Line, ColContig, "duplicate contig id %q (first seen on line %d)", rec.ID, first)
		}
		seen[rec.ID] = row.Line
		s.Rows = append(s.Rows, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.Columns == nil {
		return nil, errors.WithHint(
			errors.Malformedf(path, 0, "", "stats table is empty"),
			"the stats table needs a header with contig_id, length and GC")
	}
	return s, nil
}

// ReadStatsFile opens path (plain or .gz) and reads it with ReadStats.
func ReadStatsFile(ctx context.Context, path string, opts tsv.Options) (*Stats, error) {
	in, err := tsv.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = in.Close()
	}()
	return ReadStats(ctx, in, path, opts)
}

func (s *Stats) readHeader(row tsv.Row) error {
	header := row.Strings()
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	s.Columns = header
	s.idIdx = tsv.IndexOf(header, ColContig)
	s.lengthIdx = tsv.IndexOf(header, ColLength)
	s.gcIdx = tsv.IndexOf(header, ColGC)
	s.featuresIdx = -1
	for _, alias := range featureColumnAliases {
		if idx := tsv.IndexOf(header, alias); idx >= 0 {
			s.featuresIdx = idx
			break
		}
	}

	var missing []string
	for i, idx := range []int{s.idIdx, s.lengthIdx, s.gcIdx} {
		if idx < 0 {
			missing = append(missing, []string{ColContig, ColLength, ColGC}[i])
		}
	}
	if len(missing) > 0 {
		return errors.Malformedf(s.Path, row.Line, "", "required headers missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (s *Stats) parseRow(row tsv.Row) (*StatsRow, error) {
	cells := row.Strings()
	if len(cells) != len(s.Columns) {
		return nil, errors.Malformedf(s.Path, row.Line, "", "expected %d columns, got %d", len(s.Columns), len(cells))
	}

	rec := &StatsRow{Line: row.Line, Cells: cells}
	rec.ID = strings.TrimSpace(cells[s.idIdx])
	if rec.ID == "" {
		return nil, errors.Malformedf(s.Path, row.Line, ColContig, "empty contig id")
	}

	rawLength := strings.TrimSpace(cells[s.lengthIdx])
	if rawLength == "" {
		return nil, &errors.MissingKeyError{Path: s.Path, Line: row.Line, Key: rec.ID, Reason: "no length in stats table"}
	}
	length, err := strconv.Atoi(rawLength)
	if err != nil || length < 0 {
		return nil, errors.Malformedf(s.Path, row.Line, ColLength, "length %q is not a non-negative integer", rawLength)
	}
	rec.Length, rec.HasLength = length, true

	rawGC := strings.TrimSpace(cells[s.gcIdx])
	gc, err := strconv.ParseFloat(rawGC, 64)
	if err != nil || math.IsNaN(gc) || gc < 0 || gc > 100 {
		return nil, errors.Malformedf(s.Path, row.Line, ColGC, "GC %q is not a percentage in [0, 100]", rawGC)
	}
	rec.GC = gc

	if s.featuresIdx >= 0 {
		rawFeatures := strings.TrimSpace(cells[s.featuresIdx])
		if rawFeatures != "" {
			n, err := strconv.Atoi(rawFeatures)
			if err != nil || n < 0 {
				return nil, errors.Malformedf(s.Path, row.Line, s.Columns[s.featuresIdx], "feature count %q is not a non-negative integer", rawFeatures)
			}
			rec.Features, rec.HasFeatures = n, true
		}
	}
	return rec, nil
}
