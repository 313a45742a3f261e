package output

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/compress"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"

	"github.com/Doomsbay/ContigKit/internal/errors"
	"github.com/Doomsbay/ContigKit/internal/tsv"
)

// WriteTSV writes the header and one line per contig.
func WriteTSV(w io.Writer, a *Assembled) error {
	if _, err := io.WriteString(w, strings.Join(a.Header(), "\t")+"\n"); err != nil {
		return err
	}
	var line strings.Builder
	for _, row := range a.Table.Rows {
		line.Reset()
		for i, c := range a.Columns {
			if i > 0 {
				line.WriteByte('\t')
			}
			line.WriteString(a.Cell(row, c))
		}
		line.WriteByte('\n')
		if _, err := io.WriteString(w, line.String()); err != nil {
			return err
		}
	}
	return nil
}

// Schema returns the Arrow schema for a: length, features and gene counts
// as int64, GC as float64, everything else as string. Feature counts are
// nullable since the column may have gaps.
func (a *Assembled) Schema() *arrow.Schema {
	fields := make([]arrow.Field, len(a.Columns))
	for i, c := range a.Columns {
		switch c.Kind {
		case KindLength, KindGene:
			fields[i] = arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Int64}
		case KindFeatures:
			fields[i] = arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Int64, Nullable: true}
		case KindGC:
			fields[i] = arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Float64}
		default:
			fields[i] = arrow.Field{Name: c.Name, Type: arrow.BinaryTypes.String}
		}
	}
	return arrow.NewSchema(fields, nil)
}

// WriteParquet writes a as a single Snappy-compressed row group.
func WriteParquet(w io.Writer, a *Assembled) error {
	schema := a.Schema()
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()

	for _, row := range a.Table.Rows {
		for i, c := range a.Columns {
			switch c.Kind {
			case KindLength:
				b.Field(i).(*array.Int64Builder).Append(int64(row.StatsRow.Length))
			case KindGene:
				b.Field(i).(*array.Int64Builder).Append(int64(row.Counts()[c.Index]))
			case KindFeatures:
				if row.HasFeatures {
					b.Field(i).(*array.Int64Builder).Append(int64(row.Features))
				} else {
					b.Field(i).(*array.Int64Builder).AppendNull()
				}
			case KindGC:
				b.Field(i).(*array.Float64Builder).Append(row.GC)
			default:
				b.Field(i).(*array.StringBuilder).Append(a.Cell(row, c))
			}
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	// The parquet writer closes a sink that is an io.Closer; w stays open.
	sink := struct{ io.Writer }{w}
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	fw, err := pqarrow.NewFileWriter(schema, sink, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return errors.Wrap(err, "create parquet writer")
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return errors.Wrap(err, "write parquet rows")
	}
	return errors.Wrap(fw.Close(), "close parquet writer")
}

// WriteTSVFile writes a to path, gzip-compressed for .gz paths.
func WriteTSVFile(path string, a *Assembled) error {
	out, err := tsv.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTSV(out, a); err != nil {
		_ = out.Close()
		return errors.NewIOError("write", path, err)
	}
	return out.Close()
}

// WriteParquetFile writes a to path as Parquet.
func WriteParquetFile(path string, a *Assembled) error {
	out, err := tsv.Create(path)
	if err != nil {
		return err
	}
	if err := WriteParquet(out, a); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return out.Close()
}

// Report summarizes a classification run.
type Report struct {
	FileID         string         `json:"file_id,omitempty"`
	Output         string         `json:"output,omitempty"`
	Total          int            `json:"total_contigs"`
	Classes        map[string]int `json:"classes"`
	Dropped        []string       `json:"dropped_contigs"`
	DroppedReasons []string       `json:"dropped_reasons,omitempty"`
	Rules          int            `json:"rules"`
	GeneColumns    int            `json:"gene_columns"`
}

// NewReport fills a Report from an assembled table and its class counts.
func NewReport(a *Assembled, classes map[string]int, ruleCount int) Report {
	r := Report{
		Total:       len(a.Table.Rows),
		Classes:     classes,
		Dropped:     append([]string{}, a.Table.Dropped...),
		Rules:       ruleCount,
		GeneColumns: len(a.Table.Genes()),
	}
	if r.Classes == nil {
		r.Classes = map[string]int{}
	}
	for _, err := range a.Table.DroppedErrors() {
		r.DroppedReasons = append(r.DroppedReasons, err.Error())
	}
	return r
}

// WriteReport writes r as indented JSON.
func WriteReport(path string, r Report) error {
	out, err := tsv.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		_ = out.Close()
		return errors.NewIOError("write report", path, err)
	}
	return out.Close()
}
