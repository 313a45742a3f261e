// Package seqstats computes per-contig length, GC content and feature
// counts from annotated GFF3 files (with an embedded ##FASTA section) or from
// plain FASTA, and writes them in the stats table layout.
package seqstats

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/featio/gff"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"go.uber.org/zap"

	"github.com/Doomsbay/ContigKit/internal/errors"
	"github.com/Doomsbay/ContigKit/internal/logger"
	"github.com/Doomsbay/ContigKit/internal/tsv"
)

const fastaDirective = "##FASTA"

// gffColumns is the column count of a GFF3 feature line.
const gffColumns = 9

// Header is the stats table header written by WriteTSV.
var Header = []string{"file_id", "contig_id", "features", "length", "GC"}

// Record is the statistics of one contig.
type Record struct {
	ContigID string
	Features int
	Length   int
	GC       float64
}

type collector struct {
	path    string
	order   []string
	records map[string]*Record
	seqSeen map[string]bool
}

func newCollector(path string) *collector {
	return &collector{path: path, records: make(map[string]*Record), seqSeen: make(map[string]bool)}
}

func (c *collector) get(id string) *Record {
	rec, ok := c.records[id]
	if !ok {
		rec = &Record{ContigID: id}
		c.records[id] = rec
		c.order = append(c.order, id)
	}
	return rec
}

// Read parses r. Input whose first non-empty line starts with '>' is read as
// FASTA; anything else as GFF3, where every feature line counts one feature
// for its seqid and the ##FASTA section supplies the sequences. Contigs keep
// feature-section order, then sequence-only contigs follow in FASTA order.
func Read(r io.Reader, path string) ([]Record, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	c := newCollector(path)

	first, err := peekFirstByte(br)
	if err != nil {
		return nil, errors.NewIOError("read", path, err)
	}
	if first == '>' {
		if err := c.readFasta(br); err != nil {
			return nil, err
		}
		return c.result(), nil
	}

	sec := &featureSection{r: br}
	if err := c.readFeatures(sec); err != nil {
		return nil, err
	}
	if sec.fasta {
		if err := c.readFasta(br); err != nil {
			return nil, err
		}
	}
	log := logger.L().With(zap.String("path", path))
	if sec.skipped > 0 {
		log.Debug("skipped non-feature GFF lines", zap.Int("lines", sec.skipped))
	}
	for _, id := range c.order {
		if !c.seqSeen[id] {
			log.Warn("contig has features but no sequence", zap.String("contig_id", id))
		}
	}
	return c.result(), nil
}

// readFeatures counts gff features per sequence name. Lines the gff reader
// cannot parse come back as errors and are skipped.
func (c *collector) readFeatures(sec *featureSection) error {
	in := gff.NewReader(sec)
	for {
		f, err := in.Read()
		if err == io.EOF {
			break
		}
		if sec.err != nil {
			return errors.NewIOError("read", c.path, sec.err)
		}
		if err != nil {
			// Everything but an I/O failure is per-line and recoverable.
			sec.skipped++
			continue
		}
		if gf, ok := f.(*gff.Feature); ok && gf.SeqName != "" {
			c.get(gf.SeqName).Features++
		}
	}
	if sec.err != nil {
		return errors.NewIOError("read", c.path, sec.err)
	}
	return nil
}

// featureSection yields the GFF lines of r up to the ##FASTA directive,
// leaving r positioned at the first sequence. Comments and directives are
// dropped; feature lines with fewer than nine columns or an empty column are
// dropped and counted. Lines passed on end in a newline and carry no
// attribute column.
type featureSection struct {
	r       *bufio.Reader
	pending []byte
	done    bool
	fasta   bool
	skipped int
	err     error
}

func (s *featureSection) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		if s.done {
			return 0, io.EOF
		}
		raw, err := s.r.ReadString('\n')
		if err != nil && err != io.EOF {
			s.err = err
			s.done = true
			return 0, err
		}
		if err == io.EOF {
			s.done = true
		}
		text := strings.TrimRight(raw, "\r\n")
		switch {
		case strings.HasPrefix(text, fastaDirective):
			s.fasta = true
			s.done = true
		case strings.TrimSpace(text) == "", strings.HasPrefix(text, "#"):
			// Directives carry nothing that is counted, and the gff reader
			// panics on some malformed ones, e.g. a bare ##gff-version.
		default:
			cols := strings.SplitN(text, "\t", gffColumns)
			if len(cols) < gffColumns || hasEmpty(cols[:gffColumns-1]) {
				s.skipped++
				continue
			}
			// The gff reader parses GFF2 attributes; GFF3 "key=value" pairs
			// would fail it, and only the seqid is counted.
			s.pending = append(s.pending, strings.Join(cols[:gffColumns-1], "\t")+"\n"...)
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func hasEmpty(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) == "" {
			return true
		}
	}
	return false
}

func peekFirstByte(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err == io.EOF {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case '\n', '\r', ' ', '\t':
			if _, err := br.ReadByte(); err != nil {
				return 0, err
			}
		default:
			return b[0], nil
		}
	}
}

func (c *collector) readFasta(r io.Reader) error {
	sc := seqio.NewScanner(fasta.NewReader(r, linear.NewSeq("", nil, alphabet.DNA)))
	for sc.Next() {
		s, ok := sc.Seq().(*linear.Seq)
		if !ok {
			return errors.Newf("read %s: unexpected sequence type %T", c.path, sc.Seq())
		}
		id := s.Name()
		if c.seqSeen[id] {
			return errors.Malformedf(c.path, 0, "", "duplicate sequence %q", id)
		}
		c.seqSeen[id] = true
		rec := c.get(id)
		rec.Length = s.Len()
		rec.GC = gcPercent(s.Seq)
	}
	if err := sc.Error(); err != nil {
		return errors.Wrapf(err, "read fasta %s", c.path)
	}
	return nil
}

func (c *collector) result() []Record {
	out := make([]Record, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.records[id])
	}
	return out
}

// gcPercent counts G and C case-insensitively over the full length.
func gcPercent(letters alphabet.Letters) float64 {
	if len(letters) == 0 {
		return 0
	}
	var gc int
	for _, l := range letters {
		switch l {
		case 'G', 'g', 'C', 'c':
			gc++
		}
	}
	return float64(gc) / float64(len(letters)) * 100
}

// ReadFile opens path (plain or .gz) and reads it with Read.
func ReadFile(path string) ([]Record, error) {
	in, err := tsv.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = in.Close()
	}()
	return Read(in, path)
}

// FileID derives the file_id column from an input path.
func FileID(path string) string {
	return tsv.BaseName(path)
}

// WriteTSV writes records under Header with GC to two decimals.
func WriteTSV(w io.Writer, fileID string, records []Record) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, strings.Join(Header, "\t")); err != nil {
		return err
	}
	for _, rec := range records {
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%d\t%d\t%.2f\n", fileID, rec.ContigID, rec.Features, rec.Length, rec.GC); err != nil {
			return err
		}
	}
	return bw.Flush()
}
