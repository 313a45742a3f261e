package genes

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// DefaultMarkerTypes are the summary columns written by WriteMarkerTotals.
var DefaultMarkerTypes = []string{"plasmid", "chromosome"}

// WriteMarkerTotals writes one row per contig, sorted by contig id, with the
// summed hit count of each marker type. Types a contig never hit are 0.
func WriteMarkerTotals(w io.Writer, m *Matrix, types ...string) error {
	if len(types) == 0 {
		types = DefaultMarkerTypes
	}
	contigs := m.Contigs()
	sort.Strings(contigs)

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "contig\t%s\n", strings.Join(types, "\t")); err != nil {
		return err
	}
	for _, c := range contigs {
		if _, err := bw.WriteString(c); err != nil {
			return err
		}
		for _, t := range types {
			if _, err := fmt.Fprintf(bw, "\t%d", m.MarkerTotal(c, t)); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
