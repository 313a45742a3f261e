package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Doomsbay/ContigKit/internal/errors"
	"github.com/Doomsbay/ContigKit/internal/seqstats"
	"github.com/Doomsbay/ContigKit/internal/tsv"
)

func newStatsCmd(a *app) *cobra.Command {
	var input, output string
	c := &cobra.Command{
		Use:   "stats",
		Short: "Write <file_id> contig_id features length GC for a GFF3 or FASTA file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(input, output)
		},
	}
	c.Flags().StringVarP(&input, "input", "i", "", "Input GFF3 (with ##FASTA) or FASTA, optionally .gz")
	c.Flags().StringVarP(&output, "output", "o", "", "Output stats TSV")
	_ = c.MarkFlagRequired("input")
	_ = c.MarkFlagRequired("output")
	return c
}

func runStats(input, output string) error {
	records, err := seqstats.ReadFile(input)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return errors.Malformedf(input, 0, "", "no contigs found")
	}

	stage := &tsv.Staging{}
	defer stage.Discard()
	out, err := stage.Create(output)
	if err != nil {
		return err
	}
	if err := seqstats.WriteTSV(out, seqstats.FileID(input), records); err != nil {
		_ = out.Close()
		return errors.NewIOError("write", output, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := stage.Commit(); err != nil {
		return err
	}
	logf("Stats: %d contigs -> %s", len(records), output)
	return nil
}
