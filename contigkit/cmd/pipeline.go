package cmd

import (
	"bytes"
	"context"

	"github.com/spf13/cobra"

	"github.com/Doomsbay/ContigKit/internal/config"
	"github.com/Doomsbay/ContigKit/internal/errors"
	"github.com/Doomsbay/ContigKit/internal/features"
	"github.com/Doomsbay/ContigKit/internal/seqstats"
	"github.com/Doomsbay/ContigKit/internal/tsv"
)

func newPipelineCmd(a *app) *cobra.Command {
	var input, keys, statsOut string
	var out outputs
	c := &cobra.Command{
		Use:   "pipeline",
		Short: "Full pipeline: stats -> merge -> classify for one annotated GFF3",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), a.cfg, input, keys, statsOut, out)
		},
	}
	c.Flags().StringVarP(&input, "input", "i", "", "Annotated GFF3 (with ##FASTA) or FASTA")
	c.Flags().StringVarP(&keys, "keys", "k", "", "Marker-gene hits for the same assembly")
	c.Flags().StringVarP(&out.Table, "output", "o", "", "Output TSV (.gz compresses)")
	c.Flags().StringVar(&statsOut, "stats-output", "", "Also keep the intermediate stats TSV")
	addOutputFlags(c, &out)
	_ = c.MarkFlagRequired("input")
	_ = c.MarkFlagRequired("keys")
	_ = c.MarkFlagRequired("output")
	return c
}

func runPipeline(ctx context.Context, cfg *config.Config, input, keys, statsOut string, out outputs) error {
	records, err := seqstats.ReadFile(input)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return errors.Malformedf(input, 0, "", "no contigs found")
	}
	fileID := seqstats.FileID(input)
	logf("Stats: %d contigs from %s", len(records), input)

	var buf bytes.Buffer
	if err := seqstats.WriteTSV(&buf, fileID, records); err != nil {
		return errors.Wrap(err, "render stats")
	}
	stage := &tsv.Staging{}
	defer stage.Discard()
	if statsOut != "" {
		if err := writeBytes(stage, statsOut, buf.Bytes()); err != nil {
			return err
		}
	}
	stats, err := features.ReadStats(ctx, bytes.NewReader(buf.Bytes()), input, cfg.TSVOptions())
	if err != nil {
		return err
	}

	matrix, err := readHits(ctx, cfg, keys)
	if err != nil {
		return err
	}
	if _, err = classifyAndWrite(cfg, fileID, stats, matrix, out, stage); err != nil {
		return err
	}
	if statsOut != "" {
		logf("Stats -> %s", statsOut)
	}
	return nil
}

func writeBytes(stage *tsv.Staging, path string, data []byte) error {
	f, err := stage.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.NewIOError("write", path, err)
	}
	return f.Close()
}
