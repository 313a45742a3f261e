package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Doomsbay/ContigKit/internal/errors"
	"github.com/Doomsbay/ContigKit/internal/genes"
	"github.com/Doomsbay/ContigKit/internal/tsv"
)

func newMarkersCmd(a *app) *cobra.Command {
	var input, output string
	var types []string
	c := &cobra.Command{
		Use:   "markers",
		Short: "Sum marker-gene hits per contig and marker type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMarkers(cmd.Context(), a, input, output, types)
		},
	}
	c.Flags().StringVarP(&input, "input", "i", "", "Marker-gene hits (contig, count, marker_type, gene)")
	c.Flags().StringVarP(&output, "output", "o", "", "Output summary TSV")
	c.Flags().StringSliceVar(&types, "types", genes.DefaultMarkerTypes, "Marker types to summarize, in column order")
	_ = c.MarkFlagRequired("input")
	_ = c.MarkFlagRequired("output")
	return c
}

func runMarkers(ctx context.Context, a *app, input, output string, types []string) error {
	m, err := genes.ReadFile(ctx, input, a.cfg.TSVOptions())
	if err != nil {
		return err
	}
	if len(m.Contigs()) == 0 {
		return errors.Malformedf(input, 0, "", "no marker hits")
	}

	stage := &tsv.Staging{}
	defer stage.Discard()
	out, err := stage.Create(output)
	if err != nil {
		return err
	}
	if err := genes.WriteMarkerTotals(out, m, types...); err != nil {
		_ = out.Close()
		return errors.NewIOError("write", output, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := stage.Commit(); err != nil {
		return err
	}
	logf("Markers: %d contigs -> %s", len(m.Contigs()), output)
	return nil
}
