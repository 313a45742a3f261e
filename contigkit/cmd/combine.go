package cmd

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Doomsbay/ContigKit/internal/classify"
	"github.com/Doomsbay/ContigKit/internal/config"
	"github.com/Doomsbay/ContigKit/internal/errors"
	"github.com/Doomsbay/ContigKit/internal/features"
	"github.com/Doomsbay/ContigKit/internal/genes"
	"github.com/Doomsbay/ContigKit/internal/logger"
	"github.com/Doomsbay/ContigKit/internal/output"
	"github.com/Doomsbay/ContigKit/internal/progress"
	"github.com/Doomsbay/ContigKit/internal/rules"
	"github.com/Doomsbay/ContigKit/internal/tsv"
)

// outputs names the files a classification run writes. Only Table is required.
type outputs struct {
	Table   string
	Parquet string
	Report  string
}

func addOutputFlags(c *cobra.Command, o *outputs) {
	c.Flags().StringP("rules", "r", "", "Rule table (.tsv or .yaml); default is the built-in table")
	c.Flags().StringVar(&o.Parquet, "parquet", "", "Also write the classified table as Parquet")
	c.Flags().StringVar(&o.Report, "report", "", "Write a JSON run report")
}

func newCombineCmd(a *app) *cobra.Command {
	var dir, fileID string
	var out outputs
	c := &cobra.Command{
		Use:   "combine",
		Short: "Merge <id>.keys.tsv onto <id>.contig_stats.tsv and classify every contig",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCombine(cmd.Context(), a.cfg, dir, fileID, out)
		},
	}
	c.Flags().StringVarP(&dir, "directory", "d", "", "Directory containing the input files")
	c.Flags().StringVarP(&fileID, "file_id", "f", "", "File ID identifying the input files")
	c.Flags().StringVarP(&out.Table, "output_file", "o", "", "Output TSV (.gz compresses)")
	addOutputFlags(c, &out)
	_ = c.MarkFlagRequired("directory")
	_ = c.MarkFlagRequired("file_id")
	_ = c.MarkFlagRequired("output_file")
	return c
}

func runCombine(ctx context.Context, cfg *config.Config, dir, fileID string, out outputs) error {
	keysPath := filepath.Join(dir, fileID+".keys.tsv")
	statsPath := filepath.Join(dir, fileID+".contig_stats.tsv")
	for _, p := range []string{keysPath, statsPath} {
		if !fileExists(p) {
			return errors.WithHintf(errors.NewIOError("open", p, errors.New("file not found")),
				"combine expects %s.keys.tsv and %s.contig_stats.tsv in %s", fileID, fileID, dir)
		}
	}

	matrix, err := readHits(ctx, cfg, keysPath)
	if err != nil {
		return err
	}
	stats, err := features.ReadStatsFile(ctx, statsPath, cfg.TSVOptions())
	if err != nil {
		return err
	}
	stage := &tsv.Staging{}
	defer stage.Discard()
	_, err = classifyAndWrite(cfg, fileID, stats, matrix, out, stage)
	return err
}

// readHits reads the hit table, with a progress bar sized by line count.
func readHits(ctx context.Context, cfg *config.Config, path string) (*genes.Matrix, error) {
	opts := cfg.TSVOptions()
	var bar *progress.Bar
	if cfg.Progress {
		total, err := tsv.CountLines(path)
		if err != nil {
			return nil, err
		}
		bar = progress.New(total, "hits", true)
		opts.Progress = bar
	}
	m, err := genes.ReadFile(ctx, path, opts)
	bar.Finish()
	if err != nil {
		return nil, err
	}
	logger.Debug("read gene hits",
		zap.String("path", path),
		zap.Int("contigs", len(m.Contigs())),
		zap.Int("genes", len(m.Genes())),
	)
	return m, nil
}

func loadRules(cfg *config.Config) (rules.Rules, error) {
	if cfg.Rules == "" {
		logf("Rules: built-in table")
		return rules.Default(), nil
	}
	rs, err := rules.Load(cfg.Rules)
	if err != nil {
		return nil, err
	}
	logf("Rules: %d from %s", len(rs), cfg.Rules)
	return rs, nil
}

// classifyAndWrite runs merge, classification and output. Every output goes
// through stage, which is committed only after all of them are written.
func classifyAndWrite(cfg *config.Config, fileID string, stats *features.Stats, matrix *genes.Matrix, out outputs, stage *tsv.Staging) (*output.Report, error) {
	if len(stats.Rows) == 0 {
		return nil, errors.Malformedf(stats.Path, 0, "", "stats table has no contigs")
	}
	rs, err := loadRules(cfg)
	if err != nil {
		return nil, err
	}
	policies, err := classify.ParsePolicies(cfg.Overlaps)
	if err != nil {
		return nil, err
	}
	engine, err := classify.New(rs, policies...)
	if err != nil {
		return nil, err
	}

	table, err := features.Merge(stats, matrix, rs.Genes()...)
	if err != nil {
		return nil, err
	}
	bar := progress.New(len(table.Rows), "classify", cfg.Progress)
	counts, err := engine.ClassifyAll(table, bar)
	if err != nil {
		return nil, err
	}
	assembled, err := output.Assemble(table, rs)
	if err != nil {
		return nil, err
	}

	tmp, err := stage.Path(out.Table)
	if err != nil {
		return nil, err
	}
	if err := output.WriteTSVFile(tmp, assembled); err != nil {
		return nil, err
	}
	if out.Parquet != "" {
		if tmp, err = stage.Path(out.Parquet); err != nil {
			return nil, err
		}
		if err := output.WriteParquetFile(tmp, assembled); err != nil {
			return nil, err
		}
	}

	report := output.NewReport(assembled, counts, len(rs))
	report.FileID = fileID
	report.Output = out.Table
	if out.Report != "" {
		if tmp, err = stage.Path(out.Report); err != nil {
			return nil, err
		}
		if err := output.WriteReport(tmp, report); err != nil {
			return nil, err
		}
	}
	if err := stage.Commit(); err != nil {
		return nil, err
	}

	logf("Classified %d contigs -> %s", len(table.Rows), out.Table)
	if out.Parquet != "" {
		logf("Parquet -> %s", out.Parquet)
	}
	if out.Report != "" {
		logf("Report -> %s", out.Report)
	}
	logClassCounts(counts)
	return &report, nil
}

func logClassCounts(counts classify.Counts) {
	classes := make([]string, 0, len(counts))
	for class := range counts {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		logger.Info("class total", zap.String("class", class), zap.Int("contigs", counts[class]))
	}
}
