package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Doomsbay/ContigKit/internal/config"
	"github.com/Doomsbay/ContigKit/internal/errors"
	"github.com/Doomsbay/ContigKit/internal/logger"
)

// flagKeys maps config keys to the flags that override them.
var flagKeys = map[string]string{
	"rules":     "rules",
	"progress":  "progress",
	"workers":   "workers",
	"log.level": "log-level",
	"log.json":  "log-json",
}

// app carries the resolved configuration into subcommands.
type app struct {
	v          *viper.Viper
	cfg        *config.Config
	configFile string
	envFile    string
}

func Execute(args []string) {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.Execute()
	_ = logger.Sync()
	if err != nil {
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		fatalf("contigkit: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New(), envFile: ".env"}

	root := &cobra.Command{
		Use:   "contigkit",
		Short: "ContigKit - contig classification tools",
		Long: `ContigKit - classify assembled contigs from sequence statistics and marker-gene hits.

Commands:
  stats     Per-contig length, GC and feature counts from GFF3/FASTA
  markers   Summarize marker-gene hits per contig and marker type
  combine   Merge <id>.keys.tsv with <id>.contig_stats.tsv and classify
  pipeline  stats -> combine for one annotated GFF3
  rules     Validate and print a rule table`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "Config file (TOML or YAML, default ./"+config.DefaultFile+")")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.Bool("log-json", false, "Log as JSON")
	pf.Bool("progress", true, "Show progress bars")
	pf.Int("workers", 0, "Parser worker goroutines (0 defaults to GOMAXPROCS)")

	root.AddCommand(
		newStatsCmd(a),
		newMarkersCmd(a),
		newCombineCmd(a),
		newPipelineCmd(a),
		newRulesCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if err := config.BindFlags(a.v, cmd.Flags(), flagKeys); err != nil {
		return err
	}
	if err := config.LoadDotenv(a.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if err := logger.Initialize(level, cfg.Log.JSON); err != nil {
		return errors.Wrap(err, "initialize logger")
	}
	a.cfg = cfg
	return nil
}
