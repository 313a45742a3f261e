package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Doomsbay/ContigKit/internal/errors"
	"github.com/Doomsbay/ContigKit/internal/logger"
	"github.com/Doomsbay/ContigKit/internal/output"
)

const (
	keysTSV = "C1\t1\tchromosome\tribosomal_RNA\n" +
		"C3\t2\tplasmid\tplasmid_partitioning_protein\n" +
		"C9\t1\tplasmid\tconjug\n"
	statsTSV = "file_id\tcontig_id\tfeatures\tlength\tGC\n" +
		"s1\tC1\t4000\t5000000\t50.111\n" +
		"s1\tC2\t4100\t5000000\t49.5\n" +
		"s1\tC3\t900\t1000000\t44\n"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { logger.Set(nil) })

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--progress=false", "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCombine(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, filepath.Join(dir, "in", "s1.keys.tsv"), keysTSV)
	writeFile(t, filepath.Join(dir, "in", "s1.contig_stats.tsv"), statsTSV)

	outPath := filepath.Join(dir, "out", "s1.tsv")
	reportPath := filepath.Join(dir, "out", "s1.json")
	parquetPath := filepath.Join(dir, "out", "s1.parquet")
	_, err := execute(t, "combine", "-d", "in", "-f", "s1", "-o", outPath,
		"--report", reportPath, "--parquet", parquetPath)
	require.NoError(t, err)

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"file_id\tcontig_id\tfeatures\tlength\tGC\tclass\tribosomal RNA\tplasmid partitioning protein\tconjug",
		"s1\tC1\t4000\t5000000\t50.11\tchromosome\t1\t0\t0",
		"s1\tC2\t4100\t5000000\t49.50\tunknown\t0\t0\t0",
		"s1\tC3\t900\t1000000\t44.00\tmegaplasmid/chromid\t0\t2\t0",
		"",
	}, "\n"), string(got))

	raw, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report output.Report
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, "s1", report.FileID)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, []string{"C9"}, report.Dropped)
	assert.Equal(t, 5, report.Rules)
	assert.Equal(t, map[string]int{"chromosome": 1, "unknown": 1, "megaplasmid/chromid": 1}, report.Classes)

	info, err := os.Stat(parquetPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	// A second run over the same inputs is byte-identical.
	again := filepath.Join(dir, "out", "again.tsv")
	_, err = execute(t, "combine", "-d", "in", "-f", "s1", "-o", again)
	require.NoError(t, err)
	second, err := os.ReadFile(again)
	require.NoError(t, err)
	assert.Equal(t, got, second)

	assert.ElementsMatch(t, []string{"again.tsv", "s1.json", "s1.parquet", "s1.tsv"}, dirNames(t, filepath.Join(dir, "out")))
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCombineFailureLeavesNoOutputs(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, filepath.Join(dir, "s1.keys.tsv"), keysTSV)
	writeFile(t, filepath.Join(dir, "s1.contig_stats.tsv"), statsTSV)
	writeFile(t, filepath.Join(dir, "blocker"), "")

	// The TSV is written before the Parquet directory fails to be created.
	_, err := execute(t, "combine", "-d", dir, "-f", "s1", "-o", "s1.tsv",
		"--report", "s1.json", "--parquet", filepath.Join("blocker", "s1.parquet"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIO))

	assert.ElementsMatch(t, []string{"blocker", "s1.contig_stats.tsv", "s1.keys.tsv"}, dirNames(t, dir))
}

func TestCombineWithRuleFileAndOverlapConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, filepath.Join(dir, "s1.keys.tsv"), keysTSV)
	writeFile(t, filepath.Join(dir, "s1.contig_stats.tsv"), statsTSV)
	writeFile(t, filepath.Join(dir, "rules.tsv"), "chromosome\t2\t10\tribosomal_RNA\t\nmegaplasmid\t0.35\t2\tplasmid_partitioning_protein\t\nchromid\t0.35\t2\t\t\n")
	writeFile(t, filepath.Join(dir, "contigkit.toml"), "overlaps = []\n")

	outPath := filepath.Join(dir, "s1.tsv")
	_, err := execute(t, "combine", "-d", dir, "-f", "s1", "-o", outPath, "-r", "rules.tsv")
	require.NoError(t, err)

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(got)), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[3], "\tmegaplasmid\t")
}

func TestCombineMissingInputs(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	_, err := execute(t, "combine", "-d", dir, "-f", "nope", "-o", filepath.Join(dir, "out.tsv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIO))
	assert.NotEmpty(t, errors.GetAllHints(err))

	_, err = os.Stat(filepath.Join(dir, "out.tsv"))
	assert.True(t, os.IsNotExist(err))
}

func TestCombineRejectsMalformedHits(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, filepath.Join(dir, "s1.keys.tsv"), "C1\tone\tchromosome\tribosomal_RNA\n")
	writeFile(t, filepath.Join(dir, "s1.contig_stats.tsv"), statsTSV)

	outPath := filepath.Join(dir, "s1.tsv")
	_, err := execute(t, "combine", "-d", dir, "-f", "s1", "-o", outPath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedInput))
	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStatsAndPipeline(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	gff := "##gff-version 3\n" +
		"C1\tprodigal\tCDS\t1\t4\t.\t+\t0\tID=a\n" +
		"C1\tprodigal\tCDS\t5\t8\t.\t+\t0\tID=b\n" +
		"##FASTA\n>C1\nGGCCAATT\n>C2\nGGGG\n"
	writeFile(t, filepath.Join(dir, "asm.gff"), gff)
	writeFile(t, filepath.Join(dir, "asm.keys.tsv"), "C1\t1\tplasmid\tconjug\n")

	_, err := execute(t, "stats", "-i", "asm.gff", "-o", "asm.contig_stats.tsv")
	require.NoError(t, err)
	stats, err := os.ReadFile(filepath.Join(dir, "asm.contig_stats.tsv"))
	require.NoError(t, err)
	assert.Equal(t, "file_id\tcontig_id\tfeatures\tlength\tGC\n"+
		"asm\tC1\t2\t8\t50.00\n"+
		"asm\tC2\t0\t4\t100.00\n", string(stats))

	_, err = execute(t, "pipeline", "-i", "asm.gff", "-k", "asm.keys.tsv", "-o", "asm.classified.tsv",
		"--stats-output", "kept.tsv")
	require.NoError(t, err)
	classified, err := os.ReadFile(filepath.Join(dir, "asm.classified.tsv"))
	require.NoError(t, err)
	assert.Equal(t, "file_id\tcontig_id\tfeatures\tlength\tGC\tclass\tribosomal RNA\tplasmid partitioning protein\tconjug\n"+
		"asm\tC1\t2\t8\t50.00\tplasmid\t0\t0\t1\n"+
		"asm\tC2\t0\t4\t100.00\tunknown\t0\t0\t0\n", string(classified))

	kept, err := os.ReadFile(filepath.Join(dir, "kept.tsv"))
	require.NoError(t, err)
	assert.Equal(t, stats, kept)
}

func TestMarkers(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, filepath.Join(dir, "hits.tsv"), keysTSV)

	_, err := execute(t, "markers", "-i", "hits.tsv", "-o", "markers.tsv")
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dir, "markers.tsv"))
	require.NoError(t, err)
	assert.Equal(t, "contig\tplasmid\tchromosome\nC1\t0\t1\nC3\t2\t0\nC9\t1\t0\n", string(got))
}

func TestRulesCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	out, err := execute(t, "rules")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "class\tmin_size(Mb)\tmax_size(Mb)"))
	assert.Contains(t, out, "plasmid\t0\t0.35\tplasmid partitioning protein,conjug\t\n")

	for name, content := range map[string]string{
		"inverted.tsv": "chromid\t2\t1\t\t\n",
		"short.tsv":    "chromid\t2\n",
		"broken.yaml":  "rules: [\n",
	} {
		writeFile(t, filepath.Join(dir, name), content)
		_, err = execute(t, "rules", "-r", name)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, errors.ErrRuleValidation), name)
	}
}
