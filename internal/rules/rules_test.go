package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Doomsbay/ContigKit/internal/errors"
)

func parse(t *testing.T, input string) (Rules, error) {
	t.Helper()
	return ParseTSV(strings.NewReader(input), "rules.tsv")
}

func TestParseTSV(t *testing.T) {
	rs, err := parse(t, strings.Join([]string{
		"class\tmin_size(Mb)\tmax_size(Mb)\tkey_genes_must_present\tkey_genes_must_absent",
		"# comment",
		"",
		"chromosome\t2\t10\tribosomal_RNA\t",
		"plasmid\t0\t0.35\tplasmid_partitioning_protein, conjug",
		"chromid\t0.35\t2\t\tconjug",
		"",
	}, "\n"))
	require.NoError(t, err)
	require.Len(t, rs, 3)

	assert.Equal(t, Rule{
		Class:       "chromosome",
		MinSize:     2e6,
		MaxSize:     10e6,
		MustPresent: []string{"ribosomal RNA"},
		Line:        4,
	}, rs[0])

	assert.Equal(t, 350000.0, rs[1].MaxSize)
	assert.Equal(t, []string{"plasmid partitioning protein", "conjug"}, rs[1].MustPresent)
	assert.Nil(t, rs[1].MustAbsent)

	assert.Nil(t, rs[2].MustPresent)
	assert.Equal(t, []string{"conjug"}, rs[2].MustAbsent)
	assert.Equal(t, 350000.0, rs[2].MinSize)
}

func TestParseTSVWithoutHeader(t *testing.T) {
	rs, err := parse(t, "chromosome\t2\t10\tribosomal_RNA\t\n")
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "chromosome", rs[0].Class)
	assert.Equal(t, int64(1), rs[0].Line)
}

func TestParseTSVRejects(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		sentinel error
		contains string
	}{
		{"empty table", "", errors.ErrRuleValidation, "no rules"},
		{"header only", "class\tmin_size(Mb)\tmax_size(Mb)\n", errors.ErrRuleValidation, "no rules"},
		{"inverted bounds", "chromid\t2\t0.35\t\tconjug\n", errors.ErrRuleValidation, "min_size 2 Mb is greater than max_size 0.35 Mb"},
		{"empty class", "\t0\t1\tconjug\n", errors.ErrRuleValidation, "empty class name"},
		{"reserved class", "unknown\t0\t1\n", errors.ErrRuleValidation, "reserved"},
		{"bad bound", "plasmid\tsmall\t1\n", errors.ErrRuleValidation, "min_size \"small\""},
		{"negative bound", "plasmid\t0\t-1\n", errors.ErrRuleValidation, "negative"},
		{"too few cells", "plasmid\t0\n", errors.ErrRuleValidation, "got 2"},
		{"too many cells", "plasmid\t0\t1\ta\tb\tc\n", errors.ErrRuleValidation, "got 6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel), err.Error())
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestParseTSVReportsLine(t *testing.T) {
	_, err := parse(t, "class\tmin\tmax\nchromosome\t2\t10\nchromid\t2\t1\n")
	var invalid *errors.RuleValidationError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, int64(3), invalid.Line)
	assert.Equal(t, "rules.tsv", invalid.Path)
}

func TestGenesOrdering(t *testing.T) {
	rs, err := parse(t, strings.Join([]string{
		"chromosome\t2\t10\tribosomal_RNA\t",
		"plasmid\t0\t0.35\tplasmid_partitioning_protein,conjug\t",
		"chromid\t0.35\t2\tribosomal_RNA\tconjug,relaxase",
	}, "\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ribosomal RNA", "plasmid partitioning protein", "conjug", "relaxase"}, rs.Genes())
	assert.Equal(t, []string{"chromosome", "plasmid", "chromid"}, rs.Classes())
	assert.True(t, rs.Has("chromid"))
	assert.False(t, rs.Has("megaplasmid"))
}

func TestDefault(t *testing.T) {
	rs := Default()
	assert.Equal(t, []string{"chromosome", "chromosomal_contig", "plasmid", "megaplasmid", "chromid"}, rs.Classes())
	assert.Equal(t, []string{"ribosomal RNA", "plasmid partitioning protein", "conjug"}, rs.Genes())
	assert.Equal(t, 2e6, rs[0].MinSize)
}

func TestMbToBases(t *testing.T) {
	assert.Equal(t, 350000.0, MbToBases(0.35))
	assert.Equal(t, 2000000.0, MbToBases(2))
	assert.InDelta(t, 0.5, MbToBases(0.0000005), 1e-9)
}

func TestParseYAMLMatchesTSV(t *testing.T) {
	yamlRules, err := ParseYAML(strings.NewReader(`
rules:
  - class: chromosome
    min_size: 2
    max_size: 10
    must_present: [ribosomal_RNA]
  - class: chromid
    min_size: 0.35
    max_size: 2
    must_absent: ["conjug"]
`), "rules.yaml")
	require.NoError(t, err)

	tsvRules, err := parse(t, "chromosome\t2\t10\tribosomal_RNA\t\nchromid\t0.35\t2\t\tconjug\n")
	require.NoError(t, err)

	require.Len(t, yamlRules, 2)
	for i := range yamlRules {
		assert.Equal(t, tsvRules[i].Class, yamlRules[i].Class)
		assert.Equal(t, tsvRules[i].MinSize, yamlRules[i].MinSize)
		assert.Equal(t, tsvRules[i].MaxSize, yamlRules[i].MaxSize)
		assert.Equal(t, tsvRules[i].MustPresent, yamlRules[i].MustPresent)
		assert.Equal(t, tsvRules[i].MustAbsent, yamlRules[i].MustAbsent)
	}
	assert.Equal(t, int64(3), yamlRules[0].Line)
}

func TestParseYAMLRejects(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		sentinel error
	}{
		{"no rules", "rules: []\n", errors.ErrRuleValidation},
		{"missing bound", "rules:\n  - class: plasmid\n    min_size: 0\n", errors.ErrRuleValidation},
		{"inverted", "rules:\n  - class: plasmid\n    min_size: 3\n    max_size: 1\n", errors.ErrRuleValidation},
		{"not yaml", "rules: [\n", errors.ErrRuleValidation},
		{"wrong type", "rules:\n  - class: plasmid\n    min_size: big\n    max_size: 1\n", errors.ErrRuleValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML(strings.NewReader(tt.input), "rules.yaml")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel), err.Error())
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	tsvPath := filepath.Join(dir, "rules.tsv")
	yamlPath := filepath.Join(dir, "rules.yml")
	require.NoError(t, os.WriteFile(tsvPath, []byte("plasmid\t0\t0.35\tconjug\n"), 0o644))
	require.NoError(t, os.WriteFile(yamlPath, []byte("rules:\n  - {class: plasmid, min_size: 0, max_size: 0.35, must_present: [conjug]}\n"), 0o644))

	fromTSV, err := Load(tsvPath)
	require.NoError(t, err)
	fromYAML, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, fromTSV[0].MustPresent, fromYAML[0].MustPresent)
	assert.Equal(t, fromTSV[0].MaxSize, fromYAML[0].MaxSize)

	_, err = Load(filepath.Join(dir, "missing.tsv"))
	assert.True(t, errors.Is(err, errors.ErrIO))
}

func TestWriteTSVRoundTrip(t *testing.T) {
	var b strings.Builder
	require.NoError(t, Default().WriteTSV(&b))

	again, err := parse(t, b.String())
	require.NoError(t, err)
	assert.Equal(t, Default(), again)
}
