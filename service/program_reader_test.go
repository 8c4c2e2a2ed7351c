package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ludo-technologies/irflow/domain"
)

func defaultCollectOptions() domain.CollectOptions {
	return domain.CollectOptions{
		Recursive:       true,
		IncludePatterns: []string{"**/*.yaml", "**/*.yml"},
		ExcludePatterns: []string{"**/testdata/**"},
	}
}

func TestProgramReader_Collect(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.yaml":             deadStoreProgram,
		"nested/b.yml":       helloProgram,
		"testdata/skip.yaml": helloProgram,
		".hidden/c.yaml":     helloProgram,
		"notes.txt":          "not a program",
		"pkg/main.go":        "package main\n",
		"pkg/main_test.go":   "package main\n",
	})
	reader := NewProgramReader(zerolog.Nop())

	t.Run("RecursiveYAML", func(t *testing.T) {
		sources, err := reader.Collect([]string{dir}, defaultCollectOptions())
		require.NoError(t, err)
		require.Len(t, sources, 2)
		assert.Equal(t, domain.SourceYAML, sources[0].Kind)
		assert.Equal(t, filepath.Join(dir, "a.yaml"), sources[0].Path)
		assert.Equal(t, filepath.Join(dir, "nested", "b.yml"), sources[1].Path)
	})

	t.Run("NonRecursive", func(t *testing.T) {
		opts := defaultCollectOptions()
		opts.Recursive = false
		sources, err := reader.Collect([]string{dir}, opts)
		require.NoError(t, err)
		require.Len(t, sources, 1)
		assert.Equal(t, filepath.Join(dir, "a.yaml"), sources[0].Path)
	})

	t.Run("GoPackagesByPattern", func(t *testing.T) {
		opts := defaultCollectOptions()
		opts.IncludePatterns = []string{"**/*.go"}
		sources, err := reader.Collect([]string{dir}, opts)
		require.NoError(t, err)
		require.Len(t, sources, 1)
		assert.Equal(t, domain.SourceGo, sources[0].Kind)
		assert.Equal(t, filepath.Join(dir, "pkg"), sources[0].Path)
		assert.Equal(t, ".", sources[0].Pattern)
		assert.False(t, sources[0].Tests)
	})

	t.Run("ExplicitFilesDeduplicated", func(t *testing.T) {
		a := filepath.Join(dir, "a.yaml")
		sources, err := reader.Collect([]string{a, a, filepath.Join(dir, "pkg", "main.go")}, defaultCollectOptions())
		require.NoError(t, err)
		require.Len(t, sources, 2)
		assert.Equal(t, domain.SourceYAML, sources[0].Kind)
		assert.Equal(t, domain.SourceGo, sources[1].Kind)
	})

	t.Run("PackagePattern", func(t *testing.T) {
		sources, err := reader.Collect([]string{filepath.Join(dir, "pkg") + "/..."}, defaultCollectOptions())
		require.NoError(t, err)
		require.Len(t, sources, 1)
		assert.Equal(t, "./...", sources[0].Pattern)
		assert.Equal(t, "./... ("+filepath.Join(dir, "pkg")+")", sources[0].String())
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := reader.Collect([]string{filepath.Join(dir, "nope.yaml")}, defaultCollectOptions())
		require.Error(t, err)
		assert.Equal(t, domain.ErrCodeFileNotFound, domain.ErrorCode(err))
	})

	t.Run("NotAProgram", func(t *testing.T) {
		_, err := reader.Collect([]string{filepath.Join(dir, "notes.txt")}, defaultCollectOptions())
		require.Error(t, err)
		assert.Equal(t, domain.ErrCodeInvalidInput, domain.ErrorCode(err))
	})
}

func TestShouldInclude(t *testing.T) {
	tests := []struct {
		rel      string
		include  []string
		exclude  []string
		expected bool
	}{
		{"a.yaml", []string{"**/*.yaml"}, nil, true},
		{"x/y/a.yaml", []string{"**/*.yaml"}, nil, true},
		{"a.yml", []string{"**/*.yaml"}, nil, false},
		{"testdata/a.yaml", []string{"**/*.yaml"}, []string{"**/testdata/**"}, false},
		{"anything", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.expected, shouldInclude(tt.rel, tt.include, tt.exclude))
		})
	}
}

func TestProgramReader_Load(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"named.yaml":   deadStoreProgram,
		"unnamed.yaml": "script: {blocks: [{instrs: [{op: return, value: 1}]}]}",
		"broken.yaml":  "script: {blocks: [{instrs: [{op: frobnicate}]}]}",
	})
	reader := NewProgramReader(zerolog.Nop())
	ctx := context.Background()

	progs, err := reader.Load(ctx, domain.ProgramSource{Kind: domain.SourceYAML, Path: filepath.Join(dir, "named.yaml")})
	require.NoError(t, err)
	require.Len(t, progs, 1)
	assert.Equal(t, "dead_store", progs[0].Name)

	progs, err = reader.Load(ctx, domain.ProgramSource{Kind: domain.SourceYAML, Path: filepath.Join(dir, "unnamed.yaml")})
	require.NoError(t, err)
	assert.Equal(t, "unnamed", progs[0].Name)

	_, err = reader.Load(ctx, domain.ProgramSource{Kind: domain.SourceYAML, Path: filepath.Join(dir, "broken.yaml")})
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeParseError, domain.ErrorCode(err))

	_, err = reader.Load(ctx, domain.ProgramSource{Kind: "cobol", Path: dir})
	assert.Equal(t, domain.ErrCodeInvalidInput, domain.ErrorCode(err))
}
