package service

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/ludo-technologies/irflow/domain"
	"github.com/ludo-technologies/irflow/internal/goir"
	"github.com/ludo-technologies/irflow/internal/ir"
)

// ProgramReaderImpl discovers YAML programs and Go packages on disk
type ProgramReaderImpl struct {
	logger zerolog.Logger
}

// NewProgramReader creates a program reader
func NewProgramReader(logger zerolog.Logger) *ProgramReaderImpl {
	return &ProgramReaderImpl{logger: logger}
}

// IsProgramFile reports whether path names a YAML program
func IsProgramFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// IsGoFile reports whether path names a Go source file
func IsGoFile(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".go"
}

// Collect resolves paths into sources. Explicit files are taken as they
// are; directories are walked and filtered by the include and exclude
// patterns, matched against the slash-separated path relative to the
// directory. A path ending in "/..." is a Go package pattern.
func (r *ProgramReaderImpl) Collect(paths []string, opts domain.CollectOptions) ([]domain.ProgramSource, error) {
	var sources []domain.ProgramSource
	seen := make(map[domain.ProgramSource]bool)
	add := func(src domain.ProgramSource) {
		if !seen[src] {
			seen[src] = true
			sources = append(sources, src)
		}
	}

	for _, path := range paths {
		if dir, ok := strings.CutSuffix(filepath.ToSlash(path), "..."); ok {
			dir = strings.TrimSuffix(dir, "/")
			if dir == "" {
				dir = "."
			}
			if _, err := os.Stat(dir); err != nil {
				return nil, domain.NewFileNotFoundError(dir, err)
			}
			add(domain.ProgramSource{Kind: domain.SourceGo, Path: filepath.FromSlash(dir), Pattern: "./...", Tests: opts.IncludeTests})
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			return nil, domain.NewFileNotFoundError(path, err)
		}

		switch {
		case info.IsDir():
			dirSources, err := r.collectFromDirectory(path, opts)
			if err != nil {
				return nil, err
			}
			for _, src := range dirSources {
				add(src)
			}
		case IsProgramFile(path):
			add(domain.ProgramSource{Kind: domain.SourceYAML, Path: path})
		case IsGoFile(path):
			add(domain.ProgramSource{Kind: domain.SourceGo, Path: filepath.Dir(path), Pattern: ".", Tests: opts.IncludeTests})
		default:
			return nil, domain.NewInvalidInputError(fmt.Sprintf("not a program file: %s", path), nil)
		}
	}

	return sources, nil
}

// collectFromDirectory walks root. Matching YAML files become sources; a
// directory holding a matching Go file becomes one Go package source.
func (r *ProgramReaderImpl) collectFromDirectory(root string, opts domain.CollectOptions) ([]domain.ProgramSource, error) {
	var sources []domain.ProgramSource
	goDirs := make(map[string]bool)

	walkFunc := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			r.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
			return nil
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if !opts.Recursive || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !shouldInclude(rel, opts.IncludePatterns, opts.ExcludePatterns) {
			return nil
		}

		switch {
		case IsProgramFile(path):
			sources = append(sources, domain.ProgramSource{Kind: domain.SourceYAML, Path: path})
		case IsGoFile(path):
			if opts.IncludeTests || !strings.HasSuffix(path, "_test.go") {
				goDirs[filepath.Dir(path)] = true
			}
		}
		return nil
	}

	if err := filepath.WalkDir(root, walkFunc); err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", root, err)
	}

	dirs := make([]string, 0, len(goDirs))
	for dir := range goDirs {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	for _, dir := range dirs {
		sources = append(sources, domain.ProgramSource{Kind: domain.SourceGo, Path: dir, Pattern: ".", Tests: opts.IncludeTests})
	}
	return sources, nil
}

// shouldInclude checks rel against the patterns. Exclusions win; no
// include patterns means everything is included.
func shouldInclude(rel string, includePatterns, excludePatterns []string) bool {
	for _, pattern := range excludePatterns {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return false
		}
	}

	if len(includePatterns) == 0 {
		return true
	}
	for _, pattern := range includePatterns {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// Load builds the IR programs of src
func (r *ProgramReaderImpl) Load(ctx context.Context, src domain.ProgramSource) ([]*ir.Program, error) {
	switch src.Kind {
	case domain.SourceYAML:
		f, err := os.Open(src.Path)
		if err != nil {
			return nil, domain.NewFileNotFoundError(src.Path, err)
		}
		defer f.Close()

		prog, err := ir.LoadProgram(f)
		if err != nil {
			return nil, domain.NewParseError(src.Path, err)
		}
		if prog.Name == "" {
			prog.Name = strings.TrimSuffix(filepath.Base(src.Path), filepath.Ext(src.Path))
		}
		r.logger.Debug().Str("source", src.Path).Int("scopes", len(prog.AllScopes())).Msg("loaded program")
		return []*ir.Program{prog}, nil

	case domain.SourceGo:
		progs, err := goir.Load(ctx, goir.Config{Dir: src.Path, Tests: src.Tests, Logger: r.logger}, src.Pattern)
		if err != nil {
			return nil, domain.NewParseError(src.String(), err)
		}
		r.logger.Debug().Str("source", src.String()).Int("packages", len(progs)).Msg("loaded go packages")
		return progs, nil
	}
	return nil, domain.NewInvalidInputError(fmt.Sprintf("unknown source kind %q", src.Kind), nil)
}
