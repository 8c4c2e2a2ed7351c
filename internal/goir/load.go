// Package goir lowers Go functions in SSA form into IR programs, so the
// dataflow analyses can run over real Go code.
package goir

import (
	"context"
	"fmt"
	"go/types"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/ludo-technologies/irflow/internal/ir"
)

// LoadMode is the package information needed to build SSA
const LoadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedImports |
	packages.NeedDeps |
	packages.NeedTypes |
	packages.NeedSyntax |
	packages.NeedTypesInfo |
	packages.NeedTypesSizes

// Config controls package loading
type Config struct {
	// Dir is the directory patterns are resolved in
	Dir string
	// Tests includes test packages
	Tests  bool
	Logger zerolog.Logger
}

// Load type-checks the packages matched by patterns, builds their SSA form
// and lowers each package into one program.
func Load(ctx context.Context, cfg Config, patterns ...string) ([]*ir.Program, error) {
	pcfg := &packages.Config{
		Context: ctx,
		Dir:     cfg.Dir,
		Tests:   cfg.Tests,
		Mode:    LoadMode,
	}
	pkgs, err := packages.Load(pcfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load packages: %w", err)
	}

	var loadErrs []error
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		for _, e := range p.Errors {
			loadErrs = append(loadErrs, e)
		}
	})
	if len(loadErrs) > 0 {
		return nil, fmt.Errorf("failed to load packages: %w (and %d more)", loadErrs[0], len(loadErrs)-1)
	}

	prog, ssaPkgs := ssautil.Packages(pkgs, ssa.InstantiateGenerics)
	prog.Build()

	var out []*ir.Program
	for _, pkg := range ssaPkgs {
		if pkg == nil {
			continue
		}
		p, err := Translate(pkg, WithLogger(cfg.Logger))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Option configures a translation
type Option func(*translator)

// WithLogger traces lowered functions
func WithLogger(logger zerolog.Logger) Option {
	return func(t *translator) {
		t.logger = logger
	}
}

// Translate lowers every function and method declared in pkg. Each becomes
// a method scope; anonymous functions become closures of their parent. The
// script calls main when the package declares one.
func Translate(pkg *ssa.Package, opts ...Option) (*ir.Program, error) {
	t := &translator{
		pkg:    pkg.Pkg,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}

	prog := ir.NewProgram(pkg.Pkg.Path())
	for _, fn := range memberFunctions(pkg) {
		if len(fn.Blocks) == 0 {
			continue
		}
		name := t.funcName(fn)
		params := make([]string, len(fn.Params))
		for i, p := range fn.Params {
			params[i] = p.Name()
		}
		scope := prog.AddMethod(name, params...)
		if err := t.lower(fn, scope, nil); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		t.logger.Debug().Str("func", name).Int("blocks", len(fn.Blocks)).Msg("lowered")
	}

	if err := buildScript(prog); err != nil {
		return nil, err
	}
	return prog, nil
}

// memberFunctions returns the package's functions and concrete methods
// sorted by name.
func memberFunctions(pkg *ssa.Package) []*ssa.Function {
	seen := make(map[*ssa.Function]bool)
	var out []*ssa.Function
	add := func(fn *ssa.Function) {
		if fn != nil && !seen[fn] && fn.Synthetic == "" {
			seen[fn] = true
			out = append(out, fn)
		}
	}

	for _, m := range pkg.Members {
		switch m := m.(type) {
		case *ssa.Function:
			add(m)
		case *ssa.Type:
			T := m.Type()
			if types.IsInterface(T) {
				continue
			}
			if named, ok := T.(*types.Named); ok && named.TypeParams().Len() > 0 {
				continue
			}
			for _, typ := range []types.Type{T, types.NewPointer(T)} {
				mset := pkg.Prog.MethodSets.MethodSet(typ)
				for i := 0; i < mset.Len(); i++ {
					add(pkg.Prog.MethodValue(mset.At(i)))
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].RelString(pkg.Pkg) < out[j].RelString(pkg.Pkg)
	})
	return out
}

func buildScript(prog *ir.Program) error {
	b := ir.NewBuilder(prog.Script)
	b.Block("start")
	if prog.Method("main") != nil {
		result := prog.Script.Temp("main")
		b.Emit(&ir.CallInstr{Dst: result, Method: "main"})
		b.Emit(&ir.ReturnInstr{Value: result})
	} else {
		b.Emit(&ir.ReturnInstr{Value: ir.Nil})
	}
	return b.Finish()
}
