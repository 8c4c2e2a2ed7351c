package goir

import (
	"context"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/ludo-technologies/irflow/internal/dataflow/analyses"
	"github.com/ludo-technologies/irflow/internal/interp"
	"github.com/ludo-technologies/irflow/internal/ir"
)

func buildSSA(t *testing.T, src string) *ssa.Package {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "p.go", src, 0)
	require.NoError(t, err)
	pkg := types.NewPackage("example.com/p", "p")
	ssaPkg, _, err := ssautil.BuildPackage(&types.Config{Importer: importer.Default()}, fset, pkg, []*ast.File{f}, ssa.SanityCheckFunctions)
	require.NoError(t, err)
	return ssaPkg
}

func translate(t *testing.T, src string) *ir.Program {
	t.Helper()
	prog, err := Translate(buildSSA(t, src))
	require.NoError(t, err)
	return prog
}

func instrs[T ir.Instr](s *ir.Scope) []T {
	var out []T
	for _, bb := range s.CFG.Blocks() {
		for _, instr := range bb.Instrs {
			if v, ok := instr.(T); ok {
				out = append(out, v)
			}
		}
	}
	return out
}

const arith = `
package p

func larger(a, b int) int {
	m := a
	if b > a {
		m = b
	}
	return m
}

func main() int {
	return larger(3, 5) + larger(9, 2)
}
`

func TestTranslate_Phis(t *testing.T) {
	prog := translate(t, arith)

	m := prog.Method("larger")
	require.NotNil(t, m)
	require.Len(t, m.Params, 2)
	assert.Equal(t, "a", m.Params[0].Name)
	assert.Equal(t, ir.ScopeMethod, m.Kind)

	dv := analyses.NewDefinedVariables()
	require.NoError(t, dv.Analyze(context.Background(), m))
	assert.Empty(t, dv.UndefinedUses())

	r := analyses.NewReachability()
	require.NoError(t, r.Analyze(context.Background(), m))
	assert.Empty(t, r.Unreachable())
}

func TestTranslate_Executes(t *testing.T) {
	prog := translate(t, arith)
	result, err := interp.New(prog).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(14), result.Value)
}

func TestTranslate_Closure(t *testing.T) {
	prog := translate(t, `
package p

func counter() int {
	n := 0
	inc := func(d int) { n += d }
	inc(2)
	inc(3)
	return n
}
`)
	m := prog.Method("counter")
	require.NotNil(t, m)
	require.Len(t, m.Closures, 1)

	c := m.Closures[0]
	assert.Equal(t, ir.ScopeClosure, c.Kind)
	require.Len(t, c.Params, 1)
	assert.Equal(t, "d", c.Params[0].Name)

	free := c.FreeVariables()
	require.Len(t, free, 1)
	assert.Same(t, m, m.Owner(free[0]))

	lambdas := instrs[*ir.BuildLambdaInstr](m)
	require.Len(t, lambdas, 1)
	assert.Same(t, c, lambdas[0].Body)
	assert.Len(t, instrs[*ir.CallBlockInstr](m), 2)
}

func TestTranslate_GoStatement(t *testing.T) {
	prog := translate(t, `
package p

func send(ch chan int, v int) {
	ch <- v
}

func worker(ch chan int) {
	go send(ch, 1)
}
`)
	w := prog.Method("worker")
	require.NotNil(t, w)

	threads := instrs[*ir.ThreadInstr](w)
	require.Len(t, threads, 1)
	body := threads[0].Body
	assert.Same(t, w, body.Parent)

	calls := instrs[*ir.CallInstr](body)
	require.Len(t, calls, 1)
	assert.Equal(t, "send", calls[0].Method)
	require.Len(t, calls[0].Args, 2)
	assert.Same(t, w.Var("ch"), calls[0].Args[0])
	assert.Equal(t, ir.Int(1), calls[0].Args[1])
}

func TestTranslate_RecoverIsRescuer(t *testing.T) {
	prog := translate(t, `
package p

func safe() (n int) {
	defer func() { recover() }()
	panic("boom")
}
`)
	m := prog.Method("safe")
	require.NotNil(t, m)
	assert.NotNil(t, m.CFG.RescuerOf(m.FirstBlock()))
	assert.NotEmpty(t, instrs[*ir.RaiseInstr](m))
	assert.NotEmpty(t, instrs[*ir.ReceiveExceptionInstr](m.Closures[0]))
}

func TestTranslate_Methods(t *testing.T) {
	prog := translate(t, `
package p

type T struct{ x int }

func (t *T) Get() int { return t.x }

func (t T) Name() string { return "t" }
`)
	assert.NotNil(t, prog.Method("(*T).Get"))
	assert.NotNil(t, prog.Method("(T).Name"))

	result, err := interp.New(prog).Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result.Value)
}

func TestLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("loads packages with the go command")
	}
	progs, err := Load(context.Background(), Config{Dir: "testdata/sample"}, ".")
	require.NoError(t, err)
	require.Len(t, progs, 1)

	sum := progs[0].Method("Sum")
	require.NotNil(t, sum)

	result, err := interp.New(progs[0]).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.Value)
}
