// Package analyses provides concrete data flow analyses over IR scopes:
// live variables, defined variables, reaching definitions and
// reachability.
package analyses

import (
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/ludo-technologies/irflow/internal/dataflow"
	"github.com/ludo-technologies/irflow/internal/ir"
)

// varTable numbers the IR variables of one problem
type varTable struct {
	ids  map[*ir.Variable]dataflow.Var
	vars []*ir.Variable // indexed by data flow variable ID
}

func newVarTable() *varTable {
	return &varTable{
		ids:  make(map[*ir.Variable]dataflow.Var),
		vars: []*ir.Variable{nil},
	}
}

// register allocates an ID for v through alloc unless v already has one
func (t *varTable) register(v *ir.Variable, alloc func() dataflow.Var) dataflow.Var {
	if id, ok := t.ids[v]; ok {
		return id
	}
	id := alloc()
	t.ids[v] = id
	for len(t.vars) <= id.ID() {
		t.vars = append(t.vars, nil)
	}
	t.vars[id.ID()] = v
	return id
}

func (t *varTable) id(v *ir.Variable) (dataflow.Var, bool) {
	id, ok := t.ids[v]
	return id, ok
}

func (t *varTable) size() int {
	return len(t.ids)
}

// variables returns the variables whose IDs are set in bs, sorted by name
func (t *varTable) variables(bs *bitset.BitSet) []*ir.Variable {
	if bs == nil {
		return nil
	}
	var out []*ir.Variable
	for i, ok := bs.NextSet(0); ok; i, ok = bs.NextSet(i + 1) {
		if int(i) < len(t.vars) && t.vars[i] != nil {
			out = append(out, t.vars[i])
		}
	}
	sortVariables(out)
	return out
}

func sortVariables(vars []*ir.Variable) {
	sort.Slice(vars, func(i, j int) bool {
		if vars[i].Kind != vars[j].Kind {
			return vars[i].Kind < vars[j].Kind
		}
		return vars[i].Name < vars[j].Name
	})
}

// VariableNames renders variables as their printed names
func VariableNames(vars []*ir.Variable) []string {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.String()
	}
	return names
}

// capturedLocals returns the locals referenced by scope (or its nested
// closures) that are owned by an enclosing scope.
func capturedLocals(scope *ir.Scope) []*ir.Variable {
	if !scope.Kind.IsClosureType() {
		return nil
	}
	return scope.FreeVariables()
}

// capturedDefs returns the outer locals a closure may assign
func capturedDefs(closure *ir.Scope) []*ir.Variable {
	seen := make(map[*ir.Variable]bool)
	var out []*ir.Variable
	for _, s := range closure.AllScopes() {
		for _, bb := range s.CFG.Blocks() {
			for _, instr := range bb.Instrs {
				for _, v := range ir.Defs(instr) {
					if v.IsLocal() && !seen[v] && closure.Depth(v) > 0 {
						seen[v] = true
						out = append(out, v)
					}
				}
			}
		}
	}
	return out
}

// directUses returns the variables read by the instruction's own operands
func directUses(instr ir.Instr) []*ir.Variable {
	var out []*ir.Variable
	for _, op := range instr.Operands() {
		if v, ok := op.(*ir.Variable); ok {
			out = append(out, v)
		}
	}
	return out
}

// closureOf returns the nested scope an instruction hands over, or nil
func closureOf(instr ir.Instr) *ir.Scope {
	if ca, ok := instr.(ir.ClosureAccepting); ok {
		return ca.Closure()
	}
	return nil
}

func newSet(width int) *bitset.BitSet {
	return bitset.New(uint(width))
}

func fullSet(width int) *bitset.BitSet {
	bs := bitset.New(uint(width))
	for i := 1; i < width; i++ {
		bs.Set(uint(i))
	}
	return bs
}
