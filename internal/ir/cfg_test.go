package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockIDs(blocks []*BasicBlock) []int {
	ids := make([]int, len(blocks))
	for i, bb := range blocks {
		ids[i] = bb.ID
	}
	return ids
}

// diamond builds ENTRY -> a -> {b, c} -> d -> EXIT
func diamond() (*CFG, map[string]*BasicBlock) {
	cfg := NewCFG("diamond")
	a := cfg.CreateBlock("a")
	b := cfg.CreateBlock("b")
	c := cfg.CreateBlock("c")
	d := cfg.CreateBlock("d")
	cfg.ConnectBlocks(cfg.Entry, a, EdgeNormal)
	cfg.ConnectBlocks(a, b, EdgeCondTrue)
	cfg.ConnectBlocks(a, c, EdgeCondFalse)
	cfg.ConnectBlocks(b, d, EdgeNormal)
	cfg.ConnectBlocks(c, d, EdgeNormal)
	cfg.ConnectBlocks(d, cfg.Exit, EdgeNormal)
	return cfg, map[string]*BasicBlock{"a": a, "b": b, "c": c, "d": d}
}

func TestEdgeType(t *testing.T) {
	tests := []struct {
		edge     EdgeType
		expected string
	}{
		{EdgeNormal, "normal"},
		{EdgeCondTrue, "true"},
		{EdgeCondFalse, "false"},
		{EdgeException, "exception"},
		{EdgeLoop, "loop"},
		{EdgeBreak, "break"},
		{EdgeReturn, "return"},
		{EdgeType(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.edge.String())
	}
}

func TestBasicBlock(t *testing.T) {
	t.Run("AddInstr", func(t *testing.T) {
		bb := NewBasicBlock(3, "x")
		bb.AddInstr(&JumpInstr{Target: "y"})
		bb.AddInstr(nil)

		assert.Len(t, bb.Instrs, 1)
		assert.Equal(t, OpJump, bb.LastInstr().Op())
		assert.False(t, bb.IsEmpty())
	})

	t.Run("AddSuccessor", func(t *testing.T) {
		a := NewBasicBlock(2, "a")
		b := NewBasicBlock(3, "b")

		edge := a.AddSuccessor(b, EdgeLoop)

		require.NotNil(t, edge)
		assert.Same(t, a, edge.From)
		assert.Same(t, b, edge.To)
		assert.True(t, a.HasSuccessor(b))
		assert.False(t, b.HasSuccessor(a))
		assert.Len(t, b.Predecessors, 1)
	})

	t.Run("EmptyLastInstr", func(t *testing.T) {
		assert.Nil(t, NewBasicBlock(0, "e").LastInstr())
	})
}

func TestCFG(t *testing.T) {
	t.Run("NewCFG", func(t *testing.T) {
		cfg := NewCFG("m")

		assert.Equal(t, 0, cfg.Entry.ID)
		assert.Equal(t, 1, cfg.Exit.ID)
		assert.True(t, cfg.Entry.IsEntry)
		assert.True(t, cfg.Exit.IsExit)
		assert.Equal(t, 2, cfg.Size())
	})

	t.Run("DenseIDs", func(t *testing.T) {
		cfg, blocks := diamond()

		assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, blockIDs(cfg.Blocks()))
		assert.Same(t, blocks["c"], cfg.BlockByID(4))
		assert.Same(t, blocks["c"], cfg.BlockByLabel("c"))
		assert.Nil(t, cfg.BlockByID(42))
		assert.Nil(t, cfg.BlockByID(-1))
		assert.Equal(t, 6, cfg.EdgeCount())
	})

	t.Run("GeneratedLabel", func(t *testing.T) {
		cfg := NewCFG("m")
		bb := cfg.CreateBlock("")
		assert.Equal(t, Label("bb2"), bb.Label)
	})

	t.Run("Rescuer", func(t *testing.T) {
		cfg, blocks := diamond()
		r := cfg.CreateBlock("rescue")
		cfg.SetRescuer(blocks["b"], r)
		cfg.SetRescuer(blocks["c"], r)

		assert.Same(t, r, cfg.RescuerOf(blocks["b"]))
		assert.Nil(t, cfg.RescuerOf(blocks["a"]))
		assert.True(t, r.IsRescueEntry)
		assert.True(t, blocks["b"].HasSuccessor(r))
		assert.Equal(t, []*BasicBlock{blocks["b"], blocks["c"]}, cfg.ProtectedBy(r))
	})
}

func TestCFGOrders(t *testing.T) {
	t.Run("PostOrderDiamond", func(t *testing.T) {
		cfg, b := diamond()
		post := cfg.PostOrder()

		require.Len(t, post, cfg.Size())
		// Exit finishes first, entry last.
		assert.Same(t, cfg.Exit, post[0])
		assert.Same(t, cfg.Entry, post[len(post)-1])
		pos := make(map[*BasicBlock]int)
		for i, bb := range post {
			pos[bb] = i
		}
		assert.Less(t, pos[b["d"]], pos[b["b"]])
		assert.Less(t, pos[b["d"]], pos[b["c"]])
		assert.Less(t, pos[b["b"]], pos[b["a"]])
	})

	t.Run("ReversePostOrderDiamond", func(t *testing.T) {
		cfg, b := diamond()
		rpo := cfg.ReversePostOrder()

		require.Len(t, rpo, cfg.Size())
		assert.Same(t, cfg.Entry, rpo[0])
		assert.Same(t, b["a"], rpo[1])
		assert.Same(t, cfg.Exit, rpo[len(rpo)-1])
	})

	t.Run("UnreachableBlocksAppended", func(t *testing.T) {
		cfg, _ := diamond()
		dead := cfg.CreateBlock("dead")
		cfg.ConnectBlocks(dead, cfg.Exit, EdgeNormal)

		post := cfg.PostOrder()
		rpo := cfg.ReversePostOrder()

		assert.Same(t, dead, post[len(post)-1])
		assert.Same(t, dead, rpo[len(rpo)-1])
		assert.Same(t, cfg.Exit, rpo[len(rpo)-2])
		assert.False(t, cfg.Reachable()[dead.ID])
	})

	t.Run("Loop", func(t *testing.T) {
		cfg := NewCFG("loop")
		head := cfg.CreateBlock("head")
		body := cfg.CreateBlock("body")
		cfg.ConnectBlocks(cfg.Entry, head, EdgeNormal)
		cfg.ConnectBlocks(head, body, EdgeCondTrue)
		cfg.ConnectBlocks(body, head, EdgeLoop)
		cfg.ConnectBlocks(head, cfg.Exit, EdgeCondFalse)

		rpo := cfg.ReversePostOrder()
		assert.Equal(t, []int{cfg.Entry.ID, head.ID}, blockIDs(rpo[:2]))
		assert.Len(t, rpo, 4)
	})
}

type countingVisitor struct {
	blocks, edges int
	stopAfter     int
}

func (v *countingVisitor) VisitBlock(*BasicBlock) bool {
	v.blocks++
	return v.stopAfter == 0 || v.blocks < v.stopAfter
}

func (v *countingVisitor) VisitEdge(*Edge) bool {
	v.edges++
	return true
}

func TestCFGWalk(t *testing.T) {
	cfg, _ := diamond()

	all := &countingVisitor{}
	cfg.Walk(all)
	assert.Equal(t, 6, all.blocks)
	assert.Equal(t, 6, all.edges)

	stopped := &countingVisitor{stopAfter: 2}
	cfg.Walk(stopped)
	assert.Equal(t, 2, stopped.blocks)
}
