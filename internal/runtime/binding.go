package runtime

// Visibility is the default method visibility captured by a binding
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityPrivate   Visibility = "private"
	VisibilityProtected Visibility = "protected"
)

// Frame is the per-call state a block captures from its defining method
type Frame struct {
	Self       Value
	Name       string
	Visibility Visibility
	// Block is the block passed to the defining method, if any
	Block *Block
}

// Dup returns a shallow copy of the frame
func (f *Frame) Dup() *Frame {
	if f == nil {
		return nil
	}
	cp := *f
	return &cp
}

// Binding is the lexical environment a block closes over
type Binding struct {
	Self         Value
	Frame        *Frame
	DynamicScope *DynamicScope
	Visibility   Visibility
}

// NewBinding creates a binding over scope whose self and visibility come
// from frame.
func NewBinding(frame *Frame, scope *DynamicScope) *Binding {
	b := &Binding{Frame: frame, DynamicScope: scope, Visibility: VisibilityPublic}
	if frame != nil {
		b.Self = frame.Self
		if frame.Visibility != "" {
			b.Visibility = frame.Visibility
		}
	}
	return b
}

// Clone returns a new binding with the same frame and scope
func (b *Binding) Clone() *Binding {
	cp := *b
	return &cp
}

// CloneWithFrameDup returns a new binding whose frame is duplicated
func (b *Binding) CloneWithFrameDup() *Binding {
	cp := *b
	cp.Frame = b.Frame.Dup()
	return &cp
}
