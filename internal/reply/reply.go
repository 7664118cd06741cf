package reply

import (
	"github.com/quiverdb/quiver/internal/value"
)

// Writer builds a wire reply as a tree of arrays whose lengths are only
// known once writing finishes, mirroring a postponed-length reply protocol.
// It is not safe for concurrent use; one writer serves one reply turn.
type Writer struct {
	stack []*node
}

type node struct {
	items []interface{}
}

func NewWriter() *Writer {
	return &Writer{stack: []*node{{}}}
}

func (w *Writer) cur() *node { return w.stack[len(w.stack)-1] }

func (w *Writer) push(v interface{}) { w.cur().items = append(w.cur().items, v) }

// BeginArray opens a nested array; its length is finalized by EndArray.
func (w *Writer) BeginArray() {
	w.stack = append(w.stack, &node{items: []interface{}{}})
}

// EndArray closes the innermost open array and returns its element count.
func (w *Writer) EndArray() int {
	n := w.cur()
	w.stack = w.stack[:len(w.stack)-1]
	w.push(n.items)
	return len(n.items)
}

func (w *Writer) Int(i int64)        { w.push(i) }
func (w *Writer) Double(f float64)   { w.push(f) }
func (w *Writer) String(s string)    { w.push(s) }
func (w *Writer) Bytes(b []byte)     { w.push(string(b)) }
func (w *Writer) Null()              { w.push(nil) }

// Value emits a field value using the generic value-to-reply conversion.
func (w *Writer) Value(v value.Value) {
	switch v.Kind() {
	case value.KindNumber:
		w.Double(v.Float())
	case value.KindString:
		w.String(v.Str())
	case value.KindOther:
		w.push(v.Interface())
	default:
		w.Null()
	}
}

// Len returns the element count of the innermost open array.
func (w *Writer) Len() int { return len(w.cur().items) }

// Root returns the assembled reply. All nested arrays must be closed; the
// root is the single top-level element, or the element list when more than
// one was written.
func (w *Writer) Root() interface{} {
	root := w.stack[0].items
	if len(root) == 1 {
		return root[0]
	}
	return root
}
