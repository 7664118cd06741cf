package reply

import (
	"reflect"
	"testing"

	"github.com/quiverdb/quiver/internal/value"
)

func TestNestedArraysAndCounts(t *testing.T) {
	w := NewWriter()

	w.BeginArray()
	w.Int(3)
	w.BeginArray()
	w.String("name")
	w.String("alice")
	if n := w.EndArray(); n != 2 {
		t.Fatalf("inner EndArray = %d, want 2", n)
	}
	if n := w.EndArray(); n != 2 {
		t.Fatalf("outer EndArray = %d, want 2", n)
	}

	want := []interface{}{int64(3), []interface{}{"name", "alice"}}
	if got := w.Root(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Root = %#v, want %#v", got, want)
	}
}

func TestLenTracksOpenArray(t *testing.T) {
	w := NewWriter()
	w.BeginArray()
	w.Int(1)
	w.Int(2)
	if w.Len() != 2 {
		t.Fatalf("Len = %d, want 2", w.Len())
	}
	w.EndArray()
}

func TestValueDispatch(t *testing.T) {
	w := NewWriter()
	w.BeginArray()
	w.Value(value.Number(1.5))
	w.Value(value.String("s"))
	w.Value(value.Null())
	w.Value(value.Other([]int{1}))
	w.EndArray()

	root := w.Root().([]interface{})
	if root[0] != 1.5 || root[1] != "s" || root[2] != nil {
		t.Fatalf("unexpected root %#v", root)
	}
	if !reflect.DeepEqual(root[3], []int{1}) {
		t.Fatalf("other value not passed through: %#v", root[3])
	}
}

func TestRootWithMultipleTopLevelElements(t *testing.T) {
	w := NewWriter()
	w.Int(1)
	w.Int(2)
	want := []interface{}{int64(1), int64(2)}
	if got := w.Root(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Root = %#v, want %#v", got, want)
	}
}

func TestBytesEmitAsString(t *testing.T) {
	w := NewWriter()
	w.Bytes([]byte("doc:1"))
	if w.Root() != "doc:1" {
		t.Fatalf("Root = %#v, want doc:1", w.Root())
	}
}
