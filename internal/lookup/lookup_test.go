package lookup

import (
	"testing"

	"github.com/quiverdb/quiver/internal/value"
)

func TestGetOrCreateAssignsStableSlots(t *testing.T) {
	lk := New()

	a := lk.GetOrCreate("a", 0)
	b := lk.GetOrCreate("b", 0)
	if a.Slot != 0 || b.Slot != 1 {
		t.Fatalf("main-lane slots = %d,%d, want 0,1", a.Slot, b.Slot)
	}

	// Re-registration returns the same key.
	if lk.GetOrCreate("a", 0) != a {
		t.Fatal("re-registration must return the existing key")
	}
	if lk.Len() != 2 {
		t.Fatalf("Len = %d, want 2", lk.Len())
	}
}

func TestSortVectorLaneCountsSeparately(t *testing.T) {
	lk := New()
	lk.GetOrCreate("a", 0)
	sv := lk.GetOrCreate("s", SortVector|Hidden)

	// First sort-vector key gets slot 0 regardless of main-lane usage.
	if sv.Slot != 0 {
		t.Fatalf("sort-vector slot = %d, want 0", sv.Slot)
	}
	if !sv.FromSortVec() || !sv.Hidden() {
		t.Fatal("expected sort-vector hidden key")
	}
}

func TestReRegistrationKeepsOriginalFlags(t *testing.T) {
	lk := New()
	k := lk.GetOrCreate("f", 0)
	lk.GetOrCreate("f", Hidden|SortVector)
	if k.Hidden() || k.FromSortVec() {
		t.Fatal("a projected field must stay visible when later sorted on")
	}
}

func TestRowDataLanesAreIndependent(t *testing.T) {
	lk := New()
	main := lk.GetOrCreate("f", 0)
	sv := lk.GetOrCreate("f2", SortVector)
	// Both keys occupy slot 0, each in its own lane.
	if main.Slot != 0 || sv.Slot != 0 {
		t.Fatalf("slots = %d,%d, want 0,0", main.Slot, sv.Slot)
	}

	var rd RowData
	rd.Set(main, value.String("main"))
	rd.Set(sv, value.Number(42))

	if rd.Get(main).Str() != "main" {
		t.Fatal("main lane value clobbered")
	}
	if rd.Get(sv).Float() != 42 {
		t.Fatal("sort-vector lane value clobbered")
	}
}

func TestRowDataUnwrittenSlotIsNull(t *testing.T) {
	lk := New()
	k := lk.GetOrCreate("missing", 0)
	var rd RowData
	if !rd.Get(k).IsNull() {
		t.Fatal("unwritten slot must read as null")
	}
}

func TestRowDataClearKeepsCapacity(t *testing.T) {
	lk := New()
	k := lk.GetOrCreate("f", 0)
	var rd RowData
	rd.Set(k, value.String("v"))
	rd.Clear()
	if !rd.Get(k).IsNull() {
		t.Fatal("Clear must null out written slots")
	}
	if len(rd.values) != 1 {
		t.Fatal("Clear must keep backing storage")
	}
}
