package lookup

import "github.com/quiverdb/quiver/internal/value"

// Flags carry per-key visibility and storage-location metadata.
type Flags uint8

const (
	// Hidden keys are excluded from generic field serialization but may
	// still be read for structured roles such as the sort key.
	Hidden Flags = 1 << iota
	// SortVector marks a key whose value lives in the row's side
	// sort-vector rather than in main row storage.
	SortVector
)

// Key is one entry of a Lookup: a field name bound to a storage slot.
// Keys are created at pipeline-compile time and read-only afterwards.
type Key struct {
	Name  string
	Slot  int
	Flags Flags
}

func (k *Key) Hidden() bool     { return k.Flags&Hidden != 0 }
func (k *Key) FromSortVec() bool { return k.Flags&SortVector != 0 }

// Lookup is an ordered, append-only registry mapping field names to row
// storage slots. Iteration order is insertion order and defines the wire
// output order of fields.
type Lookup struct {
	keys   []*Key
	byName map[string]*Key
	// slots counts main-storage slots; svslots counts sort-vector slots.
	slots   int
	svslots int
}

func New() *Lookup {
	return &Lookup{byName: map[string]*Key{}}
}

// Get returns the key registered under name, or nil.
func (l *Lookup) Get(name string) *Key {
	return l.byName[name]
}

// GetOrCreate returns the existing key for name or appends a new one with
// the given flags. An existing key keeps its original flags: a field that
// is both projected and sorted on stays visible in main storage. Slot
// indices are stable for the lifetime of the Lookup.
func (l *Lookup) GetOrCreate(name string, flags Flags) *Key {
	if k, ok := l.byName[name]; ok {
		return k
	}
	k := &Key{Name: name, Flags: flags}
	if flags&SortVector != 0 {
		k.Slot = l.svslots
		l.svslots++
	} else {
		k.Slot = l.slots
		l.slots++
	}
	l.keys = append(l.keys, k)
	l.byName[name] = k
	return k
}

// Keys returns the registry in insertion order. Callers must not mutate it.
func (l *Lookup) Keys() []*Key { return l.keys }

// Len returns the number of registered keys.
func (l *Lookup) Len() int { return len(l.keys) }

// RowData is the slot-addressed storage a row carries through the pipeline:
// one lane for plain field values and a side sort-vector lane.
type RowData struct {
	values []value.Value
	sv     []value.Value
}

// Set stores v in the lane and slot the key addresses, growing storage as
// needed.
func (rd *RowData) Set(k *Key, v value.Value) {
	lane := &rd.values
	if k.FromSortVec() {
		lane = &rd.sv
	}
	for len(*lane) <= k.Slot {
		*lane = append(*lane, value.Null())
	}
	(*lane)[k.Slot] = v
}

// Get reads the value bound to k, or null if the slot was never written.
func (rd *RowData) Get(k *Key) value.Value {
	lane := rd.values
	if k.FromSortVec() {
		lane = rd.sv
	}
	if k.Slot >= len(lane) {
		return value.Null()
	}
	return lane[k.Slot]
}

// Clear releases every held value while keeping the backing storage for
// reuse by the next row. Skipping this between pulls leaks references held
// by prior rows.
func (rd *RowData) Clear() {
	for i := range rd.values {
		rd.values[i] = value.Null()
	}
	for i := range rd.sv {
		rd.sv[i] = value.Null()
	}
}
