package pipeline

import (
	"github.com/quiverdb/quiver/internal/index"
	"github.com/quiverdb/quiver/internal/lookup"
)

// Code is the result of one pull step on a processor.
type Code int

const (
	// OK means the out row was populated and more rows may follow.
	OK Code = iota
	// EOF means the stream is exhausted. The out row is untouched.
	EOF
	// Err means a processor failed; Error() on the terminal processor
	// carries the cause.
	Err
	// Paused means the processor yielded without producing a row and the
	// caller should stop pulling for this chunk.
	Paused
)

// Row is the unit of query output flowing through a pipeline: a relevance
// score, an optional document metadata reference, and slot-addressed field
// storage. One live instance is reused per pull; Clear must run after
// serialization and before the next pull.
type Row struct {
	Score float64
	Doc   *index.Document
	Data  lookup.RowData
}

// Clear releases the row's held values and metadata reference. Storage
// capacity is kept for the next pull.
func (r *Row) Clear() {
	r.Score = 0
	r.Doc = nil
	r.Data.Clear()
}

// copyFrom deep-copies another row's visible state (used by buffering
// processors, which cannot hold references into the shared live row).
func (r *Row) copyFrom(src *Row, lk *lookup.Lookup) {
	r.Score = src.Score
	r.Doc = src.Doc
	for _, k := range lk.Keys() {
		r.Data.Set(k, src.Data.Get(k))
	}
}

// Processor is one pull-based stage of a result pipeline. Next is a single
// bounded step: it either fills out and returns OK, or signals EOF, Err, or
// Paused. Processors are not reentrant; a pipeline is pulled by exactly one
// goroutine at a time.
type Processor interface {
	Next(out *Row) Code
	Name() string
	Error() error
}

// Group owns a processor chain, its terminal processor, and the running
// total of results seen by the source. The total is best-effort: stages
// that buffer (sorters, groupers) may finalize it only after their first
// downstream pull.
type Group struct {
	Lookup *lookup.Lookup
	Total  int

	procs []Processor
}

func NewGroup(lk *lookup.Lookup) *Group {
	return &Group{Lookup: lk}
}

// Push appends p as the new terminal processor.
func (g *Group) Push(p Processor) {
	g.procs = append(g.procs, p)
}

// End returns the terminal processor the driver pulls from.
func (g *Group) End() Processor {
	if len(g.procs) == 0 {
		return nil
	}
	return g.procs[len(g.procs)-1]
}

// Explain returns the chain's stage names, source first.
func (g *Group) Explain() []string {
	names := make([]string, len(g.procs))
	for i, p := range g.procs {
		names[i] = p.Name()
	}
	return names
}
