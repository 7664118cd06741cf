package exec

import (
	"time"

	"github.com/google/uuid"
	"github.com/quiverdb/quiver/internal/index"
	"github.com/quiverdb/quiver/internal/lookup"
	"github.com/quiverdb/quiver/internal/pipeline"
	"github.com/quiverdb/quiver/internal/queryerr"
)

// Flag is the request-level output/behavior bitmask.
type Flag uint32

const (
	// FlagIsSearch marks search-style requests, which emit document keys
	// per row. Aggregate-style requests do not.
	FlagIsSearch Flag = 1 << iota
	// FlagSendScores includes the row's relevance score in the reply.
	FlagSendScores
	// FlagSendPayloads includes the document payload (or null) per row.
	FlagSendPayloads
	// FlagSendSortKeys includes the tagged sort-key value per row.
	FlagSendSortKeys
	// FlagNoFields suppresses the generic field-list serialization.
	FlagNoFields
	// FlagNoRows suppresses row bodies entirely; only the total count is
	// reported.
	FlagNoRows
	// FlagIsCursor routes execution through the cursor store instead of
	// the single-shot path.
	FlagIsCursor
)

// StateFlag is the mutable execution state set by the driver.
type StateFlag uint32

const (
	// StateError records that a result processor failed mid-pull.
	StateError StateFlag = 1 << iota
	// StateIterDone records that the pipeline reported completion.
	StateIterDone
)

// Request is a fully compiled query execution: the pipeline, the output
// flags, cursor configuration, and mutable run state. A request is owned by
// exactly one of the calling handler (single-shot path) or a cursor
// (suspended path), never both; ownership transfers at suspend and resume.
type Request struct {
	ID     string
	Flags  Flag
	Handle *index.Handle

	Group    *pipeline.Group
	Lookup   *lookup.Lookup
	SortKeys []*lookup.Key

	CursorChunkSize int
	CursorMaxIdle   time.Duration

	Status queryerr.Status

	state  StateFlag
	closed bool
}

func newRequest(h *index.Handle) *Request {
	return &Request{
		ID:     uuid.New().String()[:12],
		Handle: h,
	}
}

func (r *Request) HasFlag(f Flag) bool { return r.Flags&f != 0 }

func (r *Request) HasState(f StateFlag) bool { return r.state&f != 0 }
func (r *Request) SetState(f StateFlag)      { r.state |= f }

// Close releases the pipeline and everything it holds. Safe to call from
// any control path that ends the request's life; idempotent.
func (r *Request) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.Group = nil
	r.SortKeys = nil
}

// Closed reports whether the request's resources were released.
func (r *Request) Closed() bool { return r.closed }
