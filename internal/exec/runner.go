package exec

import (
	"github.com/quiverdb/quiver/internal/cursor"
	"github.com/quiverdb/quiver/internal/metrics"
	"github.com/quiverdb/quiver/internal/queryerr"
	"github.com/quiverdb/quiver/internal/reply"
	"github.com/rs/zerolog"
)

// Runner drives compiled requests to completion, either in one shot or in
// cursor-backed chunks. It is safe for concurrent use; exclusivity per
// cursor is enforced by the store's take semantics, not by the runner.
type Runner struct {
	store        *cursor.Store
	defaultChunk int
	logger       zerolog.Logger
}

func NewRunner(store *cursor.Store, defaultChunk int, logger zerolog.Logger) *Runner {
	return &Runner{
		store:        store,
		defaultChunk: defaultChunk,
		logger:       logger.With().Str("component", "exec-runner").Logger(),
	}
}

// Execute runs a request to completion and releases it unconditionally in
// the same reply turn. The non-cursor path. Returns the total result count
// the pipeline reported.
func (r *Runner) Execute(req *Request, w *reply.Writer) int {
	SendChunk(req, w, 0)
	total := 0
	if req.Group != nil {
		total = req.Group.Total
	}
	if req.HasState(StateError) {
		r.logger.Warn().
			Str("request_id", req.ID).
			Err(req.Status.Err()).
			Msg("Query iteration failed")
	}
	req.Close()
	return total
}

// StartCursor reserves a cursor for the request, attaches ownership, and
// performs the first chunk as an immediate self-resume. On reservation
// failure the request is released and the error recorded in its status.
func (r *Runner) StartCursor(req *Request, w *reply.Writer) error {
	cur, err := r.store.Reserve(req.Handle, req.CursorMaxIdle, req)
	if err != nil {
		req.Status.SetError(queryerr.CodeOf(err), err)
		req.Close()
		return err
	}
	metrics.Get().IncCursorsReserved()

	taken := r.store.TakeForExecution(cur.ID)
	if taken == nil {
		// Purged before our own first resume; the purger released the
		// request, nothing to run.
		metrics.Get().IncCursorsNotFound()
		err := queryerr.Newf(queryerr.CodeCursorNotFound, "cursor not found")
		req.Status.SetError(queryerr.CodeCursorNotFound, err)
		return err
	}
	r.runCursor(taken, req, w, 0)
	return nil
}

// ReadCursor resumes a parked cursor for one chunk of up to n rows.
// n == 0 means the request's configured chunk size, falling back to the
// server default.
func (r *Runner) ReadCursor(id uint64, n int, w *reply.Writer) error {
	cur := r.store.TakeForExecution(id)
	if cur == nil {
		metrics.Get().IncCursorsNotFound()
		return queryerr.Newf(queryerr.CodeCursorNotFound, "cursor not found")
	}

	req, ok := cur.ExecState().(*Request)
	if !ok {
		// A cursor without an execution is unusable; destroy it rather
		// than park a husk.
		r.store.Discard(cur)
		metrics.Get().IncCursorsNotFound()
		return queryerr.Newf(queryerr.CodeCursorNotFound, "cursor not found")
	}
	metrics.Get().IncCursorsResumed()

	// The backing index may have been dropped between round-trips; the
	// revalidation hook runs before any pull.
	if err := cur.Handle.Revalidate(); err != nil {
		if r.store.Discard(cur) {
			metrics.Get().IncCursorsExhausted()
		}
		r.logger.Warn().
			Uint64("cursor_id", id).
			Str("request_id", req.ID).
			Err(err).
			Msg("Cursor resume failed revalidation")
		return err
	}

	r.runCursor(cur, req, w, n)
	return nil
}

// DeleteCursor explicitly destroys a cursor in any state.
func (r *Runner) DeleteCursor(id uint64) bool {
	if !r.store.Purge(id) {
		metrics.Get().IncCursorsNotFound()
		return false
	}
	metrics.Get().IncCursorsDeleted()
	return true
}

// CollectIdle triggers an idle sweep and returns the number reaped.
func (r *Runner) CollectIdle() int {
	return r.store.CollectIdle()
}

// runCursor executes one chunk on a cursor held in the executing state and
// writes the 2-element envelope [chunk, continuation id]. A zero
// continuation id tells the client the cursor is closed; it is emitted on
// both error and clean completion, and the cursor is destroyed. Otherwise
// the cursor's id is echoed and the cursor parks with a fresh idle
// deadline. Suspension happens only here, between chunks, never mid-row.
func (r *Runner) runCursor(cur *cursor.Cursor, req *Request, w *reply.Writer, n int) {
	if n == 0 {
		n = req.CursorChunkSize
		if n == 0 {
			n = r.defaultChunk
		}
	}
	req.CursorChunkSize = n

	w.BeginArray()
	SendChunk(req, w, n)

	if req.HasState(StateError) {
		r.logger.Warn().
			Uint64("cursor_id", cur.ID).
			Str("request_id", req.ID).
			Err(req.Status.Err()).
			Msg("Cursor chunk failed; closing cursor")
		w.Int(0)
		w.EndArray()
		if r.store.Discard(cur) {
			metrics.Get().IncCursorsExhausted()
		}
		return
	}

	if req.HasState(StateIterDone) {
		w.Int(0)
		w.EndArray()
		if r.store.Discard(cur) {
			metrics.Get().IncCursorsExhausted()
		}
		return
	}

	w.Int(int64(cur.ID))
	w.EndArray()
	r.store.Pause(cur)
}
