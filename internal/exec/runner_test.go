package exec

import (
	"testing"
	"time"

	"github.com/quiverdb/quiver/internal/cursor"
	"github.com/quiverdb/quiver/internal/queryerr"
	"github.com/quiverdb/quiver/internal/reply"
	"github.com/rs/zerolog"
)

func newTestRunner(t *testing.T) (*Runner, *cursor.Store) {
	t.Helper()
	store := cursor.NewStore(time.Minute, zerolog.Nop())
	return NewRunner(store, 1000, zerolog.Nop()), store
}

// cursorEnvelope decodes the [chunk, id] pair a cursor operation writes and
// the chunk's row elements.
func cursorEnvelope(t *testing.T, w *reply.Writer) (rows []interface{}, id int64) {
	t.Helper()
	root, ok := w.Root().([]interface{})
	if !ok || len(root) != 2 {
		t.Fatalf("reply root = %#v, want a 2-element envelope", w.Root())
	}
	chunk, ok := root[0].([]interface{})
	if !ok || len(chunk) == 0 {
		t.Fatalf("chunk = %#v, want [total, rows...]", root[0])
	}
	id, ok = root[1].(int64)
	if !ok {
		t.Fatalf("continuation id = %#v, want an integer", root[1])
	}
	return chunk[1:], id
}

func TestExecuteSingleShot(t *testing.T) {
	r, _ := newTestRunner(t)
	catalog := newTestCatalog(t, 3)
	req := buildRequest(t, catalog, KindAggregate, &Options{Query: "*"})

	w := reply.NewWriter()
	total := r.Execute(req, w)
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if !req.Closed() {
		t.Fatal("single-shot execution must release the request")
	}
}

func TestCursorReadUntilExhaustion(t *testing.T) {
	r, store := newTestRunner(t)
	catalog := newTestCatalog(t, 5)
	req := buildRequest(t, catalog, KindAggregate, &Options{
		Query:  "*",
		Cursor: &CursorOptions{Count: 2},
	})

	// First chunk comes back with the reservation reply.
	w := reply.NewWriter()
	if err := r.StartCursor(req, w); err != nil {
		t.Fatal(err)
	}
	rows, id := cursorEnvelope(t, w)
	if len(rows) != 2 {
		t.Fatalf("first chunk: %d rows, want 2", len(rows))
	}
	if id == 0 {
		t.Fatal("first chunk must carry a live continuation id")
	}
	if store.Len() != 1 {
		t.Fatalf("store holds %d cursors, want 1", store.Len())
	}

	// An oversized read drains the rest and closes the cursor.
	w = reply.NewWriter()
	if err := r.ReadCursor(uint64(id), 10, w); err != nil {
		t.Fatal(err)
	}
	rows, next := cursorEnvelope(t, w)
	if len(rows) != 3 {
		t.Fatalf("second chunk: %d rows, want 3", len(rows))
	}
	if next != 0 {
		t.Fatalf("continuation id = %d, want the closed sentinel 0", next)
	}
	if store.Len() != 0 {
		t.Fatalf("store holds %d cursors after exhaustion, want 0", store.Len())
	}

	// The id is dead now.
	err := r.ReadCursor(uint64(id), 0, reply.NewWriter())
	if queryerr.CodeOf(err) != queryerr.CodeCursorNotFound {
		t.Fatalf("read of a dead cursor: %v, want cursor not found", err)
	}
}

func TestCursorClosesOnIterationFailure(t *testing.T) {
	r, store := newTestRunner(t)
	catalog := newTestCatalog(t, 1)
	// Three good rows, then the source fails: the first chunk of two
	// parks normally, the resume hits the failure mid-chunk.
	req := brokenRequest(t, catalog, 3, 2)

	w := reply.NewWriter()
	if err := r.StartCursor(req, w); err != nil {
		t.Fatal(err)
	}
	rows, id := cursorEnvelope(t, w)
	if len(rows) != 2 {
		t.Fatalf("first chunk: %d rows, want 2", len(rows))
	}
	if id == 0 {
		t.Fatal("first chunk must park a live cursor")
	}

	w = reply.NewWriter()
	if err := r.ReadCursor(uint64(id), 0, w); err != nil {
		t.Fatal(err)
	}
	rows, next := cursorEnvelope(t, w)
	if next != 0 {
		t.Fatalf("continuation id = %d, want the closed sentinel 0", next)
	}
	if len(rows) != 1 {
		t.Fatalf("failed chunk: %d rows, want the 1 emitted before the failure", len(rows))
	}
	if !req.HasState(StateError) {
		t.Fatal("the failed pull must mark the request's error state")
	}
	if queryerr.CodeOf(req.Status.Err()) != queryerr.CodeIteration {
		t.Fatalf("status = %v, want an iteration error", req.Status.Err())
	}
	if store.Len() != 0 {
		t.Fatalf("store holds %d cursors after the failure, want 0", store.Len())
	}
	if !req.Closed() {
		t.Fatal("the destroyed cursor must release its request")
	}

	// The id is dead now.
	err := r.ReadCursor(uint64(id), 0, reply.NewWriter())
	if queryerr.CodeOf(err) != queryerr.CodeCursorNotFound {
		t.Fatalf("read of the dead cursor: %v, want cursor not found", err)
	}
}

func TestCursorCountFallsBackToRequestThenDefault(t *testing.T) {
	r, _ := newTestRunner(t)
	catalog := newTestCatalog(t, 5)

	// COUNT 0 on the read falls back to the request's configured size.
	req := buildRequest(t, catalog, KindAggregate, &Options{
		Query:  "*",
		Cursor: &CursorOptions{Count: 3},
	})
	w := reply.NewWriter()
	if err := r.StartCursor(req, w); err != nil {
		t.Fatal(err)
	}
	rows, id := cursorEnvelope(t, w)
	if len(rows) != 3 {
		t.Fatalf("chunk: %d rows, want the request's configured 3", len(rows))
	}
	r.DeleteCursor(uint64(id))

	// No configured size at all falls back to the server default, which
	// exceeds the corpus here and drains it in one chunk.
	req = buildRequest(t, catalog, KindAggregate, &Options{
		Query:  "*",
		Cursor: &CursorOptions{},
	})
	w = reply.NewWriter()
	if err := r.StartCursor(req, w); err != nil {
		t.Fatal(err)
	}
	rows, id = cursorEnvelope(t, w)
	if len(rows) != 5 || id != 0 {
		t.Fatalf("default-sized chunk: %d rows, id %d; want 5 rows and a closed cursor", len(rows), id)
	}
}

func TestExplicitCountOverridesRequest(t *testing.T) {
	r, _ := newTestRunner(t)
	catalog := newTestCatalog(t, 5)
	req := buildRequest(t, catalog, KindAggregate, &Options{
		Query:  "*",
		Cursor: &CursorOptions{Count: 2},
	})

	w := reply.NewWriter()
	if err := r.StartCursor(req, w); err != nil {
		t.Fatal(err)
	}
	_, id := cursorEnvelope(t, w)

	w = reply.NewWriter()
	if err := r.ReadCursor(uint64(id), 1, w); err != nil {
		t.Fatal(err)
	}
	rows, next := cursorEnvelope(t, w)
	if len(rows) != 1 {
		t.Fatalf("chunk: %d rows, want the explicit 1", len(rows))
	}
	if next == 0 {
		t.Fatal("cursor must stay live with rows remaining")
	}

	// The explicit count sticks for subsequent parameterless reads.
	w = reply.NewWriter()
	if err := r.ReadCursor(uint64(next), 0, w); err != nil {
		t.Fatal(err)
	}
	rows, _ = cursorEnvelope(t, w)
	if len(rows) != 1 {
		t.Fatalf("follow-up chunk: %d rows, want the sticky 1", len(rows))
	}
}

func TestDeleteCursor(t *testing.T) {
	r, store := newTestRunner(t)
	catalog := newTestCatalog(t, 5)
	req := buildRequest(t, catalog, KindAggregate, &Options{
		Query:  "*",
		Cursor: &CursorOptions{Count: 1},
	})

	w := reply.NewWriter()
	if err := r.StartCursor(req, w); err != nil {
		t.Fatal(err)
	}
	_, id := cursorEnvelope(t, w)

	if !r.DeleteCursor(uint64(id)) {
		t.Fatal("delete of a live cursor must succeed")
	}
	if r.DeleteCursor(uint64(id)) {
		t.Fatal("second delete must report not found")
	}
	if store.Len() != 0 {
		t.Fatalf("store holds %d cursors after delete, want 0", store.Len())
	}
}

func TestReadFailsAfterIndexDrop(t *testing.T) {
	r, store := newTestRunner(t)
	catalog := newTestCatalog(t, 5)
	req := buildRequest(t, catalog, KindAggregate, &Options{
		Query:  "*",
		Cursor: &CursorOptions{Count: 1},
	})

	w := reply.NewWriter()
	if err := r.StartCursor(req, w); err != nil {
		t.Fatal(err)
	}
	_, id := cursorEnvelope(t, w)

	catalog.Drop("books")

	err := r.ReadCursor(uint64(id), 0, reply.NewWriter())
	if queryerr.CodeOf(err) != queryerr.CodeIndexUnavailable {
		t.Fatalf("read after drop: %v, want index unavailable", err)
	}
	// The failed revalidation destroys the cursor.
	if store.Len() != 0 {
		t.Fatalf("store holds %d cursors after failed revalidation, want 0", store.Len())
	}
}

func TestStartCursorFailsOnUnavailableIndex(t *testing.T) {
	r, _ := newTestRunner(t)
	catalog := newTestCatalog(t, 1)
	req := buildRequest(t, catalog, KindAggregate, &Options{
		Query:  "*",
		Cursor: &CursorOptions{},
	})
	catalog.Drop("books")

	err := r.StartCursor(req, reply.NewWriter())
	if err == nil {
		t.Fatal("expected reservation to fail")
	}
	if !req.Closed() {
		t.Fatal("failed reservation must release the request")
	}
	if req.Status.Err() == nil {
		t.Fatal("failed reservation must record the error in the request status")
	}
}
