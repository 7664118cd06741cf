package cursor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quiverdb/quiver/internal/index"
	"github.com/rs/zerolog"
)

type fakeExec struct {
	closes atomic.Int32
}

func (f *fakeExec) Close() { f.closes.Add(1) }

func newTestHandle(t *testing.T) *index.Handle {
	t.Helper()
	catalog := index.NewCatalog(zerolog.Nop())
	if _, err := catalog.Create("idx", []index.FieldSpec{{Name: "f", Type: index.FieldText}}); err != nil {
		t.Fatal(err)
	}
	h, err := catalog.Acquire("idx")
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func reserve(t *testing.T, s *Store, maxIdle time.Duration) (*Cursor, *fakeExec) {
	t.Helper()
	h := newTestHandle(t)
	es := &fakeExec{}
	c, err := s.Reserve(h, maxIdle, es)
	if err != nil {
		t.Fatal(err)
	}
	return c, es
}

func TestReserveAssignsNonZeroID(t *testing.T) {
	s := NewStore(time.Minute, zerolog.Nop())
	c, _ := reserve(t, s, 0)
	if c.ID == 0 {
		t.Fatal("cursor id must never be zero")
	}
	if c.MaxIdle != time.Minute {
		t.Fatalf("MaxIdle = %v, want the store default", c.MaxIdle)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestReserveFailsOnDroppedIndex(t *testing.T) {
	catalog := index.NewCatalog(zerolog.Nop())
	catalog.Create("idx", []index.FieldSpec{{Name: "f", Type: index.FieldText}})
	h, _ := catalog.Acquire("idx")
	catalog.Drop("idx")

	s := NewStore(time.Minute, zerolog.Nop())
	if _, err := s.Reserve(h, 0, &fakeExec{}); err == nil {
		t.Fatal("expected reservation to fail after the index was dropped")
	}
}

func TestTakenCursorAlwaysCarriesExecState(t *testing.T) {
	s := NewStore(time.Minute, zerolog.Nop())
	h := newTestHandle(t)

	// A taker races the reservations: any entry it can win must already
	// hold its execution state, because Reserve attaches the state before
	// the id becomes visible.
	done := make(chan struct{})
	var bare atomic.Int32
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			s.cursors.Range(func(_, v interface{}) bool {
				c := v.(*Cursor)
				if s.TakeForExecution(c.ID) != nil {
					if c.ExecState() == nil {
						bare.Add(1)
					}
					s.Pause(c)
				}
				return true
			})
		}
	}()

	for i := 0; i < 200; i++ {
		if _, err := s.Reserve(h, time.Minute, &fakeExec{}); err != nil {
			t.Fatal(err)
		}
	}
	<-done

	if bare.Load() != 0 {
		t.Fatalf("%d takes won a cursor without its execution state", bare.Load())
	}
}

func TestTakePauseCycle(t *testing.T) {
	s := NewStore(time.Minute, zerolog.Nop())
	c, _ := reserve(t, s, 0)

	taken := s.TakeForExecution(c.ID)
	if taken != c {
		t.Fatal("expected to take the parked cursor")
	}
	// Second take must fail fast while executing.
	if s.TakeForExecution(c.ID) != nil {
		t.Fatal("took a cursor that is already executing")
	}
	if !s.Pause(taken) {
		t.Fatal("pause of an executing cursor must succeed")
	}
	if s.TakeForExecution(c.ID) == nil {
		t.Fatal("expected to take the cursor again after pause")
	}
}

func TestTakeUnknownID(t *testing.T) {
	s := NewStore(time.Minute, zerolog.Nop())
	if s.TakeForExecution(12345) != nil {
		t.Fatal("unknown id must not yield a cursor")
	}
}

func TestAtMostOneExecutionPerCursor(t *testing.T) {
	s := NewStore(time.Minute, zerolog.Nop())
	c, _ := reserve(t, s, 0)

	const goroutines = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TakeForExecution(c.ID) != nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("%d concurrent takes succeeded, want exactly 1", wins.Load())
	}
}

func TestDiscardReleasesOnce(t *testing.T) {
	s := NewStore(time.Minute, zerolog.Nop())
	c, es := reserve(t, s, 0)

	taken := s.TakeForExecution(c.ID)
	if !s.Discard(taken) {
		t.Fatal("discard by the executing owner must claim destruction")
	}
	if es.closes.Load() != 1 {
		t.Fatalf("exec state closed %d times, want 1", es.closes.Load())
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}
	if s.TakeForExecution(c.ID) != nil {
		t.Fatal("discarded cursor must be gone")
	}
}

func TestPurgeParkedCursor(t *testing.T) {
	s := NewStore(time.Minute, zerolog.Nop())
	c, es := reserve(t, s, 0)

	if !s.Purge(c.ID) {
		t.Fatal("purge of a parked cursor must succeed")
	}
	if es.closes.Load() != 1 {
		t.Fatalf("exec state closed %d times, want 1", es.closes.Load())
	}
	if s.Purge(c.ID) {
		t.Fatal("second purge must report not found")
	}
}

func TestPurgeDuringExecutionDefersRelease(t *testing.T) {
	s := NewStore(time.Minute, zerolog.Nop())
	c, es := reserve(t, s, 0)

	taken := s.TakeForExecution(c.ID)
	if !s.Purge(c.ID) {
		t.Fatal("purge of an executing cursor must succeed")
	}
	// The purger removed the entry but must not free the in-flight
	// execution.
	if es.closes.Load() != 0 {
		t.Fatal("purge released exec state out from under the executing owner")
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}

	// The in-flight owner's pause completes the destruction instead of
	// resurrecting the cursor.
	if s.Pause(taken) {
		t.Fatal("pause after purge must report destruction")
	}
	if es.closes.Load() != 1 {
		t.Fatalf("exec state closed %d times, want exactly 1", es.closes.Load())
	}
	if s.TakeForExecution(c.ID) != nil {
		t.Fatal("purged cursor must not be resumable")
	}
}

func TestCollectIdleReapsOnlyExpiredParked(t *testing.T) {
	s := NewStore(time.Minute, zerolog.Nop())

	expired, expiredExec := reserve(t, s, time.Nanosecond)
	fresh, _ := reserve(t, s, time.Hour)
	executing, execExec := reserve(t, s, time.Nanosecond)
	taken := s.TakeForExecution(executing.ID)

	time.Sleep(time.Millisecond)

	if reaped := s.CollectIdle(); reaped != 1 {
		t.Fatalf("reaped %d cursors, want 1", reaped)
	}
	if expiredExec.closes.Load() != 1 {
		t.Fatal("expired parked cursor must be released")
	}
	if execExec.closes.Load() != 0 {
		t.Fatal("executing cursor must never be reaped")
	}
	if s.TakeForExecution(expired.ID) != nil {
		t.Fatal("reaped cursor must be gone")
	}
	if s.TakeForExecution(fresh.ID) == nil {
		t.Fatal("fresh cursor must survive the sweep")
	}
	if !s.Pause(taken) {
		t.Fatal("executing cursor must still pause normally after the sweep")
	}
}

func TestPauseRefreshesDeadline(t *testing.T) {
	s := NewStore(time.Minute, zerolog.Nop())
	c, _ := reserve(t, s, time.Hour)

	before := c.Deadline()
	taken := s.TakeForExecution(c.ID)
	time.Sleep(5 * time.Millisecond)
	s.Pause(taken)

	if !c.Deadline().After(before) {
		t.Fatal("pause must push the idle deadline forward")
	}
}
