package cursor

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quiverdb/quiver/internal/index"
	"github.com/quiverdb/quiver/internal/queryerr"
	"github.com/rs/zerolog"
)

// Cursor lifecycle states. A cursor is parked between chunks, executing
// while exactly one caller drives it, and destroyed terminally.
const (
	stateParked int32 = iota
	stateExecuting
	stateDestroyed
)

// ExecState is the suspended execution a cursor owns between round-trips.
// Close releases every resource it holds, on whichever control path
// destroys the cursor.
type ExecState interface {
	Close()
}

// Cursor is a server-side handle on a suspended, resumable query
// execution. State transitions go through atomic compare-and-swap so that
// take/pause/purge/sweep are mutually exclusive per entry without a store
// wide lock.
type Cursor struct {
	ID      uint64
	Handle  *index.Handle
	MaxIdle time.Duration

	state    atomic.Int32
	deadline atomic.Int64 // unix nanos; valid while parked

	mu   sync.Mutex
	exec ExecState
}

// ExecState returns the owned execution state.
func (c *Cursor) ExecState() ExecState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exec
}

// Deadline returns the current idle deadline.
func (c *Cursor) Deadline() time.Time {
	return time.Unix(0, c.deadline.Load())
}

// closeExec releases the owned execution state exactly once.
func (c *Cursor) closeExec() {
	c.mu.Lock()
	es := c.exec
	c.exec = nil
	c.mu.Unlock()
	if es != nil {
		es.Close()
	}
}

// Store is the process-wide, concurrency-safe registry of suspended
// executions. Entries live in a concurrent map keyed by cursor id; the
// idle sweep never blocks unrelated take or resume calls.
type Store struct {
	cursors sync.Map // uint64 -> *Cursor
	count   atomic.Int64

	defaultMaxIdle time.Duration
	logger         zerolog.Logger
}

// NewStore creates a cursor store. defaultMaxIdle bounds how long a parked
// cursor survives without a resume when the request does not specify its
// own idle budget.
func NewStore(defaultMaxIdle time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		defaultMaxIdle: defaultMaxIdle,
		logger:         logger.With().Str("component", "cursor-store").Logger(),
	}
}

// Reserve allocates a new parked cursor bound to the given index handle,
// owning es. The state is attached before the id becomes visible to other
// callers, so a taken cursor always carries its execution; the reserving
// caller performs the first resume itself. Fails when the backing index
// context cannot be associated.
func (s *Store) Reserve(h *index.Handle, maxIdle time.Duration, es ExecState) (*Cursor, error) {
	if err := h.Revalidate(); err != nil {
		return nil, queryerr.Wrap(queryerr.CodeIndexUnavailable, err, "cannot reserve cursor")
	}
	if maxIdle <= 0 {
		maxIdle = s.defaultMaxIdle
	}

	c := &Cursor{Handle: h, MaxIdle: maxIdle, exec: es}
	c.deadline.Store(time.Now().Add(maxIdle).UnixNano())

	// Id 0 is the wire sentinel for "cursor closed"; re-roll collisions
	// while any live entry holds the id. Ids stay within int63 range so
	// they survive signed wire encodings unchanged.
	for {
		id := rand.Uint64() >> 1
		if id == 0 {
			continue
		}
		if _, loaded := s.cursors.LoadOrStore(id, c); !loaded {
			c.ID = id
			break
		}
	}
	s.count.Add(1)

	s.logger.Debug().
		Uint64("cursor_id", c.ID).
		Str("index", h.Name).
		Dur("max_idle", maxIdle).
		Msg("Cursor reserved")
	return c, nil
}

// TakeForExecution atomically transitions a parked cursor to executing and
// hands exclusive access to the caller. It returns nil when the id is
// unknown, already executing, or destroyed; callers must fail fast rather
// than block, so concurrent resumes on one id cannot deadlock.
func (s *Store) TakeForExecution(id uint64) *Cursor {
	v, ok := s.cursors.Load(id)
	if !ok {
		return nil
	}
	c := v.(*Cursor)
	if !c.state.CompareAndSwap(stateParked, stateExecuting) {
		return nil
	}
	return c
}

// Pause transitions an executing cursor back to parked, refreshing its
// idle deadline. If the cursor was purged while executing, Pause completes
// the destruction instead (releasing the owned execution state exactly
// once) and reports false.
func (s *Store) Pause(c *Cursor) bool {
	c.deadline.Store(time.Now().Add(c.MaxIdle).UnixNano())
	if c.state.CompareAndSwap(stateExecuting, stateParked) {
		return true
	}
	// Destroyed out from under us; the map entry is already gone and the
	// executing caller owns the final release.
	c.closeExec()
	return false
}

// Discard destroys a cursor held in the executing state by its owner,
// releasing the execution state. Used when iteration completes or errors.
// Reports false when a concurrent purge already claimed the destruction.
func (s *Store) Discard(c *Cursor) bool {
	destroyed := c.state.CompareAndSwap(stateExecuting, stateDestroyed)
	if destroyed {
		s.cursors.Delete(c.ID)
		s.count.Add(-1)
	}
	c.closeExec()
	s.logger.Debug().Uint64("cursor_id", c.ID).Msg("Cursor discarded")
	return destroyed
}

// Purge immediately destroys a cursor in any live state. A parked cursor is
// released here; an executing one is marked destroyed and its in-flight
// execution performs the release at its pause point, so there is no
// double-free and no resurrection.
func (s *Store) Purge(id uint64) bool {
	v, ok := s.cursors.Load(id)
	if !ok {
		return false
	}
	c := v.(*Cursor)
	for {
		switch c.state.Load() {
		case stateParked:
			if c.state.CompareAndSwap(stateParked, stateDestroyed) {
				s.cursors.Delete(id)
				s.count.Add(-1)
				c.closeExec()
				s.logger.Debug().Uint64("cursor_id", id).Msg("Cursor purged")
				return true
			}
		case stateExecuting:
			if c.state.CompareAndSwap(stateExecuting, stateDestroyed) {
				s.cursors.Delete(id)
				s.count.Add(-1)
				s.logger.Debug().Uint64("cursor_id", id).Msg("Cursor purged while executing")
				return true
			}
		default:
			return false
		}
	}
}

// CollectIdle sweeps parked cursors past their idle deadline, destroying
// them as if the client had deleted them, and returns the number reaped.
// Executing cursors are never touched: they are not idle by definition.
func (s *Store) CollectIdle() int {
	now := time.Now().UnixNano()
	reaped := 0
	s.cursors.Range(func(key, v interface{}) bool {
		c := v.(*Cursor)
		if c.deadline.Load() > now {
			return true
		}
		if c.state.CompareAndSwap(stateParked, stateDestroyed) {
			s.cursors.Delete(c.ID)
			s.count.Add(-1)
			c.closeExec()
			reaped++
		}
		return true
	})
	if reaped > 0 {
		s.logger.Info().Int("reaped", reaped).Msg("Idle cursors collected")
	}
	return reaped
}

// Len returns the number of live cursors.
func (s *Store) Len() int {
	return int(s.count.Load())
}
