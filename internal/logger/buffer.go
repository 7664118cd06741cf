package logger

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

// Entry is one captured log line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Component string    `json:"component,omitempty"`
	Message   string    `json:"message"`
}

// Ring is a fixed-size circular buffer of recent log entries, exposed over
// the logs endpoint for operational debugging.
type Ring struct {
	mu       sync.RWMutex
	entries  []Entry
	size     int
	writePos int
	count    int
}

var (
	globalRing *Ring
	ringOnce   sync.Once
)

// GetRing returns the global log ring.
func GetRing() *Ring {
	ringOnce.Do(func() {
		globalRing = NewRing(10000)
	})
	return globalRing
}

// NewRing creates a ring holding up to size entries.
func NewRing(size int) *Ring {
	return &Ring{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Add appends an entry, overwriting the oldest once full.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.writePos] = e
	r.writePos = (r.writePos + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// Recent returns up to limit entries, newest first, optionally filtered to
// the given minimum level.
func (r *Ring) Recent(limit int, level string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > r.count {
		limit = r.count
	}
	minPriority, filtered := levelPriority(level)

	var out []Entry
	for i := 0; i < r.count && len(out) < limit; i++ {
		idx := (r.writePos - 1 - i + r.size) % r.size
		e := r.entries[idx]
		if filtered {
			if p, ok := levelPriority(e.Level); !ok || p < minPriority {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// Count returns the number of held entries.
func (r *Ring) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

func levelPriority(level string) (int, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return 0, true
	case "info":
		return 1, true
	case "warn", "warning":
		return 2, true
	case "error":
		return 3, true
	case "fatal":
		return 4, true
	default:
		return 0, false
	}
}

// RingWriter tees zerolog output into the global ring.
type RingWriter struct {
	ring     *Ring
	original io.Writer
}

func NewRingWriter(original io.Writer) *RingWriter {
	return &RingWriter{ring: GetRing(), original: original}
}

// Write implements io.Writer, decoding the zerolog JSON line into an Entry.
func (w *RingWriter) Write(p []byte) (n int, err error) {
	if w.original != nil {
		n, err = w.original.Write(p)
	} else {
		n = len(p)
	}

	var line struct {
		Level     string `json:"level"`
		Component string `json:"component"`
		Message   string `json:"message"`
	}
	if jsonErr := json.Unmarshal(p, &line); jsonErr == nil && (line.Message != "" || line.Level != "") {
		w.ring.Add(Entry{
			Timestamp: time.Now(),
			Level:     strings.ToUpper(line.Level),
			Component: line.Component,
			Message:   line.Message,
		})
	}
	return n, err
}
