package index

import (
	"sort"
	"sync"

	"github.com/quiverdb/quiver/internal/queryerr"
	"github.com/quiverdb/quiver/internal/value"
	"github.com/rs/zerolog"
)

// FieldType is the declared type of a schema field.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldNumeric FieldType = "numeric"
)

// FieldSpec declares one schema field of an index.
type FieldSpec struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Document is the stored metadata for one indexed document: its key, an
// optional opaque payload blob, and the field values the pipeline reads.
type Document struct {
	Key     []byte
	Payload []byte
	Score   float64
	Fields  map[string]value.Value
}

// Index holds a schema and the documents ingested under it. Document order
// is insertion order, which keeps unsorted scans deterministic.
type Index struct {
	Name   string
	Schema []FieldSpec

	mu    sync.RWMutex
	docs  map[string]*Document
	order []string
}

func newIndex(name string, schema []FieldSpec) *Index {
	return &Index{
		Name:   name,
		Schema: schema,
		docs:   map[string]*Document{},
	}
}

// Put adds or replaces a document by key.
func (ix *Index) Put(doc *Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	k := string(doc.Key)
	if _, exists := ix.docs[k]; !exists {
		ix.order = append(ix.order, k)
	}
	ix.docs[k] = doc
}

// Get returns the document stored under key, or nil.
func (ix *Index) Get(key string) *Document {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.docs[key]
}

// Len returns the number of stored documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Snapshot returns the documents in insertion order. The slice is owned by
// the caller; the documents are shared.
func (ix *Index) Snapshot() []*Document {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]*Document, 0, len(ix.order))
	for _, k := range ix.order {
		out = append(out, ix.docs[k])
	}
	return out
}

// HasField reports whether name is declared in the schema.
func (ix *Index) HasField(name string) bool {
	for _, f := range ix.Schema {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Catalog is the process-wide registry of indexes.
type Catalog struct {
	mu      sync.RWMutex
	indexes map[string]*Index
	logger  zerolog.Logger
}

func NewCatalog(logger zerolog.Logger) *Catalog {
	return &Catalog{
		indexes: map[string]*Index{},
		logger:  logger.With().Str("component", "catalog").Logger(),
	}
}

// Create registers a new index. Fails if the name is taken.
func (c *Catalog) Create(name string, schema []FieldSpec) (*Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.indexes[name]; exists {
		return nil, queryerr.Newf(queryerr.CodeBadArgs, "index %s already exists", name)
	}
	ix := newIndex(name, schema)
	c.indexes[name] = ix
	c.logger.Info().Str("index", name).Int("fields", len(schema)).Msg("Index created")
	return ix, nil
}

// Drop removes an index. Outstanding handles fail revalidation afterwards.
func (c *Catalog) Drop(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.indexes[name]; !exists {
		return false
	}
	delete(c.indexes, name)
	c.logger.Info().Str("index", name).Msg("Index dropped")
	return true
}

// Get returns the index registered under name, or nil.
func (c *Catalog) Get(name string) *Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexes[name]
}

// List returns the index names sorted alphabetically.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.indexes))
	for name := range c.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle is a lease on an index, held by a request or a parked cursor. It
// must be revalidated on every cursor resume since the index may have been
// dropped or replaced between round-trips.
type Handle struct {
	catalog *Catalog
	Index   *Index
	Name    string
}

// Acquire resolves name to a handle, failing with a no-such-index error.
func (c *Catalog) Acquire(name string) (*Handle, error) {
	ix := c.Get(name)
	if ix == nil {
		return nil, queryerr.Newf(queryerr.CodeNoIndex, "%s: no such index", name)
	}
	return &Handle{catalog: c, Index: ix, Name: name}, nil
}

// Revalidate checks that the handle still points at the live index. This is
// the cheap re-open hook invoked at the top of every cursor resume.
func (h *Handle) Revalidate() error {
	if h.catalog.Get(h.Name) != h.Index {
		return queryerr.Newf(queryerr.CodeIndexUnavailable, "%s: index unavailable", h.Name)
	}
	return nil
}
