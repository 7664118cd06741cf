package exec

import (
	"strings"
	"time"

	"github.com/quiverdb/quiver/internal/index"
	"github.com/quiverdb/quiver/internal/lookup"
	"github.com/quiverdb/quiver/internal/pipeline"
	"github.com/quiverdb/quiver/internal/queryerr"
	"github.com/quiverdb/quiver/internal/value"
)

// Kind selects the command style a request was built for.
type Kind int

const (
	KindSearch Kind = iota
	KindAggregate
)

// CursorOptions configures the resumable-cursor path of a request.
type CursorOptions struct {
	// Count is the default chunk size for this cursor; 0 means the server
	// default.
	Count int `json:"count"`
	// MaxIdleMS bounds how long the cursor may sit parked between reads;
	// 0 means the server default.
	MaxIdleMS int `json:"max_idle_ms"`
}

// Options is the decoded body of a search/aggregate command: the query, the
// arrangement, and the output flags.
type Options struct {
	Query   string `json:"query"`
	SortBy  string `json:"sort_by"`
	Desc    bool   `json:"desc"`
	Offset  int    `json:"offset"`
	Limit   int    `json:"limit"`

	Fields       []string `json:"fields"`
	WithScores   bool     `json:"with_scores"`
	WithPayloads bool     `json:"with_payloads"`
	WithSortKeys bool     `json:"with_sort_keys"`
	NoContent    bool     `json:"no_content"`
	NoRows       bool     `json:"no_rows"`

	Cursor *CursorOptions `json:"cursor"`
}

// Build compiles options against an index handle into a runnable Request.
// On failure the first error is recorded in status and nil is returned; the
// partially built request is released.
func Build(h *index.Handle, kind Kind, opts *Options, status *queryerr.Status) *Request {
	if opts.Offset < 0 || opts.Limit < 0 {
		status.Setf(queryerr.CodeBadArgs, "offset and limit must be non-negative")
		return nil
	}
	if opts.SortBy != "" && !h.Index.HasField(opts.SortBy) {
		status.Setf(queryerr.CodeBadArgs, "%s: no such field to sort by", opts.SortBy)
		return nil
	}
	for _, f := range opts.Fields {
		if !h.Index.HasField(f) {
			status.Setf(queryerr.CodeBadArgs, "%s: no such field", f)
			return nil
		}
	}
	if opts.Cursor != nil && (opts.Cursor.Count < 0 || opts.Cursor.MaxIdleMS < 0) {
		status.Setf(queryerr.CodeBadArgs, "bad COUNT value")
		return nil
	}

	req := newRequest(h)
	if kind == KindSearch {
		req.Flags |= FlagIsSearch
	}
	if opts.WithScores {
		req.Flags |= FlagSendScores
	}
	if opts.WithPayloads {
		req.Flags |= FlagSendPayloads
	}
	if opts.WithSortKeys {
		req.Flags |= FlagSendSortKeys
	}
	if opts.NoContent {
		req.Flags |= FlagNoFields
	}
	if opts.NoRows {
		req.Flags |= FlagNoRows
	}
	if opts.Cursor != nil {
		req.Flags |= FlagIsCursor
		req.CursorChunkSize = opts.Cursor.Count
		req.CursorMaxIdle = time.Duration(opts.Cursor.MaxIdleMS) * time.Millisecond
	}

	// Projection defaults to the full schema, in schema order.
	fields := opts.Fields
	if len(fields) == 0 {
		for _, fs := range h.Index.Schema {
			fields = append(fields, fs.Name)
		}
	}

	lk := lookup.New()
	var keys []*lookup.Key
	for _, f := range fields {
		keys = append(keys, lk.GetOrCreate(f, 0))
	}

	g := pipeline.NewGroup(lk)
	var end pipeline.Processor = pipeline.NewScanner(g, h.Index, compilePredicate(h.Index, opts.Query))
	if opts.SortBy != "" {
		sorter := pipeline.NewSorter(g, end, opts.SortBy, opts.Desc)
		req.SortKeys = []*lookup.Key{sorter.SortKey()}
		end = sorter
	}
	if opts.Offset > 0 || opts.Limit > 0 {
		end = pipeline.NewPager(g, end, opts.Offset, opts.Limit)
	}
	pipeline.NewLoader(g, end, keys)

	req.Group = g
	req.Lookup = lk
	return req
}

// compilePredicate turns the query string into a document predicate:
// "*" or empty matches everything, "field:term" matches one field, a bare
// term matches any text field of the schema.
func compilePredicate(ix *index.Index, query string) pipeline.Predicate {
	query = strings.TrimSpace(query)
	if query == "" || query == "*" {
		return pipeline.MatchAll()
	}
	if field, term, ok := strings.Cut(query, ":"); ok && ix.HasField(field) {
		return pipeline.MatchField(field, term)
	}

	var textFields []string
	for _, fs := range ix.Schema {
		if fs.Type == index.FieldText {
			textFields = append(textFields, fs.Name)
		}
	}
	needle := strings.ToLower(query)
	return func(doc *index.Document) (float64, bool) {
		for _, f := range textFields {
			v, ok := doc.Fields[f]
			if !ok || v.Kind() != value.KindString {
				continue
			}
			if strings.Contains(strings.ToLower(v.Str()), needle) {
				return 1, true
			}
		}
		return 0, false
	}
}
