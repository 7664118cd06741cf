package pipeline

import (
	"sort"
	"strings"

	"github.com/quiverdb/quiver/internal/index"
	"github.com/quiverdb/quiver/internal/lookup"
	"github.com/quiverdb/quiver/internal/value"
)

// Predicate decides whether a document matches the query and with what
// relevance score.
type Predicate func(doc *index.Document) (float64, bool)

// MatchAll accepts every document with a neutral score.
func MatchAll() Predicate {
	return func(*index.Document) (float64, bool) { return 1, true }
}

// MatchField accepts documents whose named field equals (numeric) or
// contains (text) the given term.
func MatchField(field, term string) Predicate {
	return func(doc *index.Document) (float64, bool) {
		v, ok := doc.Fields[field]
		if !ok {
			return 0, false
		}
		switch v.Kind() {
		case value.KindString:
			if strings.Contains(strings.ToLower(v.Str()), strings.ToLower(term)) {
				return 1, true
			}
		case value.KindNumber:
			if value.FormatNumber(v.Float()) == term {
				return 1, true
			}
		}
		return 0, false
	}
}

// Scanner is the source processor: it walks an index snapshot and yields
// matching documents, incrementing the group's running total per match.
type Scanner struct {
	group *Group
	docs  []*index.Document
	pos   int
	match Predicate
}

func NewScanner(g *Group, ix *index.Index, match Predicate) *Scanner {
	s := &Scanner{group: g, docs: ix.Snapshot(), match: match}
	g.Push(s)
	return s
}

func (s *Scanner) Name() string { return "scanner" }
func (s *Scanner) Error() error { return nil }

func (s *Scanner) Next(out *Row) Code {
	for s.pos < len(s.docs) {
		doc := s.docs[s.pos]
		s.pos++
		score, ok := s.match(doc)
		if !ok {
			continue
		}
		s.group.Total++
		out.Doc = doc
		out.Score = score
		if doc.Score != 0 {
			out.Score = doc.Score
		}
		return OK
	}
	return EOF
}

// Sorter buffers its upstream, orders rows by one field, and replays them.
// The sort value is bound into the side sort-vector under sortKey, so the
// serializer can emit it even when the field itself is hidden. Because it
// drains upstream on the first pull, the group total is exact from the
// first downstream row onward.
type Sorter struct {
	upstream Processor
	lk       *lookup.Lookup
	field    string
	sortKey  *lookup.Key
	desc     bool

	loaded bool
	rows   []*Row
	pos    int
	err    error
}

func NewSorter(g *Group, upstream Processor, field string, desc bool) *Sorter {
	s := &Sorter{
		upstream: upstream,
		lk:       g.Lookup,
		field:    field,
		sortKey:  g.Lookup.GetOrCreate(field, lookup.SortVector|lookup.Hidden),
		desc:     desc,
	}
	g.Push(s)
	return s
}

// SortKey returns the lookup key the sort value is bound under.
func (s *Sorter) SortKey() *lookup.Key { return s.sortKey }

func (s *Sorter) Name() string { return "sorter" }
func (s *Sorter) Error() error { return s.err }

func (s *Sorter) drain() Code {
	s.loaded = true
	var live Row
	for {
		rc := s.upstream.Next(&live)
		switch rc {
		case OK:
			buf := &Row{}
			buf.copyFrom(&live, s.lk)
			if buf.Doc != nil {
				buf.Data.Set(s.sortKey, buf.Doc.Fields[s.field])
			}
			s.rows = append(s.rows, buf)
			live.Clear()
		case EOF:
			sort.SliceStable(s.rows, func(i, j int) bool {
				a := s.rows[i].Data.Get(s.sortKey)
				b := s.rows[j].Data.Get(s.sortKey)
				if s.desc {
					return value.Less(b, a)
				}
				return value.Less(a, b)
			})
			return OK
		case Err:
			s.err = s.upstream.Error()
			return Err
		default:
			return rc
		}
	}
}

func (s *Sorter) Next(out *Row) Code {
	if !s.loaded {
		if rc := s.drain(); rc != OK {
			return rc
		}
	}
	if s.pos >= len(s.rows) {
		return EOF
	}
	out.copyFrom(s.rows[s.pos], s.lk)
	s.pos++
	return OK
}

// Pager implements offset/limit over its upstream.
type Pager struct {
	upstream Processor
	offset   int
	limit    int
	seen     int
	sent     int
}

// NewPager builds a pager; limit <= 0 means no upper bound.
func NewPager(g *Group, upstream Processor, offset, limit int) *Pager {
	p := &Pager{upstream: upstream, offset: offset, limit: limit}
	g.Push(p)
	return p
}

func (p *Pager) Name() string { return "pager" }
func (p *Pager) Error() error { return p.upstream.Error() }

func (p *Pager) Next(out *Row) Code {
	for {
		if p.limit > 0 && p.sent >= p.limit {
			return EOF
		}
		rc := p.upstream.Next(out)
		if rc != OK {
			return rc
		}
		p.seen++
		if p.seen <= p.offset {
			out.Clear()
			continue
		}
		p.sent++
		return OK
	}
}

// Loader materializes the visible field values of the row's document into
// main row storage, honoring the lookup registry order.
type Loader struct {
	upstream Processor
	keys     []*lookup.Key
}

func NewLoader(g *Group, upstream Processor, keys []*lookup.Key) *Loader {
	l := &Loader{upstream: upstream, keys: keys}
	g.Push(l)
	return l
}

func (l *Loader) Name() string { return "loader" }
func (l *Loader) Error() error { return l.upstream.Error() }

func (l *Loader) Next(out *Row) Code {
	rc := l.upstream.Next(out)
	if rc != OK {
		return rc
	}
	if out.Doc != nil {
		for _, k := range l.keys {
			if k.FromSortVec() {
				continue
			}
			if v, ok := out.Doc.Fields[k.Name]; ok {
				out.Data.Set(k, v)
			}
		}
	}
	return OK
}
