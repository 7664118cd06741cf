package exec

import (
	"math"

	"github.com/quiverdb/quiver/internal/pipeline"
	"github.com/quiverdb/quiver/internal/queryerr"
	"github.com/quiverdb/quiver/internal/reply"
	"github.com/quiverdb/quiver/internal/value"
)

// getSortKey resolves the value bound to the arrangement step's first
// configured sort key, reading the side sort-vector or main row storage
// depending on the key's flags. Returns null when no arrangement exists.
func getSortKey(req *Request, row *pipeline.Row) value.Value {
	if len(req.SortKeys) == 0 {
		return value.Null()
	}
	return row.Data.Get(req.SortKeys[0])
}

// serializeRow emits one row into the reply honoring the request's output
// flags, in fixed order: document key, score, payload, sort key, fields.
// It returns the number of top-level elements written; any of the leading
// elements may be conditionally absent, so the caller cannot assume a
// constant per-row width.
func serializeRow(req *Request, w *reply.Writer, row *pipeline.Row) int {
	count := 0

	if row.Doc != nil && req.HasFlag(FlagIsSearch) {
		w.Bytes(row.Doc.Key)
		count++
	}

	if req.HasFlag(FlagSendScores) {
		w.Double(row.Score)
		count++
	}

	if req.HasFlag(FlagSendPayloads) {
		count++
		if row.Doc != nil && row.Doc.Payload != nil {
			w.Bytes(row.Doc.Payload)
		} else {
			w.Null()
		}
	}

	if req.HasFlag(FlagSendSortKeys) {
		count++
		// Tagged encoding: "#" prefixes a round-trippable decimal, "$"
		// prefixes literal text. Anything else is not a meaningful sort
		// key and degrades to null.
		sk := getSortKey(req, row)
		switch sk.Kind() {
		case value.KindNumber:
			w.String("#" + value.FormatNumber(sk.Float()))
		case value.KindString:
			w.String("$" + sk.Str())
		default:
			w.Null()
		}
	}

	if !req.HasFlag(FlagNoFields) {
		count++
		w.BeginArray()
		for _, k := range req.Lookup.Keys() {
			if k.Hidden() {
				continue
			}
			w.String(k.Name)
			w.Value(row.Data.Get(k))
		}
		w.EndArray()
	}
	return count
}

// SendChunk pulls up to limit rows from the pipeline's terminal processor
// and writes one reply envelope: the running total result count followed by
// the serialized rows. limit <= 0 means unbounded. The total is sampled
// after the first pull so processors that finalize counts lazily report a
// settled value; it stays best-effort for combinations that never settle.
// On any non-OK pull the request is marked iteration-done, and Err
// additionally marks the error state so the caller can distinguish failure
// from clean completion.
func SendChunk(req *Request, w *reply.Writer, limit int) {
	if limit <= 0 {
		limit = math.MaxInt
	}

	var row pipeline.Row
	rp := req.Group.End()
	nrows := 0

	w.BeginArray()

	rc := rp.Next(&row)
	w.Int(int64(req.Group.Total))

	if rc == pipeline.OK {
		nrows++
		if nrows <= limit && !req.HasFlag(FlagNoRows) {
			serializeRow(req, w, &row)
		}
	}
	row.Clear()

	if rc == pipeline.OK {
		for nrows < limit {
			rc = rp.Next(&row)
			if rc != pipeline.OK {
				break
			}
			nrows++
			if !req.HasFlag(FlagNoRows) {
				serializeRow(req, w, &row)
			}
			row.Clear()
		}
	}

	if rc != pipeline.OK {
		req.SetState(StateIterDone)
		if rc == pipeline.Err {
			req.SetState(StateError)
			req.Status.SetError(queryerr.CodeIteration, rp.Error())
		}
	}

	w.EndArray()
}
