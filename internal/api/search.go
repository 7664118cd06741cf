package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/quiverdb/quiver/internal/exec"
	"github.com/quiverdb/quiver/internal/index"
	"github.com/quiverdb/quiver/internal/metrics"
	"github.com/quiverdb/quiver/internal/queryerr"
	"github.com/quiverdb/quiver/internal/reply"
	"github.com/rs/zerolog"
)

// QueryHandler serves search and aggregate execution.
type QueryHandler struct {
	catalog *index.Catalog
	runner  *exec.Runner
	logger  zerolog.Logger
}

func NewQueryHandler(catalog *index.Catalog, runner *exec.Runner, logger zerolog.Logger) *QueryHandler {
	return &QueryHandler{
		catalog: catalog,
		runner:  runner,
		logger:  logger.With().Str("component", "query-handler").Logger(),
	}
}

// RegisterRoutes registers query execution endpoints
func (h *QueryHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/api/v1/indexes/:index/search", h.search)
	app.Post("/api/v1/indexes/:index/aggregate", h.aggregate)
	app.Post("/api/v1/indexes/:index/explain", h.explain)
}

func (h *QueryHandler) search(c *fiber.Ctx) error {
	return h.runQuery(c, exec.KindSearch)
}

func (h *QueryHandler) aggregate(c *fiber.Ctx) error {
	return h.runQuery(c, exec.KindAggregate)
}

// runQuery compiles and drives one query: single-shot when no cursor was
// requested, first-chunk-and-park otherwise.
func (h *QueryHandler) runQuery(c *fiber.Ctx, kind exec.Kind) error {
	m := metrics.Get()
	m.IncQueryRequests()
	start := time.Now()

	req, err := h.buildRequest(c, kind)
	if err != nil {
		m.IncQueryErrors()
		return sendQueryError(c, err)
	}

	w := reply.NewWriter()

	if req.HasFlag(exec.FlagIsCursor) {
		if err := h.runner.StartCursor(req, w); err != nil {
			m.IncQueryErrors()
			return sendQueryError(c, err)
		}
		if stErr := req.Status.Err(); stErr != nil {
			m.IncQueryErrors()
			return sendQueryError(c, stErr)
		}
	} else {
		total := h.runner.Execute(req, w)
		if stErr := req.Status.Err(); stErr != nil {
			m.IncQueryErrors()
			return sendQueryError(c, stErr)
		}
		m.IncQueryRows(int64(total))
	}

	m.IncQuerySuccess()
	m.RecordQueryLatency(time.Since(start).Microseconds())
	return sendReply(c, w.Root())
}

// explain compiles the query without running it and reports the resulting
// pipeline stages and projection.
func (h *QueryHandler) explain(c *fiber.Ctx) error {
	req, err := h.buildRequest(c, exec.KindAggregate)
	if err != nil {
		return sendQueryError(c, err)
	}

	stages := req.Group.Explain()
	var projection []string
	for _, k := range req.Lookup.Keys() {
		if k.Hidden() {
			continue
		}
		projection = append(projection, k.Name)
	}
	req.Close()

	return c.JSON(fiber.Map{
		"index":      c.Params("index"),
		"stages":     stages,
		"projection": projection,
	})
}

// buildRequest decodes the body and compiles it against the named index.
func (h *QueryHandler) buildRequest(c *fiber.Ctx, kind exec.Kind) (*exec.Request, error) {
	var opts exec.Options
	if err := decodeBody(c, &opts); err != nil {
		return nil, queryerr.Wrap(queryerr.CodeBadArgs, err, "invalid query body")
	}

	handle, err := h.catalog.Acquire(c.Params("index"))
	if err != nil {
		return nil, err
	}

	var status queryerr.Status
	req := exec.Build(handle, kind, &opts, &status)
	if req == nil {
		return nil, status.Err()
	}
	return req, nil
}
