package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/quiverdb/quiver/internal/index"
	"github.com/quiverdb/quiver/internal/queryerr"
	"github.com/quiverdb/quiver/internal/value"
	"github.com/rs/zerolog"
)

// IndexHandler serves index administration and document ingestion.
type IndexHandler struct {
	catalog *index.Catalog
	logger  zerolog.Logger
}

func NewIndexHandler(catalog *index.Catalog, logger zerolog.Logger) *IndexHandler {
	return &IndexHandler{
		catalog: catalog,
		logger:  logger.With().Str("component", "index-handler").Logger(),
	}
}

// RegisterRoutes registers index administration endpoints
func (h *IndexHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/api/v1/indexes", h.createIndex)
	app.Get("/api/v1/indexes", h.listIndexes)
	app.Get("/api/v1/indexes/:index", h.getIndex)
	app.Delete("/api/v1/indexes/:index", h.dropIndex)
	app.Post("/api/v1/indexes/:index/documents", h.putDocument)
}

type createIndexRequest struct {
	Name   string            `json:"name"`
	Schema []index.FieldSpec `json:"schema"`
}

func (h *IndexHandler) createIndex(c *fiber.Ctx) error {
	var req createIndexRequest
	if err := decodeBody(c, &req); err != nil {
		return sendQueryError(c, queryerr.Wrap(queryerr.CodeBadArgs, err, "invalid index definition"))
	}
	if req.Name == "" {
		return sendQueryError(c, queryerr.New(queryerr.CodeBadArgs, "index name is required"))
	}
	if len(req.Schema) == 0 {
		return sendQueryError(c, queryerr.New(queryerr.CodeBadArgs, "schema must declare at least one field"))
	}
	for _, fs := range req.Schema {
		if fs.Type != index.FieldText && fs.Type != index.FieldNumeric {
			return sendQueryError(c, queryerr.Newf(queryerr.CodeBadArgs, "%s: unknown field type %q", fs.Name, fs.Type))
		}
	}

	ix, err := h.catalog.Create(req.Name, req.Schema)
	if err != nil {
		return sendQueryError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"name":   ix.Name,
		"fields": len(ix.Schema),
	})
}

func (h *IndexHandler) listIndexes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"indexes": h.catalog.List(),
	})
}

func (h *IndexHandler) getIndex(c *fiber.Ctx) error {
	name := c.Params("index")
	ix := h.catalog.Get(name)
	if ix == nil {
		return sendQueryError(c, queryerr.Newf(queryerr.CodeNoIndex, "%s: no such index", name))
	}
	return c.JSON(fiber.Map{
		"name":      ix.Name,
		"schema":    ix.Schema,
		"documents": ix.Len(),
	})
}

func (h *IndexHandler) dropIndex(c *fiber.Ctx) error {
	name := c.Params("index")
	if !h.catalog.Drop(name) {
		return sendQueryError(c, queryerr.Newf(queryerr.CodeNoIndex, "%s: no such index", name))
	}
	return c.JSON(fiber.Map{"dropped": name})
}

type putDocumentRequest struct {
	Key     string                 `json:"key"`
	Payload string                 `json:"payload"`
	Score   float64                `json:"score"`
	Fields  map[string]interface{} `json:"fields"`
}

func (h *IndexHandler) putDocument(c *fiber.Ctx) error {
	name := c.Params("index")
	ix := h.catalog.Get(name)
	if ix == nil {
		return sendQueryError(c, queryerr.Newf(queryerr.CodeNoIndex, "%s: no such index", name))
	}

	var req putDocumentRequest
	if err := decodeBody(c, &req); err != nil {
		return sendQueryError(c, queryerr.Wrap(queryerr.CodeBadArgs, err, "invalid document"))
	}
	if req.Key == "" {
		return sendQueryError(c, queryerr.New(queryerr.CodeBadArgs, "document key is required"))
	}

	doc := &index.Document{
		Key:    []byte(req.Key),
		Score:  req.Score,
		Fields: map[string]value.Value{},
	}
	if req.Payload != "" {
		doc.Payload = []byte(req.Payload)
	}
	for fname, raw := range req.Fields {
		if !ix.HasField(fname) {
			return sendQueryError(c, queryerr.Newf(queryerr.CodeBadArgs, "%s: no such field", fname))
		}
		doc.Fields[fname] = value.From(raw)
	}

	ix.Put(doc)
	h.logger.Debug().
		Str("index", name).
		Str("key", req.Key).
		Msg("Document stored")

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"key":       req.Key,
		"documents": ix.Len(),
	})
}
