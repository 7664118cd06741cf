package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/quiverdb/quiver/internal/exec"
	"github.com/quiverdb/quiver/internal/metrics"
	"github.com/quiverdb/quiver/internal/queryerr"
	"github.com/quiverdb/quiver/internal/reply"
	"github.com/rs/zerolog"
)

// CursorHandler serves the cursor subcommand surface: READ resumes a parked
// cursor for one chunk, DEL destroys one, GC sweeps idle cursors on demand.
type CursorHandler struct {
	runner *exec.Runner
	logger zerolog.Logger
}

func NewCursorHandler(runner *exec.Runner, logger zerolog.Logger) *CursorHandler {
	return &CursorHandler{
		runner: runner,
		logger: logger.With().Str("component", "cursor-handler").Logger(),
	}
}

// RegisterRoutes registers the cursor command endpoint
func (h *CursorHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/api/v1/indexes/:index/cursor/:subcommand", h.dispatch)
}

type cursorCommand struct {
	ID    uint64 `json:"id"`
	Count int    `json:"count"`
}

// dispatch routes one cursor subcommand. Argument validation happens before
// any store lookup so malformed ids and counts never touch live cursors.
func (h *CursorHandler) dispatch(c *fiber.Ctx) error {
	sub := strings.ToUpper(c.Params("subcommand"))

	var cmd cursorCommand
	if err := decodeBody(c, &cmd); err != nil {
		return sendQueryError(c, queryerr.Wrap(queryerr.CodeBadArgs, err, "invalid cursor command"))
	}

	switch sub {
	case "READ":
		return h.read(c, &cmd)
	case "DEL":
		return h.del(c, &cmd)
	case "GC":
		return h.gc(c)
	default:
		return sendQueryError(c, queryerr.Newf(queryerr.CodeBadArgs, "unknown subcommand %q", c.Params("subcommand")))
	}
}

func (h *CursorHandler) read(c *fiber.Ctx, cmd *cursorCommand) error {
	if cmd.ID == 0 {
		return sendQueryError(c, queryerr.New(queryerr.CodeBadArgs, "bad cursor id"))
	}
	if cmd.Count < 0 {
		return sendQueryError(c, queryerr.New(queryerr.CodeBadArgs, "bad COUNT value"))
	}

	w := reply.NewWriter()
	if err := h.runner.ReadCursor(cmd.ID, cmd.Count, w); err != nil {
		return sendQueryError(c, err)
	}
	return sendReply(c, w.Root())
}

func (h *CursorHandler) del(c *fiber.Ctx, cmd *cursorCommand) error {
	if cmd.ID == 0 {
		return sendQueryError(c, queryerr.New(queryerr.CodeBadArgs, "bad cursor id"))
	}

	if !h.runner.DeleteCursor(cmd.ID) {
		return sendQueryError(c, queryerr.New(queryerr.CodeCursorNotFound, "cursor does not exist"))
	}
	return c.JSON(fiber.Map{"deleted": cmd.ID})
}

func (h *CursorHandler) gc(c *fiber.Ctx) error {
	reaped := h.runner.CollectIdle()
	if reaped > 0 {
		metrics.Get().AddCursorsReaped(int64(reaped))
	}
	h.logger.Info().Int("reaped", reaped).Msg("On-demand cursor sweep")
	return c.JSON(fiber.Map{"reaped": reaped})
}
