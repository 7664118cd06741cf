package api

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/quiverdb/quiver/internal/queryerr"
	"github.com/vmihailenco/msgpack/v5"
)

// Replies below this size are never gzip-compressed; the header overhead
// exceeds the saving.
const gzipMinSize = 1024

// Pool for gzip writers - avoids allocating compressor state per response.
var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
		return w
	},
}

// sendReply encodes a finished reply tree in the client's negotiated format:
// msgpack when the Accept header asks for it, JSON otherwise. Large bodies
// are gzip-compressed when the client advertises support.
func sendReply(c *fiber.Ctx, root interface{}) error {
	var (
		body []byte
		err  error
	)

	if strings.Contains(c.Get("Accept"), "application/msgpack") {
		body, err = msgpack.Marshal(root)
		c.Set("Content-Type", "application/msgpack")
	} else {
		body, err = json.Marshal(root)
		c.Set("Content-Type", "application/json")
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if len(body) >= gzipMinSize && strings.Contains(c.Get("Accept-Encoding"), "gzip") {
		var buf bytes.Buffer
		zw := gzipWriterPool.Get().(*gzip.Writer)
		zw.Reset(&buf)
		if _, err := zw.Write(body); err == nil {
			if err := zw.Close(); err == nil {
				c.Set("Content-Encoding", "gzip")
				body = buf.Bytes()
			}
		}
		gzipWriterPool.Put(zw)
	}

	return c.Send(body)
}

// sendQueryError maps a query error to its HTTP status and a JSON error
// envelope carrying the symbolic error code.
func sendQueryError(c *fiber.Ctx, err error) error {
	code := queryerr.CodeOf(err)
	return c.Status(queryerr.HTTPStatus(code)).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code.String(),
	})
}

// decodeBody unmarshals a request body as msgpack or JSON depending on the
// Content-Type header.
func decodeBody(c *fiber.Ctx, out interface{}) error {
	body := c.Body()
	if strings.Contains(c.Get("Content-Type"), "application/msgpack") {
		return msgpack.Unmarshal(body, out)
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
