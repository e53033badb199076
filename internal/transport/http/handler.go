package httptransport

import (
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"refract-server-go/internal/service"
)

// Handler serves the image endpoints backed by one Processor.
type Handler struct {
	processor *service.Processor
}

func NewHandler(processor *service.Processor) *Handler {
	return &Handler{processor: processor}
}

// ServeImage is the catch-all image endpoint. The whole request path is
// the operation chain; a query string belongs to the source image URI and
// is kept verbatim.
func (h *Handler) ServeImage(c *gin.Context) {
	resp, err := h.processor.Process(c.Request.Context(), rawRequestPath(c))
	if err != nil {
		respondProcessingError(c, err)
		return
	}

	if resp.Meta.Attachment {
		c.Header("Content-Disposition",
			fmt.Sprintf(`attachment; filename="%s"`, attachmentFilename(resp)))
	}
	if !resp.Meta.Expire.IsZero() {
		c.Header("Expires", resp.Meta.Expire.UTC().Format(http.TimeFormat))
		if ttl := time.Until(resp.Meta.Expire); ttl > 0 {
			c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", int(ttl.Seconds())))
		} else {
			c.Header("Cache-Control", "no-cache")
		}
	}

	c.Data(http.StatusOK, resp.ContentType, resp.Data)
}

// ServeParams returns the parsed form of an operation chain as JSON
// without executing it.
func (h *Handler) ServeParams(c *gin.Context) {
	raw := strings.TrimPrefix(rawRequestPath(c), "/params/")
	params, err := h.processor.Params(raw)
	if err != nil {
		respondProcessingError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, params, "")
}

func (h *Handler) ServeHealth(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, gin.H{"status": "ok"}, "")
}

func rawRequestPath(c *gin.Context) string {
	p := c.Request.URL.EscapedPath()
	if q := c.Request.URL.RawQuery; q != "" {
		p += "?" + q
	}
	return p
}

// attachmentFilename prefers the filter-provided name, then the source
// image's base name with any query string dropped.
func attachmentFilename(resp service.Response) string {
	if resp.Meta.Filename != "" {
		return resp.Meta.Filename
	}
	image := resp.Image
	if i := strings.IndexByte(image, '?'); i >= 0 {
		image = image[:i]
	}
	name := path.Base(image)
	if name == "." || name == "/" || name == "" {
		return "image"
	}
	return name
}
