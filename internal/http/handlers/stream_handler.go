// Nudge stream handler.
//
// This file exposes the live nudge listing as Server-Sent Events:
//   - GET /nudges/stream
//
// Each emission from the repository's live query becomes one SSE event
// carrying the full current listing. The stream itself never reports an
// error: upstream failures surface as an empty-list event, matching the
// repository's degrade contract. The connection closes when the client
// disconnects or the repository stream ends.
package handlers

import (
	"io"

	"github.com/gin-gonic/gin"
)

// StreamNudges godoc
// @ID          streamNudges
// @Summary     Live nudge listing
// @Description Emits one `nudges` event per change to the listing, starting with the
// @Description current state. Failures emit an empty list instead of an error.
// @Tags        Nudges
// @Produce     event-stream
//
// @Param       limit     query  int     false "Page size"        minimum(1) maximum(100) default(20)
// @Param       order_by  query  string  false "Sort field"       default(createdAt)
// @Param       desc      query  bool    false "Sort descending"  default(true)
//
// @Success     200  {string} string "SSE stream of nudge listings"
// @Router      /nudges/stream [get]
func (h *Handlers) StreamNudges(c *gin.Context) {
	limit, orderBy, descending := listParams(c)
	ch := h.svc.NudgesStream(c.Request.Context(), limit, orderBy, descending)

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	// Disable proxy buffering so events reach the client immediately.
	header.Set("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		items, more := <-ch
		if !more {
			return false
		}
		c.SSEvent("nudges", items)
		return true
	})
}
