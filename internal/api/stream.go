package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/oceanguard/hazard-engine/internal/broadcast"
)

// handleStream serves the broadcast feed over Server-Sent Events. Each frame
// is one "data:" line; the hub's keepalive frames double as SSE heartbeats so
// idle proxies do not reap the connection.
func (h *APIHandler) handleStream(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	sub := h.hub.Subscribe()
	defer sub.Close()

	log.Debug().Str("remote", c.ClientIP()).Msg("sse subscriber connected")

	for {
		frame, err := sub.Next(c.Request.Context())
		if err != nil {
			if !errors.Is(err, broadcast.ErrSubscriberGone) && c.Request.Context().Err() == nil {
				log.Debug().Err(err).Msg("sse stream closed")
			}
			return
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", frame); err != nil {
			return
		}
		c.Writer.Flush()
	}
}
