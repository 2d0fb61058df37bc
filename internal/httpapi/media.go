package httpapi

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"esther-voice/internal/calls"
	"esther-voice/pkg/logger"
)

// Media upgrades the provider's websocket for /ws/:call_id and relays audio until either
// side hangs up. Unknown calls are closed with a policy violation.
func (h *Handlers) Media(c *gin.Context) {
	callID := c.Param("call_id")
	log := logger.FromGin(c)

	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("media upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	if _, ok := h.Voice.Registry().Lookup(callID); !ok {
		log.Warn("media for unknown call")
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown call")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return
	}

	err = h.Voice.AttachMedia(c.Request.Context(), callID, conn)
	switch {
	case err == nil:
	case errors.Is(err, calls.ErrAlreadyAttached):
		log.Warn("media already attached")
	default:
		log.Error("media session failed", "err", err)
	}
}
