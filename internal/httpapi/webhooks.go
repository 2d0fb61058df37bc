package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"esther-voice/internal/telephony"
	"esther-voice/pkg/logger"
)

// Provider webhooks always answer 200.

// InboundAnswer returns call control for an incoming call.
func (h *Handlers) InboundAnswer(c *gin.Context) { h.answer(c, false) }

// OutboundAnswer returns call control for a call this service placed.
func (h *Handlers) OutboundAnswer(c *gin.Context) { h.answer(c, true) }

func (h *Handlers) answer(c *gin.Context, outbound bool) {
	a, err := telephony.ParseVonageAnswer(c.Request)
	if err != nil {
		logger.FromGin(c).Warn("answer webhook rejected", "err", err)
		c.JSON(http.StatusOK, telephony.ErrorNCCO("Call configuration error."))
		return
	}
	c.JSON(http.StatusOK, h.Voice.Answer(c.Request.Context(), a, outbound))
}

func (h *Handlers) CallEvent(c *gin.Context) {
	e, err := telephony.ParseVonageEvent(c.Request)
	if err != nil {
		logger.FromGin(c).Warn("event webhook ignored", "err", err)
		c.Status(http.StatusOK)
		return
	}
	h.Voice.HandleStatus(c.Request.Context(), e)
	c.Status(http.StatusOK)
}

func (h *Handlers) Recording(c *gin.Context) {
	rec, err := telephony.ParseVonageRecording(c.Request)
	if err != nil {
		logger.FromGin(c).Warn("recording webhook ignored", "err", err)
		c.Status(http.StatusOK)
		return
	}
	h.Voice.AppendRecording(c.Request.Context(), rec)
	c.Status(http.StatusOK)
}
