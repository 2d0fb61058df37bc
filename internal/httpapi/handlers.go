package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"esther-voice/internal/calls"
	"esther-voice/internal/prompts"
	"esther-voice/internal/voice"
	"esther-voice/pkg/logger"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Voice   *voice.Service
	Prompts *prompts.Service
	// Upgrader accepts the provider's media websocket. The zero value is usable.
	Upgrader websocket.Upgrader
}

// --- Health ---

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.Voice.Health())
}

// --- Calls ---

func (h *Handlers) CreateCall(c *gin.Context) {
	var req voice.OutboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Voice.StartOutbound(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handlers) GetCall(c *gin.Context) {
	st, err := h.Voice.Status(c.Param("call_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handlers) GetCallEvents(c *gin.Context) {
	id := c.Param("call_id")
	evs, err := h.Voice.Events(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"callId": id, "events": evs})
}

func (h *Handlers) HangupCall(c *gin.Context) {
	id := c.Param("call_id")
	if err := h.Voice.Hangup(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"callId": id, "status": "ended"})
}

// RecentCalls lists calls placed to ?phone= within the frequency lookback.
func (h *Handlers) RecentCalls(c *gin.Context) {
	phone := strings.TrimSpace(c.Query("phone"))
	if phone == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone required"})
		return
	}
	recs, err := h.Voice.Recent(c.Request.Context(), phone)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"phone": phone, "calls": recs})
}

func (h *Handlers) RegisterInbound(c *gin.Context) {
	var req voice.InboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	ncco, err := h.Voice.RegisterInbound(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ncco": ncco})
}

// --- Prompts ---

func (h *Handlers) PromptStats(c *gin.Context) {
	if h.Prompts == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "prompt service not configured"})
		return
	}
	c.JSON(http.StatusOK, h.Prompts.Stats())
}

// ClearPromptCache drops the cached prompts named by ?assistant=, or all of them.
func (h *Handlers) ClearPromptCache(c *gin.Context) {
	if h.Prompts == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "prompt service not configured"})
		return
	}
	n := h.Prompts.ClearCache(c.QueryArray("assistant")...)
	c.JSON(http.StatusOK, gin.H{"cleared": n})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, voice.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, calls.ErrCallNotFound):
		status = http.StatusNotFound
	case errors.Is(err, voice.ErrRecentlyCalled):
		status = http.StatusConflict
	case errors.Is(err, voice.ErrAtCapacity):
		status = http.StatusTooManyRequests
	case errors.Is(err, voice.ErrProvider):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		_ = c.Error(err)
	}
	msg := err.Error()
	if status == http.StatusNotFound {
		msg = "Call not found"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
