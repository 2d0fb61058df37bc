package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"esther-voice/internal/httpapi"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h *httpapi.Handlers) {
	// public
	r.GET("/health", h.Health)
	r.GET("/healthz", h.Health)

	// Management API.
	r.POST("/calls", h.CreateCall)
	r.GET("/calls/recent", h.RecentCalls)
	r.GET("/calls/:call_id", h.GetCall)
	r.GET("/calls/:call_id/events", h.GetCallEvents)
	r.DELETE("/calls/:call_id", h.HangupCall)
	r.POST("/inbound", h.RegisterInbound)

	prompts := r.Group("/prompts")
	{
		prompts.GET("/stats", h.PromptStats)
		prompts.DELETE("/cache", h.ClearPromptCache)
	}

	// Vonage webhooks. Answer urls may be configured as GET or POST.
	answerMethods := []string{http.MethodGet, http.MethodPost}
	r.Match(answerMethods, "/webhooks/answer", h.InboundAnswer)
	r.Match(answerMethods, "/outbound/webhooks/answer", h.OutboundAnswer)
	r.Match(answerMethods, "/webhooks/events", h.CallEvent)
	r.Match(answerMethods, "/outbound/webhooks/events", h.CallEvent)
	r.POST("/webhooks/recording", h.Recording)

	// Media websocket; the NCCO connect action points here.
	r.GET("/ws/:call_id", h.Media)
}
