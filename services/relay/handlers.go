// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relay

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message   string `json:"message" binding:"required,max=4000"`
	SessionID string `json:"session_id" binding:"omitempty,max=128,printascii"`
}

// ChatResponse is the body of a successful POST /chat.
type ChatResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`

	// UpstreamStatus is set on 502 when DeepSeek answered with an error.
	UpstreamStatus int `json:"upstream_status,omitempty"`
}

// HandleHealth answers GET /health.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleChat answers POST /chat.
//
// # Description
//
// Sends the session's history plus the new message to DeepSeek and returns
// the reply. The exchange is added to the history only when DeepSeek
// answered, so a failed call can be retried without duplicating the
// user's message. An empty session_id starts a new session.
//
// # Outputs
//
//   - 200 ChatResponse
//   - 400 ErrorResponse: missing, blank or oversized message
//   - 502 ErrorResponse: DeepSeek failed
func (s *Server) HandleChat(c *gin.Context) {
	requestID := requestIDFrom(c)
	logger := s.logger.With("request_id", requestID)

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error(), RequestID: requestID})
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message must not be empty", RequestID: requestID})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	userTurn := Message{Role: RoleUser, Content: message}
	messages := append(s.store.Snapshot(sessionID), userTurn)

	reply, err := s.completer.Complete(c.Request.Context(), messages)
	if err != nil {
		status := 0
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			status = upstream.Status
		}
		s.metrics.RecordUpstreamError(status)
		logger.Error("chat completion failed", "session_id", sessionID, "upstream_status", status, "error", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error(), RequestID: requestID, UpstreamStatus: status})
		return
	}

	if evicted := s.store.Commit(sessionID, userTurn, Message{Role: RoleAssistant, Content: reply}); evicted != "" {
		logger.Info("evicted least recently used session", "session_id", evicted)
	}
	s.metrics.ActiveSessions.Set(float64(s.store.Len()))

	logger.Debug("chat completed", "session_id", sessionID, "history", len(messages))
	c.JSON(http.StatusOK, ChatResponse{Message: reply, SessionID: sessionID})
}
