package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autoscripty/internal/access"
	"github.com/autoscripty/internal/domain"
	"github.com/autoscripty/internal/httputil"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SubmitResponse is the envelope of POST /api/scripts
type SubmitResponse struct {
	Success bool                     `json:"success"`
	Data    *domain.Script           `json:"data,omitempty"`
	Error   string                   `json:"error,omitempty"`
	Code    string                   `json:"code,omitempty"` // domain error code, e.g. PERSISTENCE_FAILED
	Details []domain.ValidationIssue `json:"details,omitempty"`
}

// SessionResponse is the body of GET /api/session
type SessionResponse struct {
	Session *domain.Session `json:"session"`
}

// createScript validates and stores one script for the signed-in caller
func (s *Server) createScript(c *gin.Context) {
	var req domain.ScriptInput
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(c.Request.Context(), "invalid create script request", "error", err)
		c.JSON(http.StatusBadRequest, SubmitResponse{Success: false, Error: "Invalid request format", Code: domain.ErrValidationFailed.Code})
		return
	}

	session := access.SessionFromContext(c)
	script, err := s.scriptService.Submit(c.Request.Context(), session, req)
	if err != nil {
		c.JSON(httputil.SubmissionStatus(err), submitError(err))
		return
	}

	c.JSON(http.StatusOK, SubmitResponse{Success: true, Data: script})
}

func submitError(err error) SubmitResponse {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return SubmitResponse{
			Success: false,
			Error:   domain.ErrValidationFailed.Message,
			Code:    domain.ErrValidationFailed.Code,
			Details: validationErr.Issues,
		}
	}
	code := domain.ErrorCode(err)
	if code == "" {
		code = domain.ErrTransport.Code
	}
	return SubmitResponse{Success: false, Error: domain.PublicMessage(err), Code: code}
}

// getSession returns the session carried by the request cookie, refreshed if
// it had expired
func (s *Server) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, SessionResponse{Session: access.SessionFromContext(c)})
}
