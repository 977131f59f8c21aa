package httputil

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/autoscripty/internal/constants"
	"github.com/autoscripty/internal/domain"
)

// SubmissionStatus maps a script submission error to its HTTP status. Store
// rejections and unexpected failures are both answered with 500.
func SubmissionStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	case domain.IsUnauthorized(err):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// AuthStatus maps an auth operation error to its HTTP status
func AuthStatus(operation string, err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	case domain.IsTransportError(err):
		return http.StatusBadGateway
	case operation == constants.OperationSignIn:
		return http.StatusUnauthorized
	case operation == constants.OperationSignOut:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// IsFormPost reports whether the request came from a plain HTML form
func IsFormPost(c *gin.Context) bool {
	contentType := c.GetHeader("Content-Type")
	return strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data")
}

// RedirectWithMessage redirects to path carrying an error code and message
// in the query, the same way the access middleware does.
func RedirectWithMessage(c *gin.Context, path, code, message string) {
	query := url.Values{}
	if code != "" {
		query.Set(constants.QueryError, code)
	}
	if message != "" {
		query.Set(constants.QueryMessage, message)
	}
	target := path
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	c.Redirect(http.StatusSeeOther, target)
}
