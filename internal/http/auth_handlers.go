package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autoscripty/internal/access"
	"github.com/autoscripty/internal/apipaths"
	"github.com/autoscripty/internal/auth"
	"github.com/autoscripty/internal/constants"
	"github.com/autoscripty/internal/httputil"
)

// CredentialsRequest is the body of sign-up and sign-in requests. Both JSON
// and HTML form bodies are accepted.
type CredentialsRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// signUp registers a new identity and sets the session cookie when the
// provider returns a session right away
func (s *Server) signUp(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		s.badAuthRequest(c, constants.OperationSignUp, err)
		return
	}

	result := s.gateway.Register(c.Request.Context(), s.cookies.Sink(c.Writer), req.Email, req.Password)

	if httputil.IsFormPost(c) {
		switch {
		case !result.Success:
			httputil.RedirectWithMessage(c, apipaths.SignUpPage, "sign_up_failed", result.Error)
		case result.Session == nil:
			httputil.RedirectWithMessage(c, apipaths.SignInPage, "", "Check your email to confirm your account, then sign in")
		default:
			httputil.RedirectWithMessage(c, apipaths.Studio, "", "")
		}
		return
	}

	c.JSON(httputil.AuthStatus(constants.OperationSignUp, result.Err), result)
}

// signIn exchanges credentials for a session cookie
func (s *Server) signIn(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		s.badAuthRequest(c, constants.OperationSignIn, err)
		return
	}

	result := s.gateway.Authenticate(c.Request.Context(), s.cookies.Sink(c.Writer), req.Email, req.Password)

	if httputil.IsFormPost(c) {
		switch {
		case result.EmailNotConfirmed:
			httputil.RedirectWithMessage(c, apipaths.SignInPage, constants.OutcomeEmailNotConfirmed, result.Error)
		case !result.Success:
			httputil.RedirectWithMessage(c, apipaths.SignInPage, "sign_in_failed", result.Error)
		default:
			httputil.RedirectWithMessage(c, apipaths.Studio, "", "")
		}
		return
	}

	c.JSON(httputil.AuthStatus(constants.OperationSignIn, result.Err), result)
}

// signOut revokes the session at the provider and clears the cookie
func (s *Server) signOut(c *gin.Context) {
	session := access.SessionFromContext(c)
	result := s.gateway.Deauthenticate(c.Request.Context(), s.cookies.Sink(c.Writer), session)

	if httputil.IsFormPost(c) {
		if !result.Success {
			httputil.RedirectWithMessage(c, apipaths.Home, "sign_out_failed", result.Error)
			return
		}
		httputil.RedirectWithMessage(c, apipaths.Home, "", "")
		return
	}

	c.JSON(httputil.AuthStatus(constants.OperationSignOut, result.Err), result)
}

func (s *Server) badAuthRequest(c *gin.Context, operation string, err error) {
	slog.WarnContext(c.Request.Context(), "invalid auth request", "operation", operation, "error", err)
	c.JSON(http.StatusBadRequest, auth.Result{Success: false, Error: operation + " failed: Invalid request format"})
}
