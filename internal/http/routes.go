package http

import (
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autoscripty/internal/apipaths"
)

// setupRoutes configures all routes. Route protection happens in the access
// middleware, not here.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.engine.GET(apipaths.Health, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "autoscripty",
		})
	})
	s.engine.GET(apipaths.Metrics, gin.WrapH(s.metrics.Handler()))

	// Auth routes
	s.engine.POST(apipaths.SignUp, s.signUp)
	s.engine.POST(apipaths.SignIn, s.signIn)
	s.engine.POST(apipaths.SignOut, s.signOut)

	// API routes
	s.engine.GET(apipaths.Session, s.getSession)
	s.engine.POST(apipaths.Scripts, s.createScript)

	// Pages
	s.engine.GET(apipaths.Home, s.homePage)
	s.engine.GET(apipaths.SignInPage, s.signInPage)
	s.engine.GET(apipaths.SignUpPage, s.signUpPage)
	s.engine.GET(apipaths.Studio, s.studioPage)

	static, _ := fs.Sub(staticFS, "static")
	s.engine.StaticFS("/static", http.FS(static))

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found"})
	})
}
