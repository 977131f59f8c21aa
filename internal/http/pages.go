package http

import (
	"embed"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autoscripty/internal/access"
	"github.com/autoscripty/internal/apipaths"
	"github.com/autoscripty/internal/constants"
	"github.com/autoscripty/internal/validation"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

type pageData struct {
	Title    string
	Error    string
	Message  string
	Email    string
	SignedIn bool
	Paths    map[string]string
	Limits   map[string]int
}

func (s *Server) page(c *gin.Context, title string) pageData {
	session := access.SessionFromContext(c)
	data := pageData{
		Title:    title,
		Error:    c.Query(constants.QueryError),
		Message:  c.Query(constants.QueryMessage),
		SignedIn: session != nil,
		Paths: map[string]string{
			"home":    apipaths.Home,
			"signin":  apipaths.SignIn,
			"signup":  apipaths.SignUp,
			"signout": apipaths.SignOut,
			"scripts": apipaths.Scripts,
			"studio":  apipaths.Studio,
		},
		Limits: map[string]int{
			"titleMin": validation.TitleMinLength,
			"titleMax": validation.TitleMaxLength,
			"textMin":  validation.TextMinLength,
		},
	}
	if session != nil {
		data.Email = session.Email
	}
	return data
}

func (s *Server) homePage(c *gin.Context) {
	c.HTML(http.StatusOK, "home.html", s.page(c, "Auto Scripty"))
}

func (s *Server) signInPage(c *gin.Context) {
	c.HTML(http.StatusOK, "signin.html", s.page(c, "Sign in"))
}

func (s *Server) signUpPage(c *gin.Context) {
	c.HTML(http.StatusOK, "signup.html", s.page(c, "Sign up"))
}

// studioPage is only reachable with a session; the access middleware
// redirects everyone else.
func (s *Server) studioPage(c *gin.Context) {
	c.HTML(http.StatusOK, "studio.html", s.page(c, "Studio"))
}
