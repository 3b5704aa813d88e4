package web

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/authgate/internal/users"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	msgInvalidCredentials = "Invalid username or password."
	msgUsernameTaken      = "Username already exists"
	msgMissingFields      = "Username and password are required."
	msgPasswordTooLong    = "Password must be at most 72 bytes."
	msgInternal           = "Something went wrong. Please try again later."
)

// pageData はテンプレートに渡す値です。
type pageData struct {
	Title     string
	User      *users.User
	CSRFToken string
	Username  string
	Error     string
	Status    int
	Message   string
}

func parseTemplates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

func (h *Handler) render(c *gin.Context, status int, name string, data pageData) {
	data.User = currentUser(c)
	c.HTML(status, name, data)
}

func (h *Handler) renderError(c *gin.Context, status int, message string) {
	h.render(c, status, "error.html", pageData{
		Title:   http.StatusText(status),
		Status:  status,
		Message: message,
	})
}

// fail は内部エラーをログに残し、汎用のエラーページを返します。
// 詳細はクライアントに返しません。
func (h *Handler) fail(c *gin.Context, err error) {
	h.logger.Error().Err(err).Str("method", c.Request.Method).Str("path", c.Request.URL.Path).Msg("request failed")
	h.renderError(c, http.StatusInternalServerError, msgInternal)
	c.Abort()
}

func (h *Handler) notFound(c *gin.Context) {
	h.renderError(c, http.StatusNotFound, "The page you are looking for does not exist.")
}
