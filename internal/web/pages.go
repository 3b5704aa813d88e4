package web

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/authgate/internal/auth"
	"github.com/yourusername/authgate/internal/password"
	"github.com/yourusername/authgate/internal/users"
)

func (h *Handler) index(c *gin.Context) {
	h.render(c, http.StatusOK, "index.html", pageData{Title: "Home"})
}

func (h *Handler) loginPage(c *gin.Context) {
	h.showForm(c, http.StatusOK, "login.html", "Log in", "", "")
}

func (h *Handler) registerPage(c *gin.Context) {
	h.showForm(c, http.StatusOK, "register.html", "Register", "", "")
}

// showForm は CSRF トークン付きでフォーム画面を描画します。
func (h *Handler) showForm(c *gin.Context, status int, name, title, username, message string) {
	token, err := csrfToken(sessions.Default(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, status, name, pageData{
		Title:     title,
		CSRFToken: token,
		Username:  username,
		Error:     message,
	})
}

func (h *Handler) login(c *gin.Context) {
	username := c.PostForm("username")
	plaintext := c.PostForm("password")
	ctx := c.Request.Context()

	result, err := h.authn.Authenticate(ctx, username, plaintext)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !result.Success {
		h.showForm(c, http.StatusOK, "login.html", "Log in", username, msgInvalidCredentials)
		return
	}

	// 既存のセッションは引き継がない
	if old := currentToken(c); old != "" {
		if err := h.sessions.Terminate(ctx, old); err != nil {
			h.fail(c, err)
			return
		}
	}
	token, err := h.sessions.Establish(ctx, result.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	csrf, err := generateToken()
	if err != nil {
		h.fail(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(sessionKeyToken, token)
	session.Set(sessionKeyCSRF, csrf)
	if err := session.Save(); err != nil {
		_ = h.sessions.Terminate(ctx, token)
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.sessions.Terminate(c.Request.Context(), currentToken(c)); err != nil {
		h.fail(c, err)
		return
	}

	session := sessions.Default(c)
	session.Clear()
	session.Options(h.expiredCookieOptions())
	if err := session.Save(); err != nil {
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) register(c *gin.Context) {
	username := c.PostForm("username")
	plaintext := c.PostForm("password")

	_, err := h.reg.Register(c.Request.Context(), username, plaintext)
	switch {
	case err == nil:
		c.Redirect(http.StatusSeeOther, "/login")
	case errors.Is(err, auth.ErrInvalidInput):
		h.showForm(c, http.StatusOK, "register.html", "Register", username, msgMissingFields)
	case errors.Is(err, users.ErrConflict):
		h.showForm(c, http.StatusOK, "register.html", "Register", username, msgUsernameTaken)
	case errors.Is(err, password.ErrPasswordTooLong):
		h.showForm(c, http.StatusOK, "register.html", "Register", username, msgPasswordTooLong)
	default:
		h.fail(c, err)
	}
}
