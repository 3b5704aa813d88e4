package web

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	csrfHeader    = "X-CSRF-Token"
	csrfFormField = "csrf_token"
)

// VerifyCSRF は状態を変更するリクエストの CSRF トークンを検証します。
// トークンはフォームの csrf_token か X-CSRF-Token ヘッダーで受け取ります。
func (h *Handler) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		session := sessions.Default(c)
		expected, _ := session.Get(sessionKeyCSRF).(string)
		received := c.PostForm(csrfFormField)
		if received == "" {
			received = c.GetHeader(csrfHeader)
		}

		if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			h.logger.Warn().Str("path", c.Request.URL.Path).Str("ip", c.ClientIP()).Msg("csrf token mismatch")
			h.renderError(c, http.StatusForbidden, "The form has expired. Please go back and try again.")
			c.Abort()
			return
		}
		c.Next()
	}
}

// csrfToken はセッションの CSRF トークンを返し、なければ発行して保存します。
func csrfToken(session sessions.Session) (string, error) {
	if token, ok := session.Get(sessionKeyCSRF).(string); ok && token != "" {
		return token, nil
	}
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	session.Set(sessionKeyCSRF, token)
	if err := session.Save(); err != nil {
		return "", err
	}
	return token, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
