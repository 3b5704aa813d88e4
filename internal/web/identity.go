package web

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/authgate/internal/audit"
	"github.com/yourusername/authgate/internal/users"
)

const (
	contextUserKey  = "web.user"
	contextTokenKey = "web.session_token"
)

// LoadIdentity はセッションクッキーのトークンからログイン中のユーザーを解決します。
// 署名が不正なクッキーや破棄済みトークンは匿名として扱います。
func (h *Handler) LoadIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(audit.WithRemoteAddr(c.Request.Context(), c.ClientIP()))

		session := sessions.Default(c)
		token, _ := session.Get(sessionKeyToken).(string)
		if token == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		userID, ok, err := h.sessions.Resolve(ctx, token)
		if err != nil {
			h.fail(c, err)
			return
		}
		if !ok {
			session.Delete(sessionKeyToken)
			_ = session.Save()
			c.Next()
			return
		}

		user, err := h.users.GetByID(ctx, userID)
		if err != nil {
			if !errors.Is(err, users.ErrNotFound) {
				h.fail(c, err)
				return
			}
			// ユーザーが消えたトークンは使えない
			_ = h.sessions.Terminate(ctx, token)
			session.Delete(sessionKeyToken)
			_ = session.Save()
			c.Next()
			return
		}

		c.Set(contextUserKey, user)
		c.Set(contextTokenKey, token)
		c.Next()
	}
}

// RequireLogin は未ログインのリクエストをログイン画面へリダイレクトします。
func (h *Handler) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c) == nil {
			c.Redirect(http.StatusSeeOther, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *users.User {
	v, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*users.User)
	return user
}

func currentToken(c *gin.Context) string {
	return c.GetString(contextTokenKey)
}
