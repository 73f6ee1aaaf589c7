package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"PPGateway/tools/errs"

	"github.com/gin-gonic/gin"
)

// HeaderInternalToken carries the shared secret of internal callers.
const HeaderInternalToken = "X-Internal-Token"

type Options struct {
	// 读取哪个请求头
	HeaderToken               string // 默认 X-Internal-Token
	EnableAuthorizationBearer bool   // 默认 true
	// Token is the expected shared secret. Empty disables the check.
	Token string
}

func DefaultOptions(token string) *Options {
	return &Options{
		HeaderToken:               HeaderInternalToken,
		EnableAuthorizationBearer: true,
		Token:                     token,
	}
}

// Middleware guards internal endpoints (the message hook) with a shared
// token. It does not identify end users.
func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions("")
	}
	if opts.HeaderToken == "" {
		opts.HeaderToken = HeaderInternalToken
	}
	want := []byte(opts.Token)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))

		// 兼容 Authorization: Bearer xxx
		if token == "" && opts.EnableAuthorizationBearer {
			if authz := strings.TrimSpace(c.GetHeader("Authorization")); len(authz) > len("bearer ") &&
				strings.EqualFold(authz[:len("bearer ")], "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}

		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
			return
		}
		c.Next()
	}
}
