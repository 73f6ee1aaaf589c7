package middleware

import (
	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	// Guards run before the handler, e.g. security.Middleware
	Guards []gin.HandlerFunc
}

func (o RouteOpt) chain(handler gin.HandlerFunc) []gin.HandlerFunc {
	hs := make([]gin.HandlerFunc, 0, len(o.Guards)+1)
	for _, g := range o.Guards {
		if g != nil {
			hs = append(hs, g)
		}
	}
	return append(hs, handler)
}

// 封装 POST
func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.POST(path, opt.chain(handler)...)
}

// 封装 GET
func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.GET(path, opt.chain(handler)...)
}
