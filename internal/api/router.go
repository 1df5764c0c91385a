package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the presentation routes. metrics may be nil.
func NewRouter(h *Handlers, metrics http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/", h.HandleIndex)
	r.GET("/data", h.HandleData)
	r.GET("/healthz", h.HandleHealth)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
	return r
}
