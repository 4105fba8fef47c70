package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const usageText = "POST to /print to print a label"

type SystemHandler struct {
	startTime time.Time
}

func NewSystemHandler() *SystemHandler {
	return &SystemHandler{startTime: time.Now()}
}

func (h *SystemHandler) Index(c *gin.Context) {
	c.String(http.StatusOK, usageText)
}

func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

func RegisterSystemRoutes(router *gin.Engine, handler *SystemHandler) {
	router.GET("/", handler.Index)
	router.GET("/health", handler.Health)
}
