package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type scriptRenderer interface {
	Script(ctx context.Context, siteID string) string
}

type WidgetHandler struct {
	widgetService scriptRenderer
}

func NewWidgetHandler(widgetService scriptRenderer) *WidgetHandler {
	return &WidgetHandler{widgetService: widgetService}
}

// Script always answers 200 so a misconfigured embed never breaks the
// host page.
func (h *WidgetHandler) Script(c *gin.Context) {
	script := h.widgetService.Script(c.Request.Context(), c.Param("siteId"))
	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte(script))
}
