package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sitebot/internal/app"
	"sitebot/internal/transport/http/response"
)

type UsageHandler struct {
	usageService *app.UsageService
}

func NewUsageHandler(usageService *app.UsageService) *UsageHandler {
	return &UsageHandler{usageService: usageService}
}

// Report accepts from/to as RFC 3339 timestamps or YYYY-MM-DD dates. A date
// in "to" is inclusive.
func (h *UsageHandler) Report(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	from, err := parseBound(c.Query("from"), false)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid from")
		return
	}
	to, err := parseBound(c.Query("to"), true)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid to")
		return
	}

	report, err := h.usageService.Report(c.Request.Context(), userID, from, to)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "from must be before to")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "usage report failed")
		}
		return
	}
	response.OK(c, report)
}

func parseBound(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}
