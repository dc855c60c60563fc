package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitebot/internal/app"
	"sitebot/internal/model"
	"sitebot/internal/transport/http/response"
)

const eventsKeepAlive = 15 * time.Second

type SiteHandler struct {
	siteService *app.SiteService
	logger      *zap.Logger
}

type CreateSiteRequest struct {
	Name       string `json:"name" binding:"max=128"`
	BaseURL    string `json:"base_url" binding:"required,max=2048"`
	SitemapURL string `json:"sitemap_url" binding:"max=2048"`
}

type UpdateSiteRequest struct {
	Name           *string `json:"name" binding:"omitempty,max=128"`
	SitemapURL     *string `json:"sitemap_url" binding:"omitempty,max=2048"`
	IsEmbedEnabled *bool   `json:"is_embed_enabled"`
}

type TrainRequest struct {
	SitemapURL string `json:"sitemap_url" binding:"max=2048"`
}

func NewSiteHandler(siteService *app.SiteService, logger *zap.Logger) *SiteHandler {
	return &SiteHandler{siteService: siteService, logger: logger.Named("site_handler")}
}

func (h *SiteHandler) Create(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	site, err := h.siteService.Register(c.Request.Context(), app.RegisterSiteInput{
		OwnerID:    userID,
		Name:       req.Name,
		BaseURL:    req.BaseURL,
		SitemapURL: req.SitemapURL,
	})
	if err != nil {
		h.writeError(c, err, "create site failed")
		return
	}
	response.Created(c, site)
}

func (h *SiteHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sites, err := h.siteService.List(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err, "list sites failed")
		return
	}
	if sites == nil {
		sites = []model.Site{}
	}
	response.OK(c, sites)
}

func (h *SiteHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	site, err := h.siteService.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err, "get site failed")
		return
	}
	response.OK(c, site)
}

func (h *SiteHandler) Update(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req UpdateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	site, err := h.siteService.Update(c.Request.Context(), app.UpdateSiteInput{
		OwnerID:        userID,
		SiteID:         c.Param("id"),
		Name:           req.Name,
		SitemapURL:     req.SitemapURL,
		IsEmbedEnabled: req.IsEmbedEnabled,
	})
	if err != nil {
		h.writeError(c, err, "update site failed")
		return
	}
	response.OK(c, site)
}

func (h *SiteHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	siteID := c.Param("id")
	if err := h.siteService.Delete(c.Request.Context(), userID, siteID); err != nil {
		h.writeError(c, err, "delete site failed")
		return
	}
	response.OK(c, gin.H{"deleted_site_id": siteID})
}

// Train starts a training job and returns as soon as it is dispatched.
// The body is optional.
func (h *SiteHandler) Train(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req TrainRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
	}

	job, err := h.siteService.StartTraining(c.Request.Context(), userID, c.Param("id"), req.SitemapURL)
	if err != nil {
		h.writeError(c, err, "start training failed")
		return
	}
	c.JSON(http.StatusAccepted, response.APIResponse{
		Code:    response.CodeOK,
		Message: "accepted",
		Data:    gin.H{"job_id": job.ID, "status": job.Status},
	})
}

func (h *SiteHandler) ListJobs(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil {
			limit = parsed
		}
	}

	jobs, err := h.siteService.ListJobs(c.Request.Context(), userID, c.Param("id"), limit)
	if err != nil {
		h.writeError(c, err, "list jobs failed")
		return
	}
	if jobs == nil {
		jobs = []model.TrainingJob{}
	}
	response.OK(c, jobs)
}

func (h *SiteHandler) GetJob(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	job, err := h.siteService.GetJob(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err, "get job failed")
		return
	}
	response.OK(c, job)
}

// Events streams job and status changes of one site until the client
// disconnects.
func (h *SiteHandler) Events(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, errStreamUnsupported.Error())
		return
	}

	ctx := c.Request.Context()
	stream, err := h.siteService.Subscribe(ctx, userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err, "subscribe failed")
		return
	}

	setSSEHeaders(c)
	c.Status(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(eventsKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Writer.WriteString(": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-stream:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := c.Writer.WriteString("event: " + string(ev.Type) + "\ndata: " + string(payload) + "\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *SiteHandler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrInvalidURL):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrSiteNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSiteNotFound, err.Error())
	case errors.Is(err, app.ErrJobNotFound):
		response.Error(c, http.StatusNotFound, response.CodeJobNotFound, err.Error())
	case errors.Is(err, app.ErrTrainingInProgress):
		response.Error(c, http.StatusConflict, response.CodeTrainingInProgress, err.Error())
	case errors.Is(err, app.ErrSiteBusy):
		response.Error(c, http.StatusConflict, response.CodeSiteBusy, err.Error())
	default:
		h.logger.Error(fallback, zap.Error(err))
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
