package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitebot/internal/app"
	"sitebot/internal/qa"
	"sitebot/internal/transport/http/response"
)

// siteUnavailableMessage is what widget visitors see for sites that are
// disabled, untrained or unknown.
const siteUnavailableMessage = "Sorry, this assistant is not available right now."

type chatAsker interface {
	Ask(ctx context.Context, input app.AskInput, sink qa.Sink) error
}

type ChatHandler struct {
	chatService chatAsker
	logger      *zap.Logger
}

// AskRequest carries earlier turns as [question, answer] pairs.
type AskRequest struct {
	SiteID   string     `json:"site_id"`
	Question string     `json:"question"`
	History  [][]string `json:"history"`
}

func NewChatHandler(chatService chatAsker, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chatService: chatService, logger: logger.Named("chat_handler")}
}

// Ask streams an answer for the dashboard. Errors inside the stream carry
// readable messages.
func (h *ChatHandler) Ask(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SiteID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	sink, err := newSSESink(c)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, err.Error())
		return
	}

	err = h.chatService.Ask(c.Request.Context(), app.AskInput{
		UserID:   userID,
		SiteID:   req.SiteID,
		Question: req.Question,
		History:  toTurns(req.History),
	}, sink)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrQuestionEmpty):
			response.Error(c, http.StatusBadRequest, response.CodeQuestionEmpty, err.Error())
		case errors.Is(err, app.ErrQuestionTooLong), errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrSiteNotFound):
			response.Error(c, http.StatusNotFound, response.CodeSiteNotFound, err.Error())
		case errors.Is(err, app.ErrSiteNotReady):
			response.Error(c, http.StatusConflict, response.CodeSiteNotReady, err.Error())
		case errors.Is(err, app.ErrQuotaExceeded):
			response.Error(c, http.StatusForbidden, response.CodeQuotaExceeded, "monthly chat quota exceeded, upgrade your plan to continue")
		default:
			h.logger.Error("dashboard ask failed", zap.String("site_id", req.SiteID), zap.Error(err))
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ask failed")
		}
	}
}

// WidgetAsk streams an answer to an anonymous visitor of an embedding site.
// Visitors never see internal error details.
func (h *ChatHandler) WidgetAsk(c *gin.Context) {
	siteID := c.Param("siteId")

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	sink, err := newSSESink(c)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, err.Error())
		return
	}

	err = h.chatService.Ask(c.Request.Context(), app.AskInput{
		SiteID:   siteID,
		Question: req.Question,
		History:  toTurns(req.History),
		Public:   true,
	}, sink)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrQuestionEmpty):
			response.Error(c, http.StatusBadRequest, response.CodeQuestionEmpty, err.Error())
		case errors.Is(err, app.ErrQuestionTooLong):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrQuotaExceeded):
			response.Error(c, http.StatusForbidden, response.CodeForbidden, qa.PublicErrorMessage)
		case errors.Is(err, app.ErrSiteUnavailable):
			_ = sink.Error(siteUnavailableMessage)
			_ = sink.Done()
		default:
			h.logger.Error("widget ask failed", zap.String("site_id", siteID), zap.Error(err))
			_ = sink.Error(qa.PublicErrorMessage)
			_ = sink.Done()
		}
	}
}

func toTurns(pairs [][]string) []qa.Turn {
	turns := make([]qa.Turn, 0, len(pairs))
	for _, p := range pairs {
		if len(p) < 2 {
			continue
		}
		turns = append(turns, qa.Turn{Question: p[0], Answer: p[1]})
	}
	return turns
}
