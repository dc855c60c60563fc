package app

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"sitebot/internal/cache"
	"sitebot/internal/model"
	"sitebot/internal/qa"
	"sitebot/internal/usage"
)

var (
	ErrQuestionEmpty   = errors.New("question is empty")
	ErrQuestionTooLong = errors.New("question is too long")
	ErrQuotaExceeded   = usage.ErrQuotaExceeded
	ErrSiteNotReady    = errors.New("site is not trained yet")
	ErrSiteUnavailable = errors.New("site is unavailable")
	ErrOwnerNotFound   = errors.New("site owner not found")
)

const (
	maxQuestionRunes = 2000
	maxHistoryTurns  = 10
)

type AnswerStreamer interface {
	Stream(ctx context.Context, req qa.Request, sink qa.Sink) (*qa.Result, error)
}

type QuotaChecker interface {
	Allowed(ctx context.Context, user *model.User, action model.UsageAction) (bool, error)
}

type ChatService struct {
	sites    SiteStore
	users    UserStore
	lookup   *siteLookup
	quota    QuotaChecker
	streamer AnswerStreamer
	meter    *usage.Meter
	logger   *zap.Logger
}

// AskInput is one chat turn. UserID is the dashboard caller and is ignored
// for public requests, which are billed to the site owner.
type AskInput struct {
	UserID   uint
	SiteID   string
	Question string
	History  []qa.Turn
	Public   bool
}

func NewChatService(
	sites SiteStore,
	users UserStore,
	siteCache cache.SiteCache,
	quota QuotaChecker,
	streamer AnswerStreamer,
	meter *usage.Meter,
	logger *zap.Logger,
) *ChatService {
	logger = logger.Named("chat")
	return &ChatService{
		sites:    sites,
		users:    users,
		lookup:   &siteLookup{sites: sites, cache: siteCache, logger: logger},
		quota:    quota,
		streamer: streamer,
		meter:    meter,
		logger:   logger,
	}
}

// Ask validates the request, checks the owner's quota and streams the answer
// into sink. An error returned here means nothing was written to sink; once
// streaming started, failures are reported inside the stream and Ask returns
// nil.
func (s *ChatService) Ask(ctx context.Context, input AskInput, sink qa.Sink) error {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return ErrQuestionEmpty
	}
	if utf8.RuneCountInString(question) > maxQuestionRunes {
		return ErrQuestionTooLong
	}

	ownerID, err := s.resolveOwner(ctx, input)
	if err != nil {
		return err
	}

	owner, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		return err
	}
	if owner == nil {
		return ErrOwnerNotFound
	}
	allowed, err := s.quota.Allowed(ctx, owner, model.UsageActionChat)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrQuotaExceeded
	}

	history := input.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	res, err := s.streamer.Stream(ctx, qa.Request{
		Question: question,
		History:  history,
		SiteID:   input.SiteID,
		Public:   input.Public,
	}, sink)
	if err != nil {
		s.logger.Debug("answer stream ended with error", zap.String("site_id", input.SiteID), zap.Error(err))
	}

	if res != nil && res.ReachedGeneration {
		turns := make([]string, 0, len(history)*2)
		for _, t := range history {
			turns = append(turns, t.Question, t.Answer)
		}
		s.meter.RecordChat(ctx, usage.ChatUsage{
			UserID:          ownerID,
			SiteID:          input.SiteID,
			Question:        question,
			History:         turns,
			Context:         res.Context,
			Answer:          res.Answer,
			EmbeddingTokens: res.EmbeddingTokens,
			Public:          input.Public,
			Failed:          err != nil,
		})
	}
	return nil
}

// resolveOwner checks the caller may ask the site and returns whose quota
// the turn is billed to.
func (s *ChatService) resolveOwner(ctx context.Context, input AskInput) (uint, error) {
	if input.Public {
		view, err := s.lookup.View(ctx, input.SiteID)
		if err != nil {
			return 0, err
		}
		if view == nil || !view.Answerable() {
			return 0, ErrSiteUnavailable
		}
		return view.OwnerID, nil
	}

	if input.UserID == 0 || input.SiteID == "" {
		return 0, ErrInvalidInput
	}
	site, err := s.sites.GetByIDAndOwner(ctx, input.SiteID, input.UserID)
	if err != nil {
		return 0, err
	}
	if site == nil {
		return 0, ErrSiteNotFound
	}
	if site.Status != model.SiteStatusReady {
		return 0, ErrSiteNotReady
	}
	return site.OwnerID, nil
}
