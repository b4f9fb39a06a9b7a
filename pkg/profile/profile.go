// Package profile records profile views and icebreaker answers.
package profile

import (
	"context"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/store"
	"github.com/karthiknish/aroosi-sub016/pkg/timeutil"
	"github.com/karthiknish/aroosi-sub016/pkg/validation"
)

const (
	DefaultViewLimit = 50
	MaxViewLimit     = 200
)

type Notifier interface {
	NotifyProfileView(ctx context.Context, v models.ProfileView) error
}

type Service struct {
	backend  store.ProfileStore
	notifier Notifier
	clock    timeutil.Clock
}

func New(backend store.ProfileStore, notifier Notifier, clock timeutil.Clock) *Service {
	if clock == nil {
		clock = timeutil.System
	}
	return &Service{backend: backend, notifier: notifier, clock: clock}
}

// RecordView stores that viewerID looked at a profile and notifies the
// owner. Viewing your own profile records nothing.
func (s *Service) RecordView(ctx context.Context, viewerID string, req validation.ProfileView) (recorded bool, err error) {
	if viewerID == "" {
		return false, apperr.Validation("user_id", "is required")
	}
	if err := req.Validate(); err != nil {
		return false, err
	}
	if req.ProfileID == viewerID {
		return false, nil
	}
	v := models.ProfileView{
		ViewerID:  viewerID,
		ProfileID: req.ProfileID,
		ViewedTS:  s.clock.Now().UnixMilli(),
	}
	if err := s.backend.PutProfileView(ctx, v); err != nil {
		return false, err
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyProfileView(ctx, v); err != nil {
			logger.Warn("profile_view_notify_failed", "profile", v.ProfileID, "viewer", viewerID, "error", err)
		}
	}
	logger.Debug("profile_view_recorded", "profile", v.ProfileID, "viewer", viewerID)
	return true, nil
}

// Views lists who viewed profileID, newest first.
func (s *Service) Views(ctx context.Context, profileID string, limit int) ([]models.ProfileView, error) {
	return s.backend.ListProfileViews(ctx, profileID, store.ClampLimit(limit, DefaultViewLimit, MaxViewLimit))
}

// AnswerIcebreaker stores the answer, replacing an earlier one for the same
// question.
func (s *Service) AnswerIcebreaker(ctx context.Context, userID string, req validation.IcebreakerAnswer) (models.IcebreakerAnswer, error) {
	if userID == "" {
		return models.IcebreakerAnswer{}, apperr.Validation("user_id", "is required")
	}
	if err := req.Validate(); err != nil {
		return models.IcebreakerAnswer{}, err
	}
	a := models.IcebreakerAnswer{
		UserID:     userID,
		QuestionID: req.QuestionID,
		Answer:     req.Answer,
		AnsweredTS: s.clock.Now().UnixMilli(),
	}
	if err := s.backend.PutIcebreakerAnswer(ctx, a); err != nil {
		return models.IcebreakerAnswer{}, err
	}
	logger.Info("icebreaker_answered", "user", userID, "question", a.QuestionID)
	return a, nil
}

func (s *Service) IcebreakerAnswers(ctx context.Context, userID string) ([]models.IcebreakerAnswer, error) {
	return s.backend.ListIcebreakerAnswers(ctx, userID)
}
