// Package moderation records user reports and appeals against moderation
// actions. Reviewing them is someone else's job; this package only checks
// shape and keeps one open appeal per (user, action).
package moderation

import (
	"context"

	"github.com/google/uuid"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/store"
	"github.com/karthiknish/aroosi-sub016/pkg/timeutil"
	"github.com/karthiknish/aroosi-sub016/pkg/validation"
)

type Service struct {
	backend store.ModerationStore
	clock   timeutil.Clock
}

func New(backend store.ModerationStore, clock timeutil.Clock) *Service {
	if clock == nil {
		clock = timeutil.System
	}
	return &Service{backend: backend, clock: clock}
}

func (s *Service) SubmitReport(ctx context.Context, reporterID string, req validation.Report) (*models.Report, error) {
	if reporterID == "" {
		return nil, apperr.Validation("user_id", "is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.TargetID == reporterID {
		return nil, apperr.Validation("target_id", "cannot report yourself")
	}
	r := &models.Report{
		ID:         uuid.NewString(),
		ReporterID: reporterID,
		TargetID:   req.TargetID,
		Reason:     req.Reason,
		Details:    req.Details,
		CreatedTS:  s.clock.Now().UnixMilli(),
	}
	if err := s.backend.PutReport(ctx, r); err != nil {
		return nil, err
	}
	logger.Info("report_submitted", "report", r.ID, "reporter", reporterID, "target", r.TargetID, "reason", r.Reason)
	return r, nil
}

// SubmitAppeal opens an appeal. A second appeal for the same action while
// the first is still open is a conflict.
func (s *Service) SubmitAppeal(ctx context.Context, userID string, req validation.Appeal) (*models.Appeal, error) {
	if userID == "" {
		return nil, apperr.Validation("user_id", "is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	a := &models.Appeal{
		ID:        uuid.NewString(),
		UserID:    userID,
		ActionID:  req.ActionID,
		Reason:    req.Reason,
		Details:   req.Details,
		Status:    models.AppealOpen,
		CreatedTS: s.clock.Now().UnixMilli(),
	}
	if err := s.backend.CreateAppeal(ctx, a); err != nil {
		return nil, err
	}
	logger.Info("appeal_submitted", "appeal", a.ID, "user", userID, "action", a.ActionID)
	return a, nil
}

func (s *Service) ListAppeals(ctx context.Context, userID string) ([]*models.Appeal, error) {
	if userID == "" {
		return nil, apperr.Validation("user_id", "is required")
	}
	return s.backend.ListAppeals(ctx, userID)
}
