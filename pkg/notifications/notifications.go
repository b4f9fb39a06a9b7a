// Package notifications produces notification records for offline
// recipients and applies batch read marks.
package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/store"
	"github.com/karthiknish/aroosi-sub016/pkg/telemetry"
	"github.com/karthiknish/aroosi-sub016/pkg/timeutil"
	"github.com/karthiknish/aroosi-sub016/pkg/validation"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type Service struct {
	backend store.NotificationStore
	clock   timeutil.Clock
}

func New(backend store.NotificationStore, clock timeutil.Clock) *Service {
	if clock == nil {
		clock = timeutil.System
	}
	return &Service{backend: backend, clock: clock}
}

// newID returns a time ordered id so key order is creation order.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Service) put(ctx context.Context, n *models.Notification) error {
	if err := s.backend.PutNotification(ctx, n); err != nil {
		return err
	}
	telemetry.NotificationsCreated.WithLabelValues(string(n.Kind)).Inc()
	return nil
}

// NotifyMessage records one message notification per user.
func (s *Service) NotifyMessage(ctx context.Context, m *models.Message, userIDs []string) error {
	now := s.clock.Now().UnixMilli()
	for _, u := range userIDs {
		err := s.put(ctx, &models.Notification{
			ID:             newID(),
			UserID:         u,
			Kind:           models.NotificationMessage,
			ActorID:        m.SenderID,
			ConversationID: m.ConversationID,
			MessageID:      m.ID,
			CreatedTS:      now,
		})
		if err != nil {
			return err
		}
	}
	logger.Debug("message_notifications_created", "message", m.ID, "count", len(userIDs))
	return nil
}

// NotifyProfileView tells the profile owner who looked.
func (s *Service) NotifyProfileView(ctx context.Context, v models.ProfileView) error {
	return s.put(ctx, &models.Notification{
		ID:        newID(),
		UserID:    v.ProfileID,
		Kind:      models.NotificationProfileView,
		ActorID:   v.ViewerID,
		CreatedTS: v.ViewedTS,
	})
}

func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error) {
	return s.backend.ListNotifications(ctx, userID, unreadOnly, store.ClampLimit(limit, DefaultListLimit, MaxListLimit))
}

// MarkRead marks the ids owned by userID as read and returns how many
// changed. Ids owned by someone else or already read are skipped silently.
func (s *Service) MarkRead(ctx context.Context, userID string, ids []string) (int, error) {
	req := validation.MarkRead{IDs: ids}
	if err := req.Validate(); err != nil {
		return 0, err
	}
	if userID == "" {
		return 0, apperr.Validation("user_id", "is required")
	}
	n, err := s.backend.MarkNotificationsRead(ctx, userID, ids, s.clock.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	logger.Info("notifications_marked_read", "user", userID, "requested", len(ids), "updated", n)
	return n, nil
}

// Purge removes notifications read more than olderThan ago.
func (s *Service) Purge(ctx context.Context, olderThan time.Duration, dryRun bool) (int, error) {
	cutoff := s.clock.Now().Add(-olderThan).UnixMilli()
	return s.backend.PurgeNotifications(ctx, cutoff, dryRun)
}
