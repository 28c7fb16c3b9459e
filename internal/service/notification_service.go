package service

import (
	"context"

	"carkey/internal/models"
	"carkey/internal/notifications"
	"carkey/internal/observability"
	"carkey/internal/repository"
)

// EventPublisher pushes realtime events to a user's sockets.
type EventPublisher interface {
	PublishEvent(ctx context.Context, userID uint, eventType string, payload interface{}) error
}

// NotificationService persists inbox entries and pushes them in real time.
type NotificationService struct {
	repo      repository.NotificationRepository
	publisher EventPublisher
}

func NewNotificationService(repo repository.NotificationRepository, publisher EventPublisher) *NotificationService {
	return &NotificationService{repo: repo, publisher: publisher}
}

// Notify stores n and publishes it. A failed publish is logged, the row stays.
func (s *NotificationService) Notify(ctx context.Context, n *models.Notification) error {
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}
	observability.NotificationsCreated.WithLabelValues(n.NotifType).Inc()
	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.PublishEvent(ctx, n.ToUserID, notifications.EventNotificationCreated, n); err != nil {
		logWarn(ctx, "failed to publish notification", "notification_id", n.ID, "error", err)
	}
	return nil
}

func (s *NotificationService) List(ctx context.Context, actor Actor, limit, offset int) ([]*models.Notification, int64, error) {
	if !actor.Authenticated() {
		return nil, 0, models.NewUnauthorizedError("Authentication required")
	}
	return s.repo.ListForUser(ctx, actor.ID, limit, offset)
}

func (s *NotificationService) Get(ctx context.Context, actor Actor, id uint) (*models.Notification, error) {
	return s.repo.GetForUser(ctx, id, actor.ID)
}

func (s *NotificationService) MarkRead(ctx context.Context, actor Actor, id uint) error {
	return s.repo.MarkRead(ctx, id, actor.ID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, actor Actor) (int64, error) {
	return s.repo.MarkAllRead(ctx, actor.ID)
}

func (s *NotificationService) UnreadCount(ctx context.Context, actor Actor) (int64, error) {
	return s.repo.UnreadCount(ctx, actor.ID)
}

func (s *NotificationService) Delete(ctx context.Context, actor Actor, id uint) error {
	return s.repo.DeleteForUser(ctx, id, actor.ID)
}
