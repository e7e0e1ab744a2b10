package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/authgate/internal/events"
)

// RoleInvalidator drops cached roles for a username.
type RoleInvalidator interface {
	Invalidate(ctx context.Context, username string) error
}

// StartAuditWorker subscribes the audit log and, when cache is non-nil, the
// role cache invalidation to issuer events.
func StartAuditWorker(dispatcher events.Dispatcher, cache RoleInvalidator, logger *zap.Logger) {
	if dispatcher == nil {
		return
	}

	audit := func(_ context.Context, e events.Event) error {
		logger.Info("auth event",
			zap.String("event_id", e.ID),
			zap.String("type", string(e.Type)),
			zap.String("subject", e.Subject),
			zap.Time("at", e.Timestamp),
		)
		return nil
	}
	dispatcher.Subscribe(events.EventUserRegistered, audit)
	dispatcher.Subscribe(events.EventUserLoggedIn, audit)
	dispatcher.Subscribe(events.EventLoginFailed, audit)

	if cache == nil {
		return
	}
	dispatcher.Subscribe(events.EventUserRegistered, func(ctx context.Context, e events.Event) error {
		if err := cache.Invalidate(ctx, e.Subject); err != nil {
			logger.Warn("role cache invalidation failed", zap.String("subject", e.Subject), zap.Error(err))
			return err
		}
		return nil
	})
}
