package services

import (
	"context"

	"budgetbook/internal/amqp"
	applog "budgetbook/internal/log"
)

// Publisher sends change notifications to the broker.
type Publisher interface {
	Publish(ctx context.Context, e *amqp.Event) error
}

// notify publishes e after a successful write. The write has already
// happened, so a missing publisher or a failed publish is only logged.
func notify(ctx context.Context, p Publisher, logger *applog.Logger, e *amqp.Event) {
	if p == nil {
		logger.DebugContext(ctx, "AMQP publisher not available, skipping event",
			"type", e.Type, applog.FieldProjectID, e.ProjectID)
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.Failure(ctx, "Failed to publish event", err, applog.OpSync, e.ProjectID,
			"type", e.Type, "action", e.Action)
	}
}
