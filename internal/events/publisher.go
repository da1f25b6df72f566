package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/kandev/squad-bridge/internal/common/logger"
	"github.com/kandev/squad-bridge/internal/events/bus"
)

// Publisher emits events for one source component. A nil *Publisher or one
// without a bus is valid and drops everything. Publish failures are logged
// and never returned.
type Publisher struct {
	bus    bus.EventBus
	source string
	logger *logger.Logger
}

// NewPublisher creates a Publisher tagging events with source.
func NewPublisher(eventBus bus.EventBus, source string, log *logger.Logger) *Publisher {
	return &Publisher{bus: eventBus, source: source, logger: log}
}

// Publish sends an event of type subject on the subject of the same name.
func (p *Publisher) Publish(ctx context.Context, subject string, data map[string]interface{}) {
	if p == nil || p.bus == nil {
		return
	}
	event := bus.NewEventFromContext(ctx, subject, p.source, data)
	if err := p.bus.Publish(ctx, subject, event); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}
