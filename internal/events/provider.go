package events

import (
	"fmt"
	"strings"

	"github.com/kandev/squad-bridge/internal/common/config"
	"github.com/kandev/squad-bridge/internal/common/logger"
	"github.com/kandev/squad-bridge/internal/events/bus"
)

// Provide builds the configured event bus implementation: NATS when a URL is
// set, in-memory otherwise.
func Provide(cfg config.EventsConfig, log *logger.Logger) (bus.EventBus, func() error, error) {
	if strings.TrimSpace(cfg.NATSURL) != "" {
		natsBus, err := bus.NewNATSEventBus(cfg, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize NATS event bus: %w", err)
		}
		return natsBus, func() error { natsBus.Close(); return nil }, nil
	}

	memBus := bus.NewMemoryEventBus(log)
	return memBus, func() error { memBus.Close(); return nil }, nil
}
