package observability

import (
	"context"

	"go.uber.org/zap"
)

// ZapObserver emits events to a zap.Logger. Event levels are mapped via
// ZapLevel, the event type becomes the log message, and Data keys become
// top-level fields.
type ZapObserver struct {
	logger *zap.Logger
}

// NewZapObserver creates a ZapObserver that emits to the given logger.
func NewZapObserver(logger *zap.Logger) *ZapObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapObserver{logger: logger}
}

func (o *ZapObserver) OnEvent(_ context.Context, event Event) {
	ce := o.logger.Check(event.Level.ZapLevel(), string(event.Type))
	if ce == nil {
		return
	}

	fields := make([]zap.Field, 0, len(event.Data)+1)
	fields = append(fields, zap.String("source", event.Source))
	for k, v := range event.Data {
		fields = append(fields, zap.Any(k, v))
	}
	ce.Write(fields...)
}
