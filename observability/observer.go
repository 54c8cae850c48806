// Package observability provides event-based observability for the
// specialist subsystems. Level values align with OpenTelemetry
// SeverityNumbers for zero-translation compatibility with OTel collectors.
package observability

import (
	"context"
	"time"

	"go.uber.org/zap/zapcore"
)

// Level represents event severity aligned with OTel SeverityNumber ranges.
type Level int

const (
	LevelVerbose Level = 5  // OTel DEBUG (5-8), maps to zapcore.DebugLevel
	LevelInfo    Level = 9  // OTel INFO (9-12), maps to zapcore.InfoLevel
	LevelWarning Level = 13 // OTel WARN (13-16), maps to zapcore.WarnLevel
	LevelError   Level = 17 // OTel ERROR (17-20), maps to zapcore.ErrorLevel
)

// String returns the OTel severity text for the level.
func (l Level) String() string {
	switch {
	case l <= 4:
		return "TRACE"
	case l <= 8:
		return "DEBUG"
	case l <= 12:
		return "INFO"
	case l <= 16:
		return "WARN"
	case l <= 20:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// ZapLevel maps this level to the zapcore level used for log emission.
func (l Level) ZapLevel() zapcore.Level {
	switch {
	case l <= 8:
		return zapcore.DebugLevel
	case l <= 12:
		return zapcore.InfoLevel
	case l <= 16:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// EventType identifies the kind of event. Each subsystem defines its own
// constants using this type (e.g., "routing.miss", "genesis.created").
type EventType string

// Event is an observability event emitted by subsystems. Fields map to
// OTel LogRecord fields: Type→EventName, Level→SeverityNumber,
// Timestamp→Timestamp, Source→InstrumentationScope, Data→Attributes.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Observer receives events from subsystems for logging, tracing, or metrics.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// Emit is shorthand for building and delivering an event stamped with the
// current time. A nil observer is ignored.
func Emit(ctx context.Context, o Observer, typ EventType, level Level, source string, data map[string]any) {
	if o == nil {
		return
	}
	o.OnEvent(ctx, Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	})
}
