package behaviors

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"github.com/polisai/polis-intercept/pkg/domain"
)

// Logging logs every intercepted call. Failed calls are logged at warn.
type Logging struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogging logs calls on logger at level. A nil logger uses slog.Default().
func NewLogging(logger *slog.Logger, level slog.Level) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{logger: logger, level: level}
}

// Invoke logs the call after next returns.
func (l *Logging) Invoke(inv *domain.Invocation, next domain.InvokeFunc) domain.MethodReturn {
	start := time.Now()
	ret := next(inv)

	attrs := []any{
		"type", inv.TypeName,
		"method", inv.Method,
		"args", len(inv.Arguments),
		"duration", time.Since(start),
	}
	if ret.Err != nil {
		l.logger.WarnContext(inv.Context, "intercepted call failed", append(attrs, "error", ret.Err)...)
		return ret
	}
	l.logger.Log(inv.Context, l.level, "intercepted call", attrs...)
	return ret
}

// RequiredInterfaces returns nil.
func (l *Logging) RequiredInterfaces() []reflect.Type { return nil }

// WillExecute reports whether the logger emits records at the configured level.
func (l *Logging) WillExecute() bool {
	return l.logger.Enabled(context.Background(), l.level)
}

var _ domain.Behavior = (*Logging)(nil)
