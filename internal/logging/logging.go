package logging

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

var defaultLogger *zap.SugaredLogger

func init() {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}
	defaultLogger = logger.Sugar()
}

// WithLogger returns a context carrying a logger tagged with a request or
// task id. All log calls below pick it up automatically.
func WithLogger(parent context.Context, id string) context.Context {
	return context.WithValue(parent, ctxKey{}, defaultLogger.With("id", id))
}

func fromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.SugaredLogger); ok {
			return l
		}
	}
	return defaultLogger
}

func Infof(ctx context.Context, tpl string, args ...any) {
	fromContext(ctx).Infof(tpl, args...)
}

func Warnf(ctx context.Context, tpl string, args ...any) {
	fromContext(ctx).Warnf(tpl, args...)
}

func Errorf(ctx context.Context, tpl string, args ...any) {
	fromContext(ctx).Errorf(tpl, args...)
}

func Debugf(ctx context.Context, tpl string, args ...any) {
	fromContext(ctx).Debugf(tpl, args...)
}
