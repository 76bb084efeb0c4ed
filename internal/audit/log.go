// Package audit records who seeded or reset demo data, and with what outcome.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"brandhub.dev/demodata/internal/obs"
)

type ctxKey string

const (
	requestIDKey ctxKey = "audit_request_id"
	operatorKey  ctxKey = "audit_operator_id"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithOperator attaches the operator identity that started the run.
func WithOperator(ctx context.Context, operatorID string) context.Context {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		return ctx
	}
	return context.WithValue(ctx, operatorKey, operatorID)
}

func stringFromContext(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and operator context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	zf := []zap.Field{
		zap.String("type", "audit"),
		zap.Time("ts", time.Now().UTC()),
	}
	if rid := stringFromContext(ctx, requestIDKey); rid != "" {
		zf = append(zf, zap.String("request_id", rid))
	}
	if op := stringFromContext(ctx, operatorKey); op != "" {
		zf = append(zf, zap.String("operator_id", op))
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	zf = append(zf, zap.Any("fields", copyFields))

	obs.Logger().Named("audit").Info(event, zf...)
	return nil
}
