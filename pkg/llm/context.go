package llm

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

type contextKey string

const callContextKey contextKey = "llm_call_context"

// WithContext attaches values that every model call made under ctx logs, such
// as the persona and organization. Values merge with any already present.
func WithContext(ctx context.Context, values map[string]string) context.Context {
	merged := GetContext(ctx)
	if merged == nil {
		merged = make(map[string]string, len(values))
	}
	for k, v := range values {
		merged[k] = v
	}
	return context.WithValue(ctx, callContextKey, merged)
}

// GetContext returns a copy of the call context, or nil.
func GetContext(ctx context.Context) map[string]string {
	c, ok := ctx.Value(callContextKey).(map[string]string)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// contextFields renders the call context as log fields in key order.
func contextFields(ctx context.Context) []zap.Field {
	values := GetContext(ctx)
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys)+4)
	for _, k := range keys {
		fields = append(fields, zap.String(k, values[k]))
	}
	return fields
}
