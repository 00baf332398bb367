package core

import "context"

// Variables holds the values a query template can reference.
type Variables interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapVariables is a simple map-based Variables implementation.
type MapVariables struct {
	data map[string]any
}

func NewVariables() *MapVariables {
	return &MapVariables{data: make(map[string]any)}
}

func (v *MapVariables) Get(key string) (any, bool) {
	val, ok := v.data[key]
	return val, ok
}

func (v *MapVariables) Set(key string, value any) {
	v.data[key] = value
}

type contextKey string

const workerIDContextKey contextKey = "workerID"

func ContextWithWorkerID(ctx context.Context, workerID int) context.Context {
	return context.WithValue(ctx, workerIDContextKey, workerID)
}

func WorkerIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(workerIDContextKey).(int); ok {
		return id
	}
	return 0
}
