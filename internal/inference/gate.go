package inference

import (
	"context"
)

// ServiceChecker reports whether a service's models are cached and valid.
type ServiceChecker interface {
	IsServiceReady(ctx context.Context, service string) bool
}

// CacheGatedLoader refuses to load a task whose models are not cached.
type CacheGatedLoader struct {
	Next    Loader
	Checker ServiceChecker
}

func (g CacheGatedLoader) Load(ctx context.Context, task string, progress func(float64)) (string, error) {
	if g.Checker != nil && !g.Checker.IsServiceReady(ctx, task) {
		return "", ErrDependencyUnavailable("models for " + task + " are not cached; download them first")
	}
	return g.Next.Load(ctx, task, progress)
}
