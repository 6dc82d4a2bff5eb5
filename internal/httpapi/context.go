package httpapi

import (
	"context"
	"net/http"
	"sync"
)

var (
	baseMu  sync.RWMutex
	baseCtx = context.Background()
)

// SetBaseContext installs the process context. Canceling it ends event
// streams and background download batches. nil restores Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	baseMu.Lock()
	baseCtx = ctx
	baseMu.Unlock()
}

func baseContext() context.Context {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return baseCtx
}

// streamContext derives from the request context and is also canceled when
// the process context is done.
func streamContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(baseContext(), cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
