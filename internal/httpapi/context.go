package httpapi

import (
	"context"
	"net/http"
)

// daemonCtx is canceled when the daemon begins shutdown. Handlers derive
// their working context from it so in-flight state operations stop with
// the process.
var daemonCtx = context.Background()

// SetBaseContext installs the shutdown context. A nil ctx restores the
// default Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	daemonCtx = ctx
}

// handlerContext derives a context from the request that is additionally
// canceled on daemon shutdown. The returned cancel must be called when the
// handler returns.
func handlerContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(daemonCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
