package widgets

import (
	"context"
	"time"
)

// AwaitKernel resolves the next usable kernel from src. A kernel that is
// already connected resolves immediately; otherwise the call blocks until one
// connects. Kernel loss while waiting is not an error: the wait simply keeps
// going until a connection, the timeout, or ctx ends it. A timeout of 0 means
// wait forever.
func AwaitKernel(ctx context.Context, src KernelSource, timeout time.Duration) (Kernel, error) {
	if k, ok := src.CurrentKernel(); ok {
		return k, nil
	}
	ch := make(chan Kernel, 1)
	cancel := src.OnKernelConnected(func(k Kernel) {
		select {
		case ch <- k:
		default:
		}
	})
	defer cancel()
	// Re-check after subscribing: a kernel may have connected in between.
	if k, ok := src.CurrentKernel(); ok {
		return k, nil
	}
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutCh = t.C
	}
	select {
	case k := <-ch:
		return k, nil
	case <-timeoutCh:
		return nil, ErrKernelWaitTimeout()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
