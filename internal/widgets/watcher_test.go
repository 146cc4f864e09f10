package widgets

import (
	"context"
	"testing"
	"time"
)

func TestAwaitKernelImmediate(t *testing.T) {
	src := newFakeSource()
	k := newFakeKernel("k1")
	src.connect(k)

	got, err := AwaitKernel(context.Background(), src, 0)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if got.ID() != "k1" {
		t.Fatalf("unexpected kernel: %s", got.ID())
	}
}

func TestAwaitKernelResolvesOnNextConnect(t *testing.T) {
	src := newFakeSource()
	done := make(chan Kernel, 1)
	go func() {
		k, err := AwaitKernel(context.Background(), src, 5*time.Second)
		if err != nil {
			done <- nil
			return
		}
		done <- k
	}()

	time.Sleep(20 * time.Millisecond)
	src.connect(newFakeKernel("k2"))

	select {
	case k := <-done:
		if k == nil || k.ID() != "k2" {
			t.Fatalf("unexpected kernel: %v", k)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("await did not resolve")
	}
}

func TestAwaitKernelTimeout(t *testing.T) {
	src := newFakeSource()
	_, err := AwaitKernel(context.Background(), src, 30*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout")
	}
	if !IsKernelWaitTimeout(err) {
		t.Fatalf("expected kernel wait timeout, got %v", err)
	}
	// The one-shot subscription must be released on the way out.
	src.mu.Lock()
	subs, cancelled := len(src.subs), src.cancelled
	src.mu.Unlock()
	if subs != 0 || cancelled != 1 {
		t.Fatalf("subscription leaked: subs=%d cancelled=%d", subs, cancelled)
	}
}

func TestAwaitKernelContextCancel(t *testing.T) {
	src := newFakeSource()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := AwaitKernel(ctx, src, 0)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAwaitKernelSurvivesKernelLoss(t *testing.T) {
	src := newFakeSource()
	done := make(chan Kernel, 1)
	go func() {
		k, _ := AwaitKernel(context.Background(), src, 5*time.Second)
		done <- k
	}()

	// A disconnect while waiting is not an error; the wait keeps going
	// until the next kernel shows up.
	time.Sleep(20 * time.Millisecond)
	src.disconnect()
	time.Sleep(20 * time.Millisecond)
	src.connect(newFakeKernel("k3"))

	select {
	case k := <-done:
		if k == nil || k.ID() != "k3" {
			t.Fatalf("unexpected kernel: %v", k)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("await did not resolve after reconnect")
	}
}
