package actorify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := New(ctx, func(_ context.Context, n int) (int, error) {
		return n * 2, nil
	})

	got, err := a.Call(ctx, 21)
	if err != nil {
		t.Fatal(err)
	}

	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestCallPropagatesError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errBoom := errors.New("boom")
	a := New(ctx, func(_ context.Context, _ string) (string, error) {
		return "", errBoom
	})

	if _, err := a.Call(ctx, "x"); !errors.Is(err, errBoom) {
		t.Fatalf("got %v, want %v", err, errBoom)
	}
}

func TestCallsNeverOverlap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inFlight, maxInFlight int32
	a := New(ctx, func(_ context.Context, _ int) (struct{}, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return struct{}{}, nil
	})

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Call(ctx, i); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&maxInFlight); got != 1 {
		t.Errorf("max concurrent calls = %d, want 1", got)
	}
}

func TestCallAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	a := New(ctx, func(_ context.Context, n int) (int, error) {
		return n, nil
	})

	cancel()
	<-a.Done()

	if _, err := a.Call(context.Background(), 1); !errors.Is(err, ErrActorDied) {
		t.Fatalf("got %v, want %v", err, ErrActorDied)
	}
}

func TestCallContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	a := New(ctx, func(_ context.Context, _ int) (int, error) {
		<-release
		return 0, nil
	})
	defer close(release)

	// Occupy the actor so the second call has to wait.
	go a.Call(ctx, 0)

	callCtx, callCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer callCancel()

	if _, err := a.Call(callCtx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want %v", err, context.DeadlineExceeded)
	}
}
