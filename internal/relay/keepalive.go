package relay

import (
	"context"
	"sync"
	"time"
)

// DefaultTypingInterval is how often the typing indicator is refreshed.
const DefaultTypingInterval = 3 * time.Second

// KeepAlive repeats a cosmetic signal until stopped. Obtain one with
// StartKeepAlive and release it with Stop on every exit path.
type KeepAlive struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartKeepAlive fires signal once right away, then every interval until
// Stop is called or ctx ends. Every signal runs on the loop goroutine, so
// the caller never waits on one. Signal errors are the caller's concern.
func StartKeepAlive(ctx context.Context, interval time.Duration, signal func(context.Context)) *KeepAlive {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	loopCtx, cancel := context.WithCancel(ctx)
	k := &KeepAlive{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(k.done)
		if loopCtx.Err() != nil {
			return
		}
		signal(loopCtx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if loopCtx.Err() != nil {
					return
				}
				signal(loopCtx)
			}
		}
	}()
	return k
}

// Stop prevents further signals. It does not wait for a signal already in
// flight and is safe to call more than once.
func (k *KeepAlive) Stop() {
	if k == nil {
		return
	}
	k.once.Do(k.cancel)
}

// Done is closed once the repeat loop has exited.
func (k *KeepAlive) Done() <-chan struct{} {
	return k.done
}
