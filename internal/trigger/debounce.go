package trigger

import (
	"context"
	"time"
)

// Debounce calls fn once per burst of signals on in. A burst starts with the
// first signal and ends wait later; signals arriving inside it are absorbed.
// Debounce returns when ctx is done or in is closed.
func Debounce(ctx context.Context, in <-chan struct{}, wait time.Duration, fn func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-in:
			if !ok {
				return
			}
		}

		timer := time.NewTimer(wait)
	burst:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case _, ok := <-in:
				if !ok {
					in = nil
				}
			case <-timer.C:
				break burst
			}
		}

		fn(ctx)
		if in == nil {
			return
		}
	}
}
