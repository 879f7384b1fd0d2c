package sync

import "context"

// recvExpectation reads the next expectation off ch, returning ok=false if
// ctx is cancelled or the channel is closed before a value arrives. Every
// per-item streamer (everything but headers) is driven by one of these
// channels instead of knowing block shapes itself -- the caller, which has
// access to chain state this package deliberately doesn't, is the only one
// who can say how many items and what commitment a block should have.
func recvExpectation[T any](ctx context.Context, ch <-chan T) (T, bool) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, false
	case v, ok := <-ch:
		if !ok {
			return zero, false
		}
		return v, true
	}
}
