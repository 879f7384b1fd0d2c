package sync

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// requestPacer paces outbound peer requests with a token bucket and a
// small burst, plus a much harsher wait injected after a failed request
// so a misbehaving or overloaded peer doesn't get hammered immediately
// after tripping an error.
type requestPacer struct {
	limiter *rate.Limiter
}

// newRequestPacer builds a pacer allowing one request per interval with
// the given burst. A nil *requestPacer (via newRequestPacer with
// interval <= 0) disables pacing entirely, which is what every streamer
// does in tests.
func newRequestPacer(interval time.Duration, burst int) *requestPacer {
	if interval <= 0 {
		return nil
	}
	return &requestPacer{limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

func (p *requestPacer) wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// backoff counts a failure as the equivalent of many requests (capped at
// the limiter's burst), so the next request made through this pacer is
// delayed without a separate timer.
func (p *requestPacer) backoff(ctx context.Context, asRequests int) error {
	if p == nil {
		return nil
	}
	if burst := p.limiter.Burst(); asRequests > burst {
		asRequests = burst
	}
	return p.limiter.WaitN(ctx, asRequests)
}
