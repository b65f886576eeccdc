package http

import "time"

// chatRateLimit caps chat messages per connection per minute.
const chatRateLimit = 60

// rateLimiter is a fixed-window counter. It is owned by a single read
// loop, so no locking happens here.
type rateLimiter struct {
	limit   int
	counter int
	window  time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{limit: limit}
}

// allow consumes one slot; a limit of zero disables the limiter.
func (r *rateLimiter) allow(now time.Time) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	if now.Sub(r.window) >= time.Minute {
		r.window = now
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}
