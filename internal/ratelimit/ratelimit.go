// Package ratelimit throttles data-channel reads to a fixed byte rate.
//
// It wraps golang.org/x/time/rate with a burst of one second worth of data,
// so short bursts pass through while the average rate holds.
package ratelimit

import (
	"context"
	"io"
	"math"

	"golang.org/x/time/rate"
)

// Limiter limits transfer speed to a number of bytes per second.
// A nil *Limiter imposes no limit.
type Limiter struct {
	lim   *rate.Limiter
	burst int
}

// New creates a limiter for the given rate. A rate of zero or less returns
// nil, which NewReader treats as unlimited.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}

	burst := bytesPerSecond
	if burst > math.MaxInt32 {
		burst = math.MaxInt32
	}
	return &Limiter{
		lim:   rate.NewLimiter(rate.Limit(bytesPerSecond), int(burst)),
		burst: int(burst),
	}
}

// Burst returns the largest number of bytes a single read may consume.
func (l *Limiter) Burst() int {
	if l == nil {
		return 0
	}
	return l.burst
}

type reader struct {
	ctx     context.Context
	r       io.Reader
	limiter *Limiter
}

// NewReader returns a reader that blocks as needed to respect the limiter.
// Waiting is abandoned when ctx is done. If limiter is nil, r is returned
// unchanged.
func NewReader(ctx context.Context, r io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &reader{ctx: ctx, r: r, limiter: limiter}
}

// Read implements io.Reader. Tokens are charged for the bytes actually read,
// after the read returns.
func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if burst := r.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}

	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.limiter.lim.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
