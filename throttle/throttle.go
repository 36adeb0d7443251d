// Package throttle delays forwarded data so that a relay never exceeds a fixed
// byte rate. Every delay is computed per chunk and is not pooled across
// chunks, directions or connections.
package throttle

import (
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Unlimited disables throttling.
const Unlimited Rate = 0

// ErrInvalidRate is returned for rates that are negative, NaN or infinite.
var ErrInvalidRate = errors.New("invalid bandwidth")

// Rate is a bandwidth in bytes per second.
type Rate float64

// Shutdowner is polled between sleep increments.
type Shutdowner interface {
	IsShutdown() bool
}

// ParseRate parses a bandwidth in bytes per second. The empty string means
// Unlimited; any other value must be positive.
func ParseRate(s string) (Rate, error) {
	if s == "" {
		return Unlimited, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Unlimited, errors.Wrapf(ErrInvalidRate, "%q", s)
	}
	r := Rate(f)
	if err := r.Validate(); err != nil {
		return Unlimited, err
	}
	if !r.Limited() {
		return Unlimited, errors.Wrapf(ErrInvalidRate, "%q: must be positive", s)
	}
	return r, nil
}

// Validate rejects rates that cannot be turned into a delay.
func (r Rate) Validate() error {
	f := float64(r)
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return errors.Wrapf(ErrInvalidRate, "%v bytes/s", f)
	}
	return nil
}

// Limited reports whether r throttles anything.
func (r Rate) Limited() bool {
	return r > 0
}

func (r Rate) String() string {
	if !r.Limited() {
		return "unlimited"
	}
	return strconv.FormatFloat(float64(r), 'f', -1, 64) + " B/s"
}

// Delay is how long forwarding n bytes takes at rate r.
func Delay(n int, r Rate) time.Duration {
	if !r.Limited() || n <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(r) * float64(time.Second))
}

// Sleep waits for d in increments no longer than pollInterval and returns
// early once s reports shutdown. It reports whether the full duration
// elapsed. A non-positive pollInterval sleeps uninterrupted.
func Sleep(s Shutdowner, d time.Duration, pollInterval time.Duration) bool {
	if d <= 0 {
		return true
	}
	if pollInterval <= 0 {
		time.Sleep(d)
		return true
	}
	start := time.Now()
	for {
		elapsed := time.Since(start)
		if elapsed >= d {
			return true
		}
		step := d - elapsed
		if step > pollInterval {
			step = pollInterval
		}
		time.Sleep(step)
		if s.IsShutdown() {
			return time.Since(start) >= d
		}
	}
}

// Wait applies the rate limit to a chunk of n bytes. It returns immediately
// when r is Unlimited.
func Wait(s Shutdowner, n int, r Rate, pollInterval time.Duration) bool {
	return Sleep(s, Delay(n, r), pollInterval)
}
