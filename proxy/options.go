// Package proxy contains the directional pumps that move bytes between
// sockets: Reliable for stream connections and Unreliable for the return path
// of a UDP pseudo-session.
package proxy

import (
	"os"
	"time"

	"github.com/pkg/errors"

	"hop.computer/throttle/common"
	"hop.computer/throttle/throttle"
)

// Options are shared by every pump of one engine.
type Options struct {
	// Rate is applied to each chunk before it is forwarded.
	Rate throttle.Rate

	// PollInterval bounds every read, write and throttle sleep.
	PollInterval time.Duration

	// IdleTimeout stops a stream relay after both directions have been
	// silent this long. Zero disables it.
	IdleTimeout time.Duration

	// BufferSize is the largest chunk read at once.
	BufferSize int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = common.DefaultPollInterval
	}
	if o.BufferSize <= 0 {
		o.BufferSize = common.BufferSize
	}
	return o
}

func isTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}
