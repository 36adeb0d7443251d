package common

import "time"

const (
	// DefaultPollInterval bounds every blocking wait in the relay engines. It
	// is the worst-case latency between a shutdown signal and a worker
	// noticing it.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultBacklog is the listen(2) backlog of the TCP relay listener.
	DefaultBacklog = 100

	// BufferSize is the largest chunk a pump reads before forwarding. It is
	// also large enough to hold any UDP datagram.
	BufferSize = 64 * 1024

	// DefaultDrainTimeout is how long the dispatcher waits for workers to
	// finish after shutdown is signalled.
	DefaultDrainTimeout = time.Second

	// DefaultConnectTimeout bounds a single outbound dial to the original
	// server.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultLogLevel is used when neither the flags nor the config file set
	// one.
	DefaultLogLevel = "info"
)
