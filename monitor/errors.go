package monitor

import "fmt"

// panicf reports a registry contract violation. These are lifecycle bugs, so
// they are never returned as errors.
func panicf(msg string, args ...interface{}) {
	panic(fmt.Sprintf(msg, args...))
}
