package common

import (
	"sync/atomic"
	"time"
)

type AtomicBool int32

func (b *AtomicBool) IsSet() bool { return atomic.LoadInt32((*int32)(b)) != 0 }
func (b *AtomicBool) SetTrue()    { atomic.StoreInt32((*int32)(b), 1) }

// TrySet sets the flag and reports whether this call was the one that changed
// it.
func (b *AtomicBool) TrySet() bool {
	return atomic.CompareAndSwapInt32((*int32)(b), 0, 1)
}

// AtomicTime is a point in time that can be read and written concurrently.
// The zero value is the zero time.
type AtomicTime int64

func (t *AtomicTime) Store(v time.Time) {
	atomic.StoreInt64((*int64)(t), v.UnixNano())
}

// Touch records the current time.
func (t *AtomicTime) Touch() { t.Store(time.Now()) }

func (t *AtomicTime) Load() time.Time {
	n := atomic.LoadInt64((*int64)(t))
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Since returns the time elapsed since the stored time.
func (t *AtomicTime) Since() time.Duration {
	return time.Since(t.Load())
}
