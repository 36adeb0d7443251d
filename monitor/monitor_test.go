package monitor

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"go.uber.org/goleak"
	"gotest.tools/assert"
	is "gotest.tools/assert/cmp"
)

const pollInterval = 10 * time.Millisecond

type countingCloser struct {
	closes int32
}

func (c *countingCloser) Close() error {
	atomic.AddInt32(&c.closes, 1)
	return nil
}

func (c *countingCloser) count() int32 {
	return atomic.LoadInt32(&c.closes)
}

// untilShutdown is the shape of every relay loop: poll, recheck the signal.
func untilShutdown(t *Task) error {
	for !t.IsShutdown() {
		time.Sleep(pollInterval)
	}
	return nil
}

func TestSpawnAndDrain(t *testing.T) {
	defer goleak.VerifyNone(t)
	logrus.SetLevel(logrus.TraceLevel)

	m := New()
	for i := 0; i < 8; i++ {
		m.Spawn("worker", untilShutdown)
	}
	tasks, sockets := m.Stats()
	assert.Equal(t, 8, tasks)
	assert.Equal(t, 0, sockets)

	assert.Assert(t, !m.Drain(5*pollInterval), "drain must not succeed before shutdown")

	m.SignalShutdown()
	assert.Assert(t, m.Drain(time.Second))

	tasks, sockets = m.Stats()
	assert.Equal(t, 0, tasks)
	assert.Equal(t, 0, sockets)
}

func TestDrainSeesTasksSpawnedWhileDraining(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New()
	m.Spawn("parent", func(task *Task) error {
		err := untilShutdown(task)
		task.Spawn("late child", func(*Task) error {
			time.Sleep(5 * pollInterval)
			return nil
		})
		return err
	})

	m.SignalShutdown()
	assert.Assert(t, m.Drain(time.Second))
	tasks, _ := m.Stats()
	assert.Equal(t, 0, tasks)
}

func TestDrainTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New()
	release := make(chan struct{})
	stuck := m.Spawn("stuck", func(*Task) error {
		<-release
		return nil
	})

	m.SignalShutdown()
	start := time.Now()
	assert.Assert(t, !m.Drain(5*pollInterval))
	assert.Assert(t, time.Since(start) >= 5*pollInterval)
	assert.Assert(t, stuck.Err() == nil)

	close(release)
	assert.Assert(t, m.Drain(time.Second))
}

func TestDrainExcludesCaller(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New()
	m.Spawn("sibling", untilShutdown)
	drained := make(chan bool, 1)
	m.Spawn("drainer", func(task *Task) error {
		m.SignalShutdown()
		drained <- task.Drain(time.Second)
		return nil
	})

	assert.Assert(t, <-drained)
	assert.Assert(t, m.Drain(time.Second))
}

func TestTaskErrorIsCaptured(t *testing.T) {
	defer goleak.VerifyNone(t)

	errBoom := errors.New("boom")
	m := New()
	task := m.Spawn("failing", func(*Task) error {
		return errBoom
	})

	assert.Assert(t, task.Wait(time.Second))
	assert.Assert(t, errors.Is(task.Err(), errBoom))
	assert.Assert(t, m.Drain(time.Second))
}

func TestIDsAreNeverReused(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New()
	seen := make(map[TaskID]bool)
	for i := 0; i < 10; i++ {
		task := m.Spawn("short", func(*Task) error { return nil })
		assert.Assert(t, !seen[task.ID()], "task id %d reused", task.ID())
		assert.Assert(t, task.ID() != RootTaskID)
		seen[task.ID()] = true
		assert.Assert(t, m.Drain(time.Second))
	}

	first := m.RegisterSocket(&countingCloser{})
	assert.NilError(t, m.CloseSocket(first))
	second := m.RegisterSocket(&countingCloser{})
	assert.Assert(t, first != second)
	assert.NilError(t, m.CloseSocket(second))
}

func TestCloseSocketIsIdempotent(t *testing.T) {
	m := New()
	c := &countingCloser{}
	id := m.RegisterSocket(c)

	_, sockets := m.Stats()
	assert.Equal(t, 1, sockets)

	assert.NilError(t, m.CloseSocket(id))
	assert.NilError(t, m.CloseSocket(id))
	assert.Equal(t, int32(1), c.count())

	_, sockets = m.Stats()
	assert.Equal(t, 0, sockets)
}

func TestCloseSocketIsIdempotentAcrossTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New()
	c := &countingCloser{}
	var id SocketID
	registered := make(chan struct{})
	m.Spawn("owner", func(task *Task) error {
		id = task.RegisterSocket(c)
		close(registered)
		return untilShutdown(task)
	})
	<-registered

	for i := 0; i < 4; i++ {
		m.Spawn("closer", func(task *Task) error {
			return task.CloseSocket(id)
		})
	}
	m.SignalShutdown()
	assert.Assert(t, m.Drain(time.Second))
	assert.Equal(t, int32(1), c.count())
}

func TestRegistryContractViolationsPanic(t *testing.T) {
	m := New()
	assert.Assert(t, is.Panics(func() { _ = m.CloseSocket(SocketID(42)) }))
	assert.Assert(t, is.Panics(func() { m.Spawn("nil work", nil) }))
	assert.Assert(t, is.Panics(func() { m.RegisterSocket(nil) }))

	task := m.Spawn("short", func(*Task) error { return nil })
	assert.Assert(t, m.Drain(time.Second))
	assert.Assert(t, is.Panics(func() { task.RegisterSocket(&countingCloser{}) }))
}

func TestSignalShutdownIsIdempotent(t *testing.T) {
	m := New()
	assert.Assert(t, !m.IsShutdown())
	assert.Assert(t, m.Context().Err() == nil)

	for i := 0; i < 3; i++ {
		m.SignalShutdown()
		assert.Assert(t, m.IsShutdown())
	}
	assert.Assert(t, errors.Is(m.Context().Err(), context.Canceled))
}

func TestWaitForUpdates(t *testing.T) {
	m := New()
	assert.Assert(t, !m.WaitForUpdates(pollInterval))

	id := m.RegisterSocket(&countingCloser{})
	assert.Assert(t, m.WaitForUpdates(pollInterval))

	u := m.Updates()
	assert.DeepEqual(t, u.Added, []SocketID{id})
	assert.Assert(t, !m.WaitForUpdates(pollInterval))

	assert.NilError(t, m.CloseSocket(id))
	u = m.Updates()
	assert.DeepEqual(t, u.Closed, []SocketID{id})
}

func TestWaitForUpdatesWakesOnSpawn(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New()
	woke := make(chan bool, 1)
	go func() {
		woke <- m.WaitForUpdates(10 * time.Second)
	}()
	time.Sleep(pollInterval)

	start := time.Now()
	m.Spawn("short", func(*Task) error { return nil })
	assert.Assert(t, <-woke)
	assert.Assert(t, time.Since(start) < time.Second)
	assert.Assert(t, m.Drain(time.Second))
}

func TestWatchReapsFinishedTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New()
	stop := make(chan struct{})
	watching := make(chan struct{})
	go func() {
		defer close(watching)
		m.Watch(pollInterval, stop)
	}()

	task := m.Spawn("short", func(*Task) error { return nil })
	assert.Assert(t, task.Wait(time.Second))

	deadline := time.Now().Add(time.Second)
	for {
		tasks, _ := m.Stats()
		if tasks == 0 {
			break
		}
		assert.Assert(t, time.Now().Before(deadline), "watch never reaped task %d", task.ID())
		time.Sleep(pollInterval)
	}

	close(stop)
	<-watching
}

func TestSnapshot(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	lid := m.RegisterSocket(l)

	release := make(chan struct{})
	worker := m.Spawn("worker", func(*Task) error {
		<-release
		return nil
	})
	failed := m.Spawn("failed", func(*Task) error {
		return errors.New("refused")
	})
	assert.Assert(t, failed.Wait(time.Second))

	expected := Snapshot{
		Tasks: []TaskInfo{
			{ID: RootTaskID, Name: "root", Running: true},
			{ID: worker.ID(), Name: "worker", Running: true},
			{ID: failed.ID(), Name: "failed", Running: false, Error: "refused"},
		},
		Sockets: []SocketInfo{
			{ID: lid, Owner: RootTaskID, Description: "tcp listen " + l.Addr().String()},
		},
	}
	if diff := cmp.Diff(expected, m.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	close(release)
	m.SignalShutdown()
	assert.Assert(t, m.Drain(time.Second))
	assert.NilError(t, m.CloseSocket(lid))

	snap := m.Snapshot()
	assert.Assert(t, snap.Shutdown)
	assert.Equal(t, 1, len(snap.Tasks))
	assert.Equal(t, 0, len(snap.Sockets))
}

func TestCloseAllSockets(t *testing.T) {
	m := New()
	a, b := &countingCloser{}, &countingCloser{}
	m.RegisterSocket(a)
	id := m.RegisterSocket(b)
	assert.NilError(t, m.CloseSocket(id))

	assert.Equal(t, 1, m.CloseAllSockets())
	assert.Equal(t, int32(1), a.count())
	assert.Equal(t, int32(1), b.count())
	assert.Equal(t, 0, m.CloseAllSockets())
}
