// This file is part of FPBInject.
//
// FPBInject is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// FPBInject is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with FPBInject.  If not, see <https://www.gnu.org/licenses/>.

// Package worker serialises access to a single serial.Port behind one
// goroutine, per spec.md §5 ("a single dedicated device worker owns the
// serial port; every serial send/receive is dispatched to it as a closure
// ... other workers never touch the serial directly").
package worker

import (
	"context"

	"github.com/hotpatch/fl/curated"
)

// job is a closure submitted to the worker, paired with a channel the
// caller blocks on for the result.
type job struct {
	run  func() error
	done chan error
}

// Worker owns exclusive access to whatever device handle its jobs close
// over (typically a *serial.Port); callers never touch that handle
// directly, only Submit closures that do.
type Worker struct {
	jobs     chan job
	shutdown chan struct{}
	stopped  chan struct{}

	onJobDone func() // set by Monitor.Start; notified after every completed job
}

// New starts a worker goroutine with the given submission queue depth.
func New(queueDepth int) *Worker {
	w := &Worker{
		jobs:     make(chan job, queueDepth),
		shutdown: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer close(w.stopped)
	for {
		select {
		case j := <-w.jobs:
			j.done <- j.run()
			if w.onJobDone != nil {
				w.onJobDone()
			}
		case <-w.shutdown:
			// long transfers are uninterruptible once a chunk is in
			// flight (spec.md §5); we only stop accepting new jobs,
			// draining whatever is already queued is the caller's choice
			// via Submit returning an error once shutdown is observed.
			return
		}
	}
}

// Submit runs fn on the worker goroutine and blocks until it completes or
// ctx is cancelled first. Submitting after Shutdown returns a curated
// error without running fn.
func (w *Worker) Submit(ctx context.Context, fn func() error) error {
	// checked ahead of the send below: once shut down, the loop goroutine
	// has exited and nothing will ever drain w.jobs, so a select racing
	// the two channels could otherwise wrongly pick the (buffered, still
	// "sendable") jobs branch and hang forever waiting on j.done.
	select {
	case <-w.shutdown:
		return curated.Errorf(curated.DeviceError, "worker shut down")
	default:
	}

	j := job{run: fn, done: make(chan error, 1)}

	select {
	case w.jobs <- j:
	case <-w.shutdown:
		return curated.Errorf(curated.DeviceError, "worker shut down")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown signals the worker to stop accepting new jobs between commands
// (spec.md §5: "workers observe a shutdown signal between commands") and
// waits for the goroutine to exit.
func (w *Worker) Shutdown() {
	close(w.shutdown)
	<-w.stopped
}
