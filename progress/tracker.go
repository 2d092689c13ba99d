// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package progress

import (
	"math"
	"sync"
)

const (
	// NotStarted is the progress of a tracker that has never been reset.
	NotStarted = -1.0
	// Done is the progress after EndAll.
	Done = 1.0

	// maxTaskEnd keeps a nested task from ever reporting completion; only
	// EndAll reaches Done.
	maxTaskEnd = 0.99

	queueSize = 64
)

// Snapshot is a point-in-time copy of a tracker's state.
type Snapshot struct {
	Progress     float64
	Depth        int
	Working      bool
	Updated      bool
	FailedUpdate bool
}

// Observer is notified with a fresh Snapshot after every mutation. Observers
// run on the tracker's goroutine and must not call back into the tracker.
type Observer func(Snapshot)

type frame struct {
	start      float64
	end        float64
	multiplier float64
}

type state struct {
	progress     float64
	stack        []frame
	working      bool
	updated      bool
	failedUpdate bool
	observers    []Observer
}

type op struct {
	apply  func(*state)
	notify bool
}

// Tracker accumulates progress over a stack of nested tasks. Every mutation is
// queued to a single goroutine that owns the state, so callers on any
// goroutine never block on rendering and always observe their own writes
// through Snapshot.
//
// All methods are safe on a nil *Tracker and do nothing.
type Tracker struct {
	ops  chan op
	done chan struct{}

	// mu guards closed and orders sends against Close.
	mu     sync.RWMutex
	closed bool
	final  Snapshot
}

func New(observers ...Observer) *Tracker {
	t := &Tracker{
		ops:  make(chan op, queueSize),
		done: make(chan struct{}),
	}
	s := &state{
		progress:  NotStarted,
		observers: observers,
	}
	go t.run(s)
	return t
}

func (t *Tracker) run(s *state) {
	defer close(t.done)

	for o := range t.ops {
		o.apply(s)
		if o.notify {
			snapshot := s.snapshot()
			for _, observer := range s.observers {
				observer(snapshot)
			}
		}
	}
	t.final = s.snapshot()
}

func (t *Tracker) enqueue(o op) bool {
	if t == nil {
		return false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return false
	}
	t.ops <- o
	return true
}

func (t *Tracker) mutate(f func(*state)) {
	t.enqueue(op{apply: f, notify: true})
}

// Observe registers another observer.
func (t *Tracker) Observe(o Observer) {
	t.enqueue(op{apply: func(s *state) {
		s.observers = append(s.observers, o)
	}})
}

// Reset sets progress to 0 and clears the task stack and every flag.
func (t *Tracker) Reset() {
	t.mutate(func(s *state) {
		s.reset()
	})
}

// TryStart resets the tracker and marks it working, unless it is already
// working, in which case it returns false and changes nothing.
func (t *Tracker) TryStart() bool {
	if t == nil {
		return false
	}

	reply := make(chan bool, 1)
	ok := t.enqueue(op{
		apply: func(s *state) {
			if s.working {
				reply <- false
				return
			}
			s.reset()
			s.working = true
			reply <- true
		},
		notify: true,
	})
	if !ok {
		return false
	}
	return <-reply
}

// BeginTask pushes a task that will occupy share of its parent's range. It is
// a no-op until the tracker has been started.
func (t *Tracker) BeginTask(share float64) {
	t.mutate(func(s *state) {
		if s.progress < 0 {
			return
		}

		multiplier := clamp(share, 0, 1)
		if n := len(s.stack); n > 0 {
			multiplier *= s.stack[n-1].multiplier
		}
		end := math.Max(s.progress, math.Min(s.progress+multiplier, maxTaskEnd))
		s.stack = append(s.stack, frame{
			start:      s.progress,
			end:        end,
			multiplier: multiplier,
		})
	})
}

// EndTask pops the innermost task and moves progress to its end.
func (t *Tracker) EndTask() {
	t.mutate(func(s *state) {
		n := len(s.stack)
		if n == 0 {
			return
		}
		top := s.stack[n-1]
		s.stack = s.stack[:n-1]
		s.progress = top.end
	})
}

// Advance moves progress to the given fraction of the innermost task. Progress
// never moves backwards.
func (t *Tracker) Advance(fraction float64) {
	t.mutate(func(s *state) {
		n := len(s.stack)
		if n == 0 || s.progress < 0 {
			return
		}
		top := s.stack[n-1]
		p := math.Min(top.start+clamp(fraction, 0, 1)*top.multiplier, top.end)
		if p > s.progress {
			s.progress = p
		}
	})
}

// EndAll completes every open task, sets progress to Done and clears working.
func (t *Tracker) EndAll() {
	t.mutate(func(s *state) {
		s.stack = nil
		s.progress = Done
		s.working = false
	})
}

func (t *Tracker) SetWorking(working bool) {
	t.mutate(func(s *state) {
		s.working = working
	})
}

func (t *Tracker) SetUpdated(updated bool) {
	t.mutate(func(s *state) {
		s.updated = updated
	})
}

func (t *Tracker) SetFailedUpdate(failed bool) {
	t.mutate(func(s *state) {
		s.failedUpdate = failed
	})
}

// Snapshot returns the state after every mutation queued before the call.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{Progress: NotStarted}
	}

	reply := make(chan Snapshot, 1)
	ok := t.enqueue(op{apply: func(s *state) {
		reply <- s.snapshot()
	}})
	if !ok {
		<-t.done
		return t.final
	}
	return <-reply
}

func (t *Tracker) Progress() float64 {
	return t.Snapshot().Progress
}

func (t *Tracker) IsWorking() bool {
	return t.Snapshot().Working
}

// Close drains queued mutations and stops the tracker goroutine. Later
// mutations are dropped and Snapshot keeps returning the final state.
func (t *Tracker) Close() {
	if t == nil {
		return
	}

	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.ops)
	}
	t.mu.Unlock()

	<-t.done
}

func (s *state) reset() {
	s.progress = 0
	s.stack = nil
	s.working = false
	s.updated = false
	s.failedUpdate = false
}

func (s *state) snapshot() Snapshot {
	return Snapshot{
		Progress:     s.progress,
		Depth:        len(s.stack),
		Working:      s.working,
		Updated:      s.updated,
		FailedUpdate: s.failedUpdate,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
