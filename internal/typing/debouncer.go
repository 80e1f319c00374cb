// Package typing collapses a stream of raw keystroke-level typing
// signals into coarse started/stopped transitions using a trailing
// timeout.
package typing

import (
	"sync"
	"time"
)

// DefaultTimeout is the trailing quiet period after the last signal
// before a stop transition is emitted.
const DefaultTimeout = 3500 * time.Millisecond

type key struct {
	chatID string
	userID string
}

type state struct {
	typing       bool
	lastActivity time.Time
	timer        *time.Timer
}

// EmitFunc receives the coarse transitions. typing=true is emitted once
// per burst, typing=false once the burst ends or is flushed. Called
// with the debouncer lock held; it must not call back into the
// debouncer.
type EmitFunc func(chatID, userID string, typing bool)

// Debouncer runs one two-state machine per (conversation, user) pair.
// Each new signal replaces the pending timer outright, so a superseded
// timer can never fire a spurious stop after continued activity.
type Debouncer struct {
	mu      sync.Mutex
	timeout time.Duration
	emit    EmitFunc
	states  map[key]*state
	now     func() time.Time
}

func New(timeout time.Duration, emit EmitFunc) *Debouncer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Debouncer{
		timeout: timeout,
		emit:    emit,
		states:  make(map[key]*state),
		now:     time.Now,
	}
}

// Signal records one raw typing signal. The first signal of a burst
// emits a start transition; every signal refreshes the trailing timer.
func (d *Debouncer) Signal(chatID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := key{chatID: chatID, userID: userID}
	st, ok := d.states[k]
	if !ok {
		st = &state{}
		d.states[k] = st
	}

	if !st.typing {
		st.typing = true
		d.emit(chatID, userID, true)
	}
	st.lastActivity = d.now()

	// Replace, not skip: the old timer must be cancelled so it cannot
	// fire a stale stop.
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(d.timeout, func() {
		d.expire(k)
	})
}

// Flush forces an immediate stop transition, independent of the timer.
// Used when a message is sent mid-burst. Reports whether a stop was
// emitted; no-op (false) when not typing.
func (d *Debouncer) Flush(chatID, userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := key{chatID: chatID, userID: userID}
	st, ok := d.states[k]
	if !ok || !st.typing {
		return false
	}

	if st.timer != nil {
		st.timer.Stop()
	}
	delete(d.states, k)
	d.emit(chatID, userID, false)
	return true
}

// Stop cancels all pending timers without emitting anything. Used on
// conversation switch and disconnect.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k, st := range d.states {
		if st.timer != nil {
			st.timer.Stop()
		}
		delete(d.states, k)
	}
}

func (d *Debouncer) expire(k key) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.states[k]
	if !ok || !st.typing {
		return
	}

	// A timer that lost the race to a newer signal sees fresh activity
	// and backs off; the replacement timer is already scheduled.
	if d.now().Sub(st.lastActivity) < d.timeout {
		return
	}

	delete(d.states, k)
	d.emit(k.chatID, k.userID, false)
}
