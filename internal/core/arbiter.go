package core

import (
	"sync"
	"time"
)

// TurnArbiter orders turn requests for one session and grants exclusive
// input rights to the head of the queue. At most one user has HasTurn
// true at any time; that invariant is this type's exclusive
// responsibility (spec §4.6).
type TurnArbiter struct {
	mu       sync.Mutex
	queue    []*User
	holder   *User
	timer    *time.Timer
	duration time.Duration
}

// NewTurnArbiter builds an arbiter that expires a held turn after
// duration. A zero duration disables expiry (the holder keeps the turn
// until disconnect or a forced promote).
func NewTurnArbiter(duration time.Duration) *TurnArbiter {
	return &TurnArbiter{duration: duration}
}

// Request appends u to the queue if not already present, then promotes
// the head if nobody currently holds the turn.
func (a *TurnArbiter) Request(u *User) {
	a.mu.Lock()
	for _, queued := range a.queue {
		if queued == u {
			a.mu.Unlock()
			return
		}
	}
	a.queue = append(a.queue, u)
	shouldPromote := a.holder == nil
	a.mu.Unlock()

	if shouldPromote {
		a.promote()
	}
}

// promote pops the head of the queue, grants it the turn, and schedules
// an expiry timer. Called with the lock not held.
func (a *TurnArbiter) promote() {
	a.mu.Lock()
	if len(a.queue) == 0 {
		a.holder = nil
		a.mu.Unlock()
		return
	}

	next := a.queue[0]
	a.queue = a.queue[1:]
	a.holder = next

	if a.timer != nil {
		a.timer.Stop()
	}
	var timer *time.Timer
	if a.duration > 0 {
		timer = time.AfterFunc(a.duration, a.expire)
	}
	a.timer = timer
	a.mu.Unlock()

	next.setHasTurn(true)
	next.setRequestedTurn(false)
}

// expire is invoked by the timer when the current holder's turn runs
// out. It clears HasTurn and promotes the next queued user, if any.
func (a *TurnArbiter) expire() {
	a.mu.Lock()
	holder := a.holder
	a.holder = nil
	a.mu.Unlock()

	if holder != nil {
		holder.setHasTurn(false)
	}
	a.promote()
}

// Disconnect removes u from the arbiter, whether queued or holding the
// turn, and promotes the next user if u was the holder.
func (a *TurnArbiter) Disconnect(u *User) {
	a.mu.Lock()
	wasHolder := a.holder == u
	if wasHolder {
		a.holder = nil
		if a.timer != nil {
			a.timer.Stop()
			a.timer = nil
		}
	} else {
		for i, queued := range a.queue {
			if queued == u {
				a.queue = append(a.queue[:i], a.queue[i+1:]...)
				break
			}
		}
	}
	a.mu.Unlock()

	if wasHolder {
		u.setHasTurn(false)
		a.promote()
	} else {
		u.setRequestedTurn(false)
	}
}

// Holder returns the user currently holding the turn, or nil.
func (a *TurnArbiter) Holder() *User {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holder
}

// QueueLen returns the number of users waiting for a turn (excluding
// the current holder).
func (a *TurnArbiter) QueueLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}
