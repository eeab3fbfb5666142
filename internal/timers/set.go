// Package timers provides the named, independently cancellable timers the
// pointer state machine arms and disarms.
package timers

import "time"

// Name identifies a timer slot. Arming a slot replaces whatever was armed in
// it before.
type Name string

const (
	MenuShow       Name = "menuShow"
	MenuHide       Name = "menuHide"
	DeleteRepeat   Name = "deleteRepeat"
	CapsSecondTap  Name = "capsSecondTap"
	SpaceSecondTap Name = "spaceSecondTap"
)

// Set owns the timer namespace of one controller. It is not safe for
// concurrent use: every method must be called on the event thread, and the
// post function must deliver callbacks back onto that thread.
type Set struct {
	clock   Clock
	post    func(func())
	entries map[Name]*entry
}

type entry struct {
	stop Stopper
}

// NewSet returns an empty timer set. A nil post runs callbacks directly on
// the clock's goroutine, which is only correct for ManualClock.
func NewSet(clock Clock, post func(func())) *Set {
	if clock == nil {
		clock = RealClock
	}
	if post == nil {
		post = func(fn func()) { fn() }
	}
	return &Set{
		clock:   clock,
		post:    post,
		entries: make(map[Name]*entry),
	}
}

// Arm schedules action to run once after delay.
func (s *Set) Arm(name Name, delay time.Duration, action func()) {
	s.Cancel(name)

	e := &entry{}
	s.entries[name] = e
	e.stop = s.clock.AfterFunc(delay, func() {
		s.post(func() {
			// Cancelled or re-armed after the clock fired.
			if s.entries[name] != e {
				return
			}
			delete(s.entries, name)
			action()
		})
	})
}

// ArmRepeating runs action once after first, then every interval until the
// slot is cancelled or re-armed.
func (s *Set) ArmRepeating(name Name, first, interval time.Duration, action func()) {
	s.Cancel(name)

	e := &entry{}
	s.entries[name] = e

	var schedule func(d time.Duration)
	schedule = func(d time.Duration) {
		e.stop = s.clock.AfterFunc(d, func() {
			s.post(func() {
				if s.entries[name] != e {
					return
				}
				action()
				if s.entries[name] != e {
					return
				}
				schedule(interval)
			})
		})
	}
	schedule(first)
}

// Cancel disarms the slot. Cancelling an idle slot is a no-op.
func (s *Set) Cancel(name Name) {
	e, ok := s.entries[name]
	if !ok {
		return
	}
	delete(s.entries, name)
	if e.stop != nil {
		e.stop.Stop()
	}
}

// Armed reports whether the slot currently holds a pending timer.
func (s *Set) Armed(name Name) bool {
	_, ok := s.entries[name]
	return ok
}

// CancelAll disarms every slot; used at teardown.
func (s *Set) CancelAll() {
	for name := range s.entries {
		s.Cancel(name)
	}
}

// Names returns the armed slots.
func (s *Set) Names() []Name {
	names := make([]Name, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}
