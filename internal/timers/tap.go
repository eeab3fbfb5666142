package timers

import "time"

// TapState is the state of a double-tap window.
type TapState int

const (
	TapIdle TapState = iota
	TapArmed
)

func (s TapState) String() string {
	if s == TapArmed {
		return "armed"
	}
	return "idle"
}

// TapWindow is a two-state machine backed by a timer slot: a first tap arms
// it, and it falls back to idle when the window elapses or it is cleared.
type TapWindow struct {
	set    *Set
	name   Name
	window time.Duration
}

// NewTapWindow binds a tap window to a slot of set.
func NewTapWindow(set *Set, name Name, window time.Duration) *TapWindow {
	return &TapWindow{set: set, name: name, window: window}
}

func (w *TapWindow) State() TapState {
	if w.set.Armed(w.name) {
		return TapArmed
	}
	return TapIdle
}

func (w *TapWindow) Armed() bool {
	return w.State() == TapArmed
}

// Arm opens (or restarts) the window.
func (w *TapWindow) Arm() {
	w.set.Arm(w.name, w.window, func() {})
}

// Clear closes the window.
func (w *TapWindow) Clear() {
	w.set.Cancel(w.name)
}

// Tap records a tap and reports whether it landed inside an open window. A
// second tap closes the window, a first tap opens it.
func (w *TapWindow) Tap() bool {
	if w.Armed() {
		w.Clear()
		return true
	}
	w.Arm()
	return false
}
