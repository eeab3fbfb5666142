// Package keys defines the identity of a pressed soft key: a character code,
// a control sentinel or a candidate selection.
package keys

import "fmt"

// Key codes the controller treats specially. Values follow the DOM virtual
// key codes the layouts are written against.
const (
	Backspace = 8
	Tab       = 9
	Return    = 13
	Shift     = 16
	Alt       = 18
	CapsLock  = 20
	Space     = 32
	Period    = 46
)

// Sentinel is a negative pseudo key code naming a controller action.
type Sentinel int

// The closed set of sentinels.
const (
	BasicLayout          Sentinel = -1
	AlternateLayout      Sentinel = -2
	SwitchKeyboard       Sentinel = -3
	ToggleCandidatePanel Sentinel = -4
	DotCom               Sentinel = -5
)

// Valid reports whether s belongs to the closed sentinel set.
func (s Sentinel) Valid() bool {
	return s <= BasicLayout && s >= DotCom
}

func (s Sentinel) String() string {
	switch s {
	case BasicLayout:
		return "BASIC_LAYOUT"
	case AlternateLayout:
		return "ALTERNATE_LAYOUT"
	case SwitchKeyboard:
		return "SWITCH_KEYBOARD"
	case ToggleCandidatePanel:
		return "TOGGLE_CANDIDATE_PANEL"
	case DotCom:
		return "DOT_COM"
	default:
		return fmt.Sprintf("SENTINEL(%d)", int(s))
	}
}

// Kind tells which variant an Identity holds.
type Kind uint8

const (
	KindNone Kind = iota
	KindCode
	KindSentinel
	KindSelection
)

// Identity is the resolved meaning of a key. The zero value is "none": a
// codeless, data-less target that pointer events ignore.
type Identity struct {
	kind Kind
	code int
	text string
	data string
}

// FromCode resolves a raw key code. Positive codes are characters, members of
// the sentinel set are sentinels, anything else resolves to none.
func FromCode(code int) Identity {
	switch {
	case code > 0:
		return Identity{kind: KindCode, code: code}
	case Sentinel(code).Valid():
		return Identity{kind: KindSentinel, code: code}
	default:
		return Identity{}
	}
}

// Code returns the identity of a character key.
func Code(code int) Identity {
	return FromCode(code)
}

// Action returns the identity of a sentinel key.
func Action(s Sentinel) Identity {
	return FromCode(int(s))
}

// Selection returns a candidate-selection marker.
func Selection(text, data string) Identity {
	return Identity{kind: KindSelection, text: text, data: data}
}

func (i Identity) Kind() Kind { return i.kind }

func (i Identity) IsNone() bool { return i.kind == KindNone }

func (i Identity) IsSelection() bool { return i.kind == KindSelection }

// Code returns the numeric value for codes and sentinels, 0 otherwise.
func (i Identity) Code() int {
	if i.kind == KindCode || i.kind == KindSentinel {
		return i.code
	}
	return 0
}

// Sentinel returns the sentinel and true when the identity is one.
func (i Identity) Sentinel() (Sentinel, bool) {
	if i.kind != KindSentinel {
		return 0, false
	}
	return Sentinel(i.code), true
}

// Is reports whether the identity is the character key with the given code.
func (i Identity) Is(code int) bool {
	return i.kind == KindCode && i.code == code
}

// IsAction reports whether the identity is the given sentinel.
func (i Identity) IsAction(s Sentinel) bool {
	return i.kind == KindSentinel && Sentinel(i.code) == s
}

// Text and Data carry the candidate of a selection marker.
func (i Identity) Text() string { return i.text }

func (i Identity) Data() string { return i.data }

func (i Identity) String() string {
	switch i.kind {
	case KindCode:
		return fmt.Sprintf("code(%d)", i.code)
	case KindSentinel:
		return Sentinel(i.code).String()
	case KindSelection:
		return fmt.Sprintf("selection(%q)", i.text)
	default:
		return "none"
	}
}

// IsControl reports whether a code is delivered to hosts as a control key
// rather than a character.
func IsControl(code int) bool {
	return code == Backspace || code == Return
}
