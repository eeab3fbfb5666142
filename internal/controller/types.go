package controller

import (
	"github.com/bnema/softkeys/internal/keys"
	"github.com/bnema/softkeys/internal/layout"
)

// Point is a pointer position in panel coordinates.
type Point struct {
	X, Y int
}

// Target is the key under the pointer, as resolved by the panel.
type Target struct {
	// ID identifies the rendered key; two targets with the same ID are the
	// same key.
	ID  string
	Key keys.Identity
	// Keyboard names the keyboard a SWITCH_KEYBOARD menu entry switches to.
	Keyboard      string
	HasAlternates bool
	Point         Point
}

// TargetForKey builds the target of a catalog key.
func TargetForKey(k layout.Key, at Point) Target {
	return Target{
		ID:            k.ID,
		Key:           keys.FromCode(k.Code),
		Keyboard:      k.Keyboard,
		HasAlternates: len(k.Alternates) > 0,
		Point:         at,
	}
}

// CandidatePanel is the presentation of the candidate strip.
type CandidatePanel int

const (
	CandidatePanelCompact CandidatePanel = iota
	CandidatePanelExpanded
)

func (p CandidatePanel) String() string {
	if p == CandidatePanelExpanded {
		return "expanded"
	}
	return "compact"
}

// Toggle returns the other presentation.
func (p CandidatePanel) Toggle() CandidatePanel {
	if p == CandidatePanelExpanded {
		return CandidatePanelCompact
	}
	return CandidatePanelExpanded
}

// View is what the panel renders after a layout change.
type View struct {
	Keyboard        string
	Mode            layout.Mode
	Override        string
	UpperCase       bool
	UpperCaseLocked bool
}

// Panel renders keys, the alternates menu and the candidate strip.
type Panel interface {
	SetKeyActive(t Target, active bool)
	SetKeyEnabled(t Target, enabled bool)
	TriggerFeedback()
	ShowMenu(t Target)
	HideMenu()
	MenuVisible() bool
	InMenu(p Point) bool
	ApplyLayout(v View)
	SetCandidatePanel(p CandidatePanel)
	ShowCandidates(list []string)
	ShowPendingSymbols(text string)
	// Height is the rendered panel height in pixels.
	Height() int
}

// Sink receives synthesized keys.
type Sink interface {
	SendKey(control bool, code int) error
}

// Resizer is told when the panel height may have changed.
type Resizer interface {
	NotifyHeightChanged(px int)
}
