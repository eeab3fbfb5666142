package controller

import (
	"unicode"

	"github.com/bnema/softkeys/internal/engine"
	"github.com/bnema/softkeys/internal/keys"
	"github.com/bnema/softkeys/internal/layout"
)

// resolve performs the action of a released key.
func (c *Controller) resolve(t Target) {
	// A double tap must be two taps of the same key with nothing between.
	if !t.Key.Is(keys.Space) {
		c.continuousSpace = false
		c.space.Clear()
	}
	if !t.Key.Is(keys.CapsLock) {
		c.caps.Clear()
	}

	if t.Key.IsSelection() {
		c.selectCandidate(t.Key.Text(), t.Key.Data())
		return
	}
	if isDelete(t) {
		return
	}

	if s, ok := t.Key.Sentinel(); ok {
		c.resolveSentinel(s, t)
		return
	}

	switch code := t.Key.Code(); code {
	case keys.Alt:
		c.SetSymbolLayout(!c.IsSymbolLayout())
	case keys.CapsLock:
		c.toggleCase(t)
	case keys.Return:
		if c.imeNormal() && c.clickEngine(code) {
			return
		}
		c.sendKey(true, code)
	case keys.Space:
		c.typeSpace()
	default:
		c.typeChar(code)
	}
}

func (c *Controller) resolveSentinel(s keys.Sentinel, t Target) {
	switch s {
	case keys.BasicLayout:
		c.SetAlternateLayout(false)
	case keys.AlternateLayout:
		c.SetAlternateLayout(true)
	case keys.SwitchKeyboard:
		if t.Keyboard != "" {
			c.SwitchKeyboard(t.Keyboard)
		} else {
			c.NextKeyboard()
		}
	case keys.ToggleCandidatePanel:
		c.candidatePanel = c.candidatePanel.Toggle()
		c.panel.SetCandidatePanel(c.candidatePanel)
		c.updateHeight()
	case keys.DotCom:
		for _, r := range ".com" {
			c.sendKey(false, int(r))
		}
	}
}

// selectCandidate commits a candidate through the current engine. Without a
// usable engine the text is typed directly.
func (c *Controller) selectCandidate(text, data string) {
	if d := c.descriptor(); d.IsIME() && d.Engine != "" {
		err := c.engines.Select(d.Engine, text, data)
		if err == nil {
			return
		}
		if engine.IsUnavailable(err) {
			c.log.Warn("Engine unavailable, typing candidate directly", "engine", d.Engine, "error", err)
		} else {
			c.log.Error("Engine select failed, typing candidate directly", "engine", d.Engine, "error", err)
		}
	}
	for _, r := range text {
		c.sendKey(keys.IsControl(int(r)), int(r))
	}
}

// toggleCase runs the double-tap-to-lock machine of the case key.
func (c *Controller) toggleCase(t Target) {
	if c.caps.Tap() {
		c.caseState.Lock()
		c.applyLayout()
		c.panel.SetKeyEnabled(t, true)
		return
	}
	if c.caseState.UpperCaseLocked {
		c.panel.SetKeyEnabled(t, false)
	}
	c.caseState.Toggle()
	c.applyLayout()
}

// typeSpace runs the double-tap-to-period machine of the space key.
func (c *Controller) typeSpace() {
	if c.imeNormal() {
		c.space.Clear()
		c.typeChar(keys.Space)
		return
	}
	if c.space.Armed() && !c.continuousSpace {
		c.space.Clear()
		c.sendKey(true, keys.Backspace)
		c.sendKey(false, keys.Period)
		c.sendKey(false, keys.Space)
		c.continuousSpace = true
		return
	}
	c.space.Arm()
	c.typeChar(keys.Space)
}

// typeChar is the default key path. Letters are shifted while upper case is
// on, since catalog keys carry lower case codes.
func (c *Controller) typeChar(code int) {
	if c.caseState.UpperCase {
		code = int(unicode.ToUpper(rune(code)))
	}
	if c.imeNormal() && c.clickEngine(code) {
		return
	}
	c.sendKey(false, code)

	if c.selection.Mode != layout.ModeNormal {
		return
	}
	if c.caseState.ConsumeTransient() {
		c.applyLayout()
	}
}
