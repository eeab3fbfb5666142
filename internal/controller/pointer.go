package controller

import (
	"github.com/bnema/softkeys/internal/keys"
	"github.com/bnema/softkeys/internal/timers"
)

// Press handles a finger or button going down on t. Targets without a key
// identity are ignored.
func (c *Controller) Press(t Target) {
	if c.closed {
		return
	}
	if t.Key.IsNone() {
		c.log.Debug("Ignoring press on codeless target", "target", t.ID)
		return
	}

	if c.current != nil {
		c.panel.SetKeyActive(*c.current, false)
	}
	c.pressing = true
	c.activate(t)
	c.panel.TriggerFeedback()

	c.timers.Cancel(timers.DeleteRepeat)
	c.timers.Arm(timers.MenuShow, c.cfg.MenuShowDelay, c.showMenu)

	if !isDelete(t) {
		return
	}
	c.sendDelete(false)
	c.timers.ArmRepeating(timers.DeleteRepeat, c.cfg.DeleteRepeatDelay, c.cfg.DeleteRepeatInterval, func() {
		c.sendDelete(true)
	})
}

// Move handles the pointer entering t while pressed.
func (c *Controller) Move(t Target) {
	if c.closed || !c.pressing {
		return
	}
	if c.current != nil && c.current.ID == t.ID {
		return
	}
	if t.Key.IsNone() {
		return
	}

	if c.current != nil {
		c.panel.SetKeyActive(*c.current, false)
	}
	c.timers.Cancel(timers.DeleteRepeat)
	c.timers.Cancel(timers.MenuShow)

	// The delete key is only activated by a press, never by dragging onto it.
	if isDelete(t) {
		c.current = nil
		return
	}
	c.activate(t)

	if c.panel.InMenu(t.Point) {
		c.timers.Cancel(timers.MenuHide)
		return
	}
	if c.panel.MenuVisible() {
		c.timers.Arm(timers.MenuHide, c.cfg.MenuHideDelay, c.panel.HideMenu)
	}
	if t.HasAlternates || t.Key.IsAction(keys.SwitchKeyboard) {
		c.timers.Arm(timers.MenuShow, c.cfg.MenuShowDelay, c.showMenu)
	}
}

// Leave handles the pointer leaving the keyboard while pressed.
func (c *Controller) Leave() {
	c.leave(false)
}

// Scroll handles the candidate panel scrolling under the finger. Unlike
// Leave it ends the press, so the next move does not reactivate a key.
func (c *Controller) Scroll() {
	c.leave(true)
}

func (c *Controller) leave(scroll bool) {
	if c.closed || !c.pressing || c.current == nil {
		return
	}
	c.panel.SetKeyActive(*c.current, false)
	c.current = nil
	c.timers.Cancel(timers.DeleteRepeat)
	c.timers.Cancel(timers.MenuShow)
	c.timers.Arm(timers.MenuHide, c.cfg.MenuHideDelay, c.panel.HideMenu)
	if scroll {
		c.pressing = false
	}
}

// Release handles the finger or button going up and resolves the action of
// the key under it.
func (c *Controller) Release() {
	if c.closed {
		return
	}
	c.pressing = false
	c.timers.Cancel(timers.DeleteRepeat)
	c.timers.Cancel(timers.MenuShow)
	c.timers.Cancel(timers.MenuHide)
	c.panel.HideMenu()
	if c.current == nil {
		return
	}

	t := *c.current
	c.panel.SetKeyActive(t, false)
	c.current = nil
	c.resolve(t)
}

func (c *Controller) activate(t Target) {
	c.current = &t
	c.panel.SetKeyActive(t, true)
}

func (c *Controller) showMenu() {
	if c.current == nil {
		return
	}
	if c.current.HasAlternates || c.current.Key.IsAction(keys.SwitchKeyboard) {
		c.panel.ShowMenu(*c.current)
	}
}

func (c *Controller) sendDelete(feedback bool) {
	if feedback {
		c.panel.TriggerFeedback()
	}
	if c.imeNormal() && c.clickEngine(keys.Backspace) {
		return
	}
	c.sendKey(true, keys.Backspace)
}
