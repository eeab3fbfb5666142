// Package controller turns pointer events on a soft keyboard into key
// actions. A Controller is not safe for concurrent use: every method, timer
// callback and engine completion must run on one event goroutine, which the
// Post function of Deps hands work back to.
package controller

import (
	"errors"

	"github.com/bnema/softkeys/internal/engine"
	"github.com/bnema/softkeys/internal/keys"
	"github.com/bnema/softkeys/internal/layout"
	"github.com/bnema/softkeys/internal/logger"
	"github.com/bnema/softkeys/internal/timers"
	"github.com/charmbracelet/log"
)

var (
	ErrNoCatalog   = errors.New("controller needs a keyboard catalog")
	ErrNoKeyboards = errors.New("keyboard catalog is empty")
	ErrNoPanel     = errors.New("controller needs a panel")
	ErrNoSink      = errors.New("controller needs a sink")
)

// Deps are the collaborators of a Controller.
type Deps struct {
	Catalog layout.Catalog
	Panel   Panel
	Sink    Sink
	// Resizer is optional.
	Resizer Resizer
	// Loader builds IME engines; nil means no engine can load.
	Loader engine.Loader
	// Clock defaults to the real clock.
	Clock timers.Clock
	// Post runs a function on the event goroutine. Nil runs it in place,
	// which is only correct when the caller serializes everything itself.
	Post func(func())
}

// Controller is the soft keyboard state machine.
type Controller struct {
	cfg     Config
	catalog layout.Catalog
	panel   Panel
	sink    Sink
	resizer Resizer
	log     *log.Logger

	timers  *timers.Set
	caps    *timers.TapWindow
	space   *timers.TapWindow
	engines *engine.Registry

	current  *Target
	pressing bool

	selection       layout.Selection
	caseState       layout.CaseState
	override        string
	inputType       string
	candidatePanel  CandidatePanel
	continuousSpace bool
	closed          bool
}

type nopResizer struct{}

func (nopResizer) NotifyHeightChanged(int) {}

// New creates a controller on the configured keyboard and starts loading its
// engine when it is an IME keyboard.
func New(cfg Config, deps Deps) (*Controller, error) {
	switch {
	case deps.Catalog == nil:
		return nil, ErrNoCatalog
	case len(deps.Catalog.Keyboards()) == 0:
		return nil, ErrNoKeyboards
	case deps.Panel == nil:
		return nil, ErrNoPanel
	case deps.Sink == nil:
		return nil, ErrNoSink
	}
	if deps.Resizer == nil {
		deps.Resizer = nopResizer{}
	}
	if deps.Loader == nil {
		deps.Loader = engine.NewStaticLoader()
	}
	if cfg.InputType == "" {
		cfg.InputType = "text"
	}

	c := &Controller{
		cfg:       cfg,
		catalog:   deps.Catalog,
		panel:     deps.Panel,
		sink:      deps.Sink,
		resizer:   deps.Resizer,
		log:       logger.With("component", "controller"),
		inputType: cfg.InputType,
	}
	c.timers = timers.NewSet(deps.Clock, deps.Post)
	c.caps = timers.NewTapWindow(c.timers, timers.CapsSecondTap, cfg.CapsDoubleTap)
	c.space = timers.NewTapWindow(c.timers, timers.SpaceSecondTap, cfg.SpaceDoubleTap)
	c.engines = engine.NewRegistry(deps.Loader, glueHost{c}, deps.Post, cfg.Engines)

	c.selection.Keyboard = c.resolveKeyboard(cfg.Keyboard)
	c.applyLayout()
	c.panel.SetCandidatePanel(c.candidatePanel)
	c.updateHeight()
	c.LoadKeyboard(c.selection.Keyboard)
	return c, nil
}

// resolveKeyboard returns name when the catalog knows it, else the first
// keyboard.
func (c *Controller) resolveKeyboard(name string) string {
	known := c.catalog.Keyboards()
	for _, k := range known {
		if k == name {
			return name
		}
	}
	if name != "" {
		c.log.Warn("Unknown keyboard, using the first one", "keyboard", name, "fallback", known[0])
	}
	return known[0]
}

func (c *Controller) descriptor() layout.Descriptor {
	d, _ := c.catalog.Descriptor(c.selection.Keyboard)
	return d
}

// imeNormal reports whether keys of the current keyboard go to its engine.
func (c *Controller) imeNormal() bool {
	return c.descriptor().IsIME() && c.selection.Mode == layout.ModeNormal
}

// LoadKeyboard starts loading the engine of an IME keyboard. Keyboards
// sharing an engine load it once.
func (c *Controller) LoadKeyboard(name string) {
	d, ok := c.catalog.Descriptor(name)
	if !ok || !d.IsIME() {
		return
	}
	if d.Engine == "" {
		c.log.Warn("IME keyboard declares no engine", "keyboard", name)
		return
	}
	if err := c.engines.Load(d.Engine); err != nil {
		c.log.Warn("Engine not loaded", "keyboard", name, "engine", d.Engine, "error", err)
	}
}

func (c *Controller) applyLayout() {
	c.panel.ApplyLayout(View{
		Keyboard:        c.selection.Keyboard,
		Mode:            c.selection.Mode,
		Override:        c.override,
		UpperCase:       c.caseState.UpperCase,
		UpperCaseLocked: c.caseState.UpperCaseLocked,
	})
}

func (c *Controller) updateHeight() {
	c.resizer.NotifyHeightChanged(c.panel.Height())
}

// IsAlternateLayout reports whether an alternate or symbol layout is shown.
func (c *Controller) IsAlternateLayout() bool { return c.selection.IsAlternate() }

// IsSymbolLayout reports whether the symbol layout is shown.
func (c *Controller) IsSymbolLayout() bool { return c.selection.IsSymbol() }

// SetAlternateLayout switches between the basic and alternate layouts.
func (c *Controller) SetAlternateLayout(on bool) {
	if on {
		c.setMode(layout.ModeAlternate)
	} else {
		c.setMode(layout.ModeNormal)
	}
}

// SetSymbolLayout switches between the alternate and symbol layouts.
func (c *Controller) SetSymbolLayout(on bool) {
	if on {
		c.setMode(layout.ModeSymbol)
	} else {
		c.setMode(layout.ModeAlternate)
	}
}

func (c *Controller) setMode(m layout.Mode) {
	c.selection.Mode = m
	c.override = m.Override()
	c.caseState.ConsumeTransient()
	c.applyLayout()
	c.updateHeight()
}

// SwitchKeyboard makes name the current keyboard. Unknown names fall back to
// the first keyboard. Mode and case are reset on every switch.
func (c *Controller) SwitchKeyboard(name string) {
	if c.closed {
		return
	}
	c.switchTo(c.resolveKeyboard(name))
}

// NextKeyboard switches to the keyboard after the current one, wrapping
// around.
func (c *Controller) NextKeyboard() {
	if c.closed {
		return
	}
	known := c.catalog.Keyboards()
	next := known[0]
	for i, k := range known {
		if k == c.selection.Keyboard && i+1 < len(known) {
			next = known[i+1]
			break
		}
	}
	c.switchTo(next)
}

func (c *Controller) switchTo(name string) {
	c.log.Debug("Switching keyboard", "from", c.selection.Keyboard, "to", name)
	c.selection = layout.Selection{Keyboard: name}
	c.override = layout.OverrideNone
	c.caseState.Reset()
	c.caps.Clear()
	c.applyLayout()
	c.updateHeight()
	c.LoadKeyboard(name)

	d := c.descriptor()
	if d.IsIME() && d.Engine != "" {
		if err := c.engines.Show(d.Engine, c.inputType); err != nil {
			c.log.Debug("Engine not shown", "engine", d.Engine, "error", err)
		}
	}
}

// Focus records the input type of the focused field and tells the current
// engine about it.
func (c *Controller) Focus(inputType string) {
	if c.closed {
		return
	}
	c.inputType = inputType
	d := c.descriptor()
	if !d.IsIME() || d.Engine == "" {
		return
	}
	if err := c.engines.Show(d.Engine, inputType); err != nil {
		c.log.Debug("Engine not shown", "engine", d.Engine, "error", err)
	}
}

// SetCatalog replaces the catalog, for example after the catalog file was
// edited. The current keyboard is kept when the new catalog still has it.
func (c *Controller) SetCatalog(catalog layout.Catalog) error {
	if catalog == nil {
		return ErrNoCatalog
	}
	if len(catalog.Keyboards()) == 0 {
		return ErrNoKeyboards
	}
	c.catalog = catalog
	if _, ok := catalog.Descriptor(c.selection.Keyboard); ok {
		c.applyLayout()
		c.updateHeight()
		return nil
	}
	c.switchTo(catalog.Keyboards()[0])
	return nil
}

// Close cancels every timer and uninitializes every engine.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.timers.CancelAll()
	c.engines.Close()
	c.current = nil
	c.pressing = false
}

// Status is a read-only view of the controller state.
type Status struct {
	Keyboard        string
	Keyboards       []string
	Mode            layout.Mode
	UpperCase       bool
	UpperCaseLocked bool
	InputType       string
	CandidatePanel  CandidatePanel
	Engine          string
	EngineState     engine.LoadState
	Pressing        bool
	ActiveKey       string
	Timers          []timers.Name
}

// Snapshot returns the current status.
func (c *Controller) Snapshot() Status {
	s := Status{
		Keyboard:        c.selection.Keyboard,
		Keyboards:       c.catalog.Keyboards(),
		Mode:            c.selection.Mode,
		UpperCase:       c.caseState.UpperCase,
		UpperCaseLocked: c.caseState.UpperCaseLocked,
		InputType:       c.inputType,
		CandidatePanel:  c.candidatePanel,
		Pressing:        c.pressing,
		Timers:          c.timers.Names(),
	}
	if d := c.descriptor(); d.IsIME() {
		s.Engine = d.Engine
		s.EngineState = c.engines.State(d.Engine)
	}
	if c.current != nil {
		s.ActiveKey = c.current.ID
	}
	return s
}

// Engines exposes the engine registry for status reporting.
func (c *Controller) Engines() *engine.Registry {
	return c.engines
}

// sendKey delivers a key to the sink. Sink failures are logged only.
func (c *Controller) sendKey(control bool, code int) {
	if err := c.sink.SendKey(control, code); err != nil {
		c.log.Warn("Sink rejected key", "control", control, "code", code, "error", err)
	}
}

// clickEngine routes code to the current keyboard's engine. It reports false
// when the engine cannot take it, and the caller delivers the key itself.
func (c *Controller) clickEngine(code int) bool {
	id := c.descriptor().Engine
	err := c.engines.Click(id, code)
	switch {
	case err == nil:
		return true
	case engine.IsUnavailable(err):
		c.log.Warn("Engine unavailable, sending key directly", "engine", id, "code", code, "error", err)
	default:
		c.log.Error("Engine click failed, sending key directly", "engine", id, "code", code, "error", err)
	}
	return false
}

// glueHost connects engine glue channels to the controller.
type glueHost struct {
	c *Controller
}

func (g glueHost) ShowCandidates(list []string) { g.c.panel.ShowCandidates(list) }

func (g glueHost) ShowPendingSymbols(text string) { g.c.panel.ShowPendingSymbols(text) }

func (g glueHost) SendKey(control bool, code int) { g.c.sendKey(control, code) }

// AlterKeyboard switches to a known keyboard, or else applies name as a
// layout override of the current keyboard.
func (g glueHost) AlterKeyboard(name string) {
	c := g.c
	if c.closed {
		return
	}
	if _, ok := c.catalog.Descriptor(name); ok {
		c.switchTo(name)
		return
	}
	c.override = name
	c.applyLayout()
	c.updateHeight()
}

var _ engine.GlueHost = glueHost{}

// isDelete reports whether t is the delete key.
func isDelete(t Target) bool {
	return t.Key.Is(keys.Backspace)
}
