package engine

import "github.com/bnema/softkeys/internal/keys"

// GlueHost is what the glue channel drives on the controller side.
type GlueHost interface {
	ShowCandidates(list []string)
	ShowPendingSymbols(text string)
	SendKey(control bool, code int)
	AlterKeyboard(name string)
}

// Glue is the channel an engine uses to talk back to the keyboard. It lives as
// long as the engine's registration and must only be used on the event thread.
type Glue struct {
	id   string
	path string
	host GlueHost
}

// NewGlue creates the glue channel for engine id. The registry creates one per
// registration; engines driven outside a registry can use it directly.
func NewGlue(id, path string, host GlueHost) *Glue {
	return &Glue{id: id, path: path, host: host}
}

// ID returns the engine id the glue belongs to.
func (g *Glue) ID() string { return g.id }

// Path returns the engine's resource directory, empty if it has none.
func (g *Glue) Path() string { return g.path }

// SendCandidates replaces the candidate list shown on the panel.
func (g *Glue) SendCandidates(list []string) {
	g.host.ShowCandidates(append([]string(nil), list...))
}

// SendPendingSymbols shows the not yet committed input.
func (g *Glue) SendPendingSymbols(text string) {
	g.host.ShowPendingSymbols(text)
}

// SendKey commits a key. Backspace and Return are delivered as control keys,
// everything else as a character.
func (g *Glue) SendKey(code int) {
	g.host.SendKey(keys.IsControl(code), code)
}

// SendString commits every rune of text in order.
func (g *Glue) SendString(text string) {
	for _, r := range text {
		g.SendKey(int(r))
	}
}

// AlterKeyboard asks the keyboard to change layout.
func (g *Glue) AlterKeyboard(name string) {
	g.host.AlterKeyboard(name)
}
