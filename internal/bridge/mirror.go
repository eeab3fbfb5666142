package bridge

import (
	"github.com/bnema/softkeys/internal/controller"
	"github.com/bnema/softkeys/internal/layout"
)

// mirror is the controller.Panel of a browser session. It forwards every
// panel call as a message and keeps the geometry the browser reports.
// Only the session's event loop touches it.
type mirror struct {
	send      func(MessageType, interface{})
	catalog   func() layout.Catalog
	rowHeight int

	menuVisible bool
	menuRect    *Rect
	reported    int
	view        controller.View
}

func (m *mirror) SetKeyActive(t controller.Target, active bool) {
	m.send(MsgHighlight, HighlightPayload{ID: t.ID, Active: active})
}

func (m *mirror) SetKeyEnabled(t controller.Target, enabled bool) {
	m.send(MsgEnabled, EnabledPayload{ID: t.ID, Enabled: enabled})
}

func (m *mirror) TriggerFeedback() {
	m.send(MsgFeedback, nil)
}

func (m *mirror) ShowMenu(t controller.Target) {
	m.menuVisible = true
	m.send(MsgMenu, MenuPayload{Visible: true, ID: t.ID})
}

func (m *mirror) HideMenu() {
	m.menuVisible = false
	m.menuRect = nil
	m.send(MsgMenu, MenuPayload{Visible: false})
}

func (m *mirror) MenuVisible() bool {
	return m.menuVisible
}

// InMenu hit-tests against the menu rectangle of the last metrics message.
func (m *mirror) InMenu(p controller.Point) bool {
	return m.menuVisible && m.menuRect != nil && m.menuRect.Contains(p)
}

func (m *mirror) ApplyLayout(v controller.View) {
	m.view = v
	m.send(MsgLayout, LayoutPayload{
		Keyboard:        v.Keyboard,
		Mode:            v.Mode.String(),
		Override:        v.Override,
		UpperCase:       v.UpperCase,
		UpperCaseLocked: v.UpperCaseLocked,
	})
}

func (m *mirror) SetCandidatePanel(p controller.CandidatePanel) {
	m.send(MsgPanel, PanelPayload{Mode: p.String()})
}

func (m *mirror) ShowCandidates(list []string) {
	if list == nil {
		list = []string{}
	}
	m.send(MsgCandidates, CandidatesPayload{List: list})
}

func (m *mirror) ShowPendingSymbols(text string) {
	m.send(MsgPending, PendingPayload{Text: text})
}

// Height is the height the browser reported, or an estimate from the row
// count until it does.
func (m *mirror) Height() int {
	if m.reported > 0 {
		return m.reported
	}
	d, ok := m.catalog().Descriptor(m.view.Keyboard)
	if !ok {
		return 0
	}
	return len(d.RowsFor(m.view.Mode)) * m.rowHeight
}

// metrics records reported geometry. It returns true when the height
// changed.
func (m *mirror) metrics(p MetricsPayload) bool {
	if p.Menu != nil {
		r := *p.Menu
		m.menuRect = &r
	}
	if p.Height <= 0 || p.Height == m.reported {
		return false
	}
	m.reported = p.Height
	return true
}

var _ controller.Panel = (*mirror)(nil)
