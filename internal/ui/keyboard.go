package ui

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bnema/softkeys/internal/controller"
	"github.com/bnema/softkeys/internal/engine"
	"github.com/bnema/softkeys/internal/host"
	"github.com/bnema/softkeys/internal/keys"
	"github.com/bnema/softkeys/internal/layout"
	"github.com/bnema/softkeys/internal/timers"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Screen lines of the keyboard. Key rows start at rowsLine, one line each.
const (
	headerLine    = 0
	candidateLine = 1
	menuLine      = 2
	rowsLine      = 3

	keyUnit      = 5  // columns of a width-1 key
	linePx       = 20 // pixel height reported per line
	previewChars = 40
)

type keyMap struct {
	Quit key.Binding
	Next key.Binding
}

var bindings = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("esc", "quit"),
	),
	Next: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next keyboard"),
	),
}

// Options configure a Model
type Options struct {
	Config  controller.Config
	Catalog layout.Catalog
	Loader  engine.Loader
	// Sink receives typed keys; the model also keeps its own preview.
	Sink    host.Sink
	Resizer controller.Resizer
	Clock   timers.Clock
	Title   string
}

// Model is a Bubble Tea model drawing the keyboard. It is also the
// controller.Panel of its controller; both only run on the update goroutine.
type Model struct {
	title   string
	catalog layout.Catalog
	ctrl    *controller.Controller
	poster  *poster
	preview *host.RecordingSink

	view        controller.View
	active      map[string]bool
	enabled     map[string]bool
	menuVisible bool
	menu        []cell
	candidates  []string
	pending     string
	panelMode   controller.CandidatePanel

	pressed   bool
	feedbacks int
	width     int
	closed  bool
}

// cell is one drawn, hit-testable region.
type cell struct {
	x, y, w int
	label   string
	target  controller.Target
}

func (c cell) contains(p controller.Point) bool {
	return p.Y == c.y && p.X >= c.x && p.X < c.x+c.w
}

// NewModel creates the model and its controller
func NewModel(opts Options) (*Model, error) {
	if opts.Catalog == nil {
		return nil, controller.ErrNoCatalog
	}
	if opts.Title == "" {
		opts.Title = "softkeys"
	}

	m := &Model{
		title:   opts.Title,
		catalog: opts.Catalog,
		poster:  &poster{},
		preview: host.NewRecordingSink(),
		active:  make(map[string]bool),
		enabled: make(map[string]bool),
	}

	var sink controller.Sink = m.preview
	if opts.Sink != nil {
		sink = host.Tee{m.preview, opts.Sink}
	}

	ctrl, err := controller.New(opts.Config, controller.Deps{
		Catalog: opts.Catalog,
		Panel:   m,
		Sink:    sink,
		Resizer: opts.Resizer,
		Loader:  opts.Loader,
		Clock:   opts.Clock,
		Post:    m.poster.post,
	})
	if err != nil {
		return nil, err
	}
	m.ctrl = ctrl
	return m, nil
}

// SetProgram routes posted callbacks through p
func (m *Model) SetProgram(p *tea.Program) {
	m.poster.attach(p.Send)
}

// Do runs fn with the controller on the update goroutine and waits for it
func (m *Model) Do(ctx context.Context, fn func(*controller.Controller)) error {
	done := make(chan struct{})
	m.poster.post(func() {
		defer close(done)
		fn(m.ctrl)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetCatalog swaps the catalog of a running model
func (m *Model) SetCatalog(c layout.Catalog) {
	m.poster.post(func() {
		prev := m.catalog
		m.catalog = c
		if err := m.ctrl.SetCatalog(c); err != nil {
			m.catalog = prev
		}
	})
}

// Typed returns the text typed so far
func (m *Model) Typed() string {
	return m.preview.Text()
}

// Close releases the controller and its engines
func (m *Model) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.ctrl.Close()
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case drainMsg:
		m.poster.drain()

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, bindings.Quit):
			m.Close()
			return m, tea.Quit
		case key.Matches(msg, bindings.Next):
			m.ctrl.NextKeyboard()
		}

	case tea.MouseMsg:
		m.mouse(msg)
	}
	return m, nil
}

func (m *Model) mouse(msg tea.MouseMsg) {
	p := controller.Point{X: msg.X, Y: msg.Y}

	switch {
	case msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown:
		m.ctrl.Scroll()

	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		if t, ok := m.hit(p); ok {
			m.pressed = true
			m.ctrl.Press(t)
		}

	case msg.Action == tea.MouseActionMotion && m.pressed:
		if t, ok := m.hit(p); ok {
			m.ctrl.Move(t)
		} else {
			m.ctrl.Leave()
		}

	case msg.Action == tea.MouseActionRelease:
		m.pressed = false
		m.ctrl.Release()
	}
}

func (m *Model) hit(p controller.Point) (controller.Target, bool) {
	for _, c := range m.cells() {
		if c.contains(p) {
			t := c.target
			t.Point = p
			return t, true
		}
	}
	return controller.Target{}, false
}

// cells lays out every hit-testable region: candidates, menu and keys.
func (m *Model) cells() []cell {
	var out []cell

	x := 0
	if m.pending != "" {
		x = lipgloss.Width(m.pending) + 1
	}
	for i, text := range m.candidates {
		w := lipgloss.Width(text) + 2
		out = append(out, cell{
			x: x, y: candidateLine, w: w,
			label:  text,
			target: controller.Target{ID: fmt.Sprintf("candidate/%d", i), Key: keys.Selection(text, "")},
		})
		x += w + 1
	}

	if m.menuVisible {
		out = append(out, m.menu...)
	}

	d, ok := m.catalog.Descriptor(m.view.Keyboard)
	if !ok {
		return out
	}
	for r, row := range d.RowsFor(m.view.Mode) {
		x := 0
		for _, k := range row {
			w := int(k.Width * keyUnit)
			if w <= 0 {
				w = keyUnit
			}
			out = append(out, cell{
				x: x, y: rowsLine + r, w: w,
				label:  m.keyLabel(k),
				target: controller.TargetForKey(k, controller.Point{}),
			})
			x += w
		}
	}
	return out
}

func (m *Model) keyLabel(k layout.Key) string {
	label := k.Label
	if label == "" {
		label = defaultLabel(k.Code)
	}
	if m.view.UpperCase && k.Code > 0 && utf8.RuneCountInString(label) == 1 {
		label = strings.ToUpper(label)
	}
	return label
}

func defaultLabel(code int) string {
	switch code {
	case keys.Backspace:
		return "⌫"
	case keys.Return:
		return "⏎"
	case keys.Space:
		return "space"
	case keys.CapsLock, keys.Shift:
		return IconUpper
	case keys.Alt:
		return "alt"
	}
	if s, ok := keys.FromCode(code).Sentinel(); ok {
		switch s {
		case keys.BasicLayout:
			return "abc"
		case keys.AlternateLayout:
			return "?123"
		case keys.SwitchKeyboard:
			return "kb"
		case keys.ToggleCandidatePanel:
			return "⇅"
		case keys.DotCom:
			return ".com"
		}
	}
	if code > 0 {
		return string(rune(code))
	}
	return ""
}

// View implements tea.Model
func (m *Model) View() string {
	lines := make([]string, rowsLine, rowsLine+8)
	lines[headerLine] = m.header()

	cells := m.cells()
	var keyRows []string
	for _, c := range cells {
		switch {
		case c.y == candidateLine:
			lines[candidateLine] += CandidateStyle.Render(" "+c.label+" ") + " "
		case c.y == menuLine:
			style := MenuStyle
			if m.active[c.target.ID] {
				style = ActiveMenuStyle
			}
			lines[menuLine] += style.Width(c.w).Render(c.label)
		default:
			r := c.y - rowsLine
			for len(keyRows) <= r {
				keyRows = append(keyRows, "")
			}
			keyRows[r] += m.keyStyle(c.target).Width(c.w).MaxWidth(c.w).Render(c.label)
		}
	}
	if m.pending != "" {
		lines[candidateLine] = PendingStyle.Render(m.pending) + " " + lines[candidateLine]
	}

	lines = append(lines, keyRows...)
	lines = append(lines, CreateSeparator(m.width, ""), m.previewLine(), m.help())
	return strings.Join(lines, "\n")
}

func (m *Model) keyStyle(t controller.Target) lipgloss.Style {
	switch {
	case m.active[t.ID]:
		return ActiveKeyStyle
	case m.enabled[t.ID]:
		return LockedKeyStyle
	default:
		return KeyStyle
	}
}

func (m *Model) header() string {
	status := m.ctrl.Snapshot()
	parts := []string{TitleStyle.Render(m.title), status.Keyboard}
	if status.Mode != layout.ModeNormal {
		parts = append(parts, status.Mode.String())
	}
	if m.view.Override != "" && m.view.Override != m.view.Mode.Override() {
		parts = append(parts, SubtleStyle.Render("["+m.view.Override+"]"))
	}
	switch {
	case status.UpperCaseLocked:
		parts = append(parts, SuccessStyle.Render(IconLocked))
	case status.UpperCase:
		parts = append(parts, IconUpper)
	}
	if status.Engine != "" {
		parts = append(parts, engineBadge(status.Engine, status.EngineState))
	}
	if m.panelMode == controller.CandidatePanelExpanded {
		parts = append(parts, SubtleStyle.Render("candidates expanded"))
	}
	return strings.Join(parts, " ")
}

func engineBadge(id string, state engine.LoadState) string {
	switch state {
	case engine.Ready:
		return SuccessStyle.Render(IconReady + " " + id)
	case engine.Failed:
		return ErrorStyle.Render(IconFailed + " " + id)
	default:
		return WarningStyle.Render(IconLoading + " " + id)
	}
}

func (m *Model) previewLine() string {
	text := strings.ReplaceAll(m.preview.Text(), "\n", "⏎")
	if n := utf8.RuneCountInString(text); n > previewChars {
		text = string([]rune(text)[n-previewChars:])
	}
	return SubtleStyle.Render("> ") + TextStyle.Render(text)
}

func (m *Model) help() string {
	return FormatControl(bindings.Quit.Help().Key, bindings.Quit.Help().Desc) + "  " +
		FormatControl(bindings.Next.Help().Key, bindings.Next.Help().Desc)
}

// Panel implementation, called by the controller on the update goroutine.

func (m *Model) SetKeyActive(t controller.Target, active bool) {
	if active {
		m.active[t.ID] = true
	} else {
		delete(m.active, t.ID)
	}
}

func (m *Model) SetKeyEnabled(t controller.Target, enabled bool) {
	if enabled {
		m.enabled[t.ID] = true
	} else {
		delete(m.enabled, t.ID)
	}
}

// TriggerFeedback counts presses; terminals have nothing to vibrate.
func (m *Model) TriggerFeedback() {
	m.feedbacks++
}

// ShowMenu lays out the alternates of t, or the keyboards when t switches
// keyboards, on the menu line above the key.
func (m *Model) ShowMenu(t controller.Target) {
	m.menu = m.menu[:0]
	x := 0
	add := func(label string, target controller.Target) {
		w := lipgloss.Width(label) + 2
		m.menu = append(m.menu, cell{x: x, y: menuLine, w: w, label: label, target: target})
		x += w
	}

	if t.Key.IsAction(keys.SwitchKeyboard) {
		for _, name := range m.catalog.Keyboards() {
			add(m.keyboardLabel(name), controller.Target{
				ID:       "menu/" + name,
				Key:      keys.Action(keys.SwitchKeyboard),
				Keyboard: name,
			})
		}
	} else {
		for i, alt := range m.alternates(t.ID) {
			r, _ := utf8.DecodeRuneInString(alt)
			add(alt, controller.Target{
				ID:  fmt.Sprintf("menu/%d", i),
				Key: keys.Code(int(r)),
			})
		}
	}
	m.menuVisible = len(m.menu) > 0
}

func (m *Model) keyboardLabel(name string) string {
	if d, ok := m.catalog.Descriptor(name); ok && d.Label != "" {
		return d.Label
	}
	return name
}

func (m *Model) alternates(id string) []string {
	d, ok := m.catalog.Descriptor(m.view.Keyboard)
	if !ok {
		return nil
	}
	for _, rows := range [][][]layout.Key{d.Rows, d.AlternateRows, d.SymbolRows} {
		for _, row := range rows {
			for _, k := range row {
				if k.ID == id {
					alts := k.Alternates
					if m.view.UpperCase {
						upper := make([]string, len(alts))
						for i, a := range alts {
							upper[i] = strings.ToUpper(a)
						}
						return upper
					}
					return alts
				}
			}
		}
	}
	return nil
}

func (m *Model) HideMenu() {
	m.menuVisible = false
	m.menu = m.menu[:0]
}

func (m *Model) MenuVisible() bool {
	return m.menuVisible
}

func (m *Model) InMenu(p controller.Point) bool {
	if !m.menuVisible {
		return false
	}
	for _, c := range m.menu {
		if c.contains(p) {
			return true
		}
	}
	return false
}

func (m *Model) ApplyLayout(v controller.View) {
	m.view = v
}

func (m *Model) SetCandidatePanel(p controller.CandidatePanel) {
	m.panelMode = p
}

func (m *Model) ShowCandidates(list []string) {
	m.candidates = append(m.candidates[:0], list...)
}

func (m *Model) ShowPendingSymbols(text string) {
	m.pending = text
}

// Height is the drawn height: fixed lines plus the key rows.
func (m *Model) Height() int {
	rows := 0
	if d, ok := m.catalog.Descriptor(m.view.Keyboard); ok {
		rows = len(d.RowsFor(m.view.Mode))
	}
	return (rowsLine + rows + 3) * linePx
}

var _ controller.Panel = (*Model)(nil)
