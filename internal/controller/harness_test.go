package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bnema/softkeys/internal/engine"
	"github.com/bnema/softkeys/internal/host"
	"github.com/bnema/softkeys/internal/keys"
	"github.com/bnema/softkeys/internal/layout"
	"github.com/bnema/softkeys/internal/timers"
	"github.com/stretchr/testify/require"
)

const testCatalog = `{
  "enabled": ["en", "fr", "zh", "kana", "broken"],
  "keyboards": [
    {"name": "en", "rows": [[{"code": 97, "alt": ["à", "á"]}, {"code": 8}]]},
    {"name": "fr", "rows": [[{"code": 97}]]},
    {"name": "zh", "type": "ime", "imEngine": "pinyin", "rows": [[{"code": 110}]]},
    {"name": "kana", "type": "ime", "imEngine": "pinyin", "rows": [[{"code": 107}]]},
    {"name": "broken", "type": "ime", "imEngine": "missing", "rows": [[{"code": 98}]]}
  ]
}`

type fakePanel struct {
	active     map[string]bool
	maxActive  int
	enabled    map[string]bool
	feedback   int
	menus      []string
	visible    bool
	hides      int
	menuRegion func(Point) bool
	views      []View
	panels     []CandidatePanel
	candidates [][]string
	pending    []string
	height     int
}

func newFakePanel() *fakePanel {
	return &fakePanel{
		active:  make(map[string]bool),
		enabled: make(map[string]bool),
		height:  240,
	}
}

func (p *fakePanel) SetKeyActive(t Target, active bool) {
	if active {
		p.active[t.ID] = true
	} else {
		delete(p.active, t.ID)
	}
	if len(p.active) > p.maxActive {
		p.maxActive = len(p.active)
	}
}

func (p *fakePanel) SetKeyEnabled(t Target, enabled bool) { p.enabled[t.ID] = enabled }
func (p *fakePanel) TriggerFeedback()                      { p.feedback++ }
func (p *fakePanel) ShowMenu(t Target) {
	p.menus = append(p.menus, t.ID)
	p.visible = true
}
func (p *fakePanel) HideMenu() {
	p.hides++
	p.visible = false
}
func (p *fakePanel) MenuVisible() bool { return p.visible }
func (p *fakePanel) InMenu(pt Point) bool {
	return p.menuRegion != nil && p.menuRegion(pt)
}
func (p *fakePanel) ApplyLayout(v View)                  { p.views = append(p.views, v) }
func (p *fakePanel) SetCandidatePanel(cp CandidatePanel) { p.panels = append(p.panels, cp) }
func (p *fakePanel) ShowCandidates(list []string)        { p.candidates = append(p.candidates, list) }
func (p *fakePanel) ShowPendingSymbols(text string)      { p.pending = append(p.pending, text) }
func (p *fakePanel) Height() int                         { return p.height }

func (p *fakePanel) activeIDs() []string {
	ids := make([]string, 0, len(p.active))
	for id := range p.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *fakePanel) lastView() View {
	if len(p.views) == 0 {
		return View{}
	}
	return p.views[len(p.views)-1]
}

type recEngine struct {
	glue     *engine.Glue
	inits    int
	clicks   []int
	selected []string
	shown    []string
	uninits  int
}

func (e *recEngine) Init(g *engine.Glue) error {
	e.inits++
	e.glue = g
	return nil
}
func (e *recEngine) Click(code int)           { e.clicks = append(e.clicks, code) }
func (e *recEngine) Select(text, data string) { e.selected = append(e.selected, text+"|"+data) }
func (e *recEngine) Show(inputType string)    { e.shown = append(e.shown, inputType) }
func (e *recEngine) Uninit()                  { e.uninits++ }

type harness struct {
	t       *testing.T
	c       *Controller
	panel   *fakePanel
	sink    *host.RecordingSink
	heights []int
	clock   *timers.ManualClock
	posted  chan func()
	inline  atomic.Bool
	engine  *recEngine
	builds  int32
}

func newHarness(t *testing.T, keyboard string, tweak ...func(*Config, *Deps)) *harness {
	t.Helper()
	catalog, err := layout.Parse([]byte(testCatalog))
	require.NoError(t, err)

	h := &harness{
		t:      t,
		panel:  newFakePanel(),
		sink:   host.NewRecordingSink(),
		clock:  timers.NewManualClock(time.Unix(0, 0)),
		posted: make(chan func(), 64),
		engine: &recEngine{},
	}

	static := engine.NewStaticLoader()
	static.Register("pinyin", func() engine.Engine {
		atomic.AddInt32(&h.builds, 1)
		return h.engine
	})
	loader := engine.ChainLoader{static, engine.LoaderFunc(func(ctx context.Context, id string) (engine.Engine, error) {
		if id == "missing" {
			return nil, errors.New("script not found")
		}
		return nil, engine.ErrUnknownEngine
	})}

	cfg := DefaultConfig()
	cfg.Keyboard = keyboard
	deps := Deps{
		Catalog: catalog,
		Panel:   h.panel,
		Sink:    h.sink,
		Resizer: host.ResizeFunc(func(px int) { h.heights = append(h.heights, px) }),
		Loader:  loader,
		Clock:   h.clock,
		Post:    h.post,
	}
	for _, fn := range tweak {
		fn(&cfg, &deps)
	}

	h.c, err = New(cfg, deps)
	require.NoError(t, err)
	t.Cleanup(h.c.Close)
	return h
}

// post runs timer callbacks in place while the test advances the clock and
// queues engine completions, which arrive from loader goroutines.
func (h *harness) post(fn func()) {
	if h.inline.Load() {
		fn()
		return
	}
	h.posted <- fn
}

func (h *harness) advance(d time.Duration) {
	h.inline.Store(true)
	defer h.inline.Store(false)
	h.clock.Advance(d)
}

// waitEngine runs the next posted engine completion.
func (h *harness) waitEngine() {
	h.t.Helper()
	select {
	case fn := <-h.posted:
		fn()
	case <-time.After(2 * time.Second):
		h.t.Fatal("engine load never completed")
	}
}

func (h *harness) tap(t Target) {
	h.c.Press(t)
	h.c.Release()
}

func (h *harness) typed() string {
	return h.sink.Text()
}

func (h *harness) sent() []host.Key {
	return h.sink.Keys()
}

func key(code int) Target {
	return Target{ID: fmt.Sprintf("key-%d", code), Key: keys.FromCode(code)}
}

func action(s keys.Sentinel) Target {
	return Target{ID: "action-" + s.String(), Key: keys.Action(s)}
}

func chars(s string) []host.Key {
	var out []host.Key
	for _, r := range s {
		out = append(out, host.Key{Code: int(r)})
	}
	return out
}

var (
	backspace = host.Key{Control: true, Code: keys.Backspace}
	enter     = host.Key{Control: true, Code: keys.Return}
)
