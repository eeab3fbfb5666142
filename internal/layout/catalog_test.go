package layout

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoKeyboards = `{
  "keyboards": [
    {"name": "en", "type": "standard", "rows": [[{"code": 97, "label": "a"}, {"code": 8}]]},
    {"name": "zh", "type": "ime", "imEngine": "pinyin", "rows": [[{"id": "zh-a", "code": 97}]]}
  ]
}`

func TestParse(t *testing.T) {
	t.Run("decodes keyboards in document order", func(t *testing.T) {
		c, err := Parse([]byte(twoKeyboards))
		require.NoError(t, err)
		assert.Equal(t, []string{"en", "zh"}, c.Keyboards())

		zh, ok := c.Descriptor("zh")
		require.True(t, ok)
		assert.True(t, zh.IsIME())
		assert.Equal(t, "pinyin", zh.Engine)
		assert.Equal(t, "zh-a", zh.Rows[0][0].ID, "explicit ids are kept")

		en, _ := c.Descriptor("en")
		assert.False(t, en.IsIME())
		assert.Equal(t, "en/basic/0/1", en.Rows[0][1].ID)
	})

	t.Run("enabled list sets switching order", func(t *testing.T) {
		doc := `{"enabled": ["zh", "en"], "keyboards": [
			{"name": "en", "rows": []},
			{"name": "zh", "type": "ime", "imEngine": "pinyin", "rows": []}]}`
		c, err := Parse([]byte(doc))
		require.NoError(t, err)
		assert.Equal(t, []string{"zh", "en"}, c.Keyboards())

		en, _ := c.Descriptor("en")
		assert.Equal(t, TypeStandard, en.Type, "missing type defaults to standard")
	})

	invalid := map[string]string{
		"not json":             `{`,
		"no keyboards":         `{"keyboards": []}`,
		"ime without engine":   `{"keyboards": [{"name": "x", "type": "ime", "rows": []}]}`,
		"unknown type":         `{"keyboards": [{"name": "x", "type": "braille", "rows": []}]}`,
		"code outside range":   `{"keyboards": [{"name": "x", "rows": [[{"code": -9}]]}]}`,
		"duplicate name":       `{"keyboards": [{"name": "x", "rows": []}, {"name": "x", "rows": []}]}`,
		"undefined enabled":    `{"enabled": ["y"], "keyboards": [{"name": "x", "rows": []}]}`,
		"key without code":     `{"keyboards": [{"name": "x", "rows": [[{"label": "a"}]]}]}`,
	}
	for name, doc := range invalid {
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	assert.Equal(t, []string{"en", "fr", "compose"}, c.Keyboards())

	compose, ok := c.Descriptor("compose")
	require.True(t, ok)
	assert.True(t, compose.IsIME())
	assert.Equal(t, "compose", compose.Engine)

	en, _ := c.Descriptor("en")
	assert.NotEmpty(t, en.RowsFor(ModeAlternate))
	assert.NotEqual(t, en.RowsFor(ModeNormal)[0][0].Code, en.RowsFor(ModeSymbol)[0][0].Code)
}

func TestRestrict(t *testing.T) {
	c := Default()

	r := c.Restrict([]string{"fr", "missing", "en"})
	assert.Equal(t, []string{"fr", "en"}, r.Keyboards())
	_, ok := r.Descriptor("compose")
	assert.True(t, ok, "restricting the order keeps descriptors reachable")

	assert.Equal(t, c.Keyboards(), c.Restrict(nil).Keyboards())
}

func TestRowsForFallsBack(t *testing.T) {
	d := Descriptor{Rows: [][]Key{{{Code: 97}}}}
	assert.Equal(t, d.Rows, d.RowsFor(ModeAlternate))
	assert.Equal(t, d.Rows, d.RowsFor(ModeSymbol))

	d.AlternateRows = [][]Key{{{Code: 49}}}
	assert.Equal(t, d.AlternateRows, d.RowsFor(ModeSymbol))
}

func TestSelectionAndCase(t *testing.T) {
	s := Selection{Keyboard: "en"}
	assert.False(t, s.IsAlternate())

	s.Mode = ModeSymbol
	assert.True(t, s.IsAlternate())
	assert.True(t, s.IsSymbol())
	assert.Equal(t, OverrideSymbol, s.Mode.Override())

	var c CaseState
	c.Toggle()
	assert.True(t, c.UpperCase)
	assert.True(t, c.ConsumeTransient())
	assert.False(t, c.UpperCase)

	assert.True(t, c.Lock())
	assert.False(t, c.ConsumeTransient(), "locked case survives characters")
	assert.False(t, c.Lock(), "already upper case")

	c.Reset()
	assert.Equal(t, CaseState{}, c)
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(twoKeyboards), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen [][]string
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *StaticCatalog) {
			mu.Lock()
			seen = append(seen, c.Keyboards())
			mu.Unlock()
		})
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{bad`), 0o644))
	require.NoError(t, os.WriteFile(path, []byte(`{"enabled": ["zh"], "keyboards": [
		{"name": "zh", "type": "ime", "imEngine": "pinyin", "rows": []}]}`), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, names := range seen {
			if len(names) == 1 && names[0] == "zh" {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
