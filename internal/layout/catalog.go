// Package layout holds the keyboard catalog and the layout/mode state of the
// active keyboard.
package layout

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed data/catalog.schema.json data/default.json
var dataFS embed.FS

const schemaURL = "https://softkeys.local/catalog.schema.json"

// ErrInvalidCatalog wraps every catalog decoding or validation failure.
var ErrInvalidCatalog = errors.New("invalid keyboard catalog")

// Keyboard types.
const (
	TypeStandard = "standard"
	TypeIME      = "ime"
)

// Key is one key of a layout row.
type Key struct {
	ID         string   `json:"id,omitempty"`
	Code       int      `json:"code"`
	Label      string   `json:"label,omitempty"`
	Alternates []string `json:"alt,omitempty"`
	Keyboard   string   `json:"keyboard,omitempty"`
	Width      float64  `json:"width,omitempty"`
}

// Descriptor describes one keyboard of the catalog.
type Descriptor struct {
	Name          string  `json:"name"`
	Label         string  `json:"label,omitempty"`
	Type          string  `json:"type,omitempty"`
	Engine        string  `json:"imEngine,omitempty"`
	Rows          [][]Key `json:"rows"`
	AlternateRows [][]Key `json:"alternateRows,omitempty"`
	SymbolRows    [][]Key `json:"symbolRows,omitempty"`
}

// IsIME reports whether keys of this keyboard are routed to an engine.
func (d Descriptor) IsIME() bool {
	return d.Type == TypeIME
}

// RowsFor returns the rows rendered for a mode, falling back to the basic
// rows when the keyboard has no dedicated alternate or symbol rows.
func (d Descriptor) RowsFor(mode Mode) [][]Key {
	switch mode {
	case ModeSymbol:
		if len(d.SymbolRows) > 0 {
			return d.SymbolRows
		}
		if len(d.AlternateRows) > 0 {
			return d.AlternateRows
		}
	case ModeAlternate:
		if len(d.AlternateRows) > 0 {
			return d.AlternateRows
		}
	}
	return d.Rows
}

// Catalog is the read side the controller consumes.
type Catalog interface {
	// Descriptor looks up a keyboard by name.
	Descriptor(name string) (Descriptor, bool)
	// Keyboards returns the known keyboards in switching order.
	Keyboards() []string
}

// StaticCatalog is an immutable Catalog decoded from a catalog document.
type StaticCatalog struct {
	order  []string
	byName map[string]Descriptor
}

type document struct {
	Enabled   []string     `json:"enabled"`
	Keyboards []Descriptor `json:"keyboards"`
}

var compiledSchema *jsonschema.Schema

func schema() (*jsonschema.Schema, error) {
	if compiledSchema != nil {
		return compiledSchema, nil
	}
	raw, err := dataFS.ReadFile("data/catalog.schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add catalog schema: %w", err)
	}
	s, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile catalog schema: %w", err)
	}
	compiledSchema = s
	return s, nil
}

// Validate checks a raw catalog document against the catalog schema.
func Validate(data []byte) error {
	s, err := schema()
	if err != nil {
		return err
	}

	var instance interface{}
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := s.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return nil
}

// Parse validates and decodes a catalog document.
func Parse(data []byte) (*StaticCatalog, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	c := &StaticCatalog{byName: make(map[string]Descriptor, len(doc.Keyboards))}
	for _, kb := range doc.Keyboards {
		if _, dup := c.byName[kb.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate keyboard %q", ErrInvalidCatalog, kb.Name)
		}
		if kb.Type == "" {
			kb.Type = TypeStandard
		}
		assignKeyIDs(&kb)
		c.byName[kb.Name] = kb
	}

	order := doc.Enabled
	if len(order) == 0 {
		for _, kb := range doc.Keyboards {
			order = append(order, kb.Name)
		}
	}
	for _, name := range order {
		if _, ok := c.byName[name]; !ok {
			return nil, fmt.Errorf("%w: enabled keyboard %q is not defined", ErrInvalidCatalog, name)
		}
	}
	c.order = append([]string(nil), order...)
	return c, nil
}

// Load reads and parses a catalog file.
func Load(path string) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in catalog.
func Default() *StaticCatalog {
	data, err := dataFS.ReadFile("data/default.json")
	if err != nil {
		panic(fmt.Sprintf("embedded default catalog missing: %v", err))
	}
	c, err := Parse(data)
	if err != nil {
		panic(fmt.Sprintf("embedded default catalog invalid: %v", err))
	}
	return c
}

// Descriptor implements Catalog.
func (c *StaticCatalog) Descriptor(name string) (Descriptor, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// Keyboards implements Catalog.
func (c *StaticCatalog) Keyboards() []string {
	return append([]string(nil), c.order...)
}

// Restrict returns a catalog whose switching order is limited to names, in
// the given order. Unknown names are skipped; an empty result keeps the
// original order.
func (c *StaticCatalog) Restrict(names []string) *StaticCatalog {
	var order []string
	for _, name := range names {
		if _, ok := c.byName[name]; ok {
			order = append(order, name)
		}
	}
	if len(order) == 0 {
		order = c.order
	}
	return &StaticCatalog{order: append([]string(nil), order...), byName: c.byName}
}

// assignKeyIDs gives every key without an explicit id a stable one derived
// from its position, so hosts can address keys for highlighting.
func assignKeyIDs(d *Descriptor) {
	sections := []struct {
		prefix string
		rows   [][]Key
	}{
		{"basic", d.Rows},
		{"alternate", d.AlternateRows},
		{"symbol", d.SymbolRows},
	}
	for _, s := range sections {
		for r, row := range s.rows {
			for k := range row {
				if row[k].ID == "" {
					row[k].ID = d.Name + "/" + s.prefix + "/" + strconv.Itoa(r) + "/" + strconv.Itoa(k)
				}
			}
		}
	}
}
