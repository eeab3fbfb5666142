// Package luaengine loads input method engines written in Lua.
//
// An engine lives in <dir>/<id>/<id>.lua and returns a table of callbacks:
//
//	return {
//	  init   = function(glue) end,
//	  click  = function(code) end,
//	  select = function(text, data) end,
//	  show   = function(inputType) end, -- optional
//	  uninit = function() end,          -- optional
//	}
//
// The glue table passed to init exposes sendCandidates, sendPendingSymbols,
// sendKey, sendString, alterKeyboard and path.
package luaengine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bnema/softkeys/internal/engine"
	"github.com/bnema/softkeys/internal/logger"
	lua "github.com/yuin/gopher-lua"
)

var (
	// ErrNoModule is returned when a script does not return a callback table.
	ErrNoModule = errors.New("engine script must return a table")

	// ErrNoClick is returned when the callback table lacks click.
	ErrNoClick = errors.New("engine script has no click function")
)

// Loader loads scripted engines from a directory.
type Loader struct {
	Dir string
}

// Path implements engine.Locator.
func (l Loader) Path(id string) string {
	if l.Dir == "" {
		return ""
	}
	return filepath.Join(l.Dir, id)
}

func (l Loader) script(id string) string {
	return filepath.Join(l.Dir, id, id+".lua")
}

// Load runs the engine script. Engines whose script does not exist are
// reported as engine.ErrUnknownEngine so a ChainLoader moves on.
func (l Loader) Load(ctx context.Context, id string) (engine.Engine, error) {
	if l.Dir == "" {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownEngine, id)
	}
	path := l.script(id)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", engine.ErrUnknownEngine, id)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	L := newState()
	L.SetContext(ctx)
	base := L.GetTop()
	if err := doFile(L, path); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to run %s: %w", path, err)
	}
	L.RemoveContext()

	var mod *lua.LTable
	ok := L.GetTop() > base
	if ok {
		mod, ok = L.Get(base + 1).(*lua.LTable)
	}
	L.SetTop(0)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNoModule)
	}
	if _, ok := mod.RawGetString("click").(*lua.LFunction); !ok {
		L.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNoClick)
	}

	logger.Debug("Loaded scripted engine", "engine", id, "script", path)
	return &Engine{id: id, L: L, mod: mod}, nil
}

// newState creates a Lua state with only the base, table, string and math
// libraries, and without the base functions that reach the file system.
func newState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	// Each Open* call leaves its module table on the stack.
	L.SetTop(0)
	return L
}

func doFile(L *lua.LState, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return L.DoFile(path)
}

// Engine is a loaded script. It must only be used on the event thread.
type Engine struct {
	id     string
	L      *lua.LState
	mod    *lua.LTable
	closed bool
}

// Init exposes the glue to the script and calls its init callback.
func (e *Engine) Init(glue *engine.Glue) error {
	return e.call("init", e.glueTable(glue))
}

func (e *Engine) Click(code int) {
	if err := e.call("click", lua.LNumber(code)); err != nil {
		logger.Warn("Engine click failed", "engine", e.id, "code", code, "error", err)
	}
}

func (e *Engine) Select(text, data string) {
	if err := e.call("select", lua.LString(text), lua.LString(data)); err != nil {
		logger.Warn("Engine select failed", "engine", e.id, "error", err)
	}
}

func (e *Engine) Show(inputType string) {
	if err := e.call("show", lua.LString(inputType)); err != nil {
		logger.Warn("Engine show failed", "engine", e.id, "error", err)
	}
}

// Uninit calls the script's uninit callback and closes the Lua state.
func (e *Engine) Uninit() {
	if e.closed {
		return
	}
	if err := e.call("uninit"); err != nil {
		logger.Warn("Engine uninit failed", "engine", e.id, "error", err)
	}
	e.L.Close()
	e.closed = true
}

// call invokes an optional callback of the module table.
func (e *Engine) call(name string, args ...lua.LValue) (err error) {
	if e.closed {
		return nil
	}
	fn, ok := e.mod.RawGetString(name).(*lua.LFunction)
	if !ok {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic in %s: %v", name, r)
		}
	}()
	return e.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
}

func (e *Engine) glueTable(glue *engine.Glue) *lua.LTable {
	return e.L.SetFuncs(e.L.NewTable(), map[string]lua.LGFunction{
		"sendCandidates": func(L *lua.LState) int {
			list := L.CheckTable(1)
			candidates := make([]string, 0, list.Len())
			for i := 1; i <= list.Len(); i++ {
				candidates = append(candidates, lua.LVAsString(list.RawGetInt(i)))
			}
			glue.SendCandidates(candidates)
			return 0
		},
		"sendPendingSymbols": func(L *lua.LState) int {
			glue.SendPendingSymbols(L.OptString(1, ""))
			return 0
		},
		"sendKey": func(L *lua.LState) int {
			glue.SendKey(L.CheckInt(1))
			return 0
		},
		"sendString": func(L *lua.LState) int {
			glue.SendString(L.CheckString(1))
			return 0
		},
		"alterKeyboard": func(L *lua.LState) int {
			glue.AlterKeyboard(L.CheckString(1))
			return 0
		},
		"id": func(L *lua.LState) int {
			L.Push(lua.LString(glue.ID()))
			return 1
		},
		"path": func(L *lua.LState) int {
			L.Push(lua.LString(glue.Path()))
			return 1
		},
	})
}
