package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bnema/softkeys/internal/logger"
)

// Options tune a Registry.
type Options struct {
	// MaxAttempts bounds how often a failed engine is loaded again.
	MaxAttempts int
	// MaxPending bounds the keys queued while an engine is loading. When the
	// queue is full the oldest key is dropped.
	MaxPending int
	// LoadTimeout bounds a single Loader.Load call. Zero means no timeout.
	LoadTimeout time.Duration
}

// DefaultOptions returns the registry defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		MaxPending:  64,
		LoadTimeout: 10 * time.Second,
	}
}

type registration struct {
	id       string
	state    LoadState
	engine   Engine
	glue     *Glue
	attempts int
	err      error
	pending  []func(Engine)
}

// Registry owns every engine of a controller. Each id is loaded at most once
// at a time: a registration is in Loading from the moment a load starts, so
// repeated references while the loader runs are no-ops.
//
// All methods except the loader itself run on the event thread; completions
// are handed back through post.
type Registry struct {
	loader Loader
	host   GlueHost
	post   func(func())
	opts   Options

	regs   map[string]*registration
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewRegistry creates a registry. A nil post runs completions on the loader
// goroutine, which is only safe when nothing else touches the registry.
func NewRegistry(loader Loader, host GlueHost, post func(func()), opts Options) *Registry {
	if post == nil {
		post = func(fn func()) { fn() }
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultOptions().MaxPending
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		loader: loader,
		host:   host,
		post:   post,
		opts:   opts,
		regs:   make(map[string]*registration),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Load starts loading id unless it is already loading or ready. A failed
// registration is retried while it has attempts left.
func (r *Registry) Load(id string) error {
	if r.closed {
		return ErrRegistryClosed
	}

	reg, ok := r.regs[id]
	if !ok {
		reg = &registration{id: id}
		r.regs[id] = reg
	}

	switch reg.state {
	case Loading, Ready:
		return nil
	case Failed:
		if reg.attempts >= r.opts.MaxAttempts {
			return fmt.Errorf("%w: %s after %d attempts: %v", ErrTooManyAttempts, id, reg.attempts, reg.err)
		}
		logger.Info("Retrying engine load", "engine", id, "attempt", reg.attempts+1)
	}

	reg.state = Loading
	reg.err = nil
	reg.attempts++
	logger.Debug("Loading engine", "engine", id, "attempt", reg.attempts)

	ctx := r.ctx
	go func() {
		var cancel context.CancelFunc = func() {}
		if r.opts.LoadTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, r.opts.LoadTimeout)
		}
		defer cancel()

		e, err := r.loader.Load(ctx, id)
		if err == nil && e == nil {
			err = fmt.Errorf("loader returned no engine for %s", id)
		}
		r.post(func() { r.complete(reg, e, err) })
	}()
	return nil
}

func (r *Registry) complete(reg *registration, e Engine, err error) {
	if r.closed || r.regs[reg.id] != reg {
		if e != nil {
			if u, ok := e.(Uninitializer); ok {
				u.Uninit()
			}
		}
		return
	}

	if err != nil {
		r.fail(reg, fmt.Errorf("failed to load engine %s: %w", reg.id, err))
		return
	}

	glue := NewGlue(reg.id, r.path(reg.id), r.host)
	if err := e.Init(glue); err != nil {
		r.fail(reg, fmt.Errorf("failed to init engine %s: %w", reg.id, err))
		return
	}

	reg.engine = e
	reg.glue = glue
	reg.state = Ready
	logger.Info("Engine ready", "engine", reg.id, "queued", len(reg.pending))

	pending := reg.pending
	reg.pending = nil
	for _, call := range pending {
		call(e)
	}
}

func (r *Registry) fail(reg *registration, err error) {
	reg.state = Failed
	reg.err = err
	if n := len(reg.pending); n > 0 {
		logger.Warn("Dropping keys queued for failed engine", "engine", reg.id, "count", n)
	}
	reg.pending = nil
	logger.Error("Engine unavailable", "engine", reg.id, "attempt", reg.attempts, "error", err)
}

func (r *Registry) path(id string) string {
	if loc, ok := r.loader.(Locator); ok {
		return loc.Path(id)
	}
	return ""
}

// State returns the load state of id.
func (r *Registry) State(id string) LoadState {
	if reg, ok := r.regs[id]; ok {
		return reg.state
	}
	return Unloaded
}

// Err returns the last load error of id, nil unless it failed.
func (r *Registry) Err(id string) error {
	if reg, ok := r.regs[id]; ok {
		return reg.err
	}
	return nil
}

// Attempts returns how many times id has been loaded.
func (r *Registry) Attempts(id string) int {
	if reg, ok := r.regs[id]; ok {
		return reg.attempts
	}
	return 0
}

// IDs lists every registered engine id.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.regs))
	for id := range r.regs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Click routes a key code to id.
func (r *Registry) Click(id string, code int) error {
	return r.dispatch(id, func(e Engine) { e.Click(code) })
}

// Select routes a chosen candidate to id.
func (r *Registry) Select(id, text, data string) error {
	return r.dispatch(id, func(e Engine) { e.Select(text, data) })
}

// Show tells id about the current input type. Engines without Show ignore it.
func (r *Registry) Show(id, inputType string) error {
	return r.dispatch(id, func(e Engine) {
		if s, ok := e.(Shower); ok {
			s.Show(inputType)
		}
	})
}

func (r *Registry) dispatch(id string, call func(Engine)) error {
	if r.closed {
		return ErrRegistryClosed
	}
	reg, ok := r.regs[id]
	if !ok {
		return fmt.Errorf("%w: %s is not loaded", ErrEngineUnavailable, id)
	}

	if !reg.state.Accepts() {
		if reg.err != nil {
			return fmt.Errorf("%w: %s: %v", ErrEngineUnavailable, id, reg.err)
		}
		return fmt.Errorf("%w: %s is %s", ErrEngineUnavailable, id, reg.state)
	}

	if reg.state == Ready {
		call(reg.engine)
		return nil
	}
	if len(reg.pending) >= r.opts.MaxPending {
		logger.Warn("Engine queue full, dropping oldest key", "engine", id)
		reg.pending = reg.pending[1:]
	}
	reg.pending = append(reg.pending, call)
	return nil
}

// Close uninitializes every ready engine and rejects further calls. Loads
// still running are discarded when they complete.
func (r *Registry) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.cancel()

	for _, id := range r.IDs() {
		reg := r.regs[id]
		if reg.state != Ready {
			continue
		}
		if u, ok := reg.engine.(Uninitializer); ok {
			u.Uninit()
		}
		logger.Debug("Engine uninitialized", "engine", id)
	}
}

// IsUnavailable reports whether err means the engine could not take the key.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrEngineUnavailable) || errors.Is(err, ErrRegistryClosed)
}
