package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/softkeys/internal/config"
	"github.com/bnema/softkeys/internal/controller"
	"github.com/bnema/softkeys/internal/engine"
	"github.com/bnema/softkeys/internal/engine/luaengine"
	"github.com/bnema/softkeys/internal/host"
	"github.com/bnema/softkeys/internal/ipc"
	"github.com/bnema/softkeys/internal/layout"
	"github.com/bnema/softkeys/internal/logger"
)

// loadCatalog reads the configured catalog, or the built-in one, limited to
// the enabled keyboards.
func loadCatalog(cfg *config.Config) (*layout.StaticCatalog, error) {
	catalog := layout.Default()
	if path := cfg.Keyboards.CatalogPath; path != "" {
		var err error
		if catalog, err = layout.Load(path); err != nil {
			return nil, err
		}
	}
	return catalog.Restrict(cfg.Keyboards.Enabled), nil
}

// watchCatalog hands every valid edit of the catalog file to onChange until
// ctx is done. It does nothing for the built-in catalog.
func watchCatalog(ctx context.Context, cfg *config.Config, onChange func(layout.Catalog)) {
	path := cfg.Keyboards.CatalogPath
	if path == "" || !cfg.Keyboards.Watch {
		return
	}
	enabled := cfg.Keyboards.Enabled
	err := layout.Watch(ctx, path, func(c *layout.StaticCatalog) {
		onChange(c.Restrict(enabled))
	})
	if err != nil {
		logger.Warnf("Catalog reload disabled: %v", err)
	}
}

func newLoader(cfg *config.Config) engine.Loader {
	return luaengine.Loader{Dir: cfg.Engines.ScriptDir}
}

// openSink creates the configured key sink. The returned func releases it.
func openSink(cfg *config.Config) (host.Sink, func(), error) {
	switch cfg.Sink.Backend {
	case "", config.SinkLog:
		return host.NewLogSink(), func() {}, nil
	case config.SinkUInput:
		sink, err := host.NewUInputSink(cfg.Sink.DevicePath, cfg.Sink.DeviceName)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() {
			if err := sink.Close(); err != nil {
				logger.Warnf("Failed to close virtual keyboard: %v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown sink backend %q (want %s or %s)", cfg.Sink.Backend, config.SinkLog, config.SinkUInput)
	}
}

// controllerFunc runs fn against a controller on its event thread.
type controllerFunc func(ctx context.Context, fn func(*controller.Controller)) error

// keyboardHandler answers IPC requests for a running keyboard
type keyboardHandler struct {
	do      controllerFunc
	timeout time.Duration
}

func newKeyboardHandler(do controllerFunc) *keyboardHandler {
	return &keyboardHandler{do: do, timeout: 2 * time.Second}
}

func (h *keyboardHandler) run(fn func(*controller.Controller) error) (ipc.Status, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var status ipc.Status
	var fnErr error
	err := h.do(ctx, func(c *controller.Controller) {
		if fnErr = fn(c); fnErr == nil {
			status = toIPCStatus(c.Snapshot())
		}
	})
	if err != nil {
		return ipc.Status{}, fmt.Errorf("keyboard did not answer: %w", err)
	}
	return status, fnErr
}

// HandleSwitch implements ipc.MessageHandler
func (h *keyboardHandler) HandleSwitch(keyboard string) (ipc.Status, error) {
	return h.run(func(c *controller.Controller) error {
		if keyboard == "" {
			c.NextKeyboard()
			return nil
		}
		for _, name := range c.Snapshot().Keyboards {
			if name == keyboard {
				c.SwitchKeyboard(keyboard)
				return nil
			}
		}
		return fmt.Errorf("unknown keyboard %q", keyboard)
	})
}

// HandleStatus implements ipc.MessageHandler
func (h *keyboardHandler) HandleStatus() (ipc.Status, error) {
	return h.run(func(*controller.Controller) error { return nil })
}

func toIPCStatus(s controller.Status) ipc.Status {
	status := ipc.Status{
		Keyboard:        s.Keyboard,
		Mode:            s.Mode.String(),
		UpperCase:       s.UpperCase,
		UpperCaseLocked: s.UpperCaseLocked,
		Keyboards:       s.Keyboards,
		InputType:       s.InputType,
		Engine:          s.Engine,
	}
	if s.Engine != "" {
		status.EngineState = s.EngineState.String()
	}
	return status
}

func newIPCClient() (*ipc.Client, error) {
	if socketPath != "" {
		return ipc.NewClientAt(socketPath), nil
	}
	return ipc.NewClient()
}

func newIPCServer(handler ipc.MessageHandler) (*ipc.SocketServer, error) {
	if socketPath != "" {
		return ipc.NewSocketServerAt(socketPath, handler), nil
	}
	return ipc.NewSocketServer(handler)
}
