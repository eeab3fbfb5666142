package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bnema/softkeys/internal/config"
	"github.com/bnema/softkeys/internal/controller"
	"github.com/bnema/softkeys/internal/ipc"
	"github.com/bnema/softkeys/internal/layout"
	"github.com/bnema/softkeys/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfigPath returns a fresh config path and resets global state after
// the test.
func testConfigPath(t *testing.T) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(func() {
		viper.Reset()
		config.SetConfigPath("")
		config.Set(nil)
		configPath, logLevel, socketPath = "", "", ""
	})
	return filepath.Join(t.TempDir(), "softkeys.toml")
}

// execute runs the CLI with args and returns what it printed
func execute(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	config.Set(nil)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigInit(t *testing.T) {
	path := testConfigPath(t)

	t.Run("creates config file when it doesn't exist", func(t *testing.T) {
		_, err := execute(t, path, "config", "init")
		require.NoError(t, err)

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "menu_show_ms")
	})

	t.Run("doesn't overwrite existing config without force", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("[timing]\nmenu_show_ms = 900\n"), 0644))

		_, err := execute(t, path, "config", "init")
		require.NoError(t, err)

		content, _ := os.ReadFile(path)
		assert.Equal(t, "[timing]\nmenu_show_ms = 900\n", string(content))
	})

	t.Run("overwrites with force flag", func(t *testing.T) {
		_, err := execute(t, path, "config", "init", "--force")
		require.NoError(t, err)

		viper.Reset()
		require.NoError(t, config.Init())
		assert.Equal(t, 700, config.Get().Timing.MenuShowMs)
	})
}

func TestConfigShow(t *testing.T) {
	path := testConfigPath(t)
	require.NoError(t, os.WriteFile(path, []byte("[keyboards]\nenabled = [\"fr\", \"en\"]\n"), 0644))

	out, err := execute(t, path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Config file: "+path)
	assert.Contains(t, out, "Catalog: built-in")
	assert.Contains(t, out, "Enabled: fr, en")
	assert.Contains(t, out, "Default: first enabled")
}

func TestConfigInvalidFile(t *testing.T) {
	path := testConfigPath(t)
	require.NoError(t, os.WriteFile(path, []byte("[timing\nmenu_show_ms = 1\n"), 0644))

	_, err := execute(t, path, "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestConfigSSHWhitelist(t *testing.T) {
	path := testConfigPath(t)

	_, err := execute(t, path, "config", "ssh", "add", "SHA256:abc")
	require.NoError(t, err)

	out, err := execute(t, path, "config", "ssh", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "1. SHA256:abc")
	assert.Contains(t, out, "Whitelist-only mode is ENABLED")

	_, err = execute(t, path, "config", "ssh", "add", "abc")
	assert.Error(t, err, "fingerprints must be SHA256")

	_, err = execute(t, path, "config", "ssh", "remove", "SHA256:abc")
	require.NoError(t, err)

	out, err = execute(t, path, "config", "ssh", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No SSH keys in whitelist")
}

func TestKeyboardsList(t *testing.T) {
	path := testConfigPath(t)
	require.NoError(t, os.WriteFile(path, []byte("[keyboards]\ndefault = \"fr\"\n"), 0644))

	out, err := execute(t, path, "keyboards", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Catalog: built-in")
	assert.Contains(t, out, "English")
	assert.Contains(t, out, "fr *")
	assert.Contains(t, out, "compose")

	// The engine column names the compose script
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "compose") {
			assert.Contains(t, line, "ime")
		}
	}
}

func TestKeyboardsValidate(t *testing.T) {
	path := testConfigPath(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"keyboards": [{"name": "x", "rows": [[{"code": 97}]]}]}`), 0644))
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"keyboards": []}`), 0644))

	out, err := execute(t, path, "keyboards", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, good)

	out, err = execute(t, path, "keyboards", "validate", good, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad)
	assert.NotContains(t, err.Error(), good)
	assert.Contains(t, out, "invalid keyboard catalog")
}

func TestVersion(t *testing.T) {
	path := testConfigPath(t)
	out, err := execute(t, path, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "softkeys "+Version)
}

// startKeyboard runs a headless keyboard program and serves it on a socket
func startKeyboard(t *testing.T) string {
	t.Helper()
	m, err := ui.NewModel(ui.Options{
		Config:  controller.DefaultConfig(),
		Catalog: layout.Default(),
	})
	require.NoError(t, err)

	p := ui.NewProgram(m,
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutRenderer(),
		tea.WithoutSignalHandler(),
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Run()
	}()

	sock := filepath.Join(t.TempDir(), "kb.sock")
	server := ipc.NewSocketServerAt(sock, newKeyboardHandler(m.Do))
	require.NoError(t, server.Start())

	t.Cleanup(func() {
		server.Stop()
		p.Quit()
		<-done
		m.Close()
	})
	return sock
}

func TestStatusAndSwitch(t *testing.T) {
	path := testConfigPath(t)
	sock := startKeyboard(t)

	out, err := execute(t, path, "--socket", sock, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "[en]")

	out, err = execute(t, path, "--socket", sock, "switch", "fr")
	require.NoError(t, err)
	assert.Contains(t, out, "Switched to fr (2/3)")

	out, err = execute(t, path, "--socket", sock, "switch")
	require.NoError(t, err)
	assert.Contains(t, out, "Switched to compose (3/3)")

	_, err = execute(t, path, "--socket", sock, "switch", "klingon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keyboard")

	out, err = execute(t, path, "--socket", sock, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "[compose]")
}

func TestStatusNotRunning(t *testing.T) {
	path := testConfigPath(t)
	sock := filepath.Join(t.TempDir(), "missing.sock")

	out, err := execute(t, path, "--socket", sock, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No keyboard is running")
}

func TestKeyboardHandlerTimeout(t *testing.T) {
	h := newKeyboardHandler(func(ctx context.Context, fn func(*controller.Controller)) error {
		<-ctx.Done()
		return ctx.Err()
	})
	h.timeout = 10 * time.Millisecond

	_, err := h.HandleStatus()
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpenSink(t *testing.T) {
	cfg := config.DefaultConfig
	sink, closeSink, err := openSink(&cfg)
	require.NoError(t, err)
	assert.NotNil(t, sink)
	closeSink()

	cfg.Sink.Backend = "carrier-pigeon"
	_, _, err = openSink(&cfg)
	assert.Error(t, err)
}

func TestLoadCatalogRestricts(t *testing.T) {
	cfg := config.DefaultConfig
	cfg.Keyboards.Enabled = []string{"fr", "nope", "en"}

	catalog, err := loadCatalog(&cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"fr", "en"}, catalog.Keyboards())

	cfg.Keyboards.CatalogPath = filepath.Join(t.TempDir(), "missing.json")
	_, err = loadCatalog(&cfg)
	assert.Error(t, err)
}
