package network

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bnema/softkeys/internal/config"
	"github.com/bnema/softkeys/internal/controller"
	"github.com/bnema/softkeys/internal/layout"
	"github.com/bnema/softkeys/internal/ui"
	"github.com/charmbracelet/ssh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"
)

// useConfig installs a config whose saves land in a temp dir
func useConfig(t *testing.T, whitelistOnly bool) *config.Config {
	t.Helper()
	c := config.DefaultConfig
	c.SSH.Whitelist = []string{}
	c.SSH.WhitelistOnly = whitelistOnly
	c.SSH.BindAddress = "127.0.0.1"
	c.SSH.Port = 0
	c.SSH.HostKeyPath = filepath.Join(t.TempDir(), "host_key")
	c.SSH.AuthorizedKeysPath = filepath.Join(t.TempDir(), "authorized_keys")

	config.SetConfigPath(filepath.Join(t.TempDir(), "softkeys.toml"))
	config.Set(&c)
	t.Cleanup(func() {
		config.SetConfigPath("")
		config.Set(nil)
	})
	return &c
}

func newSigner(t *testing.T) gossh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := gossh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

func testModel(ssh.Session) (*ui.Model, error) {
	return ui.NewModel(ui.Options{
		Config:  controller.DefaultConfig(),
		Catalog: layout.Default(),
		Title:   "remote-kbd",
	})
}

func startServer(t *testing.T, cfg *config.Config, setup ...func(*SSHServer)) *SSHServer {
	t.Helper()
	server := NewSSHServer(cfg.SSH, testModel)
	for _, fn := range setup {
		fn(server)
	}
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, server.Start(ctx))
	t.Cleanup(func() {
		cancel()
		server.Stop()
	})
	return server
}

func dial(t *testing.T, server *SSHServer, signer gossh.Signer) (*gossh.Client, error) {
	t.Helper()
	return gossh.Dial("tcp", server.Addr().String(), &gossh.ClientConfig{
		User:            "tester",
		Auth:            []gossh.AuthMethod{gossh.PublicKeys(signer)},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
}

// syncBuffer collects session output read on another goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAuthorize(t *testing.T) {
	t.Run("whitelisted key", func(t *testing.T) {
		cfg := useConfig(t, true)
		signer := newSigner(t)
		cfg.SSH.Whitelist = []string{gossh.FingerprintSHA256(signer.PublicKey())}

		server := NewSSHServer(cfg.SSH, testModel)
		assert.True(t, server.authorize("192.168.1.100:12345", signer.PublicKey()))
	})

	t.Run("key in authorized_keys", func(t *testing.T) {
		cfg := useConfig(t, true)
		signer := newSigner(t)
		other := newSigner(t)
		keys := append(gossh.MarshalAuthorizedKey(other.PublicKey()), gossh.MarshalAuthorizedKey(signer.PublicKey())...)
		require.NoError(t, os.WriteFile(cfg.SSH.AuthorizedKeysPath, keys, 0600))

		server := NewSSHServer(cfg.SSH, testModel)
		assert.True(t, server.authorize("192.168.1.100:12345", signer.PublicKey()))
		assert.False(t, server.authorize("192.168.1.100:12345", newSigner(t).PublicKey()))
	})

	t.Run("open mode accepts any key", func(t *testing.T) {
		cfg := useConfig(t, false)
		server := NewSSHServer(cfg.SSH, testModel)
		assert.True(t, server.authorize("192.168.1.100:12345", newSigner(t).PublicKey()))
	})

	t.Run("whitelist-only without handler denies", func(t *testing.T) {
		cfg := useConfig(t, true)
		server := NewSSHServer(cfg.SSH, testModel)
		assert.False(t, server.authorize("192.168.1.100:12345", newSigner(t).PublicKey()))
	})

	t.Run("approval adds the key to the whitelist", func(t *testing.T) {
		cfg := useConfig(t, true)
		signer := newSigner(t)
		fingerprint := gossh.FingerprintSHA256(signer.PublicKey())

		server := NewSSHServer(cfg.SSH, testModel)
		var asked []string
		server.OnAuthRequest = func(addr, publicKey, fp string) bool {
			asked = append(asked, fp)
			assert.Contains(t, publicKey, "ssh-ed25519")
			return true
		}

		assert.True(t, server.authorize("192.168.1.100:12345", signer.PublicKey()))
		assert.True(t, config.IsSSHKeyWhitelisted(fingerprint))

		// Known now, so no second prompt
		assert.True(t, server.authorize("192.168.1.100:12345", signer.PublicKey()))
		assert.Equal(t, []string{fingerprint}, asked)
	})

	t.Run("rejection leaves the whitelist alone", func(t *testing.T) {
		cfg := useConfig(t, true)
		signer := newSigner(t)

		server := NewSSHServer(cfg.SSH, testModel)
		server.OnAuthRequest = func(string, string, string) bool { return false }

		assert.False(t, server.authorize("192.168.1.101:12345", signer.PublicKey()))
		assert.False(t, config.IsSSHKeyWhitelisted(gossh.FingerprintSHA256(signer.PublicKey())))
	})
}

func TestSSHServerDeniesUnknownKey(t *testing.T) {
	cfg := useConfig(t, true)
	server := startServer(t, cfg)

	_, err := dial(t, server, newSigner(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to authenticate")
}

func TestSSHServerRequiresPTY(t *testing.T) {
	cfg := useConfig(t, false)
	server := startServer(t, cfg)

	client, err := dial(t, server, newSigner(t))
	require.NoError(t, err)
	defer client.Close()

	sess, err := client.NewSession()
	require.NoError(t, err)
	defer sess.Close()

	out, err := sess.CombinedOutput("")
	var exitErr *gossh.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitStatus())
	assert.Contains(t, string(out), "Requires an active PTY")
}

func openKeyboard(t *testing.T, server *SSHServer) (*gossh.Client, *gossh.Session, *syncBuffer) {
	t.Helper()
	client, err := dial(t, server, newSigner(t))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	sess, err := client.NewSession()
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })

	require.NoError(t, sess.RequestPty("xterm-256color", 40, 120, gossh.TerminalModes{}))
	stdout, err := sess.StdoutPipe()
	require.NoError(t, err)

	out := &syncBuffer{}
	go func() { _, _ = io.Copy(out, stdout) }()
	require.NoError(t, sess.Shell())
	return client, sess, out
}

func waitForKeyboard(t *testing.T, out *syncBuffer) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "remote-kbd")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSSHServerServesKeyboard(t *testing.T) {
	cfg := useConfig(t, false)

	var connected, disconnected []string
	var mu sync.Mutex
	server := startServer(t, cfg, func(s *SSHServer) {
		s.OnClientConnected = func(id, addr, fingerprint string) {
			mu.Lock()
			defer mu.Unlock()
			assert.NotEmpty(t, fingerprint)
			connected = append(connected, id)
		}
		s.OnClientDisconnected = func(id, addr string) {
			mu.Lock()
			defer mu.Unlock()
			disconnected = append(disconnected, id)
		}
	})

	client, _, out := openKeyboard(t, server)
	waitForKeyboard(t, out)
	assert.Equal(t, 1, server.Sessions())

	var keyboards []string
	server.Each(func(m *ui.Model) {
		require.NoError(t, m.Do(context.Background(), func(c *controller.Controller) {
			keyboards = append(keyboards, c.Snapshot().Keyboard)
		}))
	})
	assert.Equal(t, []string{"en"}, keyboards)

	require.NoError(t, client.Close())
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(disconnected) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0, server.Sessions())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, connected, 1)
	assert.Equal(t, connected, disconnected)
}

func TestSSHServerMaxClients(t *testing.T) {
	cfg := useConfig(t, false)
	server := startServer(t, cfg, func(s *SSHServer) { s.SetMaxClients(1) })

	_, _, out := openKeyboard(t, server)
	waitForKeyboard(t, out)

	client, err := dial(t, server, newSigner(t))
	require.NoError(t, err)
	defer client.Close()
	sess, err := client.NewSession()
	require.NoError(t, err)
	defer sess.Close()

	rejected, err := sess.CombinedOutput("")
	require.Error(t, err)
	assert.Contains(t, string(rejected), ErrMaxClients.Error())
	assert.Equal(t, 1, server.Sessions())
}

func TestSSHServerStopClosesSessions(t *testing.T) {
	cfg := useConfig(t, false)
	server := startServer(t, cfg)

	_, sess, out := openKeyboard(t, server)
	waitForKeyboard(t, out)

	done := make(chan struct{})
	go func() {
		server.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Error(t, sess.Wait())
	assert.Equal(t, 0, server.Sessions())
}
