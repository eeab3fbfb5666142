// Package network serves the terminal keyboard to remote users over SSH.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/bnema/softkeys/internal/config"
	"github.com/bnema/softkeys/internal/logger"
	"github.com/bnema/softkeys/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/google/uuid"
	"github.com/muesli/termenv"
	gossh "golang.org/x/crypto/ssh"
)

// ErrMaxClients is written to sessions rejected because the server is full.
var ErrMaxClients = errors.New("server already has maximum number of active clients")

// ModelFactory builds the keyboard shown to one SSH session.
type ModelFactory func(sess ssh.Session) (*ui.Model, error)

// SSHServer serves one keyboard per SSH session. Each session gets its own
// controller, so keyboards of different users never share state.
type SSHServer struct {
	addr        string
	hostKeyPath string
	keysPath    string
	maxClients  int
	newModel    ModelFactory
	sshServer   *ssh.Server
	listener    net.Listener

	// Active sessions
	mu       sync.Mutex
	clients  map[ssh.Session]*sshClient
	stopping bool

	// Lifecycle
	stopOnce sync.Once
	wg       sync.WaitGroup
	sessions sync.WaitGroup

	OnClientConnected    func(id, addr, fingerprint string)
	OnClientDisconnected func(id, addr string)
	OnAuthRequest        func(addr, publicKey, fingerprint string) bool // Returns approval
}

type sshClient struct {
	id          string
	session     ssh.Session
	addr        string
	fingerprint string
	model       *ui.Model
}

// NewSSHServer creates a server listening on the configured bind address and
// port. newModel is called once per session.
func NewSSHServer(cfg config.SSHConfig, newModel ModelFactory) *SSHServer {
	return &SSHServer{
		addr:        net.JoinHostPort(cfg.BindAddress, strconv.Itoa(cfg.Port)),
		hostKeyPath: cfg.HostKeyPath,
		keysPath:    cfg.AuthorizedKeysPath,
		maxClients:  4,
		newModel:    newModel,
		clients:     make(map[ssh.Session]*sshClient),
	}
}

// SetMaxClients sets the maximum number of concurrent sessions, 0 means no limit
func (s *SSHServer) SetMaxClients(max int) {
	s.maxClients = max
}

// Start begins listening for SSH connections
func (s *SSHServer) Start(ctx context.Context) error {
	server, err := wish.NewServer(
		wish.WithAddress(s.addr),
		wish.WithHostKeyPath(s.hostKeyPath),
		wish.WithPublicKeyAuth(s.publicKeyAuth),
		wish.WithIdleTimeout(30*time.Minute),
		wish.WithMiddleware(
			bubbletea.MiddlewareWithProgramHandler(s.programHandler, termenv.ANSI256),
			activeterm.Middleware(),
			s.sessionHandler(),
			s.loggingMiddleware(),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create SSH server: %w", err)
	}

	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.sshServer = server
	s.listener = l

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		logger.Infof("SSH keyboard server listening on %s", l.Addr())
		if err := server.Serve(l); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			logger.Errorf("SSH server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Addr returns the listening address once started
func (s *SSHServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts down the SSH server. Clients still connected after a short
// grace period are disconnected, then Stop waits for their keyboards to close.
func (s *SSHServer) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()

		if s.sshServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.sshServer.Shutdown(ctx); err != nil {
				_ = s.sshServer.Close()
			}
		}

		s.wg.Wait()
		s.sessions.Wait()
	})
}

// Sessions returns the number of connected sessions
func (s *SSHServer) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Each runs fn for every connected keyboard
func (s *SSHServer) Each(fn func(*ui.Model)) {
	s.mu.Lock()
	models := make([]*ui.Model, 0, len(s.clients))
	for _, c := range s.clients {
		if c.model != nil {
			models = append(models, c.model)
		}
	}
	s.mu.Unlock()

	for _, m := range models {
		fn(m)
	}
}

// publicKeyAuth handles SSH public key authentication
func (s *SSHServer) publicKeyAuth(ctx ssh.Context, key ssh.PublicKey) bool {
	logger.Infof("SSH authentication attempt addr=%s user=%s", ctx.RemoteAddr(), ctx.User())
	return s.authorize(ctx.RemoteAddr().String(), key)
}

func (s *SSHServer) authorize(addr string, key gossh.PublicKey) bool {
	fingerprint := gossh.FingerprintSHA256(key)

	if config.IsSSHKeyWhitelisted(fingerprint) {
		logger.Debugf("SSH key is whitelisted key=%s", fingerprint)
		return true
	}

	if s.inAuthorizedKeys(key) {
		logger.Debugf("SSH key found in %s key=%s", s.keysPath, fingerprint)
		return true
	}

	if !config.Get().SSH.WhitelistOnly {
		logger.Info("Accepting SSH key (whitelist-only mode disabled)")
		return true
	}

	if s.OnAuthRequest == nil {
		logger.Infof("SSH key denied (no auth handler) key=%s addr=%s", fingerprint, addr)
		return false
	}

	logger.Infof("Requesting approval for SSH key=%s addr=%s", fingerprint, addr)
	if !s.OnAuthRequest(addr, string(gossh.MarshalAuthorizedKey(key)), fingerprint) {
		logger.Infof("SSH key denied key=%s addr=%s", fingerprint, addr)
		return false
	}
	if err := config.AddSSHKeyToWhitelist(fingerprint); err != nil {
		logger.Errorf("Failed to add key to whitelist: %v", err)
	}
	logger.Infof("SSH key approved and added to whitelist key=%s addr=%s", fingerprint, addr)
	return true
}

// inAuthorizedKeys reports whether key is listed in the authorized_keys file.
// A missing file authorizes nothing.
func (s *SSHServer) inAuthorizedKeys(key gossh.PublicKey) bool {
	if s.keysPath == "" {
		return false
	}
	data, err := os.ReadFile(s.keysPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("Failed to read authorized keys %s: %v", s.keysPath, err)
		}
		return false
	}
	for len(data) > 0 {
		known, _, _, rest, err := gossh.ParseAuthorizedKey(data)
		if err != nil {
			return false
		}
		if ssh.KeysEqual(known, key) {
			return true
		}
		data = rest
	}
	return false
}

func (s *SSHServer) loggingMiddleware() wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			start := time.Now()
			logger.Debugf("SSH session started: user=%s addr=%s", sess.User(), sess.RemoteAddr())
			next(sess)
			logger.Debugf("SSH session ended: addr=%s duration=%s", sess.RemoteAddr(), time.Since(start))
		}
	}
}

// sessionHandler enforces the client limit and tracks sessions
func (s *SSHServer) sessionHandler() wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			client := &sshClient{
				id:      uuid.NewString(),
				session: sess,
				addr:    sess.RemoteAddr().String(),
			}
			if sess.PublicKey() != nil {
				client.fingerprint = gossh.FingerprintSHA256(sess.PublicKey())
			}

			s.mu.Lock()
			if s.stopping {
				s.mu.Unlock()
				wish.Fatalln(sess, "server shutting down")
				return
			}
			if s.maxClients > 0 && len(s.clients) >= s.maxClients {
				s.mu.Unlock()
				logger.Infof("Rejecting client - max clients reached addr=%s", client.addr)
				wish.Fatalln(sess, ErrMaxClients.Error())
				return
			}
			s.clients[sess] = client
			s.sessions.Add(1)
			s.mu.Unlock()

			if s.OnClientConnected != nil {
				s.OnClientConnected(client.id, client.addr, client.fingerprint)
			}

			defer func() {
				s.mu.Lock()
				delete(s.clients, sess)
				s.mu.Unlock()
				defer s.sessions.Done()

				if client.model != nil {
					client.model.Close()
				}
				if s.OnClientDisconnected != nil {
					s.OnClientDisconnected(client.id, client.addr)
				}
			}()

			next(sess)
		}
	}
}

// programHandler builds the keyboard program of a session
func (s *SSHServer) programHandler(sess ssh.Session) *tea.Program {
	s.mu.Lock()
	client := s.clients[sess]
	s.mu.Unlock()
	if client == nil {
		return nil
	}

	m, err := s.newModel(sess)
	if err != nil {
		logger.Errorf("Failed to create keyboard for %s: %v", client.addr, err)
		wish.Fatalln(sess, "failed to start keyboard:", err)
		return nil
	}

	s.mu.Lock()
	client.model = m
	s.mu.Unlock()

	return ui.NewProgram(m, bubbletea.MakeOptions(sess)...)
}
