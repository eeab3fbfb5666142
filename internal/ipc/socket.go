package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"sync"

	"github.com/bnema/softkeys/internal/logger"
	"google.golang.org/protobuf/types/known/structpb"
)

// SocketServer handles incoming IPC connections
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	handler    MessageHandler
	conns      map[net.Conn]struct{}
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool
}

// MessageHandler answers IPC commands. Implementations are called from
// connection goroutines and must hop onto the event thread themselves.
type MessageHandler interface {
	HandleSwitch(keyboard string) (Status, error)
	HandleStatus() (Status, error)
}

// NewSocketServer creates a new socket server on the per-user socket path
func NewSocketServer(handler MessageHandler) (*SocketServer, error) {
	socketPath, err := getSocketPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get socket path: %w", err)
	}

	return NewSocketServerAt(socketPath, handler), nil
}

// NewSocketServerAt creates a socket server listening on socketPath
func NewSocketServerAt(socketPath string, handler MessageHandler) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		handler:    handler,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Path returns the socket path
func (s *SocketServer) Path() string {
	return s.socketPath
}

// Start starts the socket server
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Remove existing socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	// Set socket permissions (user only)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	logger.Infof("IPC socket server started at %s", s.socketPath)
	return nil
}

// Stop stops the socket server and closes open connections
func (s *SocketServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}

	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	// Clean up socket file
	os.RemoveAll(s.socketPath)

	logger.Info("IPC socket server stopped")
}

func (s *SocketServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Errorf("Failed to accept connection: %v", err)
				continue
			}
		}

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(ctx, conn)
	}
}

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	logger.Debug("New IPC connection established")

	for ctx.Err() == nil {
		msg, err := readMessage(conn)
		if err != nil {
			logger.Debugf("Connection closed or read error: %v", err)
			return
		}

		if err := writeMessage(conn, s.handleMessage(msg)); err != nil {
			logger.Errorf("Failed to send response: %v", err)
			return
		}
	}
}

// handleMessage processes a single message and returns a response
func (s *SocketServer) handleMessage(msg *structpb.Struct) *structpb.Struct {
	var (
		status Status
		err    error
	)

	switch TypeOf(msg) {
	case MessageTypeSwitch:
		keyboard, perr := GetSwitchCommand(msg)
		if perr != nil {
			return errorMessage(fmt.Sprintf("Invalid switch command: %v", perr))
		}
		status, err = s.handler.HandleSwitch(keyboard)

	case MessageTypeStatus:
		status, err = s.handler.HandleStatus()

	default:
		return errorMessage(fmt.Sprintf("Unknown message type: %q", TypeOf(msg)))
	}

	if err != nil {
		return errorMessage(err.Error())
	}
	response, err := NewStatusResponseMessage(status)
	if err != nil {
		return errorMessage(fmt.Sprintf("failed to encode status: %v", err))
	}
	return response
}

func errorMessage(text string) *structpb.Struct {
	msg, err := NewErrorMessage(text)
	if err != nil {
		// A plain string field always converts
		panic(err)
	}
	return msg
}

// getSocketPath returns the path for the Unix socket
func getSocketPath() (string, error) {
	currentUser, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}

	// Use /tmp/softkeys-{username}.sock
	socketPath := filepath.Join("/tmp", fmt.Sprintf("softkeys-%s.sock", currentUser.Username))
	return socketPath, nil
}

// GetSocketPath returns the socket path (for use by clients)
func GetSocketPath() (string, error) {
	return getSocketPath()
}
