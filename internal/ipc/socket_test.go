package ipc

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// MockHandler implements MessageHandler for testing
type MockHandler struct {
	mu        sync.Mutex
	keyboard  string
	keyboards []string
	switched  []string
	failWith  error
}

func newMockHandler() *MockHandler {
	return &MockHandler{keyboard: "en", keyboards: []string{"en", "fr"}}
}

func (m *MockHandler) status() Status {
	return Status{Keyboard: m.keyboard, Keyboards: m.keyboards, Mode: "normal"}
}

func (m *MockHandler) HandleSwitch(keyboard string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.switched = append(m.switched, keyboard)
	if m.failWith != nil {
		return Status{}, m.failWith
	}
	if keyboard == "" {
		keyboard = "fr"
	}
	m.keyboard = keyboard
	return m.status(), nil
}

func (m *MockHandler) HandleStatus() (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status(), nil
}

func startTestServer(t *testing.T, handler MessageHandler) *SocketServer {
	t.Helper()
	server := NewSocketServerAt(filepath.Join(t.TempDir(), "test.sock"), handler)
	if err := server.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(server.Stop)
	return server
}

func TestNewSocketServer(t *testing.T) {
	handler := newMockHandler()
	server, err := NewSocketServer(handler)
	if err != nil {
		t.Fatalf("NewSocketServer() error = %v", err)
	}

	if server.handler != handler {
		t.Error("Handler not set correctly")
	}

	if server.Path() == "" {
		t.Error("Socket path not set")
	}
}

func TestSocketServerStartStop(t *testing.T) {
	server := NewSocketServerAt(filepath.Join(t.TempDir(), "test.sock"), newMockHandler())

	if err := server.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := os.Stat(server.Path()); os.IsNotExist(err) {
		t.Error("Socket file was not created")
	}

	// Starting again should not error
	if err := server.Start(); err != nil {
		t.Errorf("Start() on running server error = %v", err)
	}

	server.Stop()

	if _, err := os.Stat(server.Path()); !os.IsNotExist(err) {
		t.Error("Socket file was not cleaned up")
	}

	// Stopping again should not panic
	server.Stop()
}

func TestGetSocketPath(t *testing.T) {
	path, err := GetSocketPath()
	if err != nil {
		t.Fatalf("GetSocketPath() error = %v", err)
	}

	if !filepath.IsAbs(path) {
		t.Error("Socket path is not absolute")
	}

	if !strings.HasPrefix(path, "/tmp/softkeys-") || !strings.HasSuffix(path, ".sock") {
		t.Errorf("Unexpected socket path %s", path)
	}
}

func TestSocketServerCleanupExistingSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sock")

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create dummy socket file: %v", err)
	}
	file.Close()

	server := NewSocketServerAt(path, newMockHandler())
	if err := server.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	server.Stop()
}

func TestClientRoundTrip(t *testing.T) {
	handler := newMockHandler()
	server := startTestServer(t, handler)
	client := NewClientAt(server.Path()).WithTimeout(time.Second)

	t.Run("status", func(t *testing.T) {
		status, err := client.SendStatus()
		if err != nil {
			t.Fatalf("SendStatus() error = %v", err)
		}
		if status.Keyboard != "en" || len(status.Keyboards) != 2 {
			t.Errorf("Unexpected status %+v", status)
		}
		if !client.IsRunning() {
			t.Error("IsRunning() should be true")
		}
	})

	t.Run("switch by name", func(t *testing.T) {
		status, err := client.SendSwitch("fr")
		if err != nil {
			t.Fatalf("SendSwitch() error = %v", err)
		}
		if status.Keyboard != "fr" {
			t.Errorf("Expected fr, got %s", status.Keyboard)
		}
	})

	t.Run("switch next", func(t *testing.T) {
		if _, err := client.SendSwitchNext(); err != nil {
			t.Fatalf("SendSwitchNext() error = %v", err)
		}
		handler.mu.Lock()
		defer handler.mu.Unlock()
		if got := handler.switched[len(handler.switched)-1]; got != "" {
			t.Errorf("Expected an empty keyboard for next, got %q", got)
		}
	})

	t.Run("handler error", func(t *testing.T) {
		handler.mu.Lock()
		handler.failWith = errors.New("unknown keyboard \"xx\"")
		handler.mu.Unlock()

		_, err := client.SendSwitch("xx")
		if err == nil || !strings.Contains(err.Error(), "unknown keyboard") {
			t.Errorf("Expected server error, got %v", err)
		}
	})
}

func TestUnknownMessageType(t *testing.T) {
	server := startTestServer(t, newMockHandler())
	client := NewClientAt(server.Path())

	msg, _ := NewErrorMessage("not a command")
	response, err := client.sendMessage(msg)
	if err != nil {
		t.Fatalf("sendMessage() error = %v", err)
	}
	if TypeOf(response) != MessageTypeError {
		t.Errorf("Expected error response, got %s", TypeOf(response))
	}
}

func TestClientNotRunning(t *testing.T) {
	client := NewClientAt(filepath.Join(t.TempDir(), "missing.sock")).WithTimeout(100 * time.Millisecond)

	if _, err := client.SendStatus(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning, got %v", err)
	}
	if client.IsRunning() {
		t.Error("IsRunning() should be false")
	}
}

func TestSocketServerStopClosesIdleConnections(t *testing.T) {
	server := NewSocketServerAt(filepath.Join(t.TempDir(), "test.sock"), newMockHandler())
	if err := server.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	conn, err := net.Dial("unix", server.Path())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		server.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Error("Stop() took too long")
	}
}
