package ipc

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bnema/softkeys/internal/logger"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrNotRunning is returned when no keyboard is listening on the socket
var ErrNotRunning = errors.New("softkeys is not running")

// Client handles IPC communication with a running softkeys instance
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client for the per-user socket
func NewClient() (*Client, error) {
	socketPath, err := GetSocketPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get socket path: %w", err)
	}

	return NewClientAt(socketPath), nil
}

// NewClientAt creates a client talking to socketPath
func NewClientAt(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// WithTimeout sets the per-request timeout
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	return c
}

// SendStatus queries the running keyboard
func (c *Client) SendStatus() (*Status, error) {
	msg, err := NewStatusMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to create status message: %w", err)
	}
	return c.request(msg)
}

// SendSwitch switches the running keyboard to the named keyboard
func (c *Client) SendSwitch(keyboard string) (*Status, error) {
	msg, err := NewSwitchMessage(keyboard)
	if err != nil {
		return nil, fmt.Errorf("failed to create switch message: %w", err)
	}
	return c.request(msg)
}

// SendSwitchNext advances to the next keyboard in switching order
func (c *Client) SendSwitchNext() (*Status, error) {
	return c.SendSwitch("")
}

// IsRunning checks whether a keyboard answers on the socket
func (c *Client) IsRunning() bool {
	_, err := c.SendStatus()
	return err == nil
}

func (c *Client) request(msg *structpb.Struct) (*Status, error) {
	response, err := c.sendMessage(msg)
	if err != nil {
		return nil, err
	}

	switch TypeOf(response) {
	case MessageTypeStatusResponse:
		return GetStatusResponse(response)
	case MessageTypeError:
		errText, _ := GetErrorResponse(response)
		return nil, fmt.Errorf("server error: %s", errText)
	default:
		return nil, fmt.Errorf("unexpected response type: %q", TypeOf(response))
	}
}

// sendMessage sends a message and returns the response
func (c *Client) sendMessage(msg *structpb.Struct) (*structpb.Struct, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		if isConnectionRefused(err) {
			return nil, ErrNotRunning
		}
		return nil, fmt.Errorf("failed to connect to softkeys: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close IPC connection: %v", err)
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		logger.Warnf("Failed to set connection deadline: %v", err)
	}

	if err := writeMessage(conn, msg); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	response, err := readMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return response, nil
}

// isConnectionRefused checks if the error came from dialing
func isConnectionRefused(err error) bool {
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return netErr.Op == "dial"
	}
	return false
}
