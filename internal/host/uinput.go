package host

import (
	"fmt"
	"sync"

	"github.com/ThomasT75/uinput"
	"github.com/bnema/softkeys/internal/keys"
	"github.com/bnema/softkeys/internal/logger"
)

// Linux input event codes used by the virtual keyboard.
const (
	evKeyMinus      = 12
	evKeyEqual      = 13
	evKeyBackspace  = 14
	evKeyTab        = 15
	evKeyLeftBrace  = 26
	evKeyRightBrace = 27
	evKeyEnter      = 28
	evKeySemicolon  = 39
	evKeyApostrophe = 40
	evKeyGrave      = 41
	evKeyLeftShift  = 42
	evKeyBackslash  = 43
	evKeyComma      = 51
	evKeyDot        = 52
	evKeySlash      = 53
	evKeySpace      = 57
)

type stroke struct {
	code  int
	shift bool
}

var charStrokes = buildCharStrokes()

func buildCharStrokes() map[rune]stroke {
	m := make(map[rune]stroke)

	letterRows := []struct {
		letters string
		first   int
	}{
		{"qwertyuiop", 16},
		{"asdfghjkl", 30},
		{"zxcvbnm", 44},
	}
	for _, row := range letterRows {
		for i, r := range row.letters {
			m[r] = stroke{code: row.first + i}
			m[r-'a'+'A'] = stroke{code: row.first + i, shift: true}
		}
	}

	digits := "1234567890"
	shifted := "!@#$%^&*()"
	for i, r := range digits {
		m[r] = stroke{code: 2 + i}
		m[rune(shifted[i])] = stroke{code: 2 + i, shift: true}
	}

	pairs := []struct {
		plain, shifted rune
		code           int
	}{
		{'-', '_', evKeyMinus},
		{'=', '+', evKeyEqual},
		{'[', '{', evKeyLeftBrace},
		{']', '}', evKeyRightBrace},
		{';', ':', evKeySemicolon},
		{'\'', '"', evKeyApostrophe},
		{'`', '~', evKeyGrave},
		{'\\', '|', evKeyBackslash},
		{',', '<', evKeyComma},
		{'.', '>', evKeyDot},
		{'/', '?', evKeySlash},
	}
	for _, p := range pairs {
		m[p.plain] = stroke{code: p.code}
		m[p.shifted] = stroke{code: p.code, shift: true}
	}

	m[' '] = stroke{code: evKeySpace}
	m['\t'] = stroke{code: evKeyTab}
	m['\n'] = stroke{code: evKeyEnter}
	return m
}

// keyboardDevice is the part of uinput.Keyboard the sink drives.
type keyboardDevice interface {
	KeyDown(key int) error
	KeyUp(key int) error
	Close() error
}

// UInputSink types keys on a virtual keyboard created through /dev/uinput.
// Only characters of a US layout can be typed; others return ErrUnmappedKey.
type UInputSink struct {
	mu     sync.Mutex
	kbd    keyboardDevice
	closed bool
}

// NewUInputSink creates the virtual keyboard device.
func NewUInputSink(devicePath, name string) (*UInputSink, error) {
	kbd, err := uinput.CreateKeyboard(devicePath, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("failed to create virtual keyboard on %s: %w", devicePath, err)
	}
	logger.Info("Virtual keyboard created", "device", devicePath, "name", name)
	return &UInputSink{kbd: kbd}, nil
}

func (s *UInputSink) SendKey(control bool, code int) error {
	st, err := strokeFor(control, code)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}

	if st.shift {
		if err := s.kbd.KeyDown(evKeyLeftShift); err != nil {
			return fmt.Errorf("failed to press shift: %w", err)
		}
		defer func() {
			if err := s.kbd.KeyUp(evKeyLeftShift); err != nil {
				logger.Warnf("Failed to release shift: %v", err)
			}
		}()
	}
	if err := s.kbd.KeyDown(st.code); err != nil {
		return fmt.Errorf("failed to press key %d: %w", st.code, err)
	}
	if err := s.kbd.KeyUp(st.code); err != nil {
		return fmt.Errorf("failed to release key %d: %w", st.code, err)
	}
	return nil
}

func strokeFor(control bool, code int) (stroke, error) {
	if control {
		switch code {
		case keys.Backspace:
			return stroke{code: evKeyBackspace}, nil
		case keys.Return:
			return stroke{code: evKeyEnter}, nil
		}
		return stroke{}, fmt.Errorf("%w: control %d", ErrUnmappedKey, code)
	}
	if st, ok := charStrokes[rune(code)]; ok {
		return st, nil
	}
	return stroke{}, fmt.Errorf("%w: %q", ErrUnmappedKey, rune(code))
}

// Close destroys the virtual keyboard.
func (s *UInputSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.kbd.Close()
}
