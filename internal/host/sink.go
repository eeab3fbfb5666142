// Package host holds the collaborators that deliver keys out of the keyboard:
// sinks for synthesized keystrokes and the resize notification.
package host

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bnema/softkeys/internal/keys"
	"github.com/bnema/softkeys/internal/logger"
	"github.com/charmbracelet/log"
)

var (
	// ErrSinkClosed is returned by sinks used after Close.
	ErrSinkClosed = errors.New("sink closed")

	// ErrUnmappedKey is returned when a sink cannot express a code.
	ErrUnmappedKey = errors.New("key has no mapping")
)

// Sink receives synthesized keys. Control keys are Backspace and Return,
// everything else is a character code.
type Sink interface {
	SendKey(control bool, code int) error
}

// Key is one delivered key.
type Key struct {
	Control bool
	Code    int
}

func (k Key) String() string {
	if k.Control {
		switch k.Code {
		case keys.Backspace:
			return "<backspace>"
		case keys.Return:
			return "<return>"
		}
		return fmt.Sprintf("<control %d>", k.Code)
	}
	return string(rune(k.Code))
}

// LogSink logs every key and delivers nothing.
type LogSink struct {
	log *log.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{log: logger.With("component", "sink")}
}

func (s *LogSink) SendKey(control bool, code int) error {
	s.log.Info("Key", "key", Key{Control: control, Code: code}.String(), "control", control, "code", code)
	return nil
}

// RecordingSink keeps every key in memory. It is safe for concurrent use.
type RecordingSink struct {
	mu   sync.Mutex
	keys []Key
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) SendKey(control bool, code int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, Key{Control: control, Code: code})
	return nil
}

// Keys returns a copy of the recorded keys.
func (s *RecordingSink) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Key(nil), s.keys...)
}

// Text replays the recorded keys as an editor would: characters append,
// Backspace removes the last rune and Return starts a new line.
func (s *RecordingSink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []rune
	for _, k := range s.keys {
		switch {
		case k.Control && k.Code == keys.Backspace:
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		case k.Control && k.Code == keys.Return:
			out = append(out, '\n')
		case !k.Control:
			out = append(out, rune(k.Code))
		}
	}
	return string(out)
}

// Lines returns Text split into lines.
func (s *RecordingSink) Lines() []string {
	return strings.Split(s.Text(), "\n")
}

func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = nil
}

// Tee delivers every key to all sinks and returns the first error.
type Tee []Sink

func (t Tee) SendKey(control bool, code int) error {
	var first error
	for _, s := range t {
		if err := s.SendKey(control, code); err != nil && first == nil {
			first = err
		}
	}
	return first
}
