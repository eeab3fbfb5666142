package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bnema/softkeys/internal/logger"
	tea "github.com/charmbracelet/bubbletea"
)

// ProgramConfig holds configuration for running the keyboard program
type ProgramConfig struct {
	// ProgramOptions are appended to the defaults, e.g. SSH session IO.
	ProgramOptions []tea.ProgramOption
	// QuitTimeout bounds the wait after asking the program to quit.
	QuitTimeout time.Duration
}

// NewProgram creates the Bubble Tea program for m with mouse tracking and
// wires posted callbacks through it.
func NewProgram(m *Model, extra ...tea.ProgramOption) *tea.Program {
	opts := append([]tea.ProgramOption{
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
	}, extra...)

	p := tea.NewProgram(m, opts...)
	m.SetProgram(p)
	return p
}

// RedirectLogs sends log output to logFile, or discards it when logFile is
// empty, while the keyboard owns the terminal. Call it before NewModel so
// component loggers pick up the writer.
func RedirectLogs(logFile string) (restore func(), err error) {
	restore = func() { logger.SetOutput(os.Stderr) }
	if logFile == "" {
		logger.SetOutput(io.Discard)
		return restore, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.SetOutput(f)
	return func() {
		logger.SetOutput(os.Stderr)
		f.Close()
	}, nil
}

// Run shows the keyboard until the user quits or ctx is cancelled
func Run(ctx context.Context, m *Model, cfg ProgramConfig) error {
	if cfg.QuitTimeout <= 0 {
		cfg.QuitTimeout = 2 * time.Second
	}

	p := NewProgram(m, cfg.ProgramOptions...)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errCh <- err
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		p.Quit()

		select {
		case runErr = <-errCh:
		case <-time.After(cfg.QuitTimeout):
			p.Kill()
			<-errCh
		}
	}

	// The program has exited, so nothing else touches the model now
	m.Close()

	if errors.Is(runErr, tea.ErrProgramKilled) {
		return nil
	}
	return runErr
}
