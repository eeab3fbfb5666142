package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// drainMsg asks Update to run the queued callbacks.
type drainMsg struct{}

// poster queues callbacks from timer and engine goroutines and hands them to
// the Bubble Tea update goroutine in order. Sending happens on a fresh
// goroutine because Program.Send blocks until Update reads the message, and
// callbacks may be posted from inside Update.
type poster struct {
	mu    sync.Mutex
	queue []func()
	send  func(tea.Msg)
}

func (p *poster) post(fn func()) {
	p.mu.Lock()
	p.queue = append(p.queue, fn)
	first := len(p.queue) == 1
	send := p.send
	p.mu.Unlock()

	if first && send != nil {
		go send(drainMsg{})
	}
}

// attach starts delivering through send, flushing anything queued before.
func (p *poster) attach(send func(tea.Msg)) {
	p.mu.Lock()
	p.send = send
	pending := len(p.queue) > 0
	p.mu.Unlock()

	if pending && send != nil {
		go send(drainMsg{})
	}
}

// drain runs every queued callback. Callbacks posted while draining wait for
// the next drainMsg.
func (p *poster) drain() {
	p.mu.Lock()
	queue := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
}
