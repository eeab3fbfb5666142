package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bnema/softkeys/internal/controller"
	"github.com/bnema/softkeys/internal/host"
	"github.com/bnema/softkeys/internal/loop"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Session is one connected browser with its own event loop and controller.
type Session struct {
	ID string

	conn   *websocket.Conn
	server *Server
	log    *log.Logger

	loop   *loop.Loop
	ctrl   *controller.Controller
	mirror *mirror

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newSession(s *Server, conn *websocket.Conn) *Session {
	id := uuid.New().String()
	return &Session{
		ID:     id,
		conn:   conn,
		server: s,
		log:    s.log.With("session", id[:8]),
		loop:   loop.New(0),
		send:   make(chan []byte, sendBuffer),
	}
}

// start builds the controller on the session loop.
func (sess *Session) start(ctx context.Context) error {
	sess.loop.Start(ctx)
	sess.mirror = &mirror{
		send:      sess.sendMessage,
		catalog:   sess.server.Catalog,
		rowHeight: sess.server.opts.RowHeight,
	}

	var sink controller.Sink = keySink{sess}
	if sess.server.opts.Sink != nil {
		sink = host.Tee{keySink{sess}, sess.server.opts.Sink}
	}

	var err error
	doErr := sess.loop.Do(ctx, func() {
		sess.ctrl, err = controller.New(sess.server.opts.Config, controller.Deps{
			Catalog: sess.server.Catalog(),
			Panel:   sess.mirror,
			Sink:    sink,
			Resizer: host.ResizeFunc(sess.sendResize),
			Loader:  sess.server.opts.Loader,
			Clock:   sess.server.opts.Clock,
			Post:    sess.loop.Poster(),
		})
	})
	if doErr != nil {
		return doErr
	}
	if err != nil {
		return err
	}

	status, _ := sess.Status(ctx)
	sess.sendMessage(MsgSession, SessionPayload{
		ID:        sess.ID,
		Keyboard:  status.Keyboard,
		Keyboards: status.Keyboards,
	})
	return nil
}

// Status snapshots the controller on its event loop.
func (sess *Session) Status(ctx context.Context) (controller.Status, error) {
	var status controller.Status
	err := sess.loop.Do(ctx, func() {
		status = sess.ctrl.Snapshot()
	})
	return status, err
}

// Do runs fn with the session controller on its event loop.
func (sess *Session) Do(ctx context.Context, fn func(*controller.Controller)) error {
	return sess.loop.Do(ctx, func() { fn(sess.ctrl) })
}

func (sess *Session) sendResize(px int) {
	msg, err := host.ResizeMessage(px)
	if err != nil {
		sess.log.Error("Failed to build resize message", "error", err)
		return
	}
	sess.sendRaw(Message{Type: MsgResize, Payload: msg})
}

func (sess *Session) sendMessage(t MessageType, payload interface{}) {
	msg := Message{Type: t}
	if payload != nil {
		msg.Payload = jsonRaw(payload)
	}
	sess.sendRaw(msg)
}

func (sess *Session) sendRaw(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		return
	}

	select {
	case sess.send <- data:
	default:
		// Buffer full, drop the client
		sess.log.Warn("Send buffer full, closing session")
		sess.closed = true
		close(sess.send)
	}
}

func (sess *Session) readPump() {
	defer sess.close()

	sess.conn.SetReadLimit(64 * 1024)
	_ = sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.log.Warn("WebSocket error", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.log.Debug("Invalid message", "error", err)
			sess.sendMessage(MsgError, ErrorPayload{Error: "invalid message"})
			continue
		}

		if !sess.loop.Post(func() { sess.handleMessage(msg) }) {
			return
		}
	}
}

// handleMessage runs on the session loop.
func (sess *Session) handleMessage(msg Message) {
	c := sess.ctrl
	switch msg.Type {
	case MsgPress, MsgMove:
		var p TargetPayload
		if !sess.decode(msg, &p) {
			return
		}
		if msg.Type == MsgPress {
			c.Press(p.Target())
		} else {
			c.Move(p.Target())
		}

	case MsgLeave:
		c.Leave()

	case MsgScroll:
		c.Scroll()

	case MsgRelease:
		c.Release()

	case MsgFocus:
		var p FocusPayload
		if !sess.decode(msg, &p) {
			return
		}
		c.Focus(p.InputType)

	case MsgMetrics:
		var p MetricsPayload
		if !sess.decode(msg, &p) {
			return
		}
		if sess.mirror.metrics(p) {
			sess.sendResize(sess.mirror.Height())
		}

	case MsgSwitch:
		var p SwitchPayload
		if !sess.decode(msg, &p) {
			return
		}
		if p.Keyboard == "" {
			c.NextKeyboard()
		} else {
			c.SwitchKeyboard(p.Keyboard)
		}

	case MsgStatus:
		sess.sendMessage(MsgStatus, statusPayload(c.Snapshot()))

	default:
		sess.sendMessage(MsgError, ErrorPayload{Error: "unknown message type " + string(msg.Type)})
	}
}

func (sess *Session) decode(msg Message, v interface{}) bool {
	if len(msg.Payload) == 0 {
		sess.sendMessage(MsgError, ErrorPayload{Error: string(msg.Type) + " needs a payload"})
		return false
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		sess.sendMessage(MsgError, ErrorPayload{Error: "invalid " + string(msg.Type) + " payload"})
		return false
	}
	return true
}

func (sess *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sess.conn.Close()
	}()

	for {
		select {
		case data, ok := <-sess.send:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sess.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close tears the session down: controller first, then the loop and the
// outbound queue.
func (sess *Session) close() {
	closedOnLoop := false
	if sess.ctrl != nil {
		closedOnLoop = sess.loop.Do(context.Background(), sess.ctrl.Close) == nil
	}
	sess.loop.Stop()
	if sess.ctrl != nil && !closedOnLoop {
		// The loop is gone, nothing else can touch the controller.
		sess.ctrl.Close()
	}

	sess.mu.Lock()
	if !sess.closed {
		sess.closed = true
		close(sess.send)
	}
	sess.mu.Unlock()

	sess.server.remove(sess)
	sess.conn.Close()
	sess.log.Info("Session closed")
}

// keySink delivers typed keys to the browser.
type keySink struct {
	sess *Session
}

func (k keySink) SendKey(control bool, code int) error {
	k.sess.sendMessage(MsgKey, KeyPayload{Control: control, Code: code})
	return nil
}
