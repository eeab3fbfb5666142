package bridge

import (
	"encoding/json"

	"github.com/bnema/softkeys/internal/controller"
	"github.com/bnema/softkeys/internal/keys"
)

// MessageType names a websocket message
type MessageType string

const (
	// Browser -> keyboard
	MsgPress   MessageType = "press"
	MsgMove    MessageType = "move"
	MsgLeave   MessageType = "leave"
	MsgScroll  MessageType = "scroll"
	MsgRelease MessageType = "release"
	MsgFocus   MessageType = "focus"
	MsgMetrics MessageType = "metrics"
	MsgSwitch  MessageType = "switch"
	MsgStatus  MessageType = "status"

	// Keyboard -> browser
	MsgSession    MessageType = "session"
	MsgKey        MessageType = "key"
	MsgHighlight  MessageType = "highlight"
	MsgEnabled    MessageType = "enabled"
	MsgFeedback   MessageType = "feedback"
	MsgMenu       MessageType = "menu"
	MsgLayout     MessageType = "layout"
	MsgCandidates MessageType = "candidates"
	MsgPending    MessageType = "pending"
	MsgPanel      MessageType = "panel"
	MsgResize     MessageType = "resize"
	MsgError      MessageType = "error"
)

// Message is the websocket envelope
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TargetPayload describes the key under the pointer. A candidate carries
// Text (and optionally Data) instead of a code.
type TargetPayload struct {
	ID            string `json:"id"`
	Code          int    `json:"code,omitempty"`
	Keyboard      string `json:"keyboard,omitempty"`
	HasAlternates bool   `json:"hasAlternates,omitempty"`
	Text          string `json:"text,omitempty"`
	Data          string `json:"data,omitempty"`
	X             int    `json:"x"`
	Y             int    `json:"y"`
}

// Target converts the payload into a controller target
func (p TargetPayload) Target() controller.Target {
	t := controller.Target{
		ID:            p.ID,
		Key:           keys.FromCode(p.Code),
		Keyboard:      p.Keyboard,
		HasAlternates: p.HasAlternates,
		Point:         controller.Point{X: p.X, Y: p.Y},
	}
	if p.Code == 0 && p.Text != "" {
		t.Key = keys.Selection(p.Text, p.Data)
	}
	return t
}

// PointPayload is the pointer position of a leave or release
type PointPayload struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type FocusPayload struct {
	InputType string `json:"inputType"`
}

// Rect is a rectangle in panel pixels
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Contains reports whether p lies inside r
func (r Rect) Contains(p controller.Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

// MetricsPayload reports the rendered panel geometry
type MetricsPayload struct {
	Height int   `json:"height"`
	Menu   *Rect `json:"menu,omitempty"`
}

type SwitchPayload struct {
	Keyboard string `json:"keyboard"`
}

type SessionPayload struct {
	ID        string   `json:"id"`
	Keyboard  string   `json:"keyboard"`
	Keyboards []string `json:"keyboards"`
}

type KeyPayload struct {
	Control bool `json:"control"`
	Code    int  `json:"code"`
}

type HighlightPayload struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

type EnabledPayload struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

type MenuPayload struct {
	Visible bool   `json:"visible"`
	ID      string `json:"id,omitempty"`
}

type LayoutPayload struct {
	Keyboard        string `json:"keyboard"`
	Mode            string `json:"mode"`
	Override        string `json:"override"`
	UpperCase       bool   `json:"upperCase"`
	UpperCaseLocked bool   `json:"upperCaseLocked"`
}

type CandidatesPayload struct {
	List []string `json:"list"`
}

type PendingPayload struct {
	Text string `json:"text"`
}

type PanelPayload struct {
	Mode string `json:"mode"`
}

type StatusPayload struct {
	Keyboard        string   `json:"keyboard"`
	Keyboards       []string `json:"keyboards"`
	Mode            string   `json:"mode"`
	UpperCase       bool     `json:"upperCase"`
	UpperCaseLocked bool     `json:"upperCaseLocked"`
	InputType       string   `json:"inputType"`
	Engine          string   `json:"engine,omitempty"`
	EngineState     string   `json:"engineState,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

func statusPayload(s controller.Status) StatusPayload {
	p := StatusPayload{
		Keyboard:        s.Keyboard,
		Keyboards:       s.Keyboards,
		Mode:            s.Mode.String(),
		UpperCase:       s.UpperCase,
		UpperCaseLocked: s.UpperCaseLocked,
		InputType:       s.InputType,
		Engine:          s.Engine,
	}
	if s.Engine != "" {
		p.EngineState = s.EngineState.String()
	}
	return p
}

func jsonRaw(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
