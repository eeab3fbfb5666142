package ipc

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// MessageType is the "type" field of every IPC message
type MessageType string

const (
	MessageTypeStatus         MessageType = "status"
	MessageTypeSwitch         MessageType = "switch"
	MessageTypeStatusResponse MessageType = "status_response"
	MessageTypeError          MessageType = "error"
)

// Status is the keyboard state reported to IPC clients
type Status struct {
	Keyboard        string
	Mode            string
	UpperCase       bool
	UpperCaseLocked bool
	Keyboards       []string
	InputType       string
	Engine          string
	EngineState     string
}

// NewStatusMessage creates a new status query message
func NewStatusMessage() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"type": string(MessageTypeStatus),
	})
}

// NewSwitchMessage creates a switch command. An empty keyboard asks for the
// next keyboard in switching order.
func NewSwitchMessage(keyboard string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"type":     string(MessageTypeSwitch),
		"keyboard": keyboard,
	})
}

// NewStatusResponseMessage creates a new status response message
func NewStatusResponseMessage(s Status) (*structpb.Struct, error) {
	keyboards := make([]interface{}, len(s.Keyboards))
	for i, name := range s.Keyboards {
		keyboards[i] = name
	}

	return structpb.NewStruct(map[string]interface{}{
		"type":              string(MessageTypeStatusResponse),
		"keyboard":          s.Keyboard,
		"mode":              s.Mode,
		"upper_case":        s.UpperCase,
		"upper_case_locked": s.UpperCaseLocked,
		"keyboards":         keyboards,
		"input_type":        s.InputType,
		"engine":            s.Engine,
		"engine_state":      s.EngineState,
	})
}

// NewErrorMessage creates a new error message
func NewErrorMessage(errMsg string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"type":  string(MessageTypeError),
		"error": errMsg,
	})
}

// TypeOf returns the message type, or "" when the field is missing
func TypeOf(msg *structpb.Struct) MessageType {
	if msg == nil {
		return ""
	}
	return MessageType(msg.GetFields()["type"].GetStringValue())
}

func stringField(msg *structpb.Struct, name string) string {
	return msg.GetFields()[name].GetStringValue()
}

func boolField(msg *structpb.Struct, name string) bool {
	return msg.GetFields()[name].GetBoolValue()
}

// GetSwitchCommand extracts the requested keyboard from a switch command
func GetSwitchCommand(msg *structpb.Struct) (string, error) {
	if TypeOf(msg) != MessageTypeSwitch {
		return "", fmt.Errorf("message is not a switch command")
	}
	v, ok := msg.GetFields()["keyboard"]
	if !ok {
		return "", nil
	}
	if _, isString := v.GetKind().(*structpb.Value_StringValue); !isString {
		return "", fmt.Errorf("invalid switch command payload")
	}
	return v.GetStringValue(), nil
}

// GetStatusResponse extracts status response from message
func GetStatusResponse(msg *structpb.Struct) (*Status, error) {
	if TypeOf(msg) != MessageTypeStatusResponse {
		return nil, fmt.Errorf("message is not a status response")
	}

	s := &Status{
		Keyboard:        stringField(msg, "keyboard"),
		Mode:            stringField(msg, "mode"),
		UpperCase:       boolField(msg, "upper_case"),
		UpperCaseLocked: boolField(msg, "upper_case_locked"),
		InputType:       stringField(msg, "input_type"),
		Engine:          stringField(msg, "engine"),
		EngineState:     stringField(msg, "engine_state"),
	}
	for _, v := range msg.GetFields()["keyboards"].GetListValue().GetValues() {
		s.Keyboards = append(s.Keyboards, v.GetStringValue())
	}
	return s, nil
}

// GetErrorResponse extracts error response from message
func GetErrorResponse(msg *structpb.Struct) (string, error) {
	if TypeOf(msg) != MessageTypeError {
		return "", fmt.Errorf("message is not an error response")
	}
	return stringField(msg, "error"), nil
}
