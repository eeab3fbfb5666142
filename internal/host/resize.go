package host

import (
	"fmt"

	"github.com/bnema/softkeys/internal/logger"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ResizeAction is the action field of the resize message.
const ResizeAction = "resize"

// ResizeStruct builds the resize message {"action":"resize","height":"<px>px"}.
func ResizeStruct(px int) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"action": ResizeAction,
		"height": fmt.Sprintf("%dpx", px),
	})
}

// ResizeMessage returns the JSON encoding of the resize message.
func ResizeMessage(px int) ([]byte, error) {
	s, err := ResizeStruct(px)
	if err != nil {
		return nil, fmt.Errorf("failed to build resize message: %w", err)
	}
	return protojson.Marshal(s)
}

// ResizeFunc adapts a function to the controller's resize notifier.
type ResizeFunc func(px int)

func (f ResizeFunc) NotifyHeightChanged(px int) { f(px) }

// LogResizer logs every resize message.
type LogResizer struct{}

func (LogResizer) NotifyHeightChanged(px int) {
	msg, err := ResizeMessage(px)
	if err != nil {
		logger.Errorf("Resize: %v", err)
		return
	}
	logger.Debug("Panel resized", "message", string(msg))
}
