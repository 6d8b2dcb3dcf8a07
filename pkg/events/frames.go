package events

import "encoding/json"

// WebSocket frame types. Client frames: subscribe, unsubscribe, resync,
// heartbeat, ping. Server frames: event, subscribed, snapshot, presence,
// pong, error.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameResync      = "resync"
	FrameHeartbeat   = "heartbeat"
	FramePing        = "ping"

	FrameEvent      = "event"
	FrameSubscribed = "subscribed"
	FrameSnapshot   = "snapshot"
	FramePresence   = "presence"
	FramePong       = "pong"
	FrameError      = "error"
)

// Frame is the envelope of every WebSocket message in both directions.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewFrame(frameType string, payload interface{}) (Frame, error) {
	if payload == nil {
		return Frame{Type: frameType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: frameType, Payload: raw}, nil
}

type TopicsPayload struct {
	Topics []string `json:"topics"`
}

// SubscribedPayload acknowledges a subscribe frame. Rejected maps each
// refused topic to an error code.
type SubscribedPayload struct {
	Topics   []string          `json:"topics"`
	Rejected map[string]string `json:"rejected,omitempty"`
}

type ResyncPayload struct {
	Topic string `json:"topic"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
