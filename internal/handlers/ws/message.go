package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/service"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageContext provides all dependencies needed for message processing
type MessageContext struct {
	Ctx      context.Context
	UserID   uuid.UUID
	Session  *Session
	Hub      *Hub
	Sync     *service.SyncService
	Presence *service.PresenceService
	Log      *zap.Logger
	Now      func() time.Time
}

// Message interface for all client frame types
type Message interface {
	GetType() string
	Process(ctx *MessageContext) error
}

func CreateMessage(msgType string, typeRegistry map[string]reflect.Type) (Message, error) {
	msgTypeReflect, ok := typeRegistry[msgType]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %s", msgType)
	}

	instance := reflect.New(msgTypeReflect).Interface()
	return instance.(Message), nil
}

// Deserialize decodes a client frame into its registered message type.
func Deserialize(data []byte) (Message, error) {
	var frame events.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}

	msg, err := CreateMessage(frame.Type, typeRegistry)
	if err != nil {
		return nil, err
	}
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, msg); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", frame.Type, err)
		}
	}
	return msg, nil
}

// SendError sends an error frame to the client
func SendError(s *Session, code, message, details string) error {
	return s.Send(events.FrameError, events.ErrorPayload{
		Code:    code,
		Error:   message,
		Details: details,
	})
}
