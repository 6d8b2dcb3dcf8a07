package ws

import "github.com/Scl-Ywr/confession-wall-sub002/pkg/events"

// MessagePing is a keepalive ping from client
type MessagePing struct {
}

func (msg *MessagePing) GetType() string {
	return events.FramePing
}

func (msg *MessagePing) Process(ctx *MessageContext) error {
	return ctx.Session.Send(events.FramePong, nil)
}

// MessagePong is a pong response (in case client wants to track latency)
type MessagePong struct {
}

func (msg *MessagePong) GetType() string {
	return events.FramePong
}

func (msg *MessagePong) Process(ctx *MessageContext) error {
	return nil
}
