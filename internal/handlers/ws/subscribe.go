package ws

import (
	"github.com/Scl-Ywr/confession-wall-sub002/internal/apperrors"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"go.uber.org/zap"
)

// MessageSubscribe attaches topics to the session. Each topic is authorized
// on its own; refused topics are reported back with their error code.
type MessageSubscribe struct {
	Topics []string `json:"topics"`
}

func (msg *MessageSubscribe) GetType() string {
	return events.FrameSubscribe
}

func (msg *MessageSubscribe) Process(ctx *MessageContext) error {
	ack := events.SubscribedPayload{Topics: make([]string, 0, len(msg.Topics))}
	for _, name := range msg.Topics {
		if _, err := ctx.Sync.Authorize(ctx.Ctx, ctx.UserID, name); err != nil {
			if ack.Rejected == nil {
				ack.Rejected = make(map[string]string)
			}
			ack.Rejected[name] = string(apperrors.CodeOf(err))
			continue
		}
		ctx.Session.Sub.Add(name)
		ack.Topics = append(ack.Topics, name)
	}

	ctx.Log.Debug("ws subscribe",
		zap.Stringer("user", ctx.UserID),
		zap.Strings("topics", ack.Topics),
		zap.Int("rejected", len(ack.Rejected)))
	return ctx.Session.Send(events.FrameSubscribed, ack)
}

type MessageUnsubscribe struct {
	Topics []string `json:"topics"`
}

func (msg *MessageUnsubscribe) GetType() string {
	return events.FrameUnsubscribe
}

func (msg *MessageUnsubscribe) Process(ctx *MessageContext) error {
	ctx.Session.Sub.Remove(msg.Topics...)
	return nil
}

// MessageResync answers with the canonical snapshot of one topic.
type MessageResync struct {
	Topic string `json:"topic"`
}

func (msg *MessageResync) GetType() string {
	return events.FrameResync
}

func (msg *MessageResync) Process(ctx *MessageContext) error {
	snap, err := ctx.Sync.Resync(ctx.Ctx, ctx.UserID, msg.Topic)
	if err != nil {
		return SendError(ctx.Session, string(apperrors.CodeOf(err)), apperrors.MessageOf(err), msg.Topic)
	}
	return ctx.Session.Send(events.FrameSnapshot, snap)
}

// MessageHeartbeat records liveness for the connected user.
type MessageHeartbeat struct{}

func (msg *MessageHeartbeat) GetType() string {
	return events.FrameHeartbeat
}

func (msg *MessageHeartbeat) Process(ctx *MessageContext) error {
	l := ctx.Presence.Heartbeat(ctx.Ctx, ctx.UserID, ctx.Now())
	return ctx.Session.Send(events.FramePresence, map[string]string{"liveness": string(l)})
}
