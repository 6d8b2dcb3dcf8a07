// Package events defines the fan-out wire contract shared by the server and
// pkg/client: topics, event envelopes, payloads and resync snapshots.
package events

import (
	"encoding/json"
	"time"
)

// Event kinds
const (
	KindMessageCreated    = "message.created"
	KindMessageDeleted    = "message.deleted"
	KindFriendshipChanged = "friendship.changed"
	KindPresenceChanged   = "presence.changed"
	KindRosterChanged     = "roster.changed"
	KindDirectRead        = "read.direct"
	KindGroupRead         = "read.group"
	KindFriendRequest     = "inbox.friend_request"
	KindMessageReceived   = "inbox.message"
)

// Event is one ephemeral notification. Seq is contiguous per topic,
// starting at 1; events are never stored or replayed.
type Event struct {
	Topic   string          `json:"topic" msgpack:"topic"`
	Kind    string          `json:"kind" msgpack:"kind"`
	Seq     uint64          `json:"seq" msgpack:"seq"`
	Payload json.RawMessage `json:"payload" msgpack:"payload"`
	At      time.Time       `json:"at" msgpack:"at"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Snapshot is the canonical state of a topic. Seq is the topic sequence
// read before State, so every event up to Seq is reflected in State.
type Snapshot struct {
	Topic string          `json:"topic"`
	Seq   uint64          `json:"seq"`
	State json.RawMessage `json:"state"`
}

func (s Snapshot) Decode(v interface{}) error {
	return json.Unmarshal(s.State, v)
}
