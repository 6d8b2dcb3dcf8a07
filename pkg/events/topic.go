package events

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Topic kinds
const (
	TopicConversation = "conversation"
	TopicFriendship   = "friendship"
	TopicPresence     = "presence"
	TopicGroupRoster  = "group-roster"
	TopicDirectRead   = "direct-read"
	TopicGroupRead    = "group-read"
	TopicInbox        = "inbox"
)

func ConversationTopic(conversationID string) string {
	return TopicConversation + ":" + conversationID
}

// PairKey is the order-independent key of two identities.
func PairKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if x > y {
		x, y = y, x
	}
	return x + ":" + y
}

func FriendshipTopic(a, b uuid.UUID) string {
	return TopicFriendship + ":" + PairKey(a, b)
}

func PresenceTopic(user uuid.UUID) string {
	return TopicPresence + ":" + user.String()
}

func GroupRosterTopic(groupID uuid.UUID) string {
	return TopicGroupRoster + ":" + groupID.String()
}

func DirectReadTopic(owner, peer uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", TopicDirectRead, owner, peer)
}

func GroupReadTopic(groupID, member uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", TopicGroupRead, groupID, member)
}

func InboxTopic(user uuid.UUID) string {
	return TopicInbox + ":" + user.String()
}

// Topic is a parsed topic name. IDs holds the identities embedded in it;
// for conversation topics Conversation holds the conversation id instead.
type Topic struct {
	Name         string
	Kind         string
	IDs          []uuid.UUID
	Conversation string
}

// ParseTopic validates name and extracts its identities.
func ParseTopic(name string) (Topic, error) {
	kind, rest, ok := strings.Cut(name, ":")
	if !ok || rest == "" {
		return Topic{}, fmt.Errorf("malformed topic %q", name)
	}
	t := Topic{Name: name, Kind: kind}

	var want int
	switch kind {
	case TopicConversation:
		convKind, ids, ok := strings.Cut(rest, ":")
		if !ok {
			return Topic{}, fmt.Errorf("malformed conversation topic %q", name)
		}
		switch convKind {
		case "direct":
			want = 2
		case "group":
			want = 1
		default:
			return Topic{}, fmt.Errorf("unknown conversation kind in %q", name)
		}
		t.Conversation = rest
		rest = ids
	case TopicFriendship, TopicDirectRead, TopicGroupRead:
		want = 2
	case TopicPresence, TopicGroupRoster, TopicInbox:
		want = 1
	default:
		return Topic{}, fmt.Errorf("unknown topic kind %q", kind)
	}

	parts := strings.Split(rest, ":")
	if len(parts) != want {
		return Topic{}, fmt.Errorf("topic %q: want %d ids, got %d", name, want, len(parts))
	}
	for _, p := range parts {
		id, err := uuid.Parse(p)
		if err != nil {
			return Topic{}, fmt.Errorf("topic %q: %w", name, err)
		}
		t.IDs = append(t.IDs, id)
	}
	return t, nil
}
