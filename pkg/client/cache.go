// Package client is the subscriber side of the fan-out protocol: a
// reconciliation cache that applies events idempotently and falls back to a
// canonical resync on any sequence gap, plus a WebSocket session that
// feeds it.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// Fetcher returns the canonical snapshot of a topic.
type Fetcher interface {
	Resync(ctx context.Context, topic string) (*events.Snapshot, error)
}

// Outcome reports what Apply did with an event.
type Outcome int

const (
	Applied Outcome = iota
	// Duplicate events carry a sequence at or below the last applied one.
	Duplicate
	// Gap means the event was discarded and a resync is scheduled.
	Gap
	// Discarded events arrived while a resync of the topic was pending.
	Discarded
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Duplicate:
		return "duplicate"
	case Gap:
		return "gap"
	case Discarded:
		return "discarded"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ConversationView is the cached state of one conversation topic.
type ConversationView struct {
	ConversationID string
	Unread         int64
	// Messages are ordered by sequence.
	Messages []events.MessageView
}

type topicState struct {
	last    uint64
	pending bool
	loaded  bool

	// conversation topics
	messages map[uint]events.MessageView
	convID   string

	// single-value topics
	friendship *events.FriendshipChanged
	presence   *events.PresenceChanged
	roster     *events.RosterChanged
	read       *events.ReadChanged

	// inbox topic
	inbox map[string]events.ConversationSummary
}

// Stats counts cache activity.
type Stats struct {
	Applied    int
	Duplicates int
	Gaps       int
	Resyncs    int
}

// Cache holds per-topic state for one user. Events are applied with set
// semantics: every payload carries absolute values, so re-applying an event
// never changes the result.
type Cache struct {
	owner uuid.UUID
	fetch Fetcher

	mu     sync.Mutex
	topics map[string]*topicState
	unread map[string]int64
	stats  Stats
	wake   chan struct{}
}

func NewCache(owner uuid.UUID, fetch Fetcher) *Cache {
	return &Cache{
		owner:  owner,
		fetch:  fetch,
		topics: make(map[string]*topicState),
		unread: make(map[string]int64),
		wake:   make(chan struct{}, 1),
	}
}

// Track registers topics that need an initial snapshot. Events for them are
// discarded until the snapshot lands.
func (c *Cache) Track(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		st, ok := c.topics[t]
		if !ok {
			st = &topicState{}
			c.topics[t] = st
		}
		if !st.loaded {
			st.pending = true
		}
	}
	c.signal()
}

// Invalidate marks topics pending whether or not they were loaded. Events
// are discarded until a fresh snapshot replaces the state, so a stream that
// restarted on the server side is picked up at the snapshot's sequence.
func (c *Cache) Invalidate(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		st, ok := c.topics[t]
		if !ok {
			st = &topicState{}
			c.topics[t] = st
		}
		st.pending = true
	}
	c.signal()
}

// Apply processes one event and reports what it did with it.
func (c *Cache) Apply(ev events.Event) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.topics[ev.Topic]
	if !ok {
		st = &topicState{}
		c.topics[ev.Topic] = st
		if ev.Seq != 1 {
			return c.markGap(st)
		}
		st.loaded = true
	}

	switch {
	case st.pending:
		return Discarded
	case ev.Seq <= st.last:
		c.stats.Duplicates++
		return Duplicate
	case ev.Seq != st.last+1:
		return c.markGap(st)
	}

	if err := c.applyEvent(st, ev); err != nil {
		// An undecodable payload leaves the state unknown.
		return c.markGap(st)
	}
	st.last = ev.Seq
	c.stats.Applied++
	return Applied
}

func (c *Cache) markGap(st *topicState) Outcome {
	st.pending = true
	c.stats.Gaps++
	c.signal()
	return Gap
}

func (c *Cache) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Pending lists topics waiting for a resync, sorted.
func (c *Cache) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for name, st := range c.topics {
		if st.pending {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ResyncPending fetches a snapshot for every pending topic. Topics that
// fail stay pending; their errors are combined.
func (c *Cache) ResyncPending(ctx context.Context) error {
	var result error
	for _, topic := range c.Pending() {
		if err := c.Refresh(ctx, topic); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// Refresh fetches and loads the canonical state of one topic.
func (c *Cache) Refresh(ctx context.Context, topic string) error {
	snap, err := c.fetch.Resync(ctx, topic)
	if err != nil {
		return fmt.Errorf("resync %s: %w", topic, err)
	}
	if err := c.Load(snap); err != nil {
		return fmt.Errorf("resync %s: %w", topic, err)
	}
	return nil
}

// Load replaces a topic's state with a snapshot and resets its sequence to
// the snapshot's, even when that is lower than the last applied one.
func (c *Cache) Load(snap *events.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := &topicState{}
	if err := c.loadState(st, snap); err != nil {
		return err
	}
	st.last = snap.Seq
	st.loaded = true
	c.topics[snap.Topic] = st
	c.stats.Resyncs++
	return nil
}

// Run resyncs pending topics whenever a gap is detected, until ctx ends.
// Failed resyncs are retried on the next signal or by the caller.
func (c *Cache) Run(ctx context.Context, onError func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
			if err := c.ResyncPending(ctx); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// LastSeq returns the last applied sequence of topic.
func (c *Cache) LastSeq(topic string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.topics[topic]; ok {
		return st.last
	}
	return 0
}

func (c *Cache) applyEvent(st *topicState, ev events.Event) error {
	switch ev.Kind {
	case events.KindMessageCreated:
		var p events.MessageCreated
		if err := ev.Decode(&p); err != nil {
			return err
		}
		if st.messages == nil {
			st.messages = make(map[uint]events.MessageView)
		}
		st.convID = p.Message.ConversationID
		st.messages[p.Message.ID] = p.Message
		if n, ok := p.Unread[c.owner]; ok {
			c.unread[p.Message.ConversationID] = n
		}
	case events.KindMessageDeleted:
		var p events.MessageDeleted
		if err := ev.Decode(&p); err != nil {
			return err
		}
		delete(st.messages, p.MessageID)
	case events.KindFriendshipChanged:
		var p events.FriendshipChanged
		if err := ev.Decode(&p); err != nil {
			return err
		}
		st.friendship = &p
	case events.KindPresenceChanged:
		var p events.PresenceChanged
		if err := ev.Decode(&p); err != nil {
			return err
		}
		st.presence = &p
	case events.KindRosterChanged:
		var p events.RosterChanged
		if err := ev.Decode(&p); err != nil {
			return err
		}
		st.roster = &p
	case events.KindDirectRead, events.KindGroupRead:
		var p events.ReadChanged
		if err := ev.Decode(&p); err != nil {
			return err
		}
		st.read = &p
		c.unread[p.ConversationID] = p.Unread
	case events.KindMessageReceived:
		var p events.MessageNotice
		if err := ev.Decode(&p); err != nil {
			return err
		}
		if st.inbox == nil {
			st.inbox = make(map[string]events.ConversationSummary)
		}
		sum := st.inbox[p.ConversationID]
		sum.ConversationID = p.ConversationID
		sum.Unread = p.Unread
		st.inbox[p.ConversationID] = sum
		c.unread[p.ConversationID] = p.Unread
	case events.KindFriendRequest:
		// Notices only; the inbox state does not track them.
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return nil
}

func (c *Cache) loadState(st *topicState, snap *events.Snapshot) error {
	t, err := events.ParseTopic(snap.Topic)
	if err != nil {
		return err
	}

	switch t.Kind {
	case events.TopicConversation:
		var s events.ConversationSnapshot
		if err := snap.Decode(&s); err != nil {
			return err
		}
		st.convID = s.ConversationID
		st.messages = make(map[uint]events.MessageView, len(s.Messages))
		for _, m := range s.Messages {
			st.messages[m.ID] = m
		}
		c.unread[s.ConversationID] = s.Unread
	case events.TopicFriendship:
		st.friendship = new(events.FriendshipChanged)
		return snap.Decode(st.friendship)
	case events.TopicPresence:
		st.presence = new(events.PresenceChanged)
		return snap.Decode(st.presence)
	case events.TopicGroupRoster:
		st.roster = new(events.RosterChanged)
		return snap.Decode(st.roster)
	case events.TopicDirectRead, events.TopicGroupRead:
		st.read = new(events.ReadChanged)
		if err := snap.Decode(st.read); err != nil {
			return err
		}
		c.unread[st.read.ConversationID] = st.read.Unread
	case events.TopicInbox:
		var s events.InboxSnapshot
		if err := snap.Decode(&s); err != nil {
			return err
		}
		st.inbox = make(map[string]events.ConversationSummary, len(s.Conversations))
		for _, sum := range s.Conversations {
			st.inbox[sum.ConversationID] = sum
			c.unread[sum.ConversationID] = sum.Unread
		}
	}
	return nil
}

// Conversation returns the cached view of a conversation topic.
func (c *Cache) Conversation(topic string) (ConversationView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.topics[topic]
	if !ok || st.pending || st.messages == nil {
		return ConversationView{}, false
	}

	return c.conversationLocked(st), true
}

func (c *Cache) conversationLocked(st *topicState) ConversationView {
	v := ConversationView{
		ConversationID: st.convID,
		Unread:         c.unread[st.convID],
		Messages:       make([]events.MessageView, 0, len(st.messages)),
	}
	for _, m := range st.messages {
		v.Messages = append(v.Messages, m)
	}
	sort.Slice(v.Messages, func(i, j int) bool { return v.Messages[i].Seq < v.Messages[j].Seq })
	return v
}

// Unread returns the last known unread count of a conversation.
func (c *Cache) Unread(conversationID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread[conversationID]
}

func (c *Cache) Friendship(topic string) (events.FriendshipChanged, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.topics[topic]; ok && st.friendship != nil {
		return *st.friendship, true
	}
	return events.FriendshipChanged{}, false
}

func (c *Cache) Presence(topic string) (events.PresenceChanged, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.topics[topic]; ok && st.presence != nil {
		return *st.presence, true
	}
	return events.PresenceChanged{}, false
}

func (c *Cache) Roster(topic string) (events.RosterChanged, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.topics[topic]; ok && st.roster != nil {
		return *st.roster, true
	}
	return events.RosterChanged{}, false
}

// Inbox returns the conversation summaries of an inbox topic, sorted by id.
func (c *Cache) Inbox(topic string) []events.ConversationSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.topics[topic]
	if !ok {
		return nil
	}
	return inboxLocked(st)
}

func inboxLocked(st *topicState) []events.ConversationSummary {
	out := make([]events.ConversationSummary, 0, len(st.inbox))
	for _, sum := range st.inbox {
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConversationID < out[j].ConversationID })
	return out
}

// MarshalJSON renders every topic's state, for debugging and the CLI.
func (c *Cache) MarshalJSON() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]interface{}, len(c.topics))
	for name, st := range c.topics {
		switch {
		case st.pending:
			out[name] = map[string]bool{"pending": true}
		case st.messages != nil:
			out[name] = c.conversationLocked(st)
		case st.friendship != nil:
			out[name] = st.friendship
		case st.presence != nil:
			out[name] = st.presence
		case st.roster != nil:
			out[name] = st.roster
		case st.read != nil:
			out[name] = st.read
		case st.inbox != nil:
			out[name] = inboxLocked(st)
		default:
			out[name] = map[string]uint64{"seq": st.last}
		}
	}
	return json.Marshal(out)
}
