package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/repository"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// MemoryStore is an in-memory repository.Store. Transactions run one at a
// time against a copy of the data that replaces the original on commit, so
// a failed callback leaves no trace. Unique constraints of the SQL schema
// are enforced and reported as repository.ErrDuplicateKey.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData

	faultMu sync.Mutex
	faults  map[string]error

	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:   newMemData(),
		faults: make(map[string]error),
		Now:    time.Now,
	}
}

// Fail makes every later call of op (e.g. "ReadStates.CreateGroupEntries")
// return err. A nil err clears the fault.
func (s *MemoryStore) Fail(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *MemoryStore) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	return s.faults[op]
}

func (s *MemoryStore) view() *memView { return &memView{store: s} }

func (s *MemoryStore) Friendships() repository.FriendshipRepositoryInterface {
	return memFriendships{s.view()}
}
func (s *MemoryStore) Conversations() repository.ConversationRepositoryInterface {
	return memConversations{s.view()}
}
func (s *MemoryStore) Messages() repository.MessageRepositoryInterface {
	return memMessages{s.view()}
}
func (s *MemoryStore) Groups() repository.GroupRepositoryInterface { return memGroups{s.view()} }
func (s *MemoryStore) ReadStates() repository.ReadStateRepositoryInterface {
	return memReadStates{s.view()}
}
func (s *MemoryStore) Presence() repository.PresenceRepositoryInterface {
	return memPresence{s.view()}
}
func (s *MemoryStore) Sequences() repository.SequenceRepositoryInterface {
	return memSequences{s.view()}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.data.clone()
	if err := fn(&memView{store: s, tx: working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = working
	return nil
}

// memView is the store as seen from outside (tx == nil) or from inside a
// transaction holding the store lock.
type memView struct {
	store *MemoryStore
	tx    *memData
}

func (v *memView) do(ctx context.Context, op string, fn func(d *memData) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.store.fault(op); err != nil {
		return errors.Wrap(err, op)
	}
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.data)
}

func (v *memView) now() time.Time { return v.store.Now() }

func (v *memView) Friendships() repository.FriendshipRepositoryInterface { return memFriendships{v} }
func (v *memView) Conversations() repository.ConversationRepositoryInterface {
	return memConversations{v}
}
func (v *memView) Messages() repository.MessageRepositoryInterface   { return memMessages{v} }
func (v *memView) Groups() repository.GroupRepositoryInterface       { return memGroups{v} }
func (v *memView) ReadStates() repository.ReadStateRepositoryInterface { return memReadStates{v} }
func (v *memView) Presence() repository.PresenceRepositoryInterface  { return memPresence{v} }
func (v *memView) Sequences() repository.SequenceRepositoryInterface { return memSequences{v} }

func (v *memView) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if v.tx == nil {
		return v.store.WithTx(ctx, fn)
	}
	return fn(v)
}

type pairKey struct{ low, high uuid.UUID }

func keyOf(a, b uuid.UUID) pairKey {
	low, high := models.OrderedPair(a, b)
	return pairKey{low, high}
}

type entryKey struct {
	group   uuid.UUID
	member  uuid.UUID
	message uint
}

type memData struct {
	friendships   map[pairKey]models.Friendship
	groups        map[uuid.UUID]models.Group
	members       map[uuid.UUID]map[uuid.UUID]models.GroupMember
	conversations map[string]models.Conversation
	messages      map[uint]models.Message
	nextMessageID uint
	cursors       map[[2]uuid.UUID]models.DirectReadCursor
	entries       map[entryKey]models.GroupReadEntry
	presence      map[uuid.UUID]models.PresenceRecord
	sequences     map[string]int64
}

func newMemData() *memData {
	return &memData{
		friendships:   make(map[pairKey]models.Friendship),
		groups:        make(map[uuid.UUID]models.Group),
		members:       make(map[uuid.UUID]map[uuid.UUID]models.GroupMember),
		conversations: make(map[string]models.Conversation),
		messages:      make(map[uint]models.Message),
		nextMessageID: 1,
		cursors:       make(map[[2]uuid.UUID]models.DirectReadCursor),
		entries:       make(map[entryKey]models.GroupReadEntry),
		presence:      make(map[uuid.UUID]models.PresenceRecord),
		sequences:     make(map[string]int64),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	c.nextMessageID = d.nextMessageID
	for k, v := range d.friendships {
		c.friendships[k] = v
	}
	for k, v := range d.groups {
		c.groups[k] = v
	}
	for g, ms := range d.members {
		cm := make(map[uuid.UUID]models.GroupMember, len(ms))
		for k, v := range ms {
			cm[k] = v
		}
		c.members[g] = cm
	}
	for k, v := range d.conversations {
		c.conversations[k] = v
	}
	for k, v := range d.messages {
		c.messages[k] = v
	}
	for k, v := range d.cursors {
		c.cursors[k] = v
	}
	for k, v := range d.entries {
		c.entries[k] = v
	}
	for k, v := range d.presence {
		c.presence[k] = v
	}
	for k, v := range d.sequences {
		c.sequences[k] = v
	}
	return c
}

func (d *memData) visible(id uint) (models.Message, bool) {
	m, ok := d.messages[id]
	if !ok || m.DeletedAt.Valid {
		return models.Message{}, false
	}
	return m, true
}

func notFound(op string) error { return errors.Wrap(repository.ErrNotFound, op) }

func duplicate(op string) error { return errors.Wrap(repository.ErrDuplicateKey, op) }

// Friendships

type memFriendships struct{ v *memView }

func (r memFriendships) Find(ctx context.Context, a, b uuid.UUID) (*models.Friendship, error) {
	var out *models.Friendship
	err := r.v.do(ctx, "Friendships.Find", func(d *memData) error {
		f, ok := d.friendships[keyOf(a, b)]
		if !ok {
			return notFound("Friendships.Find")
		}
		out = &f
		return nil
	})
	return out, err
}

func (r memFriendships) FindForUpdate(ctx context.Context, a, b uuid.UUID) (*models.Friendship, error) {
	return r.Find(ctx, a, b)
}

func (r memFriendships) Create(ctx context.Context, f *models.Friendship) error {
	return r.v.do(ctx, "Friendships.Create", func(d *memData) error {
		k := pairKey{f.UserLow, f.UserHigh}
		if _, ok := d.friendships[k]; ok {
			return duplicate("Friendships.Create")
		}
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		now := r.v.now()
		f.CreatedAt, f.UpdatedAt = now, now
		d.friendships[k] = *f
		return nil
	})
}

func (r memFriendships) Accept(ctx context.Context, id uuid.UUID) error {
	return r.v.do(ctx, "Friendships.Accept", func(d *memData) error {
		for k, f := range d.friendships {
			if f.ID == id && f.Status == models.FriendshipPending {
				f.Status = models.FriendshipAccepted
				f.UpdatedAt = r.v.now()
				d.friendships[k] = f
				return nil
			}
		}
		return notFound("Friendships.Accept")
	})
}

func (r memFriendships) Delete(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var deleted bool
	err := r.v.do(ctx, "Friendships.Delete", func(d *memData) error {
		k := keyOf(a, b)
		_, deleted = d.friendships[k]
		delete(d.friendships, k)
		return nil
	})
	return deleted, err
}

func (r memFriendships) ListByUser(ctx context.Context, userID uuid.UUID, status models.FriendshipStatus) ([]models.Friendship, error) {
	var out []models.Friendship
	err := r.v.do(ctx, "Friendships.ListByUser", func(d *memData) error {
		for _, f := range d.friendships {
			if (f.UserLow == userID || f.UserHigh == userID) && f.Status == status {
				out = append(out, f)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
		return nil
	})
	return out, err
}

// Conversations

type memConversations struct{ v *memView }

func (r memConversations) Ensure(ctx context.Context, conv *models.Conversation) error {
	return r.v.do(ctx, "Conversations.Ensure", func(d *memData) error {
		if _, ok := d.conversations[conv.ID]; ok {
			return nil
		}
		now := r.v.now()
		conv.CreatedAt, conv.UpdatedAt = now, now
		d.conversations[conv.ID] = *conv
		return nil
	})
}

func (r memConversations) FindByID(ctx context.Context, id string) (*models.Conversation, error) {
	var out *models.Conversation
	err := r.v.do(ctx, "Conversations.FindByID", func(d *memData) error {
		c, ok := d.conversations[id]
		if !ok {
			return notFound("Conversations.FindByID")
		}
		out = &c
		return nil
	})
	return out, err
}

func (r memConversations) LockByID(ctx context.Context, id string) (*models.Conversation, error) {
	return r.FindByID(ctx, id)
}

func (r memConversations) Advance(ctx context.Context, id string, seq int64, lastMessageAt *time.Time) error {
	return r.v.do(ctx, "Conversations.Advance", func(d *memData) error {
		c, ok := d.conversations[id]
		if !ok {
			return nil
		}
		c.LastSeq = seq
		if lastMessageAt != nil {
			at := *lastMessageAt
			c.LastMessageAt = &at
		}
		c.UpdatedAt = r.v.now()
		d.conversations[id] = c
		return nil
	})
}

func (r memConversations) ListSummaries(ctx context.Context, userID uuid.UUID) ([]repository.ConversationSummaryRow, error) {
	var rows []repository.ConversationSummaryRow
	err := r.v.do(ctx, "Conversations.ListSummaries", func(d *memData) error {
		for _, c := range d.conversations {
			row := repository.ConversationSummaryRow{
				ConversationID: c.ID,
				Kind:           string(c.Kind),
				LastActivity:   c.LastMessageAt,
			}
			switch c.Kind {
			case models.ConversationDirect:
				if c.LastSeq == 0 || (*c.UserLow != userID && *c.UserHigh != userID) {
					continue
				}
				peer := *c.UserLow
				if peer == userID {
					peer = *c.UserHigh
				}
				row.PeerID = &peer
				var after *time.Time
				if cur, ok := d.cursors[[2]uuid.UUID{userID, peer}]; ok {
					after = &cur.ReadAt
				}
				row.UnreadCount = countDirect(d, c.ID, peer, after)
			case models.ConversationGroup:
				if _, ok := d.members[*c.GroupID][userID]; !ok {
					continue
				}
				gid := *c.GroupID
				row.GroupID = &gid
				if g, ok := d.groups[gid]; ok {
					name := g.Name
					row.GroupName = &name
				}
				row.UnreadCount = countGroup(d, gid, userID)
			}
			if last := lastVisible(d, c.ID); last != nil {
				row.MessageID = &last.ID
				row.MessageSeq = &last.Seq
				row.MessageClientID = &last.ClientID
				row.MessageSenderID = &last.SenderID
				row.MessageRecipientID = last.RecipientID
				row.MessageBody = &last.Body
				row.MessageCreatedAt = &last.CreatedAt
			}
			rows = append(rows, row)
		}
		sort.Slice(rows, func(i, j int) bool {
			a, b := rows[i].LastActivity, rows[j].LastActivity
			switch {
			case a == nil && b == nil:
				return rows[i].ConversationID < rows[j].ConversationID
			case a == nil:
				return false
			case b == nil:
				return true
			case !a.Equal(*b):
				return a.After(*b)
			}
			return rows[i].ConversationID < rows[j].ConversationID
		})
		return nil
	})
	return rows, err
}

func lastVisible(d *memData, conversationID string) *models.Message {
	var last *models.Message
	for id := range d.messages {
		m, ok := d.visible(id)
		if !ok || m.ConversationID != conversationID {
			continue
		}
		if last == nil || m.Seq > last.Seq {
			mm := m
			last = &mm
		}
	}
	return last
}

func countDirect(d *memData, conversationID string, peer uuid.UUID, after *time.Time) int64 {
	var n int64
	for id := range d.messages {
		m, ok := d.visible(id)
		if !ok || m.ConversationID != conversationID || m.SenderID != peer {
			continue
		}
		if after == nil || m.CreatedAt.After(*after) {
			n++
		}
	}
	return n
}

func countGroup(d *memData, groupID, member uuid.UUID) int64 {
	var n int64
	for k, e := range d.entries {
		if k.group != groupID || k.member != member || e.IsRead {
			continue
		}
		if _, ok := d.visible(k.message); ok {
			n++
		}
	}
	return n
}

// Messages

type memMessages struct{ v *memView }

func (r memMessages) Create(ctx context.Context, message *models.Message) error {
	return r.v.do(ctx, "Messages.Create", func(d *memData) error {
		for _, m := range d.messages {
			if m.ConversationID == message.ConversationID && m.Seq == message.Seq {
				return duplicate("Messages.Create")
			}
			if m.SenderID == message.SenderID && m.ClientID == message.ClientID {
				return duplicate("Messages.Create")
			}
		}
		message.ID = d.nextMessageID
		d.nextMessageID++
		if message.CreatedAt.IsZero() {
			message.CreatedAt = r.v.now()
		}
		d.messages[message.ID] = *message
		return nil
	})
}

func (r memMessages) FindByID(ctx context.Context, id uint) (*models.Message, error) {
	var out *models.Message
	err := r.v.do(ctx, "Messages.FindByID", func(d *memData) error {
		m, ok := d.visible(id)
		if !ok {
			return notFound("Messages.FindByID")
		}
		out = &m
		return nil
	})
	return out, err
}

func (r memMessages) FindByClientID(ctx context.Context, senderID uuid.UUID, clientID string) (*models.Message, error) {
	var out *models.Message
	err := r.v.do(ctx, "Messages.FindByClientID", func(d *memData) error {
		for _, m := range d.messages {
			if m.SenderID == senderID && m.ClientID == clientID {
				mm := m
				out = &mm
				return nil
			}
		}
		return notFound("Messages.FindByClientID")
	})
	return out, err
}

func (r memMessages) ListBefore(ctx context.Context, conversationID string, beforeSeq int64, limit int) ([]models.Message, error) {
	var out []models.Message
	err := r.v.do(ctx, "Messages.ListBefore", func(d *memData) error {
		for id := range d.messages {
			m, ok := d.visible(id)
			if !ok || m.ConversationID != conversationID {
				continue
			}
			if beforeSeq > 0 && m.Seq >= beforeSeq {
				continue
			}
			out = append(out, m)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
		if limit > 0 && len(out) > limit {
			out = out[len(out)-limit:]
		}
		return nil
	})
	return out, err
}

func (r memMessages) SoftDelete(ctx context.Context, id uint) error {
	return r.v.do(ctx, "Messages.SoftDelete", func(d *memData) error {
		m, ok := d.visible(id)
		if !ok {
			return notFound("Messages.SoftDelete")
		}
		m.DeletedAt = gorm.DeletedAt{Time: r.v.now(), Valid: true}
		d.messages[id] = m
		return nil
	})
}

// Groups

type memGroups struct{ v *memView }

func (r memGroups) Create(ctx context.Context, group *models.Group) error {
	return r.v.do(ctx, "Groups.Create", func(d *memData) error {
		if group.ID == uuid.Nil {
			group.ID = uuid.New()
		}
		if _, ok := d.groups[group.ID]; ok {
			return duplicate("Groups.Create")
		}
		now := r.v.now()
		group.CreatedAt, group.UpdatedAt = now, now
		stored := *group
		stored.Members = nil
		d.groups[group.ID] = stored
		return nil
	})
}

func (r memGroups) FindByID(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	var out *models.Group
	err := r.v.do(ctx, "Groups.FindByID", func(d *memData) error {
		g, ok := d.groups[id]
		if !ok {
			return notFound("Groups.FindByID")
		}
		out = &g
		return nil
	})
	return out, err
}

func (r memGroups) AddMember(ctx context.Context, groupID, userID uuid.UUID, role models.GroupRole) error {
	return r.v.do(ctx, "Groups.AddMember", func(d *memData) error {
		ms, ok := d.members[groupID]
		if !ok {
			ms = make(map[uuid.UUID]models.GroupMember)
			d.members[groupID] = ms
		}
		if _, exists := ms[userID]; exists {
			return duplicate("Groups.AddMember")
		}
		ms[userID] = models.GroupMember{GroupID: groupID, UserID: userID, Role: role, JoinedAt: r.v.now()}
		return nil
	})
}

func (r memGroups) RemoveMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var removed bool
	err := r.v.do(ctx, "Groups.RemoveMember", func(d *memData) error {
		_, removed = d.members[groupID][userID]
		delete(d.members[groupID], userID)
		return nil
	})
	return removed, err
}

func (r memGroups) GetMember(ctx context.Context, groupID, userID uuid.UUID) (*models.GroupMember, error) {
	var out *models.GroupMember
	err := r.v.do(ctx, "Groups.GetMember", func(d *memData) error {
		m, ok := d.members[groupID][userID]
		if !ok {
			return notFound("Groups.GetMember")
		}
		out = &m
		return nil
	})
	return out, err
}

func (r memGroups) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.v.do(ctx, "Groups.IsMember", func(d *memData) error {
		_, ok = d.members[groupID][userID]
		return nil
	})
	return ok, err
}

func sortedMembers(ms map[uuid.UUID]models.GroupMember) []models.GroupMember {
	out := make([]models.GroupMember, 0, len(ms))
	for _, m := range ms {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out
}

func (r memGroups) MemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.v.do(ctx, "Groups.MemberIDs", func(d *memData) error {
		for _, m := range sortedMembers(d.members[groupID]) {
			ids = append(ids, m.UserID)
		}
		return nil
	})
	return ids, err
}

func (r memGroups) ListMembers(ctx context.Context, groupID uuid.UUID) ([]models.GroupMember, error) {
	var out []models.GroupMember
	err := r.v.do(ctx, "Groups.ListMembers", func(d *memData) error {
		out = sortedMembers(d.members[groupID])
		return nil
	})
	return out, err
}

func (r memGroups) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Group, error) {
	var out []models.Group
	err := r.v.do(ctx, "Groups.ListForUser", func(d *memData) error {
		for gid, ms := range d.members {
			if _, ok := ms[userID]; ok {
				if g, ok := d.groups[gid]; ok {
					out = append(out, g)
				}
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

// Read states

type memReadStates struct{ v *memView }

func (r memReadStates) GetCursor(ctx context.Context, ownerID, peerID uuid.UUID) (*models.DirectReadCursor, error) {
	var out *models.DirectReadCursor
	err := r.v.do(ctx, "ReadStates.GetCursor", func(d *memData) error {
		c, ok := d.cursors[[2]uuid.UUID{ownerID, peerID}]
		if !ok {
			return notFound("ReadStates.GetCursor")
		}
		out = &c
		return nil
	})
	return out, err
}

func (r memReadStates) AdvanceCursor(ctx context.Context, ownerID, peerID uuid.UUID, at time.Time) (time.Time, error) {
	var readAt time.Time
	err := r.v.do(ctx, "ReadStates.AdvanceCursor", func(d *memData) error {
		k := [2]uuid.UUID{ownerID, peerID}
		c, ok := d.cursors[k]
		if !ok || at.After(c.ReadAt) {
			c = models.DirectReadCursor{OwnerID: ownerID, PeerID: peerID, ReadAt: at}
		}
		c.UpdatedAt = r.v.now()
		d.cursors[k] = c
		readAt = c.ReadAt
		return nil
	})
	return readAt, err
}

func (r memReadStates) DeleteCursors(ctx context.Context, a, b uuid.UUID) error {
	return r.v.do(ctx, "ReadStates.DeleteCursors", func(d *memData) error {
		delete(d.cursors, [2]uuid.UUID{a, b})
		delete(d.cursors, [2]uuid.UUID{b, a})
		return nil
	})
}

func (r memReadStates) CountDirectUnread(ctx context.Context, conversationID string, peerID uuid.UUID, after *time.Time) (int64, error) {
	var n int64
	err := r.v.do(ctx, "ReadStates.CountDirectUnread", func(d *memData) error {
		n = countDirect(d, conversationID, peerID, after)
		return nil
	})
	return n, err
}

func (r memReadStates) CreateGroupEntries(ctx context.Context, groupID uuid.UUID, messageID uint, members []uuid.UUID) error {
	return r.v.do(ctx, "ReadStates.CreateGroupEntries", func(d *memData) error {
		for _, m := range members {
			k := entryKey{groupID, m, messageID}
			if _, ok := d.entries[k]; ok {
				return duplicate("ReadStates.CreateGroupEntries")
			}
			d.entries[k] = models.GroupReadEntry{GroupID: groupID, MemberID: m, MessageID: messageID, CreatedAt: r.v.now()}
		}
		return nil
	})
}

func (r memReadStates) CountGroupUnread(ctx context.Context, groupID, memberID uuid.UUID) (int64, error) {
	var n int64
	err := r.v.do(ctx, "ReadStates.CountGroupUnread", func(d *memData) error {
		n = countGroup(d, groupID, memberID)
		return nil
	})
	return n, err
}

func (r memReadStates) CountGroupUnreadByMember(ctx context.Context, groupID uuid.UUID, members []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(members))
	err := r.v.do(ctx, "ReadStates.CountGroupUnreadByMember", func(d *memData) error {
		for _, m := range members {
			out[m] = countGroup(d, groupID, m)
		}
		return nil
	})
	return out, err
}

func (r memReadStates) ListGroupUnread(ctx context.Context, groupID, memberID uuid.UUID) ([]uint, error) {
	var ids []uint
	err := r.v.do(ctx, "ReadStates.ListGroupUnread", func(d *memData) error {
		for k, e := range d.entries {
			if k.group != groupID || k.member != memberID || e.IsRead {
				continue
			}
			if _, ok := d.visible(k.message); ok {
				ids = append(ids, k.message)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return nil
	})
	return ids, err
}

func (r memReadStates) MarkGroupRead(ctx context.Context, groupID, memberID uuid.UUID, at time.Time) (int64, error) {
	var n int64
	err := r.v.do(ctx, "ReadStates.MarkGroupRead", func(d *memData) error {
		for k, e := range d.entries {
			if k.group == groupID && k.member == memberID && !e.IsRead {
				readAt := at
				e.IsRead, e.ReadAt = true, &readAt
				d.entries[k] = e
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r memReadStates) DeleteGroupEntriesForMember(ctx context.Context, groupID, memberID uuid.UUID) error {
	return r.v.do(ctx, "ReadStates.DeleteGroupEntriesForMember", func(d *memData) error {
		for k := range d.entries {
			if k.group == groupID && k.member == memberID {
				delete(d.entries, k)
			}
		}
		return nil
	})
}

// Presence

type memPresence struct{ v *memView }

func (r memPresence) Get(ctx context.Context, userID uuid.UUID) (*models.PresenceRecord, error) {
	var out *models.PresenceRecord
	err := r.v.do(ctx, "Presence.Get", func(d *memData) error {
		rec, ok := d.presence[userID]
		if !ok {
			return notFound("Presence.Get")
		}
		out = &rec
		return nil
	})
	return out, err
}

func (r memPresence) Touch(ctx context.Context, userID uuid.UUID, at time.Time) (*models.PresenceRecord, error) {
	var out models.PresenceRecord
	err := r.v.do(ctx, "Presence.Touch", func(d *memData) error {
		rec, ok := d.presence[userID]
		if !ok {
			rec = models.PresenceRecord{UserID: userID, LastSeen: at, DeclaredStatus: models.DeclaredOnline}
		} else if at.After(rec.LastSeen) {
			rec.LastSeen = at
		}
		rec.UpdatedAt = r.v.now()
		d.presence[userID] = rec
		out = rec
		return nil
	})
	return &out, err
}

func (r memPresence) SetStatus(ctx context.Context, userID uuid.UUID, status models.DeclaredStatus, at time.Time) (*models.PresenceRecord, error) {
	var out models.PresenceRecord
	err := r.v.do(ctx, "Presence.SetStatus", func(d *memData) error {
		rec, ok := d.presence[userID]
		if !ok {
			rec = models.PresenceRecord{UserID: userID, LastSeen: at}
		}
		rec.DeclaredStatus = status
		rec.UpdatedAt = r.v.now()
		d.presence[userID] = rec
		out = rec
		return nil
	})
	return &out, err
}

func (r memPresence) ListExpired(ctx context.Context, from, to time.Time) ([]models.PresenceRecord, error) {
	var out []models.PresenceRecord
	err := r.v.do(ctx, "Presence.ListExpired", func(d *memData) error {
		for _, rec := range d.presence {
			if rec.DeclaredStatus == models.DeclaredOffline {
				continue
			}
			if !rec.LastSeen.Before(from) && rec.LastSeen.Before(to) {
				out = append(out, rec)
			}
		}
		return nil
	})
	return out, err
}

type memSequences struct{ v *memView }

func (r memSequences) Next(ctx context.Context, topic string) (int64, error) {
	var out int64
	err := r.v.do(ctx, "Sequences.Next", func(d *memData) error {
		d.sequences[topic]++
		out = d.sequences[topic]
		return nil
	})
	return out, err
}

func (r memSequences) Current(ctx context.Context, topic string) (int64, error) {
	var out int64
	err := r.v.do(ctx, "Sequences.Current", func(d *memData) error {
		out = d.sequences[topic]
		return nil
	})
	return out, err
}
