package service

import (
	"context"
	"sort"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/apperrors"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/cache"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/fanout"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/repository"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/validation"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultSendTimeout  = 5 * time.Second
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

type MessageConfig struct {
	MaxBodyLength int
	SendTimeout   time.Duration
}

// MessageService routes messages. A send authorizes the sender, orders the
// message within its conversation and writes the read ledger in a single
// transaction; notifications go out only after it commits.
type MessageService struct {
	store  repository.Store
	unread *cache.UnreadCache
	cfg    MessageConfig
	notifier

	Now func() time.Time
}

func NewMessageService(store repository.Store, unread *cache.UnreadCache, cfg MessageConfig, pub fanout.Publisher, log *zap.Logger) *MessageService {
	if cfg.MaxBodyLength <= 0 {
		cfg.MaxBodyLength = validation.DefaultMaxBodyLength
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	return &MessageService{
		store:    store,
		unread:   unread,
		cfg:      cfg,
		notifier: newNotifier(pub, log),
		Now:      time.Now,
	}
}

type SendInput struct {
	Target   models.Target
	Body     string
	ClientID string
}

// SendResult is a stored message and the unread counts of its recipients
// after the send. Duplicate is set when ClientID matched an earlier send.
type SendResult struct {
	Message   *models.Message
	Unread    map[uuid.UUID]int64
	Duplicate bool
}

var errClientIDRace = errors.New("client id inserted concurrently")

func (s *MessageService) Send(ctx context.Context, sender uuid.UUID, in SendInput) (*SendResult, error) {
	body, ok := validation.NormalizeBody(in.Body, s.cfg.MaxBodyLength)
	if !ok {
		if body == "" {
			return nil, apperrors.ErrEmptyBody
		}
		return nil, apperrors.InvalidArg("message body is too long")
	}
	if err := checkTarget(sender, in.Target); err != nil {
		return nil, err
	}
	clientID := in.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	} else if !validation.ValidateClientID(clientID) {
		return nil, apperrors.InvalidArg("invalid client_id")
	}
	convID := in.Target.ConversationID(sender)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	if prev, err := s.findRetry(ctx, sender, clientID, convID); err != nil || prev != nil {
		return prev, s.sendError(err)
	}

	var (
		res *SendResult
		out outbox
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		out = outbox{}
		var err error
		res, err = s.sendTx(ctx, tx, &out, sender, in.Target, convID, body, clientID)
		return err
	})
	if errors.Is(err, errClientIDRace) {
		prev, ferr := s.findRetry(ctx, sender, clientID, convID)
		if ferr == nil && prev == nil {
			ferr = apperrors.ErrDeliveryAtomicity
		}
		return prev, s.sendError(ferr)
	}
	if err != nil {
		return nil, s.sendError(err)
	}

	s.afterSend(ctx, res, &out)
	return res, nil
}

// findRetry returns the stored message when sender already used clientID.
func (s *MessageService) findRetry(ctx context.Context, sender uuid.UUID, clientID, convID string) (*SendResult, error) {
	msg, err := s.store.Messages().FindByClientID(ctx, sender, clientID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if msg.ConversationID != convID {
		return nil, apperrors.InvalidArg("client_id already used in another conversation")
	}
	return &SendResult{Message: msg, Duplicate: true}, nil
}

func (s *MessageService) sendTx(ctx context.Context, tx repository.Store, out *outbox, sender uuid.UUID, target models.Target, convID, body, clientID string) (*SendResult, error) {
	if target.IsGroup() {
		if err := requireMember(ctx, tx, target.GroupID, sender); err != nil {
			return nil, err
		}
	} else {
		f, err := tx.Friendships().Find(ctx, sender, target.PeerID)
		if err != nil && !isNotFound(err) {
			return nil, err
		}
		if f.StateFor(sender) != models.StateAccepted {
			return nil, apperrors.ErrNotAuthorized
		}
		if err := tx.Conversations().Ensure(ctx, models.NewDirectConversation(sender, target.PeerID)); err != nil {
			return nil, err
		}
	}

	conv, err := tx.Conversations().LockByID(ctx, convID)
	if err != nil {
		return nil, err
	}

	createdAt := dbTime(s.Now())
	if conv.LastMessageAt != nil && !createdAt.After(*conv.LastMessageAt) {
		createdAt = conv.LastMessageAt.Add(time.Microsecond)
	}
	msg := &models.Message{
		ConversationID: conv.ID,
		Seq:            conv.LastSeq + 1,
		CreatedAt:      createdAt,
		ClientID:       clientID,
		SenderID:       sender,
		Body:           body,
	}
	if target.IsGroup() {
		gid := target.GroupID
		msg.GroupID = &gid
	} else {
		peer := target.PeerID
		msg.RecipientID = &peer
	}

	if err := tx.Messages().Create(ctx, msg); err != nil {
		if isDuplicate(err) {
			return nil, errClientIDRace
		}
		return nil, err
	}
	if err := tx.Conversations().Advance(ctx, conv.ID, msg.Seq, &createdAt); err != nil {
		return nil, err
	}

	res := &SendResult{Message: msg}
	if target.IsGroup() {
		res.Unread, err = s.writeGroupLedger(ctx, tx, target.GroupID, sender, msg.ID)
	} else {
		var n int64
		n, _, err = directUnread(ctx, tx, target.PeerID, sender)
		res.Unread = map[uuid.UUID]int64{target.PeerID: n}
	}
	if err != nil {
		return nil, err
	}
	if err := stageNotices(ctx, tx, out, msg, res.Unread); err != nil {
		return nil, err
	}
	return res, nil
}

// stageNotices numbers one inbox notice per recipient. Topics are taken in
// id order so concurrent sends lock them in the same order.
func stageNotices(ctx context.Context, tx repository.Store, out *outbox, msg *models.Message, unread map[uuid.UUID]int64) error {
	ids := make([]uuid.UUID, 0, len(unread))
	for id := range unread {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		err := out.stage(ctx, tx, events.InboxTopic(id), events.KindMessageReceived, events.MessageNotice{
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			SenderID:       msg.SenderID,
			Unread:         unread[id],
		})
		if err != nil {
			return apperrors.DeliveryAtomicity(err)
		}
	}
	return nil
}

// writeGroupLedger snapshots the roster under the conversation lock and
// gives every member but the sender an unread entry.
func (s *MessageService) writeGroupLedger(ctx context.Context, tx repository.Store, groupID, sender uuid.UUID, messageID uint) (map[uuid.UUID]int64, error) {
	members, err := tx.Groups().MemberIDs(ctx, groupID)
	if err != nil {
		return nil, apperrors.DeliveryAtomicity(err)
	}
	recipients := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		if m != sender {
			recipients = append(recipients, m)
		}
	}
	if len(recipients) == 0 {
		return map[uuid.UUID]int64{}, nil
	}
	if err := tx.ReadStates().CreateGroupEntries(ctx, groupID, messageID, recipients); err != nil {
		return nil, apperrors.DeliveryAtomicity(err)
	}
	counts, err := tx.ReadStates().CountGroupUnreadByMember(ctx, groupID, recipients)
	if err != nil {
		return nil, apperrors.DeliveryAtomicity(err)
	}
	return counts, nil
}

func (s *MessageService) sendError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.SendTimeout(err)
	}
	return err
}

func (s *MessageService) afterSend(ctx context.Context, res *SendResult, out *outbox) {
	msg := res.Message
	owners := make([]uuid.UUID, 0, len(res.Unread))
	for id := range res.Unread {
		owners = append(owners, id)
	}
	if err := s.unread.Invalidate(ctx, msg.ConversationID, owners...); err != nil {
		s.log.Debug("unread cache invalidate failed", zap.Error(err))
	}

	view := MessageView(msg)
	s.publishSeq(ctx, events.ConversationTopic(msg.ConversationID), events.KindMessageCreated, msg.Seq,
		events.MessageCreated{Message: view, Unread: res.Unread})
	s.flush(ctx, out)
}

// History pages backwards through a conversation. beforeSeq 0 starts at the
// newest message; results are oldest first.
func (s *MessageService) History(ctx context.Context, actor uuid.UUID, target models.Target, beforeSeq int64, limit int) ([]models.Message, error) {
	if err := checkTarget(actor, target); err != nil {
		return nil, err
	}
	if target.IsGroup() {
		if err := requireMember(ctx, s.store, target.GroupID, actor); err != nil {
			return nil, err
		}
	}
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = DefaultHistoryLimit
	}
	return s.store.Messages().ListBefore(ctx, target.ConversationID(actor), beforeSeq, limit)
}

// Delete soft-deletes a message. Only its sender may delete it; the
// deletion takes the next conversation sequence.
func (s *MessageService) Delete(ctx context.Context, actor uuid.UUID, messageID uint) error {
	var (
		msg *models.Message
		seq int64
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		msg, err = tx.Messages().FindByID(ctx, messageID)
		if err != nil {
			if isNotFound(err) {
				return apperrors.ErrMessageNotFound
			}
			return err
		}
		if msg.SenderID != actor {
			return apperrors.ErrNotMessageSender
		}
		conv, err := tx.Conversations().LockByID(ctx, msg.ConversationID)
		if err != nil {
			return err
		}
		if err := tx.Messages().SoftDelete(ctx, msg.ID); err != nil {
			return err
		}
		seq = conv.LastSeq + 1
		return tx.Conversations().Advance(ctx, conv.ID, seq, nil)
	})
	if err != nil {
		return err
	}

	s.invalidateRecipients(ctx, msg)
	s.publishSeq(ctx, events.ConversationTopic(msg.ConversationID), events.KindMessageDeleted, seq,
		events.MessageDeleted{ConversationID: msg.ConversationID, MessageID: msg.ID})
	return nil
}

func (s *MessageService) invalidateRecipients(ctx context.Context, msg *models.Message) {
	var owners []uuid.UUID
	if msg.GroupID != nil {
		ids, err := s.store.Groups().MemberIDs(ctx, *msg.GroupID)
		if err != nil {
			s.log.Debug("member lookup failed", zap.Error(err))
			return
		}
		owners = ids
	} else if msg.RecipientID != nil {
		owners = []uuid.UUID{*msg.RecipientID}
	}
	if err := s.unread.Invalidate(ctx, msg.ConversationID, owners...); err != nil {
		s.log.Debug("unread cache invalidate failed", zap.Error(err))
	}
}

// Snapshot is the resync state of a conversation topic. LastSeq is read
// before the messages.
func (s *MessageService) Snapshot(ctx context.Context, actor uuid.UUID, target models.Target) (*events.ConversationSnapshot, error) {
	convID := target.ConversationID(actor)
	out := &events.ConversationSnapshot{ConversationID: convID, Messages: []events.MessageView{}}

	conv, err := s.store.Conversations().FindByID(ctx, convID)
	switch {
	case err == nil:
		out.LastSeq = conv.LastSeq
	case isNotFound(err):
		return out, nil
	default:
		return nil, err
	}

	msgs, err := s.History(ctx, actor, target, 0, DefaultHistoryLimit)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		out.Messages = append(out.Messages, MessageView(&msgs[i]))
	}

	if target.IsGroup() {
		out.Unread, err = s.store.ReadStates().CountGroupUnread(ctx, target.GroupID, actor)
	} else {
		out.Unread, _, err = directUnread(ctx, s.store, actor, target.PeerID)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func MessageView(m *models.Message) events.MessageView {
	return events.MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Seq:            m.Seq,
		ClientID:       m.ClientID,
		SenderID:       m.SenderID,
		RecipientID:    m.RecipientID,
		GroupID:        m.GroupID,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
}
