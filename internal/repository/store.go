package repository

import (
	"context"

	"gorm.io/gorm"
)

type GormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Friendships() FriendshipRepositoryInterface {
	return NewFriendshipRepository(s.db)
}

func (s *GormStore) Conversations() ConversationRepositoryInterface {
	return NewConversationRepository(s.db)
}

func (s *GormStore) Messages() MessageRepositoryInterface {
	return NewMessageRepository(s.db)
}

func (s *GormStore) Groups() GroupRepositoryInterface {
	return NewGroupRepository(s.db)
}

func (s *GormStore) ReadStates() ReadStateRepositoryInterface {
	return NewReadStateRepository(s.db)
}

func (s *GormStore) Presence() PresenceRepositoryInterface {
	return NewPresenceRepository(s.db)
}

func (s *GormStore) Sequences() SequenceRepositoryInterface {
	return NewSequenceRepository(s.db)
}

// WithTx runs fn in a transaction. A nested call becomes a savepoint.
func (s *GormStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
