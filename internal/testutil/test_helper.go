package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TestHelper provides fixtures on top of a MemoryStore
type TestHelper struct {
	t     *testing.T
	Store *MemoryStore
	Clock *Clock
}

func NewTestHelper(t *testing.T) *TestHelper {
	clock := NewClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStore()
	store.Now = clock.Now
	return &TestHelper{t: t, Store: store, Clock: clock}
}

// Users returns n fresh identities.
func (h *TestHelper) Users(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

// MakeFriends stores an accepted friendship between a and b.
func (h *TestHelper) MakeFriends(a, b uuid.UUID) {
	h.t.Helper()
	ctx := context.Background()
	f := models.NewFriendRequest(a, b)
	if err := h.Store.Friendships().Create(ctx, f); err != nil {
		h.t.Fatalf("MakeFriends: %v", err)
	}
	if err := h.Store.Friendships().Accept(ctx, f.ID); err != nil {
		h.t.Fatalf("MakeFriends: %v", err)
	}
}

// CreateGroup stores a group owned by creator with the given members and its
// conversation row.
func (h *TestHelper) CreateGroup(creator uuid.UUID, members ...uuid.UUID) *models.Group {
	h.t.Helper()
	ctx := context.Background()
	g := &models.Group{Name: "test group", CreatorID: creator}
	if err := h.Store.Groups().Create(ctx, g); err != nil {
		h.t.Fatalf("CreateGroup: %v", err)
	}
	if err := h.Store.Conversations().Ensure(ctx, models.NewGroupConversation(g.ID)); err != nil {
		h.t.Fatalf("CreateGroup: %v", err)
	}
	if err := h.Store.Groups().AddMember(ctx, g.ID, creator, models.RoleAdmin); err != nil {
		h.t.Fatalf("CreateGroup: %v", err)
	}
	for _, m := range members {
		if err := h.Store.Groups().AddMember(ctx, g.ID, m, models.RoleMember); err != nil {
			h.t.Fatalf("CreateGroup: %v", err)
		}
	}
	return g
}

// Token signs an HS256 access token for user.
func Token(secret string, user uuid.UUID) string {
	claims := jwt.MapClaims{
		"sub": user.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		panic(err)
	}
	return signed
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
