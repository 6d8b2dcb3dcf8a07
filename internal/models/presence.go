package models

import (
	"time"

	"github.com/google/uuid"
)

type DeclaredStatus string

const (
	DeclaredOnline  DeclaredStatus = "online"
	DeclaredAway    DeclaredStatus = "away"
	DeclaredOffline DeclaredStatus = "offline"
)

func (s DeclaredStatus) Valid() bool {
	switch s {
	case DeclaredOnline, DeclaredAway, DeclaredOffline:
		return true
	}
	return false
}

type Liveness string

const (
	LivenessOnline  Liveness = "online"
	LivenessAway    Liveness = "away"
	LivenessOffline Liveness = "offline"
)

// DefaultPresenceWindow is how long a heartbeat keeps a user live.
const DefaultPresenceWindow = 5 * time.Minute

// PresenceRecord keeps the highest heartbeat timestamp seen for a user.
type PresenceRecord struct {
	UserID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"user_id" msgpack:"user_id"`
	LastSeen       time.Time      `gorm:"not null;index" json:"last_seen" msgpack:"last_seen"`
	DeclaredStatus DeclaredStatus `gorm:"type:varchar(10);not null;default:'online'" json:"declared_status" msgpack:"declared_status"`
	UpdatedAt      time.Time      `json:"updated_at" msgpack:"updated_at"`
}

// ComputeLiveness derives liveness at now. The window is half-open: a
// heartbeat exactly window old is already offline.
func ComputeLiveness(rec *PresenceRecord, now time.Time, window time.Duration) Liveness {
	if rec == nil || rec.DeclaredStatus == DeclaredOffline {
		return LivenessOffline
	}
	if now.Sub(rec.LastSeen) >= window {
		return LivenessOffline
	}
	if rec.DeclaredStatus == DeclaredAway {
		return LivenessAway
	}
	return LivenessOnline
}
