package models

// TopicSequence is the last sequence published on a fan-out topic other
// than a conversation topic, which numbers its events with
// Conversation.LastSeq.
type TopicSequence struct {
	Topic string `gorm:"primaryKey;size:200" json:"topic"`
	Seq   int64  `gorm:"not null" json:"seq"`
}
