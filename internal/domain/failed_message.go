package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// FailedMessage is a ledger row for a message that was terminated instead of
// redelivered.
type FailedMessage struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	MessageID   string         `gorm:"column:message_id;not null;uniqueIndex" json:"message_id"`
	Topic       string         `gorm:"column:topic;not null;index" json:"topic"`
	Handler     string         `gorm:"column:handler" json:"handler,omitempty"`
	Code        string         `gorm:"column:code;not null;index" json:"code"`
	Error       string         `gorm:"column:error" json:"error"`
	Payload     datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	Occurrences int            `gorm:"column:occurrences;not null;default:1" json:"occurrences"`
	FirstSeenAt time.Time      `gorm:"column:first_seen_at;not null" json:"first_seen_at"`
	LastSeenAt  time.Time      `gorm:"column:last_seen_at;not null;index" json:"last_seen_at"`
}

func (FailedMessage) TableName() string { return "failed_message" }
