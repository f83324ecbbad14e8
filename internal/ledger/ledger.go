// Package ledger keeps the messages that were dropped for good, so operators
// can inspect and replay them.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Entry describes one terminal failure.
type Entry struct {
	MessageID string
	Topic     string
	Handler   string
	Err       error
	Payload   []byte
}

type Ledger interface {
	// Record inserts the failure or bumps the occurrence count of the
	// message id already on file.
	Record(ctx context.Context, tx *gorm.DB, e Entry) error
	List(ctx context.Context, tx *gorm.DB, limit int) ([]*domain.FailedMessage, error)
}

type gormLedger struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

func New(db *gorm.DB, baseLog *logger.Logger) Ledger {
	return &gormLedger{
		db:  db,
		log: baseLog.With("repo", "FailedMessageLedger"),
		now: time.Now,
	}
}

func (l *gormLedger) Record(ctx context.Context, tx *gorm.DB, e Entry) error {
	transaction := tx
	if transaction == nil {
		transaction = l.db
	}
	if e.MessageID == "" {
		return fmt.Errorf("ledger: message id is required")
	}
	now := l.now().UTC()
	row := &domain.FailedMessage{
		ID:          uuid.New(),
		MessageID:   e.MessageID,
		Topic:       e.Topic,
		Handler:     e.Handler,
		Code:        string(domain.CodeOf(e.Err)),
		Payload:     payloadJSON(e.Payload),
		Occurrences: 1,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	if row.Code == "" {
		row.Code = string(domain.CodeInternal)
	}
	if e.Err != nil {
		row.Error = e.Err.Error()
	}

	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "message_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"occurrences":  gorm.Expr("failed_message.occurrences + 1"),
				"topic":        row.Topic,
				"handler":      row.Handler,
				"code":         row.Code,
				"error":        row.Error,
				"last_seen_at": row.LastSeenAt,
			}),
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("ledger record %s: %w", e.MessageID, err)
	}
	l.log.Debug("failure recorded", "message_id", e.MessageID, "code", row.Code)
	return nil
}

// List returns the most recently seen failures first.
func (l *gormLedger) List(ctx context.Context, tx *gorm.DB, limit int) ([]*domain.FailedMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = l.db
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	var out []*domain.FailedMessage
	if err := transaction.WithContext(ctx).
		Order("last_seen_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("ledger list: %w", err)
	}
	return out, nil
}

// payloadJSON keeps valid JSON as-is and wraps anything else in a JSON
// string.
func payloadJSON(b []byte) datatypes.JSON {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return datatypes.JSON(b)
	}
	quoted, _ := json.Marshal(string(b))
	return datatypes.JSON(quoted)
}
