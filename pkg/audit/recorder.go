// Package audit provides the append-only change log every registry mutation
// flows through. Records are written in the same transaction as the mutation
// they describe: if the audit row cannot be written, the mutation must not
// commit.
package audit

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ctsr-project/ctsr/pkg/apierrors"
)

// Recorder appends audit records inside a caller-supplied transaction.
type Recorder struct{}

// NewRecorder creates a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends one audit row using tx. Callers must run this inside the
// transaction that performs the mutation and abort the whole transaction on
// error; an unaudited change must never commit.
//
// INSERT records carry no before-image, DELETE records no after-image.
func (r *Recorder) Record(tx *gorm.DB, entityType, entityID string, op Operation, actor string, before, after JSONMap) (*Record, error) {
	if actor == "" {
		return nil, apierrors.Validation("audit actor is required")
	}
	if entityType == "" || entityID == "" {
		return nil, apierrors.Validation("audit entity type and id are required")
	}
	switch op {
	case OpInsert:
		if after == nil {
			return nil, apierrors.Validation("INSERT audit record requires new values")
		}
		before = nil
	case OpDelete:
		if before == nil {
			return nil, apierrors.Validation("DELETE audit record requires old values")
		}
		after = nil
	case OpUpdate:
		if before == nil || after == nil {
			return nil, apierrors.Validation("UPDATE audit record requires old and new values")
		}
	default:
		return nil, apierrors.Validation("unknown audit operation: %s", op)
	}

	rec := &Record{
		ID:         uuid.New().String(),
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  string(op),
		Actor:      actor,
		OldValues:  before,
		NewValues:  after,
	}
	if err := tx.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("append audit record: %w", err)
	}
	return rec, nil
}
