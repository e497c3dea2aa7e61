package audit

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store provides read access to the audit trail. There is no update or
// delete path: rows are written through the Recorder only.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new audit Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the audit_records table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("auto-migrate audit_records: %w", err)
	}
	return nil
}

// TrailForEntity returns paginated audit records for one entity, newest
// first. pageToken is an RFC3339 timestamp; records with changed_at before
// the token are returned.
func (s *Store) TrailForEntity(entityType, entityID string, pageSize int, pageToken string) ([]Record, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var totalSize int64
	if err := s.db.Model(&Record{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count audit records: %w", err)
	}

	query := s.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("changed_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("changed_at < ?", t)
	}

	var records []Record
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list audit records: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].ChangedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}

	return records, nextToken, int(totalSize), nil
}

// TrailForActor returns paginated audit records attributed to one actor,
// newest first.
func (s *Store) TrailForActor(actor string, pageSize int, pageToken string) ([]Record, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var totalSize int64
	if err := s.db.Model(&Record{}).Where("actor = ?", actor).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count audit records: %w", err)
	}

	query := s.db.Where("actor = ?", actor).Order("changed_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("changed_at < ?", t)
	}

	var records []Record
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list audit records: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].ChangedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}

	return records, nextToken, int(totalSize), nil
}
