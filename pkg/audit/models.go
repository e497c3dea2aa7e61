package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONMap is a custom GORM type for map[string]any stored as JSON.
type JSONMap map[string]any

// Scan implements the sql.Scanner interface for JSONMap.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for JSONMap.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Operation is the kind of mutation an audit record describes.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Record is an immutable audit log entry. Rows are written once and never
// updated or removed.
type Record struct {
	ID         string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	EntityType string    `gorm:"column:entity_type;index:idx_audit_entity,priority:1;not null"`
	EntityID   string    `gorm:"column:entity_id;index:idx_audit_entity,priority:2;not null"`
	Operation  string    `gorm:"column:operation;not null"`
	Actor      string    `gorm:"column:actor;index;not null"`
	OldValues  JSONMap   `gorm:"column:old_values;type:text"`
	NewValues  JSONMap   `gorm:"column:new_values;type:text"`
	ChangedAt  time.Time `gorm:"column:changed_at;index:idx_audit_entity,priority:3;autoCreateTime"`
}

// TableName returns the GORM table name.
func (Record) TableName() string { return "audit_records" }

// Entry is the API-facing audit record.
type Entry struct {
	ID         string         `json:"id"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Operation  string         `json:"operation"`
	Actor      string         `json:"actor"`
	OldValues  map[string]any `json:"old_values,omitempty"`
	NewValues  map[string]any `json:"new_values,omitempty"`
	ChangedAt  string         `json:"changed_at"`
}

// EntryList is a paginated list of audit entries.
type EntryList struct {
	Entries       []Entry `json:"entries"`
	NextPageToken string  `json:"next_page_token,omitempty"`
	TotalSize     int     `json:"total_size"`
}
