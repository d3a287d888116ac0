package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Snapshot is a persisted dashboard refresh. Payload holds the full rendered
// state as JSON so history entries can be downloaded later.
type Snapshot struct {
	ID          uuid.UUID       `db:"id"           json:"id"`
	TakenAt     time.Time       `db:"taken_at"     json:"taken_at"`
	TenantCount int             `db:"tenant_count" json:"tenant_count"`
	FailedCount int             `db:"failed_count" json:"failed_count"`
	Metrics     Metrics         `db:"metrics"      json:"metrics"`
	Payload     json.RawMessage `db:"payload"      json:"payload,omitempty"`
}
