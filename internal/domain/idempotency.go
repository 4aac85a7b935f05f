package domain

import "time"

// Idempotency records an order event that has already been published, keyed
// by (source, key). A replayed key within its TTL is acknowledged without a
// second fan-out.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Source    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_source_key,priority:1"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_source_key,priority:2"`
	TenantID  string    `gorm:"type:TEXT NOT NULL;index"`
	OrderID   string    `gorm:"type:TEXT NOT NULL"`
	Delivered int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// Idempotency ledger sources. Keys from different ingress paths never
// collide.
const (
	SourceHTTP = "http"
	SourceAMQP = "amqp"
)
