package model

import "time"

type OutboxEventType string

const (
	EventOrderConfirmed OutboxEventType = "order.confirmed"
	EventOrderShipped   OutboxEventType = "order.shipped"
	EventOrderDelivered OutboxEventType = "order.delivered"
)

type OutboxEvent struct {
	BaseModel
	AggregateID string          `gorm:"not null;type:varchar(64);index" json:"aggregateId"`
	EventType   OutboxEventType `gorm:"not null;type:varchar(50)" json:"eventType"`
	Payload     []byte          `gorm:"not null;type:jsonb" json:"payload"`
	Attempts    int             `gorm:"not null;default:0" json:"attempts"`
	LastError   string          `gorm:"type:text" json:"lastError,omitempty"`
	PublishedAt *time.Time      `gorm:"index" json:"publishedAt,omitempty"`
}
