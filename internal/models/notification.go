package models

import "time"

// Notification statuses. Dead notifications exhausted their retries.
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationDead    = "dead"
)

// Notification is an outbox row for an email to deliver.
type Notification struct {
	Base
	Recipient     string     `json:"recipient" gorm:"type:varchar(255);not null"`
	Subject       string     `json:"subject" gorm:"type:varchar(255);not null"`
	Body          string     `json:"body" gorm:"type:text"`
	Kind          string     `json:"kind" gorm:"type:varchar(50);index"`
	Status        string     `json:"status" gorm:"type:varchar(10);not null;index"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"maxAttempts"`
	LastError     string     `json:"lastError,omitempty" gorm:"type:varchar(500)"`
	NextAttemptAt time.Time  `json:"nextAttemptAt" gorm:"index"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
}

// ActivityLog records a back-office action.
type ActivityLog struct {
	Base
	ActorID    string `json:"actorId" gorm:"type:varchar(36);index"`
	ActorEmail string `json:"actorEmail" gorm:"type:varchar(255)"`
	Action     string `json:"action" gorm:"type:varchar(50);index;not null"`
	Entity     string `json:"entity" gorm:"type:varchar(50);index"`
	EntityID   string `json:"entityId" gorm:"type:varchar(36)"`
	Details    string `json:"details" gorm:"type:varchar(1000)"`
}
