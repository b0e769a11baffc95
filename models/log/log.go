package log

import (
	"time"
)

// DeliveryLog records a single transport attempt, success or failure,
// with the transport's raw status message for audit.
type DeliveryLog struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID       string    `gorm:"type:varchar(36);index" json:"campaign_id"`
	AttemptID        string    `gorm:"type:varchar(36);index" json:"attempt_id"`
	Recipient        string    `gorm:"type:varchar(255);not null;index" json:"recipient"`
	Subject          string    `gorm:"type:varchar(500)" json:"subject"`
	AttemptNumber    int       `gorm:"type:int" json:"attempt_number"`
	Outcome          string    `gorm:"type:varchar(30);not null;index" json:"outcome"`
	TransportMessage string    `gorm:"type:text" json:"transport_message"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}
