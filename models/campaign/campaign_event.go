package campaign

import (
	"time"
)

// CampaignEvent is an append-only audit snapshot of a Campaign row,
// written on every lifecycle transition.
type CampaignEvent struct {
	ID         uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID string         `gorm:"type:varchar(36);not null;index" json:"campaign_id"`
	Name       string         `gorm:"type:varchar(255)" json:"name"`
	Subject    string         `gorm:"type:varchar(500)" json:"subject"`
	TemplateID string         `gorm:"type:varchar(36)" json:"template_id"`
	Status     CampaignStatus `gorm:"type:varchar(30)" json:"status"`
	CreatedBy  string         `gorm:"type:varchar(255)" json:"created_by"`

	TotalRecipients int `json:"total_recipients"`
	EmailsSent      int `json:"emails_sent"`
	EmailsFailed    int `json:"emails_failed"`
	EmailsPending   int `json:"emails_pending"`

	EventType string    `gorm:"type:varchar(50);not null;index" json:"event_type"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Event types recorded for campaigns.
const (
	CampaignEventCreated   = "campaign_created"
	CampaignEventStarted   = "campaign_started"
	CampaignEventCompleted = "campaign_completed"
	CampaignEventCancelled = "campaign_cancelled"
)
