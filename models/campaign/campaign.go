package campaign

import (
	"time"
)

// Campaign is a batch of templated emails sent to a recipient cohort,
// tracked as a single unit. It exclusively owns its RecipientAttempts.
type Campaign struct {
	ID         string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name       string         `gorm:"type:varchar(255);not null" json:"name"`
	Subject    string         `gorm:"type:varchar(500);not null" json:"subject"`
	TemplateID string         `gorm:"type:varchar(36);not null;index" json:"template_id"`
	Status     CampaignStatus `gorm:"type:varchar(30);not null;default:'draft';index" json:"status"`
	CreatedBy  string         `gorm:"type:varchar(255)" json:"created_by"`

	TotalRecipients int `gorm:"default:0" json:"total_recipients"`
	EmailsSent      int `gorm:"default:0" json:"emails_sent"`
	EmailsFailed    int `gorm:"default:0" json:"emails_failed"`
	EmailsPending   int `gorm:"default:0" json:"emails_pending"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Recipients []RecipientAttempt `gorm:"foreignKey:CampaignID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"recipients,omitempty"`
}

// RecipientAttempt tracks the delivery of one campaign email to one
// recipient, including the retry bookkeeping.
type RecipientAttempt struct {
	ID         string `gorm:"type:varchar(36);primaryKey" json:"id"`
	CampaignID string `gorm:"type:varchar(36);not null;index" json:"campaign_id"`

	Email     string `gorm:"type:varchar(255);not null;index" json:"email"`
	Name      string `gorm:"type:varchar(255)" json:"name"`
	FirstName string `gorm:"type:varchar(255)" json:"first_name"`
	LastName  string `gorm:"type:varchar(255)" json:"last_name"`

	RenderedSubject string `gorm:"type:varchar(500)" json:"rendered_subject"`
	RenderedBody    string `gorm:"type:text" json:"-"`

	State           AttemptState `gorm:"type:varchar(30);not null;default:'pending';index" json:"state"`
	AttemptCount    int          `gorm:"default:0" json:"attempt_count"`
	LastError       *string      `gorm:"type:text" json:"last_error,omitempty"`
	LastAttemptedAt *time.Time   `json:"last_attempted_at,omitempty"`
	SentAt          *time.Time   `json:"sent_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
