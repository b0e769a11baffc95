package campaign

import "time"

// Recipient is one entry of a campaign's recipient list.
type Recipient struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name"`
}

// CreateCampaignRequest represents the request payload for creating a campaign
type CreateCampaignRequest struct {
	Name       string                 `json:"name" validate:"required"`
	TemplateID string                 `json:"template_id" validate:"required"`
	Recipients []Recipient            `json:"recipients" validate:"required,min=1,dive"`
	Context    map[string]interface{} `json:"context"`
}

// RecipientStatus is the per-recipient slice of a campaign status view.
type RecipientStatus struct {
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	State           string     `json:"state"`
	AttemptCount    int        `json:"attempt_count"`
	LastError       *string    `json:"last_error,omitempty"`
	LastAttemptedAt *time.Time `json:"last_attempted_at,omitempty"`
}

// CampaignStatusResponse is a consistent snapshot of a campaign and its
// per-recipient states.
type CampaignStatusResponse struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Status          string            `json:"status"`
	TotalRecipients int               `json:"total_recipients"`
	EmailsSent      int               `json:"emails_sent"`
	EmailsFailed    int               `json:"emails_failed"`
	EmailsPending   int               `json:"emails_pending"`
	CreatedAt       time.Time         `json:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	Recipients      []RecipientStatus `json:"recipients"`
}

// CreateTemplateRequest represents the request payload for creating a template
type CreateTemplateRequest struct {
	Name        string `json:"name" validate:"required"`
	Subject     string `json:"subject" validate:"required"`
	HTMLContent string `json:"html_content" validate:"required"`
	Category    string `json:"category"`
}
