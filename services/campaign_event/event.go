package campaign_event

import (
	campaignModel "eduops-notify/models/campaign"

	"gorm.io/gorm"
)

// SnapshotCampaignToEvent writes a full snapshot of a Campaign row into
// CampaignEvent with the given event type.
func SnapshotCampaignToEvent(tx *gorm.DB, c *campaignModel.Campaign, eventType string) error {
	ev := campaignModel.CampaignEvent{
		CampaignID:      c.ID,
		Name:            c.Name,
		Subject:         c.Subject,
		TemplateID:      c.TemplateID,
		Status:          c.Status,
		CreatedBy:       c.CreatedBy,
		TotalRecipients: c.TotalRecipients,
		EmailsSent:      c.EmailsSent,
		EmailsFailed:    c.EmailsFailed,
		EmailsPending:   c.EmailsPending,
		EventType:       eventType,
	}

	return tx.Create(&ev).Error
}
