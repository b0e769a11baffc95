package types

import "time"

// DeliveryLogEntry is pushed through the async logger channel and
// persisted as a models/log.DeliveryLog row.
type DeliveryLogEntry struct {
	CampaignID       string
	AttemptID        string
	Recipient        string
	Subject          string
	AttemptNumber    int
	Outcome          string
	TransportMessage string
	CreatedAt        time.Time
}
