package reminder

import (
	"fmt"
	"time"
)

// ReminderRule is a standing instruction to notify an instructor a
// fixed lead time before a scheduled session. The session's canonical
// record lives in the sessions table; the rule holds only the session
// id and re-reads the authoritative start time on every evaluation, so
// a reschedule changes the occurrence key and re-arms the rule.
type ReminderRule struct {
	ID               uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID        string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"session_id"`
	LeadTimeMinutes  int        `gorm:"default:60" json:"lead_time_minutes"`
	LastFiredKey     *string    `gorm:"type:varchar(100);index" json:"last_fired_key,omitempty"`
	LastFiredAt      *time.Time `json:"last_fired_at,omitempty"`
	LastSkippedKey   *string    `gorm:"type:varchar(100)" json:"last_skipped_key,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// OccurrenceKey identifies one concrete occurrence of a session. It is
// derived from the authoritative start time so that a rescheduled
// session produces a fresh key.
func OccurrenceKey(sessionID string, startTime time.Time) string {
	return fmt.Sprintf("%s@%d", sessionID, startTime.UTC().Unix())
}

// IsArmedFor reports whether the rule may still fire for the given
// occurrence.
func (r *ReminderRule) IsArmedFor(occurrenceKey string) bool {
	if r.LastFiredKey != nil && *r.LastFiredKey == occurrenceKey {
		return false
	}
	if r.LastSkippedKey != nil && *r.LastSkippedKey == occurrenceKey {
		return false
	}
	return true
}

// FireWindowStart returns the instant at which the reminder becomes
// due for a session starting at startTime.
func (r *ReminderRule) FireWindowStart(startTime time.Time) time.Time {
	return startTime.Add(-time.Duration(r.LeadTimeMinutes) * time.Minute)
}
