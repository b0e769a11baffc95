package session

import (
	"time"
)

// Session mirrors the dashboard's live-session schedule. This service
// treats the table as a read-only collaborator: rows are written by the
// CRUD layer when schedules are ingested, and only queried here.
type Session struct {
	ID               string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Topic            string    `gorm:"type:varchar(500)" json:"topic"`
	StartTime        time.Time `gorm:"not null;index" json:"start_time"`
	InstructorName   string    `gorm:"type:varchar(255)" json:"instructor_name"`
	InstructorEmail  string    `gorm:"type:varchar(255);not null" json:"instructor_email"`
	MeetingLink      string    `gorm:"type:varchar(2048)" json:"meeting_link"`
	MaterialsLink    string    `gorm:"type:varchar(2048)" json:"materials_link"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
