package otp

import (
	"time"
)

// OTPEvent is an append-only audit snapshot of an OTP row. One row is
// written for every state change (issued, verified, expired, consumed).
// The code itself is stored AES-encrypted; see services/otp_event.
type OTPEvent struct {
	ID               uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	OTPID            uint       `gorm:"not null;index" json:"otp_id"`
	Email            string     `gorm:"type:varchar(255);not null;index" json:"email"`
	OTPCodeEncrypted string     `gorm:"column:otp_code_encrypted;type:text" json:"-"`
	Purpose          OTPPurpose `gorm:"type:varchar(50);not null" json:"purpose"`
	IsUsed           bool       `json:"is_used"`
	AttemptCount     int        `json:"attempt_count"`
	MaxAttempts      int        `json:"max_attempts"`
	LastAttemptAt    *time.Time `json:"last_attempt_at,omitempty"`
	ExpiresAt        time.Time  `json:"expires_at"`
	EventType        string     `gorm:"type:varchar(50);not null;index" json:"event_type"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// Event types recorded for OTP challenges.
const (
	OTPEventIssued      = "otp_issued"
	OTPEventInvalidated = "otp_invalidated"
	OTPEventVerified    = "otp_verified"
	OTPEventRejected    = "otp_rejected"
)
