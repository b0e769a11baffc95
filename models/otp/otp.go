package otp

import (
	"time"
)

// OTP represents a one-time login code issued to an account email.
type OTP struct {
	ID            uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Email         string     `gorm:"type:varchar(255);not null;index" json:"email"`
	OTPCode       string     `gorm:"column:otp_code;type:varchar(6);not null" json:"otp_code"`
	Purpose       OTPPurpose `gorm:"type:varchar(50);not null" json:"purpose"`
	IsUsed        bool       `gorm:"default:false" json:"is_used"`
	AttemptCount  int        `gorm:"default:0" json:"attempt_count"`
	MaxAttempts   int        `gorm:"default:3" json:"max_attempts"`
	LastAttemptAt *time.Time `gorm:"index" json:"last_attempt_at,omitempty"`
	ExpiresAt     time.Time  `gorm:"not null" json:"expires_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// OTPPurpose represents the purpose of the OTP
type OTPPurpose string

const (
	OTPPurposeLogin OTPPurpose = "login"
)

// IsExpired checks if the OTP has expired
func (o *OTP) IsExpired() bool {
	return o.IsExpiredAt(time.Now())
}

// IsExpiredAt checks expiry against a supplied clock reading
func (o *OTP) IsExpiredAt(t time.Time) bool {
	return t.After(o.ExpiresAt)
}

// IsValid checks if the OTP is valid (not used and not expired)
func (o *OTP) IsValid() bool {
	return !o.IsUsed && !o.IsExpired()
}

// CanAttempt checks whether another verification attempt is allowed
func (o *OTP) CanAttempt() bool {
	return !o.IsUsed && !o.IsExpired() && o.AttemptCount < o.MaxAttempts
}

// RecordAttempt increments the attempt count and consumes the challenge
// once the attempt ceiling is reached.
func (o *OTP) RecordAttempt() {
	now := time.Now()
	o.AttemptCount++
	o.LastAttemptAt = &now

	if o.AttemptCount >= o.MaxAttempts {
		o.IsUsed = true
	}
}
