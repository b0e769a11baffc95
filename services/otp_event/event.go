package otp_event

import (
	otpModel "eduops-notify/models/otp"
	"eduops-notify/utils"

	"gorm.io/gorm"
)

// SnapshotOTPToEvent writes a full snapshot of an OTP row into OTPEvent
// with the given event type. The code is encrypted at rest; if no
// encryption key is configured the snapshot is written without it.
func SnapshotOTPToEvent(tx *gorm.DB, o *otpModel.OTP, eventType string) error {
	encryptedCode, err := utils.EncryptData(o.OTPCode)
	if err != nil {
		encryptedCode = ""
	}

	ev := otpModel.OTPEvent{
		OTPID:            o.ID,
		Email:            o.Email,
		OTPCodeEncrypted: encryptedCode,
		Purpose:          o.Purpose,
		IsUsed:           o.IsUsed,
		AttemptCount:     o.AttemptCount,
		MaxAttempts:      o.MaxAttempts,
		LastAttemptAt:    o.LastAttemptAt,
		ExpiresAt:        o.ExpiresAt,
		EventType:        eventType,
	}

	return tx.Create(&ev).Error
}
