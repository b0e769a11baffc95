package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"eduops-notify/httpServices/mail"
	"eduops-notify/logger"
	otpModel "eduops-notify/models/otp"
	"eduops-notify/services/dispatcher"
	"eduops-notify/services/otp_event"

	"gorm.io/gorm"
)

// OTPExpiryMinutes is the fixed TTL of a login code.
const OTPExpiryMinutes = 10

// VerificationResult is the typed outcome of a verification attempt.
// Only Valid is revealed to callers facing the user; the distinct
// failure reasons exist for internal logging.
type VerificationResult int

const (
	ResultValid VerificationResult = iota
	ResultExpired
	ResultMismatch
	ResultNotFound
)

func (r VerificationResult) String() string {
	switch r {
	case ResultValid:
		return "valid"
	case ResultExpired:
		return "expired"
	case ResultMismatch:
		return "mismatch"
	default:
		return "not_found"
	}
}

// UserFacingFailureMessage is the uniform message returned for every
// non-Valid outcome, so a caller cannot probe which emails have
// pending codes.
const UserFacingFailureMessage = "invalid or expired code"

// Service is the OTP ledger: it issues, stores and validates one-time
// login codes bound to an account email and a time window.
type Service struct {
	DB         *gorm.DB
	Dispatcher *dispatcher.Dispatcher
}

func NewOTPService(db *gorm.DB, d *dispatcher.Dispatcher) *Service {
	return &Service{DB: db, Dispatcher: d}
}

// GenerateOTP generates a random 6-digit numeric code from a
// cryptographically secure source.
func (s *Service) GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// IssueOTP creates a fresh login code for the email, invalidating any
// prior unconsumed code, persists it, and hands delivery to the
// dispatcher. Delivery failure does not void the challenge; the code
// remains verifiable and the failure is logged.
func (s *Service) IssueOTP(ctx context.Context, email, userName string) (*otpModel.OTP, error) {
	if err := s.CleanupExpiredOTPs(); err != nil {
		logger.Warning("Failed to clean up expired OTPs: " + err.Error())
	}

	code, err := s.GenerateOTP()
	if err != nil {
		return nil, fmt.Errorf("failed to generate OTP: %w", err)
	}

	newOTP := &otpModel.OTP{
		Email:       email,
		OTPCode:     code,
		Purpose:     otpModel.OTPPurposeLogin,
		MaxAttempts: 3,
		ExpiresAt:   time.Now().Add(OTPExpiryMinutes * time.Minute),
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		// At most one unconsumed, unexpired challenge per email:
		// issuing a new one invalidates all prior unconsumed codes.
		var stale []otpModel.OTP
		if err := tx.Where("email = ? AND purpose = ? AND is_used = ?",
			email, otpModel.OTPPurposeLogin, false).Find(&stale).Error; err != nil {
			return fmt.Errorf("failed to load prior OTPs: %w", err)
		}
		for i := range stale {
			stale[i].IsUsed = true
			if err := tx.Save(&stale[i]).Error; err != nil {
				return fmt.Errorf("failed to invalidate prior OTP: %w", err)
			}
			if err := otp_event.SnapshotOTPToEvent(tx, &stale[i], otpModel.OTPEventInvalidated); err != nil {
				return fmt.Errorf("failed to record OTP invalidation: %w", err)
			}
		}

		if err := tx.Create(newOTP).Error; err != nil {
			return fmt.Errorf("failed to create OTP record: %w", err)
		}
		return otp_event.SnapshotOTPToEvent(tx, newOTP, otpModel.OTPEventIssued)
	})
	if err != nil {
		return nil, err
	}

	// Deliver the code through the shared dispatcher so the rate limit
	// and audit guarantees apply to login mail as well.
	outcome, sendErr := s.Dispatcher.Send(ctx, dispatcher.Intent{
		AttemptID:     fmt.Sprintf("otp-%d", newOTP.ID),
		AttemptNumber: 1,
		Message: mail.Message{
			To:       email,
			ToName:   userName,
			Subject:  "EduOps360 Login Code",
			HTMLBody: loginCodeBody(userName, code),
		},
	})
	if sendErr != nil {
		logger.Error(fmt.Sprintf("Failed to deliver login code to %s (outcome %s)", email, outcome), sendErr)
	} else {
		logger.Success("Login code sent to " + email)
	}

	return newOTP, nil
}

// VerifyOTP validates a code for an email. On success the challenge is
// consumed; replaying the same code afterwards returns NotFound. The
// distinct failure outcomes must be collapsed to
// UserFacingFailureMessage before leaving the service boundary.
func (s *Service) VerifyOTP(email, code string) (VerificationResult, error) {
	var record otpModel.OTP

	err := s.DB.Where("email = ? AND purpose = ? AND is_used = ?",
		email, otpModel.OTPPurposeLogin, false).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warning("OTP verification failed for " + email + ": no active challenge")
			return ResultNotFound, nil
		}
		return ResultNotFound, fmt.Errorf("failed to find OTP record: %w", err)
	}

	if record.IsExpired() {
		logger.Warning("OTP verification failed for " + email + ": challenge expired")
		return ResultExpired, nil
	}

	if record.OTPCode != code {
		record.RecordAttempt()
		if err := s.DB.Save(&record).Error; err != nil {
			return ResultMismatch, fmt.Errorf("failed to update attempt count: %w", err)
		}
		if err := s.snapshot(&record, otpModel.OTPEventRejected); err != nil {
			return ResultMismatch, err
		}
		logger.Warning(fmt.Sprintf("OTP verification failed for %s: code mismatch (attempt %d/%d)",
			email, record.AttemptCount, record.MaxAttempts))
		return ResultMismatch, nil
	}

	// Single use: consume on success so replay fails.
	record.IsUsed = true
	if err := s.DB.Save(&record).Error; err != nil {
		return ResultValid, fmt.Errorf("failed to mark OTP as used: %w", err)
	}
	if err := s.snapshot(&record, otpModel.OTPEventVerified); err != nil {
		return ResultValid, err
	}

	logger.Success("OTP verified for " + email)
	return ResultValid, nil
}

// CleanupExpiredOTPs removes expired and consumed challenges.
func (s *Service) CleanupExpiredOTPs() error {
	return s.DB.Where("expires_at < ? OR is_used = ?", time.Now(), true).
		Delete(&otpModel.OTP{}).Error
}

func (s *Service) snapshot(record *otpModel.OTP, eventType string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		return otp_event.SnapshotOTPToEvent(tx, record, eventType)
	})
}

// loginCodeBody renders the login-code email. This template is fixed
// rather than stored: login mail must keep working even if the
// template table is empty.
func loginCodeBody(userName, code string) string {
	if userName == "" {
		userName = "User"
	}
	return fmt.Sprintf(`
	<html>
	<body style="font-family: Arial, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5;">
		<div style="max-width: 500px; margin: 0 auto; background-color: white; padding: 30px; border-radius: 8px;">
			<h2 style="color: #333; text-align: center; margin-bottom: 30px;">EduOps360 Login Code</h2>
			<p style="color: #555; font-size: 16px;">Hello %s,</p>
			<p style="color: #555; font-size: 16px;">Your login verification code is:</p>
			<div style="text-align: center; margin: 30px 0;">
				<div style="font-size: 32px; font-weight: bold; color: #007bff; background-color: #f8f9fa; padding: 15px 25px; border-radius: 5px; letter-spacing: 5px; display: inline-block;">
					%s
				</div>
			</div>
			<p style="color: #555; font-size: 14px;">This code expires in %d minutes and can only be used once.</p>
			<p style="color: #777; font-size: 12px; margin-top: 30px;">If you did not request this code, please ignore this email.</p>
		</div>
	</body>
	</html>
	`, userName, code, OTPExpiryMinutes)
}
