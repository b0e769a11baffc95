package auth

import (
	"eduops-notify/logger"
	"eduops-notify/middleware"
	otpService "eduops-notify/services/otp"
	"eduops-notify/types"
	otpTypes "eduops-notify/types/otp"
	"eduops-notify/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Controller handles OTP-based login HTTP requests
type Controller struct {
	DB         *gorm.DB
	OTPService *otpService.Service
}

// NewAuthController creates a new auth controller
func NewAuthController(db *gorm.DB, svc *otpService.Service) *Controller {
	return &Controller{
		DB:         db,
		OTPService: svc,
	}
}

// RequestOTP issues a fresh login code and emails it to the address.
func (ac *Controller) RequestOTP(c *fiber.Ctx) error {
	var req otpTypes.RequestOTPRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", err)
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid request body",
			Data:    nil,
		})
	}

	if !utils.ValidateEmailFormat(req.Email) {
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid email address",
			Data:    nil,
		})
	}

	otpRecord, err := ac.OTPService.IssueOTP(c.Context(), req.Email, "")
	if err != nil {
		logger.Error("Failed to issue OTP", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Failed to send OTP",
			Data:    nil,
		})
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "OTP sent successfully",
		Data: otpTypes.OTPResponse{
			Message:   "A login code has been sent to your email",
			ExpiresAt: otpRecord.ExpiresAt.Format("2006-01-02 15:04:05"),
			Success:   true,
		},
	})
}

// VerifyOTP checks a submitted code and issues an access token on success.
// Every failure mode maps to the same client message so the response does
// not reveal whether the address holds an active code.
func (ac *Controller) VerifyOTP(c *fiber.Ctx) error {
	var req otpTypes.VerifyOTPRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", err)
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid request body",
			Data:    nil,
		})
	}

	if req.Email == "" || req.OTPCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Email and OTP code are required",
			Data:    nil,
		})
	}

	result, err := ac.OTPService.VerifyOTP(req.Email, req.OTPCode)
	if err != nil && result != otpService.ResultValid {
		logger.Error("OTP verification error", err)
	}

	if result != otpService.ResultValid {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ApiResponse{
			Status:  fiber.StatusUnauthorized,
			Message: otpService.UserFacingFailureMessage,
			Data: otpTypes.OTPResponse{
				Message: otpService.UserFacingFailureMessage,
				Success: false,
			},
		})
	}

	token, err := middleware.IssueToken(req.Email)
	if err != nil {
		logger.Error("Failed to sign access token", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Internal server error",
			Data:    nil,
		})
	}

	c.Cookie(&fiber.Cookie{
		Name:     "access",
		Value:    token,
		HTTPOnly: true,
		SameSite: "Lax",
	})

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "OTP verified successfully",
		Token:   token,
		Data: otpTypes.OTPResponse{
			Message: "Login successful",
			Success: true,
		},
	})
}
