package otp

// RequestOTPRequest represents the request payload for issuing a login code
type RequestOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyOTPRequest represents the request payload for verifying a login code
type VerifyOTPRequest struct {
	Email   string `json:"email" validate:"required,email"`
	OTPCode string `json:"otp_code" validate:"required,len=6"`
}

// OTPResponse represents the response for OTP operations
type OTPResponse struct {
	Message   string `json:"message"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Success   bool   `json:"success"`
}
