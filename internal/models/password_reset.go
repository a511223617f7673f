package models

import "time"

// PasswordReset is the pending reset code for one email. The code itself is
// only held as a digest.
type PasswordReset struct {
	Email     string    `json:"email"`
	TokenHash string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (p *PasswordReset) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Code     string `json:"code" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}
