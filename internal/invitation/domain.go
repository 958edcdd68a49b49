package invitation

import (
	"errors"
	"time"
)

// Invitation is a single-use redemption code mailed to an address. A nil
// AccountID marks a password-reset invitation rather than a membership
// invitation.
type Invitation struct {
	ID        int64
	AccountID *int64
	Email     string
	IssuedBy  int64
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the invitation is past its validity window.
func (i Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

var (
	ErrNotFound         = errors.New("invitation: not found")
	ErrInvalidCode      = errors.New("invitation: invalid or expired code")
	ErrDuplicateCode    = errors.New("invitation: duplicate code")
	ErrCodeExhausted    = errors.New("invitation: could not mint a unique code")
	ErrUnsentInvitation = errors.New("invitation: notification delivery failed")
)
