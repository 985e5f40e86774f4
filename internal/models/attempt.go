package models

import "time"

// AttemptRecord tracks failed authentication attempts for one identifier
// (an email or an IP). Records are created lazily on the first failure and
// self-expire from the store after the tracking window.
type AttemptRecord struct {
	Identifier      string     `json:"identifier"`
	Attempts        int        `json:"attempts"`
	FirstAttempt    time.Time  `json:"first_attempt"`
	LastAttempt     time.Time  `json:"last_attempt"`
	LockoutUntil    *time.Time `json:"lockout_until,omitempty"`
	CaptchaRequired bool       `json:"captcha_required"`
}

// Locked reports whether the record is under an active lockout.
func (a *AttemptRecord) Locked(now time.Time) bool {
	return a.LockoutUntil != nil && now.Before(*a.LockoutUntil)
}

// LoginCheck is the guard's verdict for one login attempt. RemainingAttempts
// is nil once the account is locked (the count no longer matters).
type LoginCheck struct {
	Allowed           bool       `json:"allowed"`
	RequiresCaptcha   bool       `json:"requires_captcha"`
	LockoutUntil      *time.Time `json:"lockout_until,omitempty"`
	RemainingAttempts *int       `json:"remaining_attempts,omitempty"`
}

// AccountStatus is the advisory read used by the login form to pre-warn the
// user. It is best-effort: a store failure degrades to the zero value.
type AccountStatus struct {
	Attempts        int        `json:"attempts"`
	LockoutUntil    *time.Time `json:"lockout_until,omitempty"`
	RequiresCaptcha bool       `json:"requires_captcha"`
}
