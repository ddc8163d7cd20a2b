package dto

import "time"

// Decision is the outcome of a single-axis rate limit check.
type Decision struct {
	Allowed    bool       `json:"allowed"`
	Axis       string     `json:"axis"`
	Remaining  int        `json:"remaining"`
	RetryAfter int        `json:"retry_after,omitempty"`
	ResetTime  *time.Time `json:"reset_time,omitempty"`
	Blocked    bool       `json:"blocked"`
}
