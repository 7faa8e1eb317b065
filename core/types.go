package core

import (
	"errors"
	"time"
)

// Window is the rolling accounting period for a client's credits.
const Window = 7 * 24 * time.Hour

// DefaultLimit is the number of credits granted per window when no
// explicit limit is configured.
const DefaultLimit = 5

// UsageRecord tracks one client's consumption in its current window.
// WeekStart is seconds since epoch; it only ever moves forward.
type UsageRecord struct {
	ID        string `json:"id"`
	Count     int    `json:"count"`
	WeekStart int64  `json:"week_start"`
}

// ResetAt returns the moment this record's window rolls over.
func (r UsageRecord) ResetAt() int64 {
	return r.WeekStart + int64(Window/time.Second)
}

type Status string

const (
	StatusSuccess      Status = "success"
	StatusLimitReached Status = "limit_reached"
)

// CreditStatus is the result of a non-consuming credit check.
type CreditStatus struct {
	CreditsRemaining int   `json:"credits_remaining"`
	LimitReached     bool  `json:"limit_reached"`
	ResetTimestamp   int64 `json:"reset_timestamp"`
}

// UseResult is the result of a credit consumption attempt. A
// limit_reached result is a defined outcome, not an error.
type UseResult struct {
	Status           Status `json:"status"`
	CreditsRemaining int    `json:"credits_remaining"`
	ResetTimestamp   int64  `json:"reset_timestamp,omitempty"`
}

var (
	ErrEmptyIdentifier  = errors.New("client identifier is required")
	ErrDocumentNotFound = errors.New("usage document not found")
	ErrNoKeys           = errors.New("no API keys configured")
	ErrKeysExhausted    = errors.New("all API keys exhausted")
)
