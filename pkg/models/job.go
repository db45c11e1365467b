package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// VerifyPayload is the provider-specific query a user submitted. Serial/PIN
// providers fill CardSerial+CardPIN; token providers fill Token. PortalURL
// overrides the configured portal for this one job when set.
type VerifyPayload struct {
	ExamYear   string `json:"exam_year"`
	ExamType   string `json:"exam_type"`
	RegNumber  string `json:"reg_number"`
	CardSerial string `json:"card_serial,omitempty"`
	CardPIN    string `json:"card_pin,omitempty"`
	Token      string `json:"token,omitempty"`
	PortalURL  string `json:"portal_url,omitempty"`
}

// Job is one unit of requested verification work. It is the durable audit
// record: rows are never deleted, only moved along
// pending -> processing -> {completed, failed}, with processing -> pending
// allowed only for a transient infrastructure failure with retries left.
type Job struct {
	ID           uuid.UUID     `db:"id"            json:"id"`
	UserID       uuid.UUID     `db:"user_id"       json:"user_id"`
	Provider     string        `db:"provider"      json:"provider"`
	RequestID    *uuid.UUID    `db:"request_id"    json:"request_id,omitempty"`
	Payload      VerifyPayload `db:"payload"       json:"payload"`
	Status       string        `db:"status"        json:"status"`
	RetryCount   int           `db:"retry_count"   json:"retry_count"`
	MaxRetries   int           `db:"max_retries"   json:"max_retries"`
	Priority     int           `db:"priority"      json:"priority"`
	Result       *Outcome      `db:"result"        json:"result,omitempty"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time    `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time    `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time     `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"    json:"updated_at"`
}

// RetriesRemaining reports whether another attempt is allowed after a
// transient failure.
func (j *Job) RetriesRemaining() bool {
	return j.RetryCount < j.MaxRetries
}
