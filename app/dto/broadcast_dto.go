package dto

import (
	"time"
)

// CreateBroadcastRequest represents the request to create a new broadcast
type CreateBroadcastRequest struct {
	CustomerID   uint       `json:"-"`
	Title        *string    `json:"title,omitempty"`
	FromDate     *time.Time `json:"from_date,omitempty"`
	ToDate       *time.Time `json:"to_date,omitempty"`
	Weekdays     []string   `json:"weekdays,omitempty"`
	StartTime    *string    `json:"start_time,omitempty"`
	EndTime      *string    `json:"end_time,omitempty"`
	Timezone     *string    `json:"timezone,omitempty"`
	LineNumberID *uint      `json:"line_number_id,omitempty"`
}

// CreateBroadcastResponse represents the response to create a new broadcast
type CreateBroadcastResponse struct {
	Message   string `json:"message"`
	UUID      string `json:"uuid"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// AddSettingRequest represents the request to append a sequence step
type AddSettingRequest struct {
	BroadcastUUID string  `json:"-"`
	CustomerID    uint    `json:"-"`
	Type          *string `json:"type,omitempty"`
	Day           *int    `json:"day,omitempty"`
	Time          *string `json:"time,omitempty"`
	Content       *string `json:"content,omitempty"`
}

// AddSettingResponse represents the response to append a sequence step
type AddSettingResponse struct {
	Message  string `json:"message"`
	ID       uint   `json:"id"`
	Priority int    `json:"priority"`
}

// DeleteSettingRequest represents the request to soft-delete a sequence step
type DeleteSettingRequest struct {
	BroadcastUUID string `json:"-"`
	CustomerID    uint   `json:"-"`
	SettingID     uint   `json:"-"`
}

// DeleteSettingResponse represents the response to soft-delete a sequence step
type DeleteSettingResponse struct {
	Message string `json:"message"`
}

// SubmitControlRequest represents the request to enqueue a control action.
// ContactID is nil for broadcast-scoped requests.
type SubmitControlRequest struct {
	BroadcastUUID string  `json:"-"`
	CustomerID    uint    `json:"-"`
	ContactID     *uint   `json:"-"`
	Action        *string `json:"action,omitempty"`
}

// SubmitControlResponse represents the response to enqueue a control action
type SubmitControlResponse struct {
	Message   string `json:"message"`
	RequestID uint   `json:"request_id"`
	Status    string `json:"status"`
}

// RegisterSourceRequest represents the request to register a bulk enrollment source
type RegisterSourceRequest struct {
	BroadcastUUID string  `json:"-"`
	CustomerID    uint    `json:"-"`
	Type          *string `json:"type,omitempty"`
	SourceRef     *string `json:"source_ref,omitempty"`
}

// RegisterSourceResponse represents the response to register a bulk enrollment source
type RegisterSourceResponse struct {
	Message  string `json:"message"`
	SourceID uint   `json:"source_id"`
	Status   string `json:"status"`
}
