package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// RequestStatus defines lifecycle states for access requests.
type RequestStatus string

const (
	// StatusPending indicates the request is awaiting review.
	StatusPending RequestStatus = "PENDING"
	// StatusApproved indicates the request was granted.
	StatusApproved RequestStatus = "APPROVED"
	// StatusRejected indicates the request was denied.
	StatusRejected RequestStatus = "REJECTED"
)

// Terminal reports whether no further transition is possible.
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Urgency is the requester-declared priority of a request.
type Urgency string

const (
	UrgencyLow      Urgency = "LOW"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

// Urgencies lists the accepted urgency values in display order.
var Urgencies = []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical}

// Valid reports whether u is one of the enumerated urgency levels.
func (u Urgency) Valid() bool {
	for _, v := range Urgencies {
		if u == v {
			return true
		}
	}
	return false
}

// StatusFilter selects which requests the approver list shows.
type StatusFilter string

const (
	FilterAll      StatusFilter = "ALL"
	FilterPending  StatusFilter = StatusFilter(StatusPending)
	FilterApproved StatusFilter = StatusFilter(StatusApproved)
	FilterRejected StatusFilter = StatusFilter(StatusRejected)
)

// StatusFilters lists the filter options in display order.
var StatusFilters = []StatusFilter{FilterAll, FilterPending, FilterApproved, FilterRejected}

// ParseStatusFilter maps user input to a filter, defaulting to FilterAll.
func ParseStatusFilter(raw string) StatusFilter {
	for _, f := range StatusFilters {
		if string(f) == raw {
			return f
		}
	}
	return FilterAll
}

// Status returns the status query value, empty for FilterAll.
func (f StatusFilter) Status() RequestStatus {
	if f == FilterAll {
		return ""
	}
	return RequestStatus(f)
}

// RequesterRef is the owning requester. The API sends either an embedded
// summary or a bare id string; both decode into this type.
type RequesterRef struct {
	UserSummary `yaml:",inline"`
	Embedded    bool `json:"-" yaml:"-"`
}

// UnmarshalJSON accepts both the object and the id-string form.
func (r *RequesterRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = RequesterRef{}
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("requester id: %w", err)
		}
		*r = RequesterRef{UserSummary: UserSummary{ID: id}}
		return nil
	}
	var summary UserSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return fmt.Errorf("requester summary: %w", err)
	}
	*r = RequesterRef{UserSummary: summary, Embedded: true}
	return nil
}

// MarshalJSON writes the same shape that was received.
func (r RequesterRef) MarshalJSON() ([]byte, error) {
	if !r.Embedded {
		return json.Marshal(r.ID)
	}
	return json.Marshal(r.UserSummary)
}

// DisplayName is the requester name, or "User" when only an id is known.
func (r RequesterRef) DisplayName() string {
	if r.Embedded && r.Name != "" {
		return r.Name
	}
	return "User"
}

// AccessRequest is a single request for access.
type AccessRequest struct {
	ID              string        `json:"_id" yaml:"id"`
	Requester       RequesterRef  `json:"requester" yaml:"requester"`
	AccessType      string        `json:"accessType" yaml:"access_type"`
	Reason          string        `json:"reason" yaml:"reason"`
	Urgency         Urgency       `json:"urgency" yaml:"urgency"`
	Status          RequestStatus `json:"status" yaml:"status"`
	ReviewedBy      *UserSummary  `json:"reviewedBy" yaml:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time    `json:"reviewedAt" yaml:"reviewed_at,omitempty"`
	RejectionReason *string       `json:"rejectionReason" yaml:"rejection_reason,omitempty"`
	CreatedAt       time.Time     `json:"createdAt" yaml:"created_at"`
	UpdatedAt       time.Time     `json:"updatedAt" yaml:"updated_at"`
}

// Pending reports whether the request still awaits review.
func (r AccessRequest) Pending() bool {
	return r.Status == StatusPending
}

// RejectionText returns the rejection reason for rejected requests only.
func (r AccessRequest) RejectionText() string {
	if r.Status != StatusRejected || r.RejectionReason == nil {
		return ""
	}
	return *r.RejectionReason
}

// DashboardStats is the server-computed aggregate for the approver view.
type DashboardStats struct {
	Total    int `json:"total" yaml:"total"`
	Pending  int `json:"pending" yaml:"pending"`
	Approved int `json:"approved" yaml:"approved"`
	Rejected int `json:"rejected" yaml:"rejected"`
}

// Pagination accompanies list responses.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// RequestList is the data of the list endpoints.
type RequestList struct {
	Requests   []AccessRequest `json:"requests"`
	Pagination Pagination      `json:"pagination"`
}

// ListQuery holds the optional list query parameters.
type ListQuery struct {
	Status RequestStatus
	Page   int
	Limit  int
}

// CreateAccessRequestPayload is the body of POST /access-requests.
type CreateAccessRequestPayload struct {
	AccessType string  `json:"accessType"`
	Reason     string  `json:"reason"`
	Urgency    Urgency `json:"urgency"`
}

// RejectPayload is the body of PATCH /access-requests/:id/reject.
type RejectPayload struct {
	RejectionReason string `json:"rejectionReason"`
}
