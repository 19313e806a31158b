// Package models defines the data shapes exchanged with the access-request API.
package models

import "time"

// Role is the account role assigned by the remote API.
type Role string

const (
	// RoleRequester may create and view their own access requests.
	RoleRequester Role = "REQUESTER"
	// RoleApprover may review all requests and provision approver accounts.
	RoleApprover Role = "APPROVER"
)

// User is the authenticated account as returned by the API. The client treats
// it as read-only.
type User struct {
	ID        string    `json:"_id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Email     string    `json:"email" yaml:"email"`
	Role      Role      `json:"role" yaml:"role"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updated_at"`
}

// UserSummary is the embedded identity used for requesters and reviewers.
type UserSummary struct {
	ID    string `json:"_id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

// AuthData is the payload of successful login and register calls.
type AuthData struct {
	User        User   `json:"user"`
	AccessToken string `json:"accessToken"`
}

// LoginPayload is the body of POST /auth/login.
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterPayload is the body of POST /auth/register. Role is only sent by
// the create-approver flow; self-registration leaves it empty.
type RegisterPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role,omitempty"`
}
