package validation

import (
	"regexp"
	"unicode/utf8"

	"armp/internal/models"
)

// Form field names, matching the HTML input names.
const (
	FieldName            = "name"
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirmPassword"
	FieldAccessType      = "accessType"
	FieldReason          = "reason"
	FieldUrgency         = "urgency"
	FieldRejectionReason = "rejectionReason"
)

const (
	minPasswordLen        = 8
	minNameLen            = 2
	maxNameLen            = 50
	maxAccessTypeLen      = 100
	minReasonLen          = 10
	maxReasonLen          = 500
	minRejectionReasonLen = 5
	maxRejectionReasonLen = 500
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// LoginForm is the login page input.
type LoginForm struct {
	Email    string `form:"email"`
	Password string `form:"password"`
}

// RegisterForm is shared by self-registration and the create-approver dialog.
type RegisterForm struct {
	Name            string `form:"name"`
	Email           string `form:"email"`
	Password        string `form:"password"`
	ConfirmPassword string `form:"confirmPassword"`
}

// AccessRequestForm is the requester's new-request input.
type AccessRequestForm struct {
	AccessType string `form:"accessType"`
	Reason     string `form:"reason"`
	Urgency    string `form:"urgency"`
}

// RejectionForm is the approver's reject-modal input.
type RejectionForm struct {
	RejectionReason string `form:"rejectionReason"`
}

// Login validates the login form.
func Login(f LoginForm) Result {
	var r Result
	r.add(FieldEmail, email(f.Email))
	switch {
	case f.Password == "":
		r.add(FieldPassword, "Password is required")
	case length(f.Password) < minPasswordLen:
		r.add(FieldPassword, "Password must be at least 8 characters")
	}
	return r
}

// Register validates the registration and create-approver form.
func Register(f RegisterForm) Result {
	var r Result
	switch n := length(f.Name); {
	case n == 0:
		r.add(FieldName, "Name is required")
	case n < minNameLen:
		r.add(FieldName, "Name must be at least 2 characters")
	case n > maxNameLen:
		r.add(FieldName, "Name must not exceed 50 characters")
	}
	r.add(FieldEmail, email(f.Email))
	r.add(FieldPassword, Password(f.Password))
	switch {
	case f.ConfirmPassword == "":
		r.add(FieldConfirmPassword, "Please confirm your password")
	case f.ConfirmPassword != f.Password:
		r.add(FieldConfirmPassword, "Passwords do not match")
	}
	return r
}

// AccessRequest validates a new access request.
func AccessRequest(f AccessRequestForm) Result {
	var r Result
	switch n := length(f.AccessType); {
	case n == 0:
		r.add(FieldAccessType, "Access type is required")
	case n > maxAccessTypeLen:
		r.add(FieldAccessType, "Access type must not exceed 100 characters")
	}
	switch n := length(f.Reason); {
	case n < minReasonLen:
		r.add(FieldReason, "Reason must be at least 10 characters")
	case n > maxReasonLen:
		r.add(FieldReason, "Reason must not exceed 500 characters")
	}
	if !models.Urgency(f.Urgency).Valid() {
		r.add(FieldUrgency, "Please select urgency level")
	}
	return r
}

// Rejection validates the reason entered in the reject modal.
func Rejection(f RejectionForm) Result {
	var r Result
	switch n := length(f.RejectionReason); {
	case n == 0:
		r.add(FieldRejectionReason, "Rejection reason is required")
	case n < minRejectionReasonLen:
		r.add(FieldRejectionReason, "Rejection reason must be at least 5 characters")
	case n > maxRejectionReasonLen:
		r.add(FieldRejectionReason, "Rejection reason must not exceed 500 characters")
	}
	return r
}

func email(v string) string {
	if v == "" {
		return "Email is required"
	}
	if !emailRegex.MatchString(v) {
		return "Please enter a valid email address"
	}
	return ""
}

// length counts characters rather than bytes.
func length(s string) int {
	return utf8.RuneCountInString(s)
}
