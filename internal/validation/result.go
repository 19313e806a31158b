// Package validation provides the form rules shared by the web and terminal
// front ends. Rules never touch the network.
package validation

import "strings"

// FieldError is a single field-scoped message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result holds the outcome of validating one form. A zero Result is valid.
type Result struct {
	Errors []FieldError `json:"errors,omitempty"`
}

// OK reports whether no rule failed.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// For returns the message recorded for field, or "".
func (r Result) For(field string) string {
	for _, e := range r.Errors {
		if e.Field == field {
			return e.Message
		}
	}
	return ""
}

// Map returns messages keyed by field, for template lookups.
func (r Result) Map() map[string]string {
	out := make(map[string]string, len(r.Errors))
	for _, e := range r.Errors {
		out[e.Field] = e.Message
	}
	return out
}

// Error joins all messages so a Result can be reported as an error.
func (r Result) Error() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return strings.Join(msgs, "; ")
}

// add records msg for field unless msg is empty. Only the first failing rule
// of a field is kept.
func (r *Result) add(field, msg string) {
	if msg == "" || r.For(field) != "" {
		return
	}
	r.Errors = append(r.Errors, FieldError{Field: field, Message: msg})
}
