// Package guard decides, from session state alone, whether a page may be
// shown, must wait for the session to resolve, or redirects elsewhere.
package guard

import (
	"slices"

	"armp/internal/models"
	"armp/internal/session"
)

// Paths the guards redirect to.
const (
	LoginPath     = "/login"
	RequesterPath = "/requester"
	ApproverPath  = "/approver"
)

// Action is the outcome of a guard.
type Action int

const (
	// Wait means the session is still loading.
	Wait Action = iota
	// Render means the page may be shown.
	Render
	// Redirect means the client must go to Decision.Location.
	Redirect
)

func (a Action) String() string {
	switch a {
	case Wait:
		return "wait"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is what a guard returns.
type Decision struct {
	Action   Action
	Location string
}

// HomePath is the dashboard for role.
func HomePath(role models.Role) string {
	if role == models.RoleApprover {
		return ApproverPath
	}
	return RequesterPath
}

// Guest guards pages meant for anonymous visitors (login, register).
func Guest(st session.State) Decision {
	switch {
	case st.Loading:
		return Decision{Action: Wait}
	case st.Authenticated():
		return Decision{Action: Redirect, Location: HomePath(st.User.Role)}
	default:
		return Decision{Action: Render}
	}
}

// Access guards authenticated pages. An empty allow-list admits any role.
// Role mismatches go to the login page rather than a forbidden page.
func Access(st session.State, allowed ...models.Role) Decision {
	switch {
	case st.Loading:
		return Decision{Action: Wait}
	case !st.Authenticated():
		return Decision{Action: Redirect, Location: LoginPath}
	case len(allowed) > 0 && !slices.Contains(allowed, st.User.Role):
		return Decision{Action: Redirect, Location: LoginPath}
	default:
		return Decision{Action: Render}
	}
}
