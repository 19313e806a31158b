// Package dashboard holds the view state of the requester and approver
// dashboards. Every mutation is one remote call followed by an
// unconditional refetch; nothing is merged locally.
package dashboard

import (
	"context"
	"errors"

	"armp/internal/apiclient"
	"armp/internal/models"
)

var (
	// ErrActionInFlight rejects a second action on a row that is still
	// being processed.
	ErrActionInFlight = errors.New("an action is already in progress for this request")
	// ErrPendingRequest refuses a new request form while one is pending.
	ErrPendingRequest = errors.New("you already have a pending request")
	// ErrValidation wraps field-level validation failures.
	ErrValidation = errors.New("validation failed")
	// ErrNoRejectTarget is returned when confirming a rejection with no
	// request selected.
	ErrNoRejectTarget = errors.New("no request selected for rejection")
	// ErrUnknownRequest is returned for ids not present in the loaded list.
	ErrUnknownRequest = errors.New("request not found in the current list")
)

// ViewState is the load state of a list.
type ViewState int

const (
	Idle ViewState = iota
	Loading
	Loaded
	Failed
)

func (v ViewState) String() string {
	switch v {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

// RequesterAPI is what the requester dashboard calls.
type RequesterAPI interface {
	MyRequests(ctx context.Context, q models.ListQuery) (models.RequestList, error)
	CreateRequest(ctx context.Context, payload models.CreateAccessRequestPayload) (models.AccessRequest, error)
}

// ApproverAPI is what the approver dashboard calls.
type ApproverAPI interface {
	AllRequests(ctx context.Context, q models.ListQuery) (models.RequestList, error)
	Stats(ctx context.Context) (models.DashboardStats, error)
	Approve(ctx context.Context, id string) (models.AccessRequest, error)
	Reject(ctx context.Context, id, reason string) (models.AccessRequest, error)
	Register(ctx context.Context, payload models.RegisterPayload) (models.AuthData, error)
}

// Options are shared by both dashboards.
type Options struct {
	// OnUnauthorized runs when the API answers 401, typically to invalidate
	// the session so the next guard evaluation redirects to login.
	OnUnauthorized func(ctx context.Context)
	// PageSize is sent as the list limit; zero leaves it to the server.
	PageSize int
}

func (o Options) checkAuth(ctx context.Context, err error) {
	if o.OnUnauthorized != nil && apiclient.IsUnauthorized(err) {
		o.OnUnauthorized(ctx)
	}
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
