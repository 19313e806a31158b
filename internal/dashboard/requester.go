package dashboard

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"armp/internal/apiclient"
	"armp/internal/models"
	"armp/internal/validation"
)

const (
	loadOwnFailedMessage = "Failed to load your requests"
	submitFailedMessage  = "Failed to submit request"
)

// RequesterState is a snapshot of the requester dashboard.
type RequesterState struct {
	View              ViewState
	Requests          []models.AccessRequest
	Error             string
	FormOpen          bool
	Form              validation.AccessRequestForm
	FieldErrors       map[string]string
	FormError         string
	Submitting        bool
	HasPendingRequest bool
}

// Requester is the dashboard of a REQUESTER: their own requests and the
// new-request form.
type Requester struct {
	api  RequesterAPI
	opts Options

	mu sync.Mutex
	st RequesterState
}

// NewRequester returns an idle dashboard.
func NewRequester(api RequesterAPI, opts Options) *Requester {
	return &Requester{
		api:  api,
		opts: opts,
		st:   RequesterState{Form: defaultRequestForm()},
	}
}

func defaultRequestForm() validation.AccessRequestForm {
	return validation.AccessRequestForm{Urgency: string(models.UrgencyMedium)}
}

// State returns a copy of the current state.
func (r *Requester) State() RequesterState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.st
	st.Requests = slices.Clone(r.st.Requests)
	st.FieldErrors = copyMap(r.st.FieldErrors)
	return st
}

// Mount resets the dashboard to a freshly shown view and loads the list.
func (r *Requester) Mount(ctx context.Context) error {
	r.mu.Lock()
	r.st = RequesterState{Form: defaultRequestForm()}
	r.mu.Unlock()
	return r.Refresh(ctx)
}

// Refresh refetches the user's requests, replacing the list.
func (r *Requester) Refresh(ctx context.Context) error {
	r.mu.Lock()
	r.st.View = Loading
	r.st.Error = ""
	r.mu.Unlock()

	list, err := r.api.MyRequests(ctx, models.ListQuery{Limit: r.opts.PageSize})

	r.mu.Lock()
	if err != nil {
		r.st.View = Failed
		r.st.Error = loadOwnFailedMessage
		r.mu.Unlock()
		r.opts.checkAuth(ctx, err)
		return fmt.Errorf("load own requests: %w", err)
	}
	requests := list.Requests
	if requests == nil {
		requests = []models.AccessRequest{}
	}
	r.st.Requests = requests
	r.st.HasPendingRequest = slices.ContainsFunc(requests, models.AccessRequest.Pending)
	r.st.View = Loaded
	r.mu.Unlock()
	return nil
}

// OpenForm shows the new-request form unless a request is already pending.
func (r *Requester) OpenForm() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.st.HasPendingRequest {
		return ErrPendingRequest
	}
	r.st.FormOpen = true
	return nil
}

// CloseForm hides the form and discards its values and errors.
func (r *Requester) CloseForm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.FormOpen = false
	r.st.Form = defaultRequestForm()
	r.st.FieldErrors = nil
	r.st.FormError = ""
}

// Submit validates and sends a new request. Invalid input never reaches the
// network. A remote failure keeps the form open with its values; success
// closes it and refetches the list.
func (r *Requester) Submit(ctx context.Context, form validation.AccessRequestForm) error {
	res := validation.AccessRequest(form)

	r.mu.Lock()
	r.st.Form = form
	if !res.OK() {
		r.st.FieldErrors = res.Map()
		r.st.FormError = ""
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrValidation, res.Error())
	}
	if r.st.Submitting {
		r.mu.Unlock()
		return ErrActionInFlight
	}
	r.st.Submitting = true
	r.st.FieldErrors = nil
	r.st.FormError = ""
	r.mu.Unlock()

	_, err := r.api.CreateRequest(ctx, models.CreateAccessRequestPayload{
		AccessType: form.AccessType,
		Reason:     form.Reason,
		Urgency:    models.Urgency(form.Urgency),
	})

	r.mu.Lock()
	r.st.Submitting = false
	if err != nil {
		r.st.FormError = apiclient.Message(err, submitFailedMessage)
		r.mu.Unlock()
		r.opts.checkAuth(ctx, err)
		return fmt.Errorf("submit request: %w", err)
	}
	r.st.FormOpen = false
	r.st.Form = defaultRequestForm()
	r.mu.Unlock()

	// The submission stands even if the refetch fails; the list error is
	// carried in State.
	_ = r.Refresh(ctx)
	return nil
}
