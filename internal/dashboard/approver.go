package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"armp/internal/apiclient"
	"armp/internal/models"
	"armp/internal/observability"
	"armp/internal/validation"

	"golang.org/x/sync/errgroup"
)

const (
	loadAllFailedMessage        = "Failed to load requests"
	approveFailedMessage        = "Failed to approve"
	rejectFailedMessage         = "Failed to reject"
	createApproverFailedMessage = "Failed to create approver"
)

// ApproverState is a snapshot of the approver dashboard.
type ApproverState struct {
	View     ViewState
	Requests []models.AccessRequest
	Error    string
	Filter   models.StatusFilter

	// Stats is nil until the first successful fetch; failures keep the
	// previous value.
	Stats        *models.DashboardStats
	StatsLoading bool

	InFlight map[string]bool

	RejectTarget *models.AccessRequest
	RejectForm   validation.RejectionForm
	RejectErrors map[string]string

	CreateOpen    bool
	CreateForm    validation.RegisterForm
	CreateErrors  map[string]string
	CreateError   string
	CreateSuccess string
	Creating      bool
}

// Busy reports whether an action on row id is in flight.
func (s ApproverState) Busy(id string) bool {
	return s.InFlight[id]
}

// Approver is the dashboard of an APPROVER: every request, the stats panel,
// the reject modal and the create-approver dialog.
type Approver struct {
	api  ApproverAPI
	opts Options

	mu sync.Mutex
	st ApproverState
}

// NewApprover returns an idle dashboard showing all statuses.
func NewApprover(api ApproverAPI, opts Options) *Approver {
	return &Approver{
		api:  api,
		opts: opts,
		st:   newApproverState(models.FilterAll),
	}
}

func newApproverState(filter models.StatusFilter) ApproverState {
	return ApproverState{Filter: filter, InFlight: make(map[string]bool)}
}

// State returns a copy of the current state.
func (a *Approver) State() ApproverState {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.st
	st.Requests = slices.Clone(a.st.Requests)
	st.RejectErrors = copyMap(a.st.RejectErrors)
	st.CreateErrors = copyMap(a.st.CreateErrors)
	st.InFlight = make(map[string]bool, len(a.st.InFlight))
	for id := range a.st.InFlight {
		st.InFlight[id] = true
	}
	if a.st.Stats != nil {
		stats := *a.st.Stats
		st.Stats = &stats
	}
	if a.st.RejectTarget != nil {
		target := *a.st.RejectTarget
		st.RejectTarget = &target
	}
	return st
}

// Mount resets the dashboard with filter selected and loads list and stats.
func (a *Approver) Mount(ctx context.Context, filter models.StatusFilter) error {
	a.mu.Lock()
	a.st = newApproverState(filter)
	a.mu.Unlock()
	return a.Refresh(ctx)
}

// Refresh refetches list and stats concurrently. Only a list failure is
// returned.
func (a *Approver) Refresh(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return a.loadList(ctx) })
	g.Go(func() error {
		a.loadStats(ctx)
		return nil
	})
	return g.Wait()
}

// SetFilter changes the status filter and reloads the list.
func (a *Approver) SetFilter(ctx context.Context, filter models.StatusFilter) error {
	a.mu.Lock()
	a.st.Filter = filter
	a.mu.Unlock()
	return a.loadList(ctx)
}

func (a *Approver) loadList(ctx context.Context) error {
	a.mu.Lock()
	a.st.View = Loading
	a.st.Error = ""
	filter := a.st.Filter
	a.mu.Unlock()

	list, err := a.api.AllRequests(ctx, models.ListQuery{Status: filter.Status(), Limit: a.opts.PageSize})

	a.mu.Lock()
	if a.st.Filter != filter {
		// A newer filter superseded this fetch.
		a.mu.Unlock()
		return nil
	}
	if err != nil {
		a.st.View = Failed
		a.st.Error = loadAllFailedMessage
		a.mu.Unlock()
		a.opts.checkAuth(ctx, err)
		return fmt.Errorf("load requests: %w", err)
	}
	requests := list.Requests
	if requests == nil {
		requests = []models.AccessRequest{}
	}
	a.st.Requests = requests
	a.st.View = Loaded
	a.mu.Unlock()
	return nil
}

func (a *Approver) loadStats(ctx context.Context) {
	a.mu.Lock()
	a.st.StatsLoading = true
	a.mu.Unlock()

	stats, err := a.api.Stats(ctx)

	a.mu.Lock()
	a.st.StatsLoading = false
	if err == nil {
		a.st.Stats = &stats
	}
	a.mu.Unlock()

	if err != nil {
		observability.Logger.DebugContext(ctx, "stats unavailable", slog.String("error", err.Error()))
	}
}

// begin marks id in flight, refusing a duplicate.
func (a *Approver) begin(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.st.InFlight[id] {
		return ErrActionInFlight
	}
	a.st.InFlight[id] = true
	return nil
}

func (a *Approver) end(id string) {
	a.mu.Lock()
	delete(a.st.InFlight, id)
	a.mu.Unlock()
}

// Approve approves request id and refetches list and stats.
func (a *Approver) Approve(ctx context.Context, id string) error {
	if err := a.begin(id); err != nil {
		return err
	}
	_, err := a.api.Approve(ctx, id)
	a.end(id)

	if err != nil {
		a.mu.Lock()
		a.st.Error = apiclient.Message(err, approveFailedMessage)
		a.mu.Unlock()
		a.opts.checkAuth(ctx, err)
		return fmt.Errorf("approve %s: %w", id, err)
	}
	_ = a.Refresh(ctx)
	return nil
}

// OpenReject opens the reject modal for a request in the loaded list.
func (a *Approver) OpenReject(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := slices.IndexFunc(a.st.Requests, func(r models.AccessRequest) bool { return r.ID == id })
	if i < 0 {
		return ErrUnknownRequest
	}
	target := a.st.Requests[i]
	a.st.RejectTarget = &target
	a.st.RejectForm = validation.RejectionForm{}
	a.st.RejectErrors = nil
	return nil
}

// CloseReject dismisses the reject modal.
func (a *Approver) CloseReject() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.st.RejectTarget = nil
	a.st.RejectForm = validation.RejectionForm{}
	a.st.RejectErrors = nil
}

// ConfirmReject rejects the selected request with reason. A remote failure
// keeps the modal open; success closes it and refetches list and stats.
func (a *Approver) ConfirmReject(ctx context.Context, reason string) error {
	form := validation.RejectionForm{RejectionReason: reason}
	res := validation.Rejection(form)

	a.mu.Lock()
	if a.st.RejectTarget == nil {
		a.mu.Unlock()
		return ErrNoRejectTarget
	}
	id := a.st.RejectTarget.ID
	a.st.RejectForm = form
	if !res.OK() {
		a.st.RejectErrors = res.Map()
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrValidation, res.Error())
	}
	a.st.RejectErrors = nil
	a.mu.Unlock()

	if err := a.begin(id); err != nil {
		return err
	}
	_, err := a.api.Reject(ctx, id, reason)
	a.end(id)

	if err != nil {
		a.mu.Lock()
		a.st.Error = apiclient.Message(err, rejectFailedMessage)
		a.mu.Unlock()
		a.opts.checkAuth(ctx, err)
		return fmt.Errorf("reject %s: %w", id, err)
	}

	a.CloseReject()
	_ = a.Refresh(ctx)
	return nil
}

// OpenCreateApprover shows the create-approver dialog with no messages.
func (a *Approver) OpenCreateApprover() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.st.CreateOpen = true
	a.st.CreateError = ""
	a.st.CreateSuccess = ""
}

// CloseCreateApprover hides the dialog and resets it.
func (a *Approver) CloseCreateApprover() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.st.CreateOpen = false
	a.st.CreateForm = validation.RegisterForm{}
	a.st.CreateErrors = nil
	a.st.CreateError = ""
	a.st.CreateSuccess = ""
}

// CreateApprover provisions a new APPROVER account. The caller's own session
// is not affected.
func (a *Approver) CreateApprover(ctx context.Context, form validation.RegisterForm) error {
	res := validation.Register(form)

	a.mu.Lock()
	a.st.CreateForm = form
	a.st.CreateError = ""
	a.st.CreateSuccess = ""
	if !res.OK() {
		a.st.CreateErrors = res.Map()
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrValidation, res.Error())
	}
	if a.st.Creating {
		a.mu.Unlock()
		return ErrActionInFlight
	}
	a.st.CreateErrors = nil
	a.st.Creating = true
	a.mu.Unlock()

	_, err := a.api.Register(ctx, models.RegisterPayload{
		Name:     form.Name,
		Email:    form.Email,
		Password: form.Password,
		Role:     models.RoleApprover,
	})

	a.mu.Lock()
	a.st.Creating = false
	if err != nil {
		a.st.CreateError = apiclient.Message(err, createApproverFailedMessage)
		a.mu.Unlock()
		a.opts.checkAuth(ctx, err)
		return fmt.Errorf("create approver: %w", err)
	}
	a.st.CreateSuccess = "Approver account created for " + form.Email
	a.st.CreateForm = validation.RegisterForm{}
	a.mu.Unlock()
	return nil
}
