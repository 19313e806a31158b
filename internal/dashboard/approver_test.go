package dashboard

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"armp/internal/models"
	"armp/internal/testutil"
	"armp/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approverFixture(t *testing.T) (*testutil.FakeAPI, *Approver, models.AccessRequest) {
	t.Helper()
	api := testutil.NewFakeAPI(t)
	requester := api.AddUser(models.RoleRequester, "SecurePass1!")
	approver := api.AddUser(models.RoleApprover, "SecurePass1!")
	pending := api.AddRequest(requester, models.StatusPending)
	api.AddRequest(requester, models.StatusApproved)

	a := NewApprover(clientFor(t, api, approver), Options{})
	require.NoError(t, a.Mount(context.Background(), models.FilterAll))
	api.ResetCalls()
	return api, a, pending
}

func TestApproverMountLoadsListAndStats(t *testing.T) {
	_, a, _ := approverFixture(t)
	st := a.State()
	assert.Equal(t, Loaded, st.View)
	assert.Equal(t, models.FilterAll, st.Filter)
	assert.Len(t, st.Requests, 2)
	require.NotNil(t, st.Stats)
	assert.Equal(t, models.DashboardStats{Total: 2, Pending: 1, Approved: 1}, *st.Stats)
	assert.False(t, st.StatsLoading)
}

func TestApproverFilter(t *testing.T) {
	api, a, pending := approverFixture(t)
	ctx := context.Background()

	require.NoError(t, a.SetFilter(ctx, models.FilterPending))
	calls := api.CallsTo(http.MethodGet, "/access-requests")
	require.Len(t, calls, 1)
	assert.Equal(t, "status=PENDING", calls[0].Query)
	require.Len(t, a.State().Requests, 1)
	assert.Equal(t, pending.ID, a.State().Requests[0].ID)
	assert.Empty(t, api.CallsTo(http.MethodGet, "/access-requests/stats"), "filter changes reload the list only")

	api.ResetCalls()
	require.NoError(t, a.SetFilter(ctx, models.FilterAll))
	calls = api.CallsTo(http.MethodGet, "/access-requests")
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Query)
}

func TestApproverRejectScenario(t *testing.T) {
	api, a, pending := approverFixture(t)
	ctx := context.Background()

	require.NoError(t, a.OpenReject(pending.ID))
	require.NotNil(t, a.State().RejectTarget)
	require.NoError(t, a.ConfirmReject(ctx, "No budget"))

	patch := api.CallsTo(http.MethodPatch, "/access-requests/"+pending.ID+"/reject")
	require.Len(t, patch, 1)
	assert.JSONEq(t, `{"rejectionReason":"No budget"}`, patch[0].Body)
	assert.Len(t, api.CallsTo(http.MethodGet, "/access-requests"), 1)
	assert.Len(t, api.CallsTo(http.MethodGet, "/access-requests/stats"), 1)

	st := a.State()
	assert.Nil(t, st.RejectTarget)
	assert.Empty(t, st.RejectForm.RejectionReason)
	assert.Equal(t, 1, st.Stats.Rejected)
	assert.Empty(t, st.InFlight)
}

func TestApproverRejectValidation(t *testing.T) {
	api, a, pending := approverFixture(t)
	require.NoError(t, a.OpenReject(pending.ID))

	err := a.ConfirmReject(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Rejection reason must be at least 5 characters", a.State().RejectErrors[validation.FieldRejectionReason])
	assert.Empty(t, api.Calls())
	assert.NotNil(t, a.State().RejectTarget)
}

func TestApproverRejectFailureKeepsModalOpen(t *testing.T) {
	api, a, pending := approverFixture(t)
	require.NoError(t, a.OpenReject(pending.ID))

	api.Fail(http.MethodPatch, "/access-requests/"+pending.ID+"/reject", http.StatusInternalServerError, "")
	require.Error(t, a.ConfirmReject(context.Background(), "Not justified"))

	st := a.State()
	assert.Equal(t, "Failed to reject", st.Error)
	require.NotNil(t, st.RejectTarget)
	assert.Equal(t, pending.ID, st.RejectTarget.ID)
	assert.Equal(t, "Not justified", st.RejectForm.RejectionReason)

	a.CloseReject()
	assert.Nil(t, a.State().RejectTarget)
}

func TestApproverRejectWithoutTarget(t *testing.T) {
	_, a, _ := approverFixture(t)
	assert.ErrorIs(t, a.ConfirmReject(context.Background(), "Not justified"), ErrNoRejectTarget)
	assert.ErrorIs(t, a.OpenReject("missing"), ErrUnknownRequest)
}

func TestApproverApprove(t *testing.T) {
	api, a, pending := approverFixture(t)
	require.NoError(t, a.Approve(context.Background(), pending.ID))

	assert.Len(t, api.CallsTo(http.MethodPatch, "/access-requests/"+pending.ID+"/approve"), 1)
	assert.Len(t, api.CallsTo(http.MethodGet, "/access-requests"), 1)
	assert.Len(t, api.CallsTo(http.MethodGet, "/access-requests/stats"), 1)
	assert.Equal(t, 2, a.State().Stats.Approved)

	// Approving again surfaces the server message.
	require.Error(t, a.Approve(context.Background(), pending.ID))
	assert.Equal(t, "Request has already been processed", a.State().Error)
}

func TestApproverStatsFailureIsAbsorbed(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	approver := api.AddUser(models.RoleApprover, "SecurePass1!")
	api.Fail(http.MethodGet, "/access-requests/stats", http.StatusInternalServerError, "boom")

	a := NewApprover(clientFor(t, api, approver), Options{})
	require.NoError(t, a.Mount(context.Background(), models.FilterAll))

	st := a.State()
	assert.Nil(t, st.Stats)
	assert.Empty(t, st.Error)
	assert.Equal(t, Loaded, st.View)
}

func TestApproverListFailure(t *testing.T) {
	api, a, _ := approverFixture(t)
	api.Fail(http.MethodGet, "/access-requests", http.StatusInternalServerError, "boom")

	require.Error(t, a.Refresh(context.Background()))
	st := a.State()
	assert.Equal(t, Failed, st.View)
	assert.Equal(t, "Failed to load requests", st.Error)
}

func TestApproverCreateApprover(t *testing.T) {
	api, a, _ := approverFixture(t)
	ctx := context.Background()
	a.OpenCreateApprover()
	assert.True(t, a.State().CreateOpen)

	form := validation.RegisterForm{
		Name: "New Approver", Email: "new.approver@example.com",
		Password: "SecurePass1!", ConfirmPassword: "SecurePass1!",
	}
	require.NoError(t, a.CreateApprover(ctx, form))

	st := a.State()
	assert.Equal(t, "Approver account created for new.approver@example.com", st.CreateSuccess)
	assert.Empty(t, st.CreateForm.Email)
	calls := api.CallsTo(http.MethodPost, "/auth/register")
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"name":"New Approver","email":"new.approver@example.com","password":"SecurePass1!","role":"APPROVER"}`, calls[0].Body)

	// Same email again: the server message is scoped to the dialog.
	require.Error(t, a.CreateApprover(ctx, form))
	st = a.State()
	assert.Equal(t, "User with this email already exists", st.CreateError)
	assert.Empty(t, st.CreateSuccess)
	assert.Empty(t, st.Error)
	assert.Equal(t, form.Email, st.CreateForm.Email)

	a.CloseCreateApprover()
	st = a.State()
	assert.False(t, st.CreateOpen)
	assert.Empty(t, st.CreateError)
}

func TestApproverCreateApproverValidation(t *testing.T) {
	api, a, _ := approverFixture(t)
	err := a.CreateApprover(context.Background(), validation.RegisterForm{
		Name: "A", Email: "bad", Password: "weak", ConfirmPassword: "other",
	})
	assert.ErrorIs(t, err, ErrValidation)
	errs := a.State().CreateErrors
	assert.Len(t, errs, 4)
	assert.Empty(t, api.Calls())
}

// blockingApproveAPI parks Approve until release is closed.
type blockingApproveAPI struct {
	ApproverAPI
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingApproveAPI) Approve(context.Context, string) (models.AccessRequest, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return models.AccessRequest{}, nil
}

func (b *blockingApproveAPI) AllRequests(context.Context, models.ListQuery) (models.RequestList, error) {
	return models.RequestList{}, nil
}

func (b *blockingApproveAPI) Stats(context.Context) (models.DashboardStats, error) {
	return models.DashboardStats{}, nil
}

func TestApproverRejectsDuplicateRowAction(t *testing.T) {
	api := &blockingApproveAPI{entered: make(chan struct{}), release: make(chan struct{})}
	a := NewApprover(api, Options{})

	done := make(chan error, 1)
	go func() { done <- a.Approve(context.Background(), "R1") }()
	<-api.entered

	assert.True(t, a.State().Busy("R1"))
	assert.ErrorIs(t, a.Approve(context.Background(), "R1"), ErrActionInFlight)

	close(api.release)
	require.NoError(t, <-done)
	assert.False(t, a.State().Busy("R1"))
}

func TestApproverUnauthorizedInvalidates(t *testing.T) {
	api, a, _ := approverFixture(t)
	calls := 0
	a.opts.OnUnauthorized = func(context.Context) { calls++ }

	api.RevokeTokens()
	require.Error(t, a.Refresh(context.Background()))
	assert.Equal(t, 1, calls)
}
