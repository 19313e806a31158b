package server

import (
	"errors"
	"log/slog"

	"armp/internal/apiclient"
	"armp/internal/dashboard"
	"armp/internal/guard"
	"armp/internal/models"
	"armp/internal/observability"
	"armp/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// failureStatus maps a dashboard action error to the status of the page
// re-rendered in response.
func failureStatus(err error) int {
	var apiErr *apiclient.Error
	switch {
	case errors.Is(err, dashboard.ErrValidation):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, dashboard.ErrActionInFlight), errors.Is(err, dashboard.ErrPendingRequest):
		return fiber.StatusConflict
	case errors.Is(err, dashboard.ErrUnknownRequest), errors.Is(err, dashboard.ErrNoRejectTarget):
		return fiber.StatusNotFound
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		return apiErr.StatusCode
	default:
		return fiber.StatusBadGateway
	}
}

func logAction(c *fiber.Ctx, action string, err error) {
	observability.Logger.InfoContext(c.UserContext(), "dashboard action failed",
		slog.String("action", action),
		slog.String("error", err.Error()),
	)
}

// --- requester ---

// RequesterDashboard shows the caller's requests, loading them on first view
// and refetching on every later one.
func (s *Server) RequesterDashboard(c *fiber.Ctx) error {
	req, _ := current(c).dashboards()
	var err error
	if req.State().View == dashboard.Idle {
		err = req.Mount(c.UserContext())
	} else {
		err = req.Refresh(c.UserContext())
	}
	if err != nil {
		logAction(c, "load_own_requests", err)
		if signedOut(c) {
			return c.Redirect(guard.LoginPath, fiber.StatusSeeOther)
		}
	}
	return s.renderRequester(c, fiber.StatusOK, "")
}

// OpenRequestForm shows the new-request form.
func (s *Server) OpenRequestForm(c *fiber.Ctx) error {
	req, _ := current(c).dashboards()
	if err := req.OpenForm(); err != nil {
		return s.renderRequester(c, failureStatus(err), dashboard.PendingNotice)
	}
	return c.Redirect(guard.RequesterPath, fiber.StatusSeeOther)
}

// CloseRequestForm hides and resets the form.
func (s *Server) CloseRequestForm(c *fiber.Ctx) error {
	req, _ := current(c).dashboards()
	req.CloseForm()
	return c.Redirect(guard.RequesterPath, fiber.StatusSeeOther)
}

// SubmitRequest creates an access request from the form.
func (s *Server) SubmitRequest(c *fiber.Ctx) error {
	var form validation.AccessRequestForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid form body")
	}

	req, _ := current(c).dashboards()
	if err := req.Submit(c.UserContext(), form); err != nil {
		logAction(c, "submit_request", err)
		if signedOut(c) {
			return c.Redirect(guard.LoginPath, fiber.StatusSeeOther)
		}
		return s.renderRequester(c, failureStatus(err), "")
	}
	return c.Redirect(guard.RequesterPath, fiber.StatusSeeOther)
}

func (s *Server) renderRequester(c *fiber.Ctx, status int, notice string) error {
	bs := current(c)
	st := bs.store.State()
	if !st.Authenticated() {
		return c.Redirect(guard.LoginPath, fiber.StatusSeeOther)
	}
	req, _ := bs.dashboards()
	return s.render(c, status, pageRequester, requesterPage{
		User:      *st.User,
		State:     req.State(),
		Urgencies: models.Urgencies,
		Notice:    notice,
	})
}

// --- approver ---

// ApproverDashboard shows all requests for the status filter in the query
// string plus the stats panel.
func (s *Server) ApproverDashboard(c *fiber.Ctx) error {
	filter := models.ParseStatusFilter(c.Query("status"))
	_, appr := current(c).dashboards()

	var err error
	switch st := appr.State(); {
	case st.View == dashboard.Idle:
		err = appr.Mount(c.UserContext(), filter)
	case st.Filter != filter:
		err = appr.SetFilter(c.UserContext(), filter)
	default:
		err = appr.Refresh(c.UserContext())
	}
	if err != nil {
		logAction(c, "load_requests", err)
		if signedOut(c) {
			return c.Redirect(guard.LoginPath, fiber.StatusSeeOther)
		}
	}
	return s.renderApprover(c, fiber.StatusOK, "")
}

// Approve approves the request in the path.
func (s *Server) Approve(c *fiber.Ctx) error {
	_, appr := current(c).dashboards()
	if err := appr.Approve(c.UserContext(), c.Params("id")); err != nil {
		return s.approverFailure(c, "approve", err)
	}
	return s.backToApprover(c)
}

// OpenReject opens the reject modal for the request in the path.
func (s *Server) OpenReject(c *fiber.Ctx) error {
	_, appr := current(c).dashboards()
	if err := appr.OpenReject(c.Params("id")); err != nil {
		return s.approverFailure(c, "open_reject", err)
	}
	return s.backToApprover(c)
}

// CloseReject dismisses the reject modal.
func (s *Server) CloseReject(c *fiber.Ctx) error {
	_, appr := current(c).dashboards()
	appr.CloseReject()
	return s.backToApprover(c)
}

// ConfirmReject rejects the request in the path with the submitted reason.
// Posting directly, without opening the modal first, selects the request.
func (s *Server) ConfirmReject(c *fiber.Ctx) error {
	var form validation.RejectionForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid form body")
	}

	id := c.Params("id")
	_, appr := current(c).dashboards()
	if target := appr.State().RejectTarget; target == nil || target.ID != id {
		if err := appr.OpenReject(id); err != nil {
			return s.approverFailure(c, "reject", err)
		}
	}
	if err := appr.ConfirmReject(c.UserContext(), form.RejectionReason); err != nil {
		return s.approverFailure(c, "reject", err)
	}
	return s.backToApprover(c)
}

// OpenCreateApprover shows the create-approver dialog.
func (s *Server) OpenCreateApprover(c *fiber.Ctx) error {
	_, appr := current(c).dashboards()
	appr.OpenCreateApprover()
	return s.backToApprover(c)
}

// CloseCreateApprover hides and resets the dialog.
func (s *Server) CloseCreateApprover(c *fiber.Ctx) error {
	_, appr := current(c).dashboards()
	appr.CloseCreateApprover()
	return s.backToApprover(c)
}

// CreateApprover provisions an APPROVER account. The dialog stays open to
// show the outcome.
func (s *Server) CreateApprover(c *fiber.Ctx) error {
	var form validation.RegisterForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid form body")
	}

	_, appr := current(c).dashboards()
	if err := appr.CreateApprover(c.UserContext(), form); err != nil {
		return s.approverFailure(c, "create_approver", err)
	}
	return s.backToApprover(c)
}

func (s *Server) approverFailure(c *fiber.Ctx, action string, err error) error {
	logAction(c, action, err)
	if signedOut(c) {
		return c.Redirect(guard.LoginPath, fiber.StatusSeeOther)
	}
	notice := ""
	if errors.Is(err, dashboard.ErrActionInFlight) || errors.Is(err, dashboard.ErrUnknownRequest) {
		notice = err.Error()
	}
	return s.renderApprover(c, failureStatus(err), notice)
}

// backToApprover redirects to the dashboard keeping the current filter.
func (s *Server) backToApprover(c *fiber.Ctx) error {
	_, appr := current(c).dashboards()
	return c.Redirect(filterURL(appr.State().Filter), fiber.StatusSeeOther)
}

func (s *Server) renderApprover(c *fiber.Ctx, status int, notice string) error {
	bs := current(c)
	st := bs.store.State()
	if !st.Authenticated() {
		return c.Redirect(guard.LoginPath, fiber.StatusSeeOther)
	}
	_, appr := bs.dashboards()
	return s.render(c, status, pageApprover, approverPage{
		User:    *st.User,
		State:   appr.State(),
		Filters: models.StatusFilters,
		Notice:  notice,
	})
}
