package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"armp/internal/apiclient"
	"armp/internal/dashboard"
	"armp/internal/models"
	"armp/internal/session"
	"armp/internal/validation"

	"github.com/spf13/pflag"
)

func (a *app) root() *Command {
	return &Command{
		Name:    "armpctl",
		Summary: "Access request portal from the terminal.",
		Subcommands: []*Command{
			a.loginCommand(),
			a.registerCommand(),
			a.logoutCommand(),
			a.whoamiCommand(),
			a.requestsCommand(),
			a.showCommand(),
			a.submitCommand(),
			a.reviewCommand(),
			a.approveCommand(),
			a.rejectCommand(),
			a.statsCommand(),
			a.createApproverCommand(),
		},
	}
}

// validationError reports field messages one per line.
func validationError(res validation.Result) error {
	msg := "invalid input:"
	for _, e := range res.Errors {
		msg += fmt.Sprintf("\n  %s: %s", e.Field, e.Message)
	}
	return errors.New(msg)
}

func (a *app) loginCommand() *Command {
	var email, passwordFile string
	return &Command{
		Name:    "login",
		Summary: "Sign in and keep the session token",
		Flags: func() *pflag.FlagSet {
			fs := a.newFlagSet("login")
			fs.StringVar(&email, "email", "", "account email (prompted if empty)")
			fs.StringVar(&passwordFile, "password-file", "", "read the password from a file, or stdin with '-'")
			return fs
		},
		Run: func(_ []string) error {
			ctx := context.Background()
			c, err := a.guest(ctx)
			if err != nil {
				return err
			}
			if email, err = a.prompt("Email", email); err != nil {
				return err
			}
			password, err := a.readPassword("Password: ", passwordFile)
			if err != nil {
				return err
			}

			form := validation.LoginForm{Email: email, Password: password}
			if res := validation.Login(form); !res.OK() {
				return validationError(res)
			}
			user, err := c.store.Login(ctx, models.LoginPayload{Email: form.Email, Password: form.Password})
			if err != nil {
				return errors.New(models.UserMessage(err, session.LoginFailedMessage))
			}
			fmt.Fprintf(a.stdout, "Signed in as %s (%s)\n", user.Name, user.Role)
			return nil
		},
	}
}

func (a *app) registerCommand() *Command {
	var name, email, passwordFile string
	return &Command{
		Name:    "register",
		Summary: "Create an account and sign in",
		Flags: func() *pflag.FlagSet {
			fs := a.newFlagSet("register")
			fs.StringVar(&name, "name", "", "display name (prompted if empty)")
			fs.StringVar(&email, "email", "", "account email (prompted if empty)")
			fs.StringVar(&passwordFile, "password-file", "", "read the password from a file, or stdin with '-'")
			return fs
		},
		Run: func(_ []string) error {
			ctx := context.Background()
			c, err := a.guest(ctx)
			if err != nil {
				return err
			}
			form, err := a.registerForm(name, email, passwordFile)
			if err != nil {
				return err
			}
			if res := validation.Register(form); !res.OK() {
				return validationError(res)
			}
			user, err := c.store.Register(ctx, models.RegisterPayload{
				Name:     form.Name,
				Email:    form.Email,
				Password: form.Password,
			})
			if err != nil {
				return errors.New(models.UserMessage(err, session.RegistrationFailedMessage))
			}
			fmt.Fprintf(a.stdout, "Registered and signed in as %s (%s)\n", user.Name, user.Role)
			return nil
		},
	}
}

// registerForm gathers the registration fields. Interactive entry asks for
// the password twice; a password file counts as already confirmed.
func (a *app) registerForm(name, email, passwordFile string) (validation.RegisterForm, error) {
	var form validation.RegisterForm
	var err error
	if form.Name, err = a.prompt("Name", name); err != nil {
		return form, err
	}
	if form.Email, err = a.prompt("Email", email); err != nil {
		return form, err
	}
	if form.Password, err = a.readPassword("Password: ", passwordFile); err != nil {
		return form, err
	}
	if passwordFile != "" {
		form.ConfirmPassword = form.Password
		return form, nil
	}
	form.ConfirmPassword, err = a.readPassword("Confirm password: ", "")
	return form, err
}

func (a *app) logoutCommand() *Command {
	return &Command{
		Name:    "logout",
		Summary: "Sign out and forget the session token",
		Flags:   func() *pflag.FlagSet { return a.newFlagSet("logout") },
		Run: func(_ []string) error {
			ctx := context.Background()
			c, err := a.connect(ctx)
			if err != nil {
				return err
			}
			c.store.Logout(ctx)
			fmt.Fprintln(a.stdout, "Signed out")
			return nil
		},
	}
}

func (a *app) whoamiCommand() *Command {
	return &Command{
		Name:    "whoami",
		Summary: "Show the signed-in account",
		Flags:   func() *pflag.FlagSet { return a.newFlagSet("whoami") },
		Run: func(_ []string) error {
			c, err := a.access(context.Background())
			if err != nil {
				return err
			}
			user := *c.store.State().User
			return a.emit(user, func(w io.Writer) { userTable(w, user) })
		},
	}
}

func (a *app) requestsCommand() *Command {
	return &Command{
		Name:    "requests",
		Summary: "List your access requests",
		Flags:   func() *pflag.FlagSet { return a.newFlagSet("requests") },
		Run: func(_ []string) error {
			ctx := context.Background()
			c, err := a.access(ctx, models.RoleRequester)
			if err != nil {
				return err
			}
			req := dashboard.NewRequester(c.api, c.options())
			if err := req.Mount(ctx); err != nil {
				return errors.New(req.State().Error)
			}
			st := req.State()
			return a.emit(st.Requests, func(w io.Writer) {
				requestTable(w, st.Requests, false, dashboard.RequesterEmptyTitle)
				if st.HasPendingRequest {
					fmt.Fprintln(w, mutedStyle.Render(dashboard.PendingNotice))
				}
			})
		},
	}
}

func (a *app) showCommand() *Command {
	return &Command{
		Name:    "show",
		Summary: "Show one access request",
		Usage:   "armpctl show <id>",
		Flags:   func() *pflag.FlagSet { return a.newFlagSet("show") },
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("usage: armpctl show <id>")
			}
			ctx := context.Background()
			c, err := a.access(ctx)
			if err != nil {
				return err
			}
			req, err := c.api.GetRequest(ctx, args[0])
			if err != nil {
				if apiclient.IsUnauthorized(err) {
					c.store.Invalidate(ctx)
					return errNotSignedIn
				}
				return errors.New(apiclient.Message(err, "Failed to load request"))
			}
			approver := c.store.State().Role() == models.RoleApprover
			return a.emit(req, func(w io.Writer) {
				requestTable(w, []models.AccessRequest{req}, approver, "")
				if line := dashboard.ReviewerLine(req); line != "" {
					fmt.Fprintln(w, mutedStyle.Render(line))
				}
			})
		},
	}
}

func (a *app) submitCommand() *Command {
	var form validation.AccessRequestForm
	return &Command{
		Name:    "submit",
		Summary: "Submit a new access request",
		Usage:   "armpctl submit --type <access type> --reason <reason> [--urgency LOW|MEDIUM|HIGH|CRITICAL]",
		Flags: func() *pflag.FlagSet {
			fs := a.newFlagSet("submit")
			fs.StringVar(&form.AccessType, "type", "", "what access is needed, e.g. 'GitHub Admin'")
			fs.StringVar(&form.Reason, "reason", "", "why it is needed (10-500 characters)")
			fs.StringVar(&form.Urgency, "urgency", string(models.UrgencyMedium), "LOW, MEDIUM, HIGH or CRITICAL")
			return fs
		},
		Run: func(_ []string) error {
			ctx := context.Background()
			c, err := a.access(ctx, models.RoleRequester)
			if err != nil {
				return err
			}

			if res := validation.AccessRequest(form); !res.OK() {
				return validationError(res)
			}

			req := dashboard.NewRequester(c.api, c.options())
			if err := req.Mount(ctx); err != nil {
				return errors.New(req.State().Error)
			}
			if err := req.OpenForm(); err != nil {
				return errors.New(dashboard.PendingNotice)
			}
			if err := req.Submit(ctx, form); err != nil {
				if msg := req.State().FormError; msg != "" {
					return errors.New(msg)
				}
				return err
			}

			st := req.State()
			fmt.Fprintln(a.stdout, "Request submitted")
			return a.emit(st.Requests, func(w io.Writer) {
				requestTable(w, st.Requests, false, dashboard.RequesterEmptyTitle)
			})
		},
	}
}

// approver connects as an APPROVER and mounts the dashboard on filter.
func (a *app) approver(ctx context.Context, filter models.StatusFilter) (*dashboard.Approver, error) {
	c, err := a.access(ctx, models.RoleApprover)
	if err != nil {
		return nil, err
	}
	appr := dashboard.NewApprover(c.api, c.options())
	if err := appr.Mount(ctx, filter); err != nil {
		if !c.store.State().Authenticated() {
			return nil, errNotSignedIn
		}
		return nil, errors.New(appr.State().Error)
	}
	return appr, nil
}

func (a *app) reviewCommand() *Command {
	var status string
	return &Command{
		Name:    "review",
		Summary: "List all access requests (approvers)",
		Flags: func() *pflag.FlagSet {
			fs := a.newFlagSet("review")
			fs.StringVar(&status, "status", string(models.FilterAll), "ALL, PENDING, APPROVED or REJECTED")
			return fs
		},
		Run: func(_ []string) error {
			filter := models.ParseStatusFilter(strings.ToUpper(status))
			appr, err := a.approver(context.Background(), filter)
			if err != nil {
				return err
			}
			st := appr.State()
			return a.emit(st.Requests, func(w io.Writer) {
				fmt.Fprintln(w, headerStyle.Render("Filter: "+dashboard.FilterLabel(filter)))
				requestTable(w, st.Requests, true, dashboard.ApproverEmptyMessage(filter))
			})
		},
	}
}

// actionError prefers the display message the dashboard recorded.
func actionError(appr *dashboard.Approver, err error) error {
	if errors.Is(err, dashboard.ErrValidation) {
		return err
	}
	if msg := appr.State().Error; msg != "" {
		return errors.New(msg)
	}
	return err
}

func (a *app) approveCommand() *Command {
	return &Command{
		Name:    "approve",
		Summary: "Approve a pending request",
		Usage:   "armpctl approve <id>",
		Flags:   func() *pflag.FlagSet { return a.newFlagSet("approve") },
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("usage: armpctl approve <id>")
			}
			ctx := context.Background()
			appr, err := a.approver(ctx, models.FilterPending)
			if err != nil {
				return err
			}
			if err := appr.Approve(ctx, args[0]); err != nil {
				return actionError(appr, err)
			}
			fmt.Fprintf(a.stdout, "Approved %s\n", args[0])
			return nil
		},
	}
}

func (a *app) rejectCommand() *Command {
	var reason string
	return &Command{
		Name:    "reject",
		Summary: "Reject a pending request with a reason",
		Usage:   "armpctl reject <id> --reason <reason>",
		Flags: func() *pflag.FlagSet {
			fs := a.newFlagSet("reject")
			fs.StringVar(&reason, "reason", "", "rejection reason shown to the requester (5-500 characters)")
			return fs
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("usage: armpctl reject <id> --reason <reason>")
			}
			ctx := context.Background()
			appr, err := a.approver(ctx, models.FilterPending)
			if err != nil {
				return err
			}
			if err := appr.OpenReject(args[0]); err != nil {
				return fmt.Errorf("%s is not a pending request", args[0])
			}
			if err := appr.ConfirmReject(ctx, reason); err != nil {
				if errors.Is(err, dashboard.ErrValidation) {
					return validationError(validation.Rejection(validation.RejectionForm{RejectionReason: reason}))
				}
				return actionError(appr, err)
			}
			fmt.Fprintf(a.stdout, "Rejected %s\n", args[0])
			return nil
		},
	}
}

func (a *app) statsCommand() *Command {
	return &Command{
		Name:    "stats",
		Summary: "Show request counts by status (approvers)",
		Flags:   func() *pflag.FlagSet { return a.newFlagSet("stats") },
		Run: func(_ []string) error {
			appr, err := a.approver(context.Background(), models.FilterAll)
			if err != nil {
				return err
			}
			stats := appr.State().Stats
			if stats == nil {
				return errors.New("stats are unavailable right now")
			}
			return a.emit(stats, func(w io.Writer) { statsTable(w, *stats) })
		},
	}
}

func (a *app) createApproverCommand() *Command {
	var name, email, passwordFile string
	return &Command{
		Name:    "create-approver",
		Summary: "Create another approver account (approvers)",
		Flags: func() *pflag.FlagSet {
			fs := a.newFlagSet("create-approver")
			fs.StringVar(&name, "name", "", "display name (prompted if empty)")
			fs.StringVar(&email, "email", "", "account email (prompted if empty)")
			fs.StringVar(&passwordFile, "password-file", "", "read the password from a file, or stdin with '-'")
			return fs
		},
		Run: func(_ []string) error {
			ctx := context.Background()
			c, err := a.access(ctx, models.RoleApprover)
			if err != nil {
				return err
			}
			form, err := a.registerForm(name, email, passwordFile)
			if err != nil {
				return err
			}

			appr := dashboard.NewApprover(c.api, c.options())
			appr.OpenCreateApprover()
			if err := appr.CreateApprover(ctx, form); err != nil {
				if errors.Is(err, dashboard.ErrValidation) {
					return validationError(validation.Register(form))
				}
				return errors.New(appr.State().CreateError)
			}
			fmt.Fprintln(a.stdout, appr.State().CreateSuccess)
			return nil
		},
	}
}
