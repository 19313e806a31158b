package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"

	"armp/internal/dashboard"
	"armp/internal/models"

	"github.com/gofiber/fiber/v2"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names, one template file each.
const (
	pageLogin     = "login"
	pageRegister  = "register"
	pageWaiting   = "waiting"
	pageRequester = "requester"
	pageApprover  = "approver"
	pageError     = "error"
)

var pageNames = []string{pageLogin, pageRegister, pageWaiting, pageRequester, pageApprover, pageError}

var funcMap = template.FuncMap{
	"statusBadge":    dashboard.StatusBadge,
	"urgencyVariant": dashboard.UrgencyVariant,
	"urgencyLabel":   dashboard.UrgencyLabel,
	"filterLabel":    dashboard.FilterLabel,
	"timestamp":      dashboard.FormatTimestamp,
	"reviewerLine":   dashboard.ReviewerLine,
	"filterURL":      filterURL,
	"approverEmpty":  dashboard.ApproverEmptyMessage,
	"copy":           copyText,
}

var copyTexts = map[string]string{
	"pendingNotice":       dashboard.PendingNotice,
	"requesterEmptyTitle": dashboard.RequesterEmptyTitle,
	"requesterEmptyHint":  dashboard.RequesterEmptyHint,
	"approverEmptyTitle":  dashboard.ApproverEmptyTitle,
}

func copyText(key string) string {
	return copyTexts[key]
}

// views holds one template set per page, each combined with the layout.
type views struct {
	pages map[string]*template.Template
}

func loadViews() (*views, error) {
	v := &views{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcMap).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

// render executes page into a buffer first so a template error never leaves
// a half-written response.
func (s *Server) render(c *fiber.Ctx, status int, page string, data any) error {
	t, ok := s.views.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(status).Send(buf.Bytes())
}

// filterURL is the approver dashboard URL showing f.
func filterURL(f models.StatusFilter) string {
	if f == models.FilterAll || f == "" {
		return "/approver"
	}
	return "/approver?status=" + url.QueryEscape(string(f))
}

type errorPage struct {
	Status  int
	Message string
}

type loginPage struct {
	Email  string
	Errors map[string]string
	Error  string
}

type registerPage struct {
	Name   string
	Email  string
	Errors map[string]string
	Error  string
}

type requesterPage struct {
	User      models.User
	State     dashboard.RequesterState
	Urgencies []models.Urgency
	Notice    string
}

type approverPage struct {
	User    models.User
	State   dashboard.ApproverState
	Filters []models.StatusFilter
	Notice  string
}
