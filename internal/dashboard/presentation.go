package dashboard

import (
	"strings"
	"time"

	"armp/internal/models"
)

// Badge variants.
const (
	VariantDefault     = "default"
	VariantSecondary   = "secondary"
	VariantSuccess     = "success"
	VariantWarning     = "warning"
	VariantDestructive = "destructive"
)

// Copy shown by the dashboards.
const (
	PendingNotice       = "You already have a pending request. You can submit a new one after it's reviewed."
	RequesterEmptyTitle = "No requests yet"
	RequesterEmptyHint  = "Click “New Request” to submit your first access request."
	ApproverEmptyTitle  = "No requests found"
)

// TimestampLayout renders creation times, e.g. "Mar 1, 2024, 10:00 AM".
const TimestampLayout = "Jan 2, 2006, 03:04 PM"

// Badge describes how a status is drawn.
type Badge struct {
	Label   string
	Variant string
	Icon    string
}

var statusBadges = map[models.RequestStatus]Badge{
	models.StatusPending:  {Label: string(models.StatusPending), Variant: VariantWarning, Icon: "clock"},
	models.StatusApproved: {Label: string(models.StatusApproved), Variant: VariantSuccess, Icon: "check"},
	models.StatusRejected: {Label: string(models.StatusRejected), Variant: VariantDestructive, Icon: "x"},
}

// StatusBadge returns the badge for s. Unknown statuses are drawn like
// PENDING but keep their own label.
func StatusBadge(s models.RequestStatus) Badge {
	if b, ok := statusBadges[s]; ok {
		return b
	}
	b := statusBadges[models.StatusPending]
	b.Label = string(s)
	return b
}

// UrgencyVariant returns the badge variant for u.
func UrgencyVariant(u models.Urgency) string {
	switch u {
	case models.UrgencyLow:
		return VariantSecondary
	case models.UrgencyHigh, models.UrgencyCritical:
		return VariantDestructive
	default:
		return VariantDefault
	}
}

// UrgencyLabel is the select-option label, e.g. "Medium".
func UrgencyLabel(u models.Urgency) string {
	return titleCase(string(u))
}

// FilterLabel is the button label of a status filter, e.g. "All", "Pending".
func FilterLabel(f models.StatusFilter) string {
	if f == models.FilterAll {
		return "All"
	}
	return titleCase(string(f))
}

// ApproverEmptyMessage is the empty-list copy for the selected filter.
func ApproverEmptyMessage(f models.StatusFilter) string {
	if f == models.FilterAll {
		return "No access requests have been submitted yet."
	}
	return "No " + strings.ToLower(string(f)) + " requests at the moment."
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(TimestampLayout)
}

// FormatDate renders the short date used in reviewer attribution.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("1/2/2006")
}

// ReviewerLine is "Reviewed by <name> on <date>", or "" for unreviewed rows.
func ReviewerLine(r models.AccessRequest) string {
	if r.ReviewedBy == nil || r.ReviewedAt == nil {
		return ""
	}
	name := r.ReviewedBy.Name
	if name == "" {
		name = "Approver"
	}
	return "Reviewed by " + name + " on " + FormatDate(*r.ReviewedAt)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
