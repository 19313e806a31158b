package dashboard

import (
	"testing"
	"time"

	"armp/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestStatusBadge(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Badge{Label: "PENDING", Variant: VariantWarning, Icon: "clock"}, StatusBadge(models.StatusPending))
	assert.Equal(t, VariantSuccess, StatusBadge(models.StatusApproved).Variant)
	assert.Equal(t, VariantDestructive, StatusBadge(models.StatusRejected).Variant)

	odd := StatusBadge("ESCALATED")
	assert.Equal(t, "ESCALATED", odd.Label)
	assert.Equal(t, VariantWarning, odd.Variant)
}

func TestUrgencyPresentation(t *testing.T) {
	t.Parallel()
	assert.Equal(t, VariantSecondary, UrgencyVariant(models.UrgencyLow))
	assert.Equal(t, VariantDefault, UrgencyVariant(models.UrgencyMedium))
	assert.Equal(t, VariantDestructive, UrgencyVariant(models.UrgencyHigh))
	assert.Equal(t, VariantDestructive, UrgencyVariant(models.UrgencyCritical))
	assert.Equal(t, "Critical", UrgencyLabel(models.UrgencyCritical))
}

func TestFilterCopy(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "All", FilterLabel(models.FilterAll))
	assert.Equal(t, "Pending", FilterLabel(models.FilterPending))
	assert.Equal(t, "No access requests have been submitted yet.", ApproverEmptyMessage(models.FilterAll))
	assert.Equal(t, "No pending requests at the moment.", ApproverEmptyMessage(models.FilterPending))
}

func TestReviewerLine(t *testing.T) {
	t.Parallel()
	reviewedAt := time.Date(2024, 3, 5, 12, 0, 0, 0, time.Local)
	req := models.AccessRequest{
		Status:     models.StatusApproved,
		ReviewedBy: &models.UserSummary{Name: "Boss"},
		ReviewedAt: &reviewedAt,
	}
	assert.Equal(t, "Reviewed by Boss on 3/5/2024", ReviewerLine(req))
	assert.Empty(t, ReviewerLine(models.AccessRequest{Status: models.StatusPending}))
}

func TestFormatTimestamp(t *testing.T) {
	t.Parallel()
	ts := time.Date(2024, 3, 1, 14, 5, 0, 0, time.Local)
	assert.Equal(t, "Mar 1, 2024, 02:05 PM", FormatTimestamp(ts))
	assert.Empty(t, FormatTimestamp(time.Time{}))
}

func TestViewStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "error", Failed.String())
	assert.Equal(t, "loaded", Loaded.String())
}
