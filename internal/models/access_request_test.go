package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessRequestDecodesBothRequesterShapes(t *testing.T) {
	t.Parallel()

	embedded := `{"_id":"R1","requester":{"_id":"U1","name":"Ann","email":"ann@example.com"},
		"accessType":"VPN","reason":"remote work setup","urgency":"HIGH","status":"PENDING",
		"createdAt":"2024-03-01T10:00:00Z","updatedAt":"2024-03-01T10:00:00Z"}`
	bare := `{"_id":"R2","requester":"U2","accessType":"VPN","reason":"remote work setup",
		"urgency":"LOW","status":"REJECTED","rejectionReason":"not needed",
		"reviewedBy":{"_id":"A1","name":"Boss","email":"boss@example.com"},
		"reviewedAt":"2024-03-02T10:00:00Z",
		"createdAt":"2024-03-01T10:00:00Z","updatedAt":"2024-03-02T10:00:00Z"}`

	var a, b AccessRequest
	require.NoError(t, json.Unmarshal([]byte(embedded), &a))
	require.NoError(t, json.Unmarshal([]byte(bare), &b))

	assert.True(t, a.Requester.Embedded)
	assert.Equal(t, "Ann", a.Requester.DisplayName())
	assert.True(t, a.Pending())
	assert.Empty(t, a.RejectionText())

	assert.False(t, b.Requester.Embedded)
	assert.Equal(t, "U2", b.Requester.ID)
	assert.Equal(t, "User", b.Requester.DisplayName())
	assert.Equal(t, "not needed", b.RejectionText())
	require.NotNil(t, b.ReviewedBy)
	assert.Equal(t, "Boss", b.ReviewedBy.Name)
	assert.True(t, b.Status.Terminal())
}

func TestRequesterRefRoundTripKeepsShape(t *testing.T) {
	t.Parallel()

	var ref RequesterRef
	require.NoError(t, json.Unmarshal([]byte(`"U9"`), &ref))
	out, err := json.Marshal(ref)
	require.NoError(t, err)
	assert.JSONEq(t, `"U9"`, string(out))

	require.NoError(t, json.Unmarshal([]byte(`{"_id":"U9","name":"Nine","email":"n@example.com"}`), &ref))
	out, err = json.Marshal(ref)
	require.NoError(t, err)
	assert.JSONEq(t, `{"_id":"U9","name":"Nine","email":"n@example.com"}`, string(out))

	require.NoError(t, json.Unmarshal([]byte(`null`), &ref))
	assert.Equal(t, RequesterRef{}, ref)
}

func TestStatusFilter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FilterAll, ParseStatusFilter(""))
	assert.Equal(t, FilterAll, ParseStatusFilter("pending"))
	assert.Equal(t, FilterRejected, ParseStatusFilter("REJECTED"))
	assert.Equal(t, RequestStatus(""), FilterAll.Status())
	assert.Equal(t, StatusApproved, FilterApproved.Status())
}

func TestUrgencyValid(t *testing.T) {
	t.Parallel()

	for _, u := range Urgencies {
		assert.True(t, u.Valid(), u)
	}
	assert.False(t, Urgency("").Valid())
	assert.False(t, Urgency("low").Valid())
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "bad creds", UserMessage(NewAuthError("bad creds", nil), "fallback"))
	assert.Equal(t, "fallback", UserMessage(assert.AnError, "fallback"))
	assert.Equal(t, "Internal server error", UserMessage(NewInternalError(assert.AnError), "fallback"))
}
