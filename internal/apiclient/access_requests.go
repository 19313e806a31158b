package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"armp/internal/models"
)

type requestData struct {
	Request models.AccessRequest `json:"request"`
}

// CreateRequest submits a new access request for the current user.
func (c *Client) CreateRequest(ctx context.Context, payload models.CreateAccessRequestPayload) (models.AccessRequest, error) {
	var data requestData
	err := c.do(ctx, "create_request", http.MethodPost, "/access-requests", nil, payload, &data)
	return data.Request, err
}

// MyRequests lists the current user's own requests.
func (c *Client) MyRequests(ctx context.Context, q models.ListQuery) (models.RequestList, error) {
	var data models.RequestList
	err := c.do(ctx, "my_requests", http.MethodGet, "/access-requests/my", listValues(q), nil, &data)
	return data, err
}

// AllRequests lists every request visible to an approver.
func (c *Client) AllRequests(ctx context.Context, q models.ListQuery) (models.RequestList, error) {
	var data models.RequestList
	err := c.do(ctx, "all_requests", http.MethodGet, "/access-requests", listValues(q), nil, &data)
	return data, err
}

// GetRequest fetches a single request.
func (c *Client) GetRequest(ctx context.Context, id string) (models.AccessRequest, error) {
	var data requestData
	err := c.do(ctx, "get_request", http.MethodGet, "/access-requests/"+url.PathEscape(id), nil, nil, &data)
	return data.Request, err
}

// Approve moves a pending request to APPROVED.
func (c *Client) Approve(ctx context.Context, id string) (models.AccessRequest, error) {
	var data requestData
	err := c.do(ctx, "approve", http.MethodPatch, "/access-requests/"+url.PathEscape(id)+"/approve", nil, nil, &data)
	return data.Request, err
}

// Reject moves a pending request to REJECTED with reason.
func (c *Client) Reject(ctx context.Context, id, reason string) (models.AccessRequest, error) {
	var data requestData
	err := c.do(ctx, "reject", http.MethodPatch, "/access-requests/"+url.PathEscape(id)+"/reject", nil,
		models.RejectPayload{RejectionReason: reason}, &data)
	return data.Request, err
}

// Stats returns the approver dashboard counters.
func (c *Client) Stats(ctx context.Context) (models.DashboardStats, error) {
	var data struct {
		Stats models.DashboardStats `json:"stats"`
	}
	err := c.do(ctx, "stats", http.MethodGet, "/access-requests/stats", nil, nil, &data)
	return data.Stats, err
}

func listValues(q models.ListQuery) url.Values {
	v := url.Values{}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}
