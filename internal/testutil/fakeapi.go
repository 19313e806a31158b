// Package testutil provides shared test doubles and fixtures for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"armp/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

// Call is one request received by FakeAPI.
type Call struct {
	Method        string
	Path          string
	Query         string
	Body          string
	Authorization string
	RequestID     string
}

type fakeUser struct {
	user     models.User
	password string
}

type failure struct {
	status  int
	message string
}

// FakeAPI is an in-memory stand-in for the remote access-request API,
// served over httptest.
type FakeAPI struct {
	Server *httptest.Server

	mu       sync.Mutex
	users    map[string]*fakeUser // by email
	tokens   map[string]string    // token -> user id
	requests []*models.AccessRequest
	calls    []Call
	failures map[string]failure
	seq      int
}

// NewFakeAPI starts a fake API server that is closed when t finishes.
func NewFakeAPI(t testing.TB) *FakeAPI {
	t.Helper()
	f := &FakeAPI{
		users:    make(map[string]*fakeUser),
		tokens:   make(map[string]string),
		failures: make(map[string]failure),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", f.register)
	mux.HandleFunc("POST /auth/login", f.login)
	mux.HandleFunc("POST /auth/logout", f.logout)
	mux.HandleFunc("GET /auth/me", f.me)
	mux.HandleFunc("POST /auth/refresh", f.refresh)
	mux.HandleFunc("POST /access-requests", f.createRequest)
	mux.HandleFunc("GET /access-requests/my", f.myRequests)
	mux.HandleFunc("GET /access-requests/stats", f.stats)
	mux.HandleFunc("GET /access-requests", f.allRequests)
	mux.HandleFunc("GET /access-requests/{id}", f.getRequest)
	mux.HandleFunc("PATCH /access-requests/{id}/approve", f.approve)
	mux.HandleFunc("PATCH /access-requests/{id}/reject", f.reject)

	f.Server = httptest.NewServer(f.record(mux))
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the base URL of the fake API.
func (f *FakeAPI) URL() string {
	return f.Server.URL
}

// AddUser creates an account with generated name and email.
func (f *FakeAPI) AddUser(role models.Role, password string) models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addUserLocked(gofakeit.Name(), strings.ToLower(gofakeit.Email()), password, role)
}

// IssueToken returns a fresh opaque token for userID.
func (f *FakeAPI) IssueToken(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issueLocked(userID)
}

// SetToken makes token valid for userID.
func (f *FakeAPI) SetToken(token, userID string) {
	f.mu.Lock()
	f.tokens[token] = userID
	f.mu.Unlock()
}

// RevokeTokens invalidates every issued token.
func (f *FakeAPI) RevokeTokens() {
	f.mu.Lock()
	f.tokens = make(map[string]string)
	f.mu.Unlock()
}

// AddRequest stores a request owned by requester in the given status.
func (f *FakeAPI) AddRequest(requester models.User, status models.RequestStatus) models.AccessRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	req := f.newRequestLocked(requester, models.CreateAccessRequestPayload{
		AccessType: gofakeit.AppName(),
		Reason:     gofakeit.Sentence(6),
		Urgency:    models.UrgencyMedium,
	})
	req.Status = status
	return *req
}

// Fail makes every call to method+path answer status with message until
// ClearFailures is called.
func (f *FakeAPI) Fail(method, path string, status int, message string) {
	f.mu.Lock()
	f.failures[method+" "+path] = failure{status: status, message: message}
	f.mu.Unlock()
}

// ClearFailures removes every injected failure.
func (f *FakeAPI) ClearFailures() {
	f.mu.Lock()
	f.failures = make(map[string]failure)
	f.mu.Unlock()
}

// Calls returns every call received so far.
func (f *FakeAPI) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the calls received for method+path.
func (f *FakeAPI) CallsTo(method, path string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets the recorded calls.
func (f *FakeAPI) ResetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

// Request returns the stored request with id.
func (f *FakeAPI) Request(id string) (models.AccessRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.ID == id {
			return *r, true
		}
	}
	return models.AccessRequest{}, false
}

func (f *FakeAPI) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = readAll(r)
		}
		f.mu.Lock()
		f.calls = append(f.calls, Call{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Body:          string(body),
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
		})
		fail, failing := f.failures[r.Method+" "+r.URL.Path]
		f.mu.Unlock()

		if failing {
			writeError(w, fail.status, fail.message, "")
			return
		}
		r.Body = newBody(body)
		next.ServeHTTP(w, r)
	})
}

func (f *FakeAPI) register(w http.ResponseWriter, r *http.Request) {
	var p models.RegisterPayload
	if !decode(w, r, &p) {
		return
	}
	role := p.Role
	if role == "" {
		role = models.RoleRequester
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.users[strings.ToLower(p.Email)]; exists {
		writeError(w, http.StatusConflict, "User with this email already exists", "USER_EXISTS")
		return
	}
	u := f.addUserLocked(p.Name, strings.ToLower(p.Email), p.Password, role)
	writeData(w, http.StatusCreated, "Registration successful", models.AuthData{User: u, AccessToken: f.issueLocked(u.ID)})
}

func (f *FakeAPI) login(w http.ResponseWriter, r *http.Request) {
	var p models.LoginPayload
	if !decode(w, r, &p) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fu, ok := f.users[strings.ToLower(p.Email)]
	if !ok || fu.password != p.Password {
		writeError(w, http.StatusUnauthorized, "Invalid email or password", "INVALID_CREDENTIALS")
		return
	}
	writeData(w, http.StatusOK, "Login successful", models.AuthData{User: fu.user, AccessToken: f.issueLocked(fu.user.ID)})
}

func (f *FakeAPI) logout(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	delete(f.tokens, bearer(r))
	f.mu.Unlock()
	writeData(w, http.StatusOK, "Logged out", nil)
}

func (f *FakeAPI) me(w http.ResponseWriter, r *http.Request) {
	u, ok := f.authenticate(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"user": u})
}

func (f *FakeAPI) refresh(w http.ResponseWriter, r *http.Request) {
	u, ok := f.authenticate(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, "", map[string]string{"accessToken": f.IssueToken(u.ID)})
}

func (f *FakeAPI) createRequest(w http.ResponseWriter, r *http.Request) {
	u, ok := f.authorize(w, r, models.RoleRequester)
	if !ok {
		return
	}
	var p models.CreateAccessRequestPayload
	if !decode(w, r, &p) {
		return
	}
	f.mu.Lock()
	req := *f.newRequestLocked(u, p)
	f.mu.Unlock()
	writeData(w, http.StatusCreated, "Access request created", map[string]any{"request": req})
}

func (f *FakeAPI) myRequests(w http.ResponseWriter, r *http.Request) {
	u, ok := f.authorize(w, r, models.RoleRequester)
	if !ok {
		return
	}
	f.writeList(w, r, func(req *models.AccessRequest) bool { return req.Requester.ID == u.ID })
}

func (f *FakeAPI) allRequests(w http.ResponseWriter, r *http.Request) {
	if _, ok := f.authorize(w, r, models.RoleApprover); !ok {
		return
	}
	f.writeList(w, r, func(*models.AccessRequest) bool { return true })
}

func (f *FakeAPI) getRequest(w http.ResponseWriter, r *http.Request) {
	if _, ok := f.authenticate(w, r); !ok {
		return
	}
	req, found := f.Request(r.PathValue("id"))
	if !found {
		writeError(w, http.StatusNotFound, "Access request not found", "NOT_FOUND")
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"request": req})
}

func (f *FakeAPI) stats(w http.ResponseWriter, r *http.Request) {
	if _, ok := f.authorize(w, r, models.RoleApprover); !ok {
		return
	}
	f.mu.Lock()
	var s models.DashboardStats
	for _, req := range f.requests {
		s.Total++
		switch req.Status {
		case models.StatusPending:
			s.Pending++
		case models.StatusApproved:
			s.Approved++
		case models.StatusRejected:
			s.Rejected++
		}
	}
	f.mu.Unlock()
	writeData(w, http.StatusOK, "", map[string]any{"stats": s})
}

func (f *FakeAPI) approve(w http.ResponseWriter, r *http.Request) {
	f.review(w, r, models.StatusApproved, "")
}

func (f *FakeAPI) reject(w http.ResponseWriter, r *http.Request) {
	var p models.RejectPayload
	if !decode(w, r, &p) {
		return
	}
	f.review(w, r, models.StatusRejected, p.RejectionReason)
}

func (f *FakeAPI) review(w http.ResponseWriter, r *http.Request, status models.RequestStatus, reason string) {
	u, ok := f.authorize(w, r, models.RoleApprover)
	if !ok {
		return
	}
	id := r.PathValue("id")

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		if req.ID != id {
			continue
		}
		if !req.Pending() {
			writeError(w, http.StatusBadRequest, "Request has already been processed", "INVALID_STATE")
			return
		}
		now := time.Now().UTC()
		req.Status = status
		req.ReviewedBy = &models.UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
		req.ReviewedAt = &now
		req.UpdatedAt = now
		if status == models.StatusRejected {
			req.RejectionReason = &reason
		}
		writeData(w, http.StatusOK, "Access request updated", map[string]any{"request": *req})
		return
	}
	writeError(w, http.StatusNotFound, "Access request not found", "NOT_FOUND")
}

func (f *FakeAPI) writeList(w http.ResponseWriter, r *http.Request, keep func(*models.AccessRequest) bool) {
	status := r.URL.Query().Get("status")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 50
	}

	f.mu.Lock()
	matched := make([]models.AccessRequest, 0, len(f.requests))
	for i := len(f.requests) - 1; i >= 0; i-- {
		req := f.requests[i]
		if keep(req) && (status == "" || string(req.Status) == status) {
			matched = append(matched, *req)
		}
	}
	f.mu.Unlock()

	total := len(matched)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)
	writeData(w, http.StatusOK, "", models.RequestList{
		Requests: matched[start:end],
		Pagination: models.Pagination{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: (total + limit - 1) / limit,
		},
	})
}

func (f *FakeAPI) authenticate(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.tokens[bearer(r)]
	if ok {
		for _, fu := range f.users {
			if fu.user.ID == id {
				return fu.user, true
			}
		}
	}
	writeError(w, http.StatusUnauthorized, "Invalid or expired token", "TOKEN_INVALID")
	return models.User{}, false
}

func (f *FakeAPI) authorize(w http.ResponseWriter, r *http.Request, role models.Role) (models.User, bool) {
	u, ok := f.authenticate(w, r)
	if !ok {
		return u, false
	}
	if u.Role != role {
		writeError(w, http.StatusForbidden, "You do not have permission to perform this action", "FORBIDDEN")
		return u, false
	}
	return u, true
}

func (f *FakeAPI) addUserLocked(name, email, password string, role models.Role) models.User {
	f.seq++
	now := time.Now().UTC()
	u := models.User{
		ID:        fmt.Sprintf("u%d", f.seq),
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.users[email] = &fakeUser{user: u, password: password}
	return u
}

func (f *FakeAPI) issueLocked(userID string) string {
	token := gofakeit.UUID()
	f.tokens[token] = userID
	return token
}

func (f *FakeAPI) newRequestLocked(u models.User, p models.CreateAccessRequestPayload) *models.AccessRequest {
	f.seq++
	now := time.Now().UTC()
	req := &models.AccessRequest{
		ID: fmt.Sprintf("r%d", f.seq),
		Requester: models.RequesterRef{
			UserSummary: models.UserSummary{ID: u.ID, Name: u.Name, Email: u.Email},
			Embedded:    true,
		},
		AccessType: p.AccessType,
		Reason:     p.Reason,
		Urgency:    p.Urgency,
		Status:     models.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	f.requests = append(f.requests, req)
	return req
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "message": message, "data": data})
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message, "errorCode": code})
}
