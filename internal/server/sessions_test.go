package server

import (
	"testing"
	"time"

	"armp/internal/dashboard"
	"armp/internal/session"
	"armp/internal/tokenstore"

	"github.com/stretchr/testify/assert"
)

func stubFactory(built *int) sessionFactory {
	return func(string) (*session.Store, dashboardBuilder) {
		*built++
		store := session.New(nil, tokenstore.NewMemoryStore(), session.Options{})
		return store, func() (*dashboard.Requester, *dashboard.Approver) {
			return dashboard.NewRequester(nil, dashboard.Options{}), dashboard.NewApprover(nil, dashboard.Options{})
		}
	}
}

func TestSessionRegistryReusesAndEvicts(t *testing.T) {
	built := 0
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	r := newSessionRegistry(time.Hour, stubFactory(&built))
	r.now = func() time.Time { return now }

	a := r.Get("a")
	assert.Same(t, a, r.Get("a"))
	r.Get("b")
	assert.Equal(t, 2, built)
	assert.Equal(t, 2, r.Len())

	now = now.Add(40 * time.Minute)
	r.Get("b")
	now = now.Add(30 * time.Minute)

	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())
	assert.NotSame(t, a, r.Get("a"))
}

func TestSessionRegistryReset(t *testing.T) {
	built := 0
	r := newSessionRegistry(time.Hour, stubFactory(&built))

	bs := r.Get("a")
	req, appr := bs.dashboards()
	store := bs.store

	r.Reset("a")
	newReq, newAppr := bs.dashboards()
	assert.NotSame(t, req, newReq)
	assert.NotSame(t, appr, newAppr)
	assert.Same(t, store, bs.store)
	assert.Equal(t, 1, built)

	r.Remove("a")
	assert.Zero(t, r.Len())
	r.Reset("a")
	assert.Zero(t, r.Len())
}
