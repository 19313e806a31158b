// Package session holds the authentication state of one client: who is
// logged in, and whether that is still being determined.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"armp/internal/apiclient"
	"armp/internal/models"
	"armp/internal/observability"
	"armp/internal/tokenstore"
)

// Display messages used when the server does not provide one.
const (
	LoginFailedMessage        = "Login failed. Please try again."
	RegistrationFailedMessage = "Registration failed. Please try again."
)

// API is the subset of the remote API the session needs. Calls must
// authenticate with the token held in the store's tokenstore.
type API interface {
	Login(ctx context.Context, payload models.LoginPayload) (models.AuthData, error)
	Register(ctx context.Context, payload models.RegisterPayload) (models.AuthData, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (models.User, error)
	Refresh(ctx context.Context) (string, error)
}

// State is a snapshot of the session.
type State struct {
	User    *models.User
	Loading bool
}

// Authenticated reports whether a user is present.
func (s State) Authenticated() bool {
	return s.User != nil
}

// Role returns the user's role, or "" when unauthenticated.
func (s State) Role() models.Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

// Options tunes a Store.
type Options struct {
	// TokenRefresh allows one /auth/refresh attempt when the stored token is
	// rejected during LoadSession.
	TokenRefresh bool
	Now          func() time.Time
}

// Store is the session of one client. User and token are kept consistent:
// they are set together on login and cleared together on any failure.
type Store struct {
	api     API
	tokens  tokenstore.Store
	refresh bool
	now     func() time.Time

	mu      sync.Mutex
	user    *models.User
	loading bool
	started bool
	// epoch advances whenever login or logout replaces the session; a
	// rehydration that started in an older epoch is discarded.
	epoch uint64
}

// New returns a store in the loading state. Call LoadSession to resolve it.
func New(api API, tokens tokenstore.Store, opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		api:     api,
		tokens:  tokens,
		refresh: opts.TokenRefresh,
		now:     now,
		loading: true,
	}
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{Loading: s.loading}
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	return st
}

// LoadSession rehydrates the user from the stored token. Only the first call
// does any work; later calls return at once and State still reports Loading
// until that first call completes. Failures are never surfaced: the token is
// cleared and the session stays empty.
func (s *Store) LoadSession(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	epoch := s.epoch
	s.mu.Unlock()

	user, event := s.rehydrate(ctx, epoch)

	s.mu.Lock()
	if s.epoch == epoch {
		s.user = user
		s.loading = false
	}
	s.mu.Unlock()

	if event != "" {
		observability.RecordSessionEvent(event)
	}
}

func (s *Store) rehydrate(ctx context.Context, epoch uint64) (*models.User, string) {
	token, err := s.tokens.Load(ctx)
	if err != nil {
		observability.Logger.WarnContext(ctx, "token storage unreadable", slog.String("error", err.Error()))
		s.dropToken(ctx, epoch)
		return nil, "rehydrate_failed"
	}
	if token == "" {
		return nil, ""
	}
	if tokenstore.Expired(token, s.now()) {
		s.dropToken(ctx, epoch)
		return nil, "token_expired"
	}

	user, err := s.api.Me(ctx)
	if err != nil && s.refresh && apiclient.IsUnauthorized(err) {
		user, err = s.refreshAndRetry(ctx)
	}
	if err != nil {
		observability.Logger.InfoContext(ctx, "stored token rejected", slog.String("error", err.Error()))
		s.dropToken(ctx, epoch)
		return nil, "rehydrate_failed"
	}
	return &user, "rehydrated"
}

func (s *Store) refreshAndRetry(ctx context.Context) (models.User, error) {
	token, err := s.api.Refresh(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("refresh token: %w", err)
	}
	if token == "" {
		return models.User{}, fmt.Errorf("refresh token: empty token")
	}
	if err := s.tokens.Save(ctx, token); err != nil {
		return models.User{}, err
	}
	observability.RecordSessionEvent("token_refreshed")
	return s.api.Me(ctx)
}

// Login authenticates with credentials. On failure the session is left
// untouched and the error carries a display message.
func (s *Store) Login(ctx context.Context, payload models.LoginPayload) (models.User, error) {
	data, err := s.api.Login(ctx, payload)
	if err != nil {
		observability.RecordSessionEvent("login_failed")
		return models.User{}, models.NewAuthError(apiclient.Message(err, LoginFailedMessage), err)
	}
	if err := s.establish(ctx, data); err != nil {
		return models.User{}, err
	}
	observability.RecordSessionEvent("login")
	return data.User, nil
}

// Register creates an account and logs it in. Role is sent only when set.
func (s *Store) Register(ctx context.Context, payload models.RegisterPayload) (models.User, error) {
	data, err := s.api.Register(ctx, payload)
	if err != nil {
		observability.RecordSessionEvent("register_failed")
		return models.User{}, models.NewAuthError(apiclient.Message(err, RegistrationFailedMessage), err)
	}
	if err := s.establish(ctx, data); err != nil {
		return models.User{}, err
	}
	observability.RecordSessionEvent("register")
	return data.User, nil
}

func (s *Store) establish(ctx context.Context, data models.AuthData) error {
	if err := s.tokens.Save(ctx, data.AccessToken); err != nil {
		return models.NewInternalError(fmt.Errorf("store token: %w", err))
	}
	u := data.User

	s.mu.Lock()
	s.epoch++
	s.user = &u
	s.loading = false
	s.started = true
	s.mu.Unlock()
	return nil
}

// Logout asks the server to drop the token, then clears local state whatever
// the outcome.
func (s *Store) Logout(ctx context.Context) {
	if err := s.api.Logout(ctx); err != nil {
		observability.Logger.DebugContext(ctx, "server logout failed", slog.String("error", err.Error()))
	}
	s.clear(ctx)
	observability.RecordSessionEvent("logout")
}

// Invalidate drops user and token together, for a token the API rejected.
func (s *Store) Invalidate(ctx context.Context) {
	s.clear(ctx)
	observability.RecordSessionEvent("invalidated")
}

func (s *Store) clear(ctx context.Context) {
	s.clearToken(ctx)
	s.mu.Lock()
	s.epoch++
	s.user = nil
	s.loading = false
	s.started = true
	s.mu.Unlock()
}

// dropToken clears a token found unusable during rehydration, unless the
// session was replaced in the meantime.
func (s *Store) dropToken(ctx context.Context, epoch uint64) {
	s.mu.Lock()
	current := s.epoch == epoch
	s.mu.Unlock()
	if current {
		s.clearToken(ctx)
	}
}

func (s *Store) clearToken(ctx context.Context) {
	if err := s.tokens.Clear(ctx); err != nil {
		observability.Logger.WarnContext(ctx, "failed to clear token", slog.String("error", err.Error()))
	}
}
