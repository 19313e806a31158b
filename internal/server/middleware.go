package server

import (
	"armp/internal/guard"
	"armp/internal/models"
	"armp/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const localSession = "browserSession"

// BrowserSession resolves the browser session from its cookie, issuing a new
// id when the cookie is missing or malformed, and rehydrates it on first use.
func (s *Server) BrowserSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid := c.Cookies(s.config.SessionCookieName)
		if _, err := uuid.Parse(sid); err != nil {
			sid = uuid.NewString()
			c.Cookie(&fiber.Cookie{
				Name:     s.config.SessionCookieName,
				Value:    sid,
				Path:     "/",
				HTTPOnly: true,
				Secure:   s.config.SessionCookieSecure,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}

		ctx := observability.WithSessionID(c.UserContext(), sid)
		c.SetUserContext(ctx)

		bs := s.sessions.Get(sid)
		bs.store.LoadSession(ctx)
		c.Locals(localSession, bs)
		if role := bs.store.State().Role(); role != "" {
			c.Locals("role", string(role))
		}
		return c.Next()
	}
}

// current is the browser session attached by BrowserSession.
func current(c *fiber.Ctx) *browserSession {
	bs, _ := c.Locals(localSession).(*browserSession)
	return bs
}

// GuestOnly applies the guest guard.
func (s *Server) GuestOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return s.enforce(c, guard.Guest(current(c).store.State()))
	}
}

// RequireRole applies the access guard with allowed as the allow-list.
func (s *Server) RequireRole(allowed ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return s.enforce(c, guard.Access(current(c).store.State(), allowed...))
	}
}

func (s *Server) enforce(c *fiber.Ctx, d guard.Decision) error {
	switch d.Action {
	case guard.Wait:
		return s.render(c, fiber.StatusOK, pageWaiting, nil)
	case guard.Redirect:
		return c.Redirect(d.Location, fiber.StatusSeeOther)
	default:
		return c.Next()
	}
}

// signedOut reports whether the session was invalidated while handling the
// request, typically by a 401 from the API. The caller should redirect.
func signedOut(c *fiber.Ctx) bool {
	return !current(c).store.State().Authenticated()
}
