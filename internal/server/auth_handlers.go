package server

import (
	"log/slog"

	"armp/internal/guard"
	"armp/internal/models"
	"armp/internal/observability"
	"armp/internal/session"
	"armp/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// LoginPage renders the empty login form.
func (s *Server) LoginPage(c *fiber.Ctx) error {
	return s.render(c, fiber.StatusOK, pageLogin, loginPage{})
}

// Login validates the form, signs in and redirects to the role dashboard.
func (s *Server) Login(c *fiber.Ctx) error {
	var form validation.LoginForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid form body")
	}

	if res := validation.Login(form); !res.OK() {
		return s.render(c, fiber.StatusUnprocessableEntity, pageLogin, loginPage{
			Email:  form.Email,
			Errors: res.Map(),
		})
	}

	bs := current(c)
	user, err := bs.store.Login(c.UserContext(), models.LoginPayload{Email: form.Email, Password: form.Password})
	if err != nil {
		observability.Logger.InfoContext(c.UserContext(), "login rejected", slog.String("error", err.Error()))
		return s.render(c, fiber.StatusUnauthorized, pageLogin, loginPage{
			Email: form.Email,
			Error: models.UserMessage(err, session.LoginFailedMessage),
		})
	}

	s.sessions.Reset(bs.id)
	return c.Redirect(guard.HomePath(user.Role), fiber.StatusSeeOther)
}

// RegisterPage renders the empty registration form.
func (s *Server) RegisterPage(c *fiber.Ctx) error {
	return s.render(c, fiber.StatusOK, pageRegister, registerPage{})
}

// Register creates an account without a role, so the server assigns its
// default, then signs in as that account.
func (s *Server) Register(c *fiber.Ctx) error {
	var form validation.RegisterForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid form body")
	}

	if res := validation.Register(form); !res.OK() {
		return s.render(c, fiber.StatusUnprocessableEntity, pageRegister, registerPage{
			Name:   form.Name,
			Email:  form.Email,
			Errors: res.Map(),
		})
	}

	bs := current(c)
	user, err := bs.store.Register(c.UserContext(), models.RegisterPayload{
		Name:     form.Name,
		Email:    form.Email,
		Password: form.Password,
	})
	if err != nil {
		return s.render(c, fiber.StatusConflict, pageRegister, registerPage{
			Name:  form.Name,
			Email: form.Email,
			Error: models.UserMessage(err, session.RegistrationFailedMessage),
		})
	}

	s.sessions.Reset(bs.id)
	return c.Redirect(guard.HomePath(user.Role), fiber.StatusSeeOther)
}

// Logout always succeeds locally and forgets the browser's dashboards.
func (s *Server) Logout(c *fiber.Ctx) error {
	bs := current(c)
	bs.store.Logout(c.UserContext())
	s.sessions.Remove(bs.id)
	return c.Redirect(guard.LoginPath, fiber.StatusSeeOther)
}
