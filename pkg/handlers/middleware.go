package handlers

import (
	"fmt"
	"time"

	"calendarservice/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"
)

// NewApp builds the fiber application with middleware and routes.
func NewApp(appName string, h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(RequestLogger())
	h.Register(app)
	return app
}

func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("duration", time.Since(start)).
			Msg("request")
		return err
	}
}

// RequireIdentity puts the request's identity in c.Locals: the one saved in the browser
// session at login, else the configured default.
func (h *Handler) RequireIdentity(c *fiber.Ctx) error {
	sess, err := h.sessions.Get(c)
	if err != nil {
		return h.fail(c, fmt.Errorf("loading session: %w", err), "Failed to load session.")
	}
	identity, _ := sess.Get(identityKey).(string)
	if identity == "" {
		identity = h.opts.DefaultIdentity
	}
	if identity == "" {
		return h.fail(c, apperr.Authorization("identity", apperr.ErrCredentialNotFound), "Not signed in.")
	}
	c.Locals(identityKey, identity)
	return c.Next()
}

// requireEventID rejects a delete without an event id before any identity lookup.
func (h *Handler) requireEventID(c *fiber.Ctx) error {
	if c.Params("eventId") == "" {
		err := apperr.ClientInput("delete-event", apperr.ErrMissingEventID)
		return h.failWith(c, fiber.StatusBadRequest, err, "Event ID is required to delete an event.")
	}
	return c.Next()
}

func identityOf(c *fiber.Ctx) string {
	identity, _ := c.Locals(identityKey).(string)
	return identity
}

// fail logs err and answers with the status its kind maps to.
func (h *Handler) fail(c *fiber.Ctx, err error, msg string) error {
	return h.failWith(c, statusFor(err), err, msg)
}

func (h *Handler) failWith(c *fiber.Ctx, status int, err error, msg string) error {
	log.Error().
		Err(err).
		Str("route", c.Path()).
		Str("identity", identityOf(c)).
		Str("kind", apperr.KindOf(err).String()).
		Int("status", status).
		Msg(msg)

	if status == fiber.StatusUnauthorized {
		return sendHTML(c, status, reauthPage(msg))
	}
	return c.Status(status).SendString(msg)
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindClientInput:
		return fiber.StatusBadRequest
	case apperr.KindAuthorization:
		return fiber.StatusUnauthorized
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}
