package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// ErrorResponse is the body of every failed request. Relaying observers decode it to report why
// the world rejected an event.
type ErrorResponse struct {
	Error Error `json:"error"`
}

type Error struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
	Path    string `json:"path"`
	// Retryable is set when the world was shutting down or did not apply the event in time, so
	// the same request may succeed later.
	Retryable bool `json:"retryable,omitempty"`
}

func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	if code >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Int("status", code).Msg("request failed")
	}

	return c.Status(code).JSON(ErrorResponse{Error: Error{
		Message:   err.Error(),
		Status:    code,
		Path:      c.Path(),
		Retryable: code == fiber.StatusServiceUnavailable || code == fiber.StatusGatewayTimeout,
	}})
}
