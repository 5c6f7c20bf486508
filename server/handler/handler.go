// Package handler holds the fiber handlers of the foundry HTTP server.
package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/registry"
	"pkg.world.dev/world-engine/foundry/search"
	"pkg.world.dev/world-engine/foundry/world"
)

// eventTimeout bounds how long a request waits for the tick that applies its event.
const eventTimeout = 10 * time.Second

// World is the part of the world the handlers use.
type World interface {
	Do(ctx context.Context, ev world.Event) (any, error)
	Search(p search.Param) ([]search.Document, error)
	Layouts() ([]machine.Layout, error)
	CurrentTick() uint64
	Registry() *registry.Registry
}

// EventResponse is returned for every applied event.
type EventResponse struct {
	Tick   uint64 `json:"tick"`
	Result any    `json:"result,omitempty"`
}

func doEvent(ctx *fiber.Ctx, w World, ev world.Event) error {
	reqCtx, cancel := context.WithTimeout(ctx.UserContext(), eventTimeout)
	defer cancel()

	value, err := w.Do(reqCtx, ev)
	if err != nil {
		return eventError(err)
	}
	return ctx.JSON(EventResponse{Tick: w.CurrentTick(), Result: value})
}

// eventError maps a rejected event to the HTTP status describing why.
func eventError(err error) error {
	code := fiber.StatusInternalServerError
	switch {
	case eris.Is(err, world.ErrMachineNotFound):
		code = fiber.StatusNotFound
	case eris.Is(err, world.ErrMachineExists):
		code = fiber.StatusConflict
	case eris.Is(err, world.ErrNotUsable):
		code = fiber.StatusForbidden
	case eris.Is(err, world.ErrInvalidRedstoneMode),
		eris.Is(err, world.ErrNoEnergyStorage),
		eris.Is(err, machine.ErrUnknownBlueprint),
		eris.Is(err, registry.ErrUnknownItem),
		eris.Is(err, registry.ErrBlacklisted):
		code = fiber.StatusBadRequest
	case eris.Is(err, world.ErrWorldStopped):
		code = fiber.StatusServiceUnavailable
	case eris.Is(err, context.DeadlineExceeded):
		code = fiber.StatusGatewayTimeout
	}
	return fiber.NewError(code, err.Error())
}

// parseBody decodes a JSON body into v. An empty body leaves v untouched.
func parseBody(ctx *fiber.Ctx, v any) error {
	if len(ctx.Body()) == 0 {
		return nil
	}
	if err := ctx.BodyParser(v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to parse request body: "+err.Error())
	}
	return nil
}
