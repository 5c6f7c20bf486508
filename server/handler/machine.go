package handler

import (
	"github.com/gofiber/fiber/v2"

	"pkg.world.dev/world-engine/foundry/events"
	"pkg.world.dev/world-engine/foundry/types"
	"pkg.world.dev/world-engine/foundry/world"
)

func keyParam(ctx *fiber.Ctx) (types.Key, error) {
	key, err := types.ParseKey(ctx.Params("key"))
	if err != nil {
		return types.Key{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return key, nil
}

// machineEvent decodes the body into E, sets its key from the route and submits it.
func machineEvent[E world.Event](w World, setKey func(*E, types.Key)) func(c *fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		key, err := keyParam(ctx)
		if err != nil {
			return err
		}
		ev := new(E)
		if err := parseBody(ctx, ev); err != nil {
			return err
		}
		setKey(ev, key)
		return doEvent(ctx, w, *ev)
	}
}

// GetMachine serves the latest snapshot streamed for the machine at :key.
func GetMachine(hub *events.Hub) func(c *fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		key, err := keyParam(ctx)
		if err != nil {
			return err
		}
		bz, ok := hub.Latest(key)
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no snapshot of machine "+key.String())
		}
		ctx.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return ctx.Send(bz)
	}
}

func PostPlace(w World) func(c *fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		var ev world.Place
		if err := parseBody(ctx, &ev); err != nil {
			return err
		}
		if ev.Kind == "" {
			return fiber.NewError(fiber.StatusBadRequest, "kind is required")
		}
		return doEvent(ctx, w, ev)
	}
}

func DeleteMachine(w World) func(c *fiber.Ctx) error {
	return machineEvent(w, func(e *world.Remove, k types.Key) { e.Key = k })
}

func PostConfigs(w World) func(c *fiber.Ctx) error {
	return machineEvent(w, func(e *world.SaveConfigs, k types.Key) { e.Key = k })
}

func PostClaim(w World) func(c *fiber.Ctx) error {
	return machineEvent(w, func(e *world.Claim, k types.Key) { e.Key = k })
}

func PostUnclaim(w World) func(c *fiber.Ctx) error {
	return machineEvent(w, func(e *world.Unclaim, k types.Key) { e.Key = k })
}

func PostPower(w World) func(c *fiber.Ctx) error {
	return machineEvent(w, func(e *world.SetPower, k types.Key) { e.Key = k })
}

func PostEnergy(w World) func(c *fiber.Ctx) error {
	return machineEvent(w, func(e *world.Charge, k types.Key) { e.Key = k })
}

func PostInsert(w World) func(c *fiber.Ctx) error {
	return machineEvent(w, func(e *world.Insert, k types.Key) { e.Key = k })
}

func PostTake(w World) func(c *fiber.Ctx) error {
	return machineEvent(w, func(e *world.Take, k types.Key) { e.Key = k })
}

func PostAppraise(w World) func(c *fiber.Ctx) error {
	return machineEvent(w, func(e *world.Appraise, k types.Key) { e.Key = k })
}
