package handler

import (
	"github.com/gofiber/fiber/v2"

	"pkg.world.dev/world-engine/foundry/registry"
	"pkg.world.dev/world-engine/foundry/world"
)

type GetRegistryResponse struct {
	Items []registry.Entry `json:"items"`
}

func GetRegistry(w World) func(c *fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		return ctx.JSON(GetRegistryResponse{Items: w.Registry().Entries()})
	}
}

// PostRecalculate derives the matter table again. The new table is installed a few ticks later,
// once the background calculation finished.
func PostRecalculate(w World) func(c *fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		return doEvent(ctx, w, world.Recalculate{})
	}
}

func PostRegister(w World) func(c *fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		var ev world.RegisterMatter
		if err := ctx.BodyParser(&ev); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return doEvent(ctx, w, ev)
	}
}

func PostBlacklist(w World) func(c *fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		var ev world.Blacklist
		if err := ctx.BodyParser(&ev); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return doEvent(ctx, w, ev)
	}
}
