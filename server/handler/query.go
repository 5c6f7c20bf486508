package handler

import (
	"github.com/gofiber/fiber/v2"

	"pkg.world.dev/world-engine/foundry/search"
)

type QueryMachinesResponse struct {
	Machines []search.Document `json:"machines"`
}

// PostQueryMachines searches the machines as of the last tick.
func PostQueryMachines(w World) func(c *fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		req := new(search.Param)
		if err := ctx.BodyParser(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		docs, err := w.Search(*req)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if docs == nil {
			docs = make([]search.Document, 0)
		}
		return ctx.JSON(QueryMachinesResponse{Machines: docs})
	}
}
