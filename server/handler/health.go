package handler

import (
	"github.com/gofiber/fiber/v2"

	"pkg.world.dev/world-engine/foundry/worldstage"
)

type GetHealthResponse struct {
	IsServerRunning   bool   `json:"isServerRunning"`
	IsGameLoopRunning bool   `json:"isGameLoopRunning"`
	Stage             string `json:"stage"`
}

func GetHealth(stage *worldstage.Manager) func(c *fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		current := stage.Current()
		return ctx.JSON(GetHealthResponse{
			IsServerRunning:   true,
			IsGameLoopRunning: current == worldstage.Running,
			Stage:             string(current),
		})
	}
}
