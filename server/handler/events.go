package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/foundry/events"
)

func WebSocketUpgrader(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return eris.Wrap(c.Next(), "")
	}
	return fiber.ErrUpgradeRequired
}

// WebSocketEvents streams machine snapshots. The latest snapshot of every machine is replayed
// when an observer connects.
func WebSocketEvents(hub *events.Hub) func(c *fiber.Ctx) error {
	return websocket.New(hub.NewWebSocketHandler())
}
