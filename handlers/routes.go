// handlers/routes.go
package handlers

import (
	"cuearena/middleware"
	"cuearena/services"
	"cuearena/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

type RoomHandler struct {
	gw  *services.ConnectionGateway
	log zerolog.Logger
}

// SetupRoutes mounts the websocket endpoint, the public room lookup and the token-guarded
// admin routes.
func SetupRoutes(app *fiber.App, gw *services.ConnectionGateway, serviceToken string, log zerolog.Logger) {
	h := &RoomHandler{gw: gw, log: log.With().Str("component", "http").Logger()}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/rooms/:code", h.GetRoom)

	admin := app.Group("/admin", middleware.ServiceTokenAuth(serviceToken, log))
	admin.Get("/stats", h.GetStats)

	app.Use("/ws", middleware.WebSocketUpgrade())
	app.Get("/ws", SocketHandler(gw, log))
}

func (h *RoomHandler) GetRoom(c *fiber.Ctx) error {
	code := utils.NormalizeRoomCode(c.Params("code"))
	if !utils.ValidRoomCode(code) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid room code"})
	}

	snap, found, err := h.gw.RoomSnapshot(c.UserContext(), code)
	if err != nil {
		h.log.Error().Err(err).Str("room_code", code).Msg("failed to read room")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service unavailable"})
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "room not found"})
	}
	return c.JSON(snap)
}

func (h *RoomHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.gw.Stats(c.UserContext())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read stats")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service unavailable"})
	}
	return c.JSON(stats)
}
