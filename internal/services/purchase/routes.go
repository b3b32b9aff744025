package purchase

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rmakarov/baraholka-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API истории покупок
func (s *PurchaseService) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/purchases")

	api.Use(middleware.AuthMiddleware(s.jwtService))

	// Маршрут для получения истории покупок
	api.Get("/", s.GetHistory)
}
