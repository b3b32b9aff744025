package listing

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rmakarov/baraholka-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API объявлений
func (s *ListingService) SetupRoutes(app *fiber.App) {
	// Группа для API объявлений
	api := app.Group("/api/listings")

	// Защищенные маршруты (требуют авторизации)
	api.Use(middleware.AuthMiddleware(s.jwtService))

	// Маршрут для создания объявления
	api.Post("/", s.CreateListing)

	// Маршрут для получения своих объявлений
	api.Get("/my", s.GetMyListings)

	// Маршрут для получения одного объявления
	api.Get("/:id", s.GetListing)

	// Маршрут для удаления объявления
	api.Delete("/:id", s.DeleteListing)
}
