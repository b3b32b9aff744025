package meetup

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rmakarov/baraholka-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API встреч
func (s *MeetupService) SetupRoutes(app *fiber.App) {
	// Группа для API встреч
	api := app.Group("/api/meetups")

	// Защищенные маршруты (требуют авторизации)
	api.Use(middleware.AuthMiddleware(s.jwtService))

	// Маршрут для создания предложения встречи
	api.Post("/", s.CreateMeetup)

	// Маршрут для получения встреч покупателя
	api.Get("/", s.GetMyMeetups)

	// Маршрут для ответа покупателя
	api.Post("/:id/respond", s.RespondMeetup)

	// Маршрут для отмены встречи
	api.Post("/:id/cancel", s.CancelMeetup)

	// Проверка наличия живых встреч по объявлению
	api.Get("/item/:item_id/active", s.CheckActive)
}
