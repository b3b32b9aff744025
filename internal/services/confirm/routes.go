package confirm

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rmakarov/baraholka-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API подтверждения сделок
func (s *ConfirmService) SetupRoutes(app *fiber.App) {
	// Группа для API подтверждений
	api := app.Group("/api/confirms")

	// Защищенные маршруты (требуют авторизации)
	api.Use(middleware.AuthMiddleware(s.jwtService))

	// Маршрут для создания запроса подтверждения
	api.Post("/", s.CreateConfirm)

	// Проверка возможности отправить запрос (для кнопки в чате)
	api.Get("/status", s.Status)

	// Маршрут для ответа покупателя
	api.Post("/:id/respond", s.RespondConfirm)

	// Маршрут для отзыва запроса продавцом
	api.Post("/:id/cancel", s.CancelConfirm)

	// Принудительное закрытие просроченных запросов
	api.Post("/sweep", s.Sweep)
}
