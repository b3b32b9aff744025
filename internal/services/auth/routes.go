package auth

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes настраивает маршруты для API авторизации
func (s *AuthService) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/auth")

	// Обмен Telegram initData на JWT
	api.Post("/telegram", s.TelegramAuthHandler)
}
