package purchase

import (
	"log"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rmakarov/baraholka-api/internal/config"
	"github.com/rmakarov/baraholka-api/internal/db"
	"github.com/rmakarov/baraholka-api/internal/storage"
	"github.com/rmakarov/baraholka-api/internal/utils"
)

// PurchaseService отдает историю покупок пользователя
type PurchaseService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
	purchases  *storage.PurchaseStore
}

// NewPurchaseService создает новый экземпляр PurchaseService
func NewPurchaseService(cfg *config.Config, purchases *storage.PurchaseStore) *PurchaseService {
	return &PurchaseService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		purchases:  purchases,
	}
}

// GetHistory возвращает объединенную историю покупок: записи журнала
// сделок плюс старые транзакции, отсортированные по дате
func (s *PurchaseService) GetHistory(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	buyerID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	items, err := s.purchases.History(ctx, buyerID)
	if err != nil {
		log.Printf("Ошибка получения истории покупок: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения истории покупок"})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"purchases": items,
		"count":     len(items),
	})
}
