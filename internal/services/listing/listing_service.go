package listing

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rmakarov/baraholka-api/internal/config"
	"github.com/rmakarov/baraholka-api/internal/db"
	"github.com/rmakarov/baraholka-api/internal/models"
	"github.com/rmakarov/baraholka-api/internal/settlement"
	"github.com/rmakarov/baraholka-api/internal/storage"
	"github.com/rmakarov/baraholka-api/internal/utils"
)

// ListingService представляет сервис для работы с объявлениями
type ListingService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
	listings   *storage.ListingStore
}

// NewListingService создает новый экземпляр ListingService
func NewListingService(cfg *config.Config, listings *storage.ListingStore) *ListingService {
	return &ListingService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		listings:   listings,
	}
}

// CreateListing обрабатывает создание нового объявления
func (s *ListingService) CreateListing(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	// Извлекаем данные из запроса
	var requestData struct {
		Title             string `json:"title"`
		Description       string `json:"description"`
		Price             *int64 `json:"price"`
		IsPriceNegotiable bool   `json:"is_price_negotiable"`
		AllowTrade        bool   `json:"allow_trade"`
		MeetLocation      string `json:"meet_location"`
	}

	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	// Валидация обязательных полей
	if requestData.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Название обязательно"})
	}
	if requestData.Price != nil && *requestData.Price < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Цена не может быть отрицательной"})
	}

	listing := &models.Listing{
		ID:                uuid.New(),
		UserID:            userUUID,
		Title:             requestData.Title,
		Description:       requestData.Description,
		Price:             requestData.Price,
		IsPriceNegotiable: requestData.IsPriceNegotiable,
		AllowTrade:        requestData.AllowTrade,
		MeetLocation:      requestData.MeetLocation,
		Status:            models.ListingStatusActive,
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	if err := s.listings.Create(ctx, listing); err != nil {
		log.Printf("Ошибка создания объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка создания объявления"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"listing": listing,
	})
}

// GetMyListings возвращает объявления текущего пользователя
func (s *ListingService) GetMyListings(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	listings, err := s.listings.ListForUser(ctx, userUUID)
	if err != nil {
		log.Printf("Ошибка получения объявлений: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения объявлений"})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"listings": listings,
		"count":    len(listings),
	})
}

// GetListing возвращает одно объявление по ID
func (s *ListingService) GetListing(c fiber.Ctx) error {
	listingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, settlement.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено"})
		}
		log.Printf("Ошибка получения объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения объявления"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"listing": listing,
	})
}

// DeleteListing помечает объявление удаленным. Проданные объявления
// не удаляются, они остаются в истории покупок.
func (s *ListingService) DeleteListing(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	listingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	if err := s.listings.SoftDelete(ctx, listingID, userUUID); err != nil {
		if errors.Is(err, settlement.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено или уже продано"})
		}
		log.Printf("Ошибка удаления объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка удаления объявления"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Объявление удалено",
	})
}
