package meetup

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rmakarov/baraholka-api/internal/config"
	"github.com/rmakarov/baraholka-api/internal/db"
	"github.com/rmakarov/baraholka-api/internal/models"
	"github.com/rmakarov/baraholka-api/internal/settlement"
	"github.com/rmakarov/baraholka-api/internal/utils"
)

// Количество попыток вставки при конфликте кода проверки
const codeRetryLimit = 5

// chatDirectory — доступ к чатам, нужный менеджеру встреч.
type chatDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Chat, error)
}

// MeetupService представляет сервис назначения встреч: продавец предлагает
// личную встречу по объявлению, покупатель принимает или отклоняет,
// любая сторона может отменить.
type MeetupService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
	meetups    settlement.MeetupStore
	catalog    settlement.Catalog
	chats      chatDirectory
	fx         *settlement.Effects

	// now подменяется в тестах
	now func() time.Time
}

// NewMeetupService создает новый экземпляр MeetupService
func NewMeetupService(cfg *config.Config, meetups settlement.MeetupStore, catalog settlement.Catalog, chats chatDirectory, fx *settlement.Effects) *MeetupService {
	return &MeetupService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		meetups:    meetups,
		catalog:    catalog,
		chats:      chats,
		fx:         fx,
		now:        time.Now,
	}
}

// CreateMeetup создает предложение встречи по объявлению
func (s *MeetupService) CreateMeetup(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	sellerID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	var requestData struct {
		ItemID               string    `json:"item_id"`
		ChatID               string    `json:"chat_id"`
		MeetingAt            time.Time `json:"meeting_at"`
		MeetLocation         string    `json:"meet_location"`
		Description          string    `json:"description"`
		NegotiatedPrice      *int64    `json:"negotiated_price"`
		IsTrade              bool      `json:"is_trade"`
		TradeItemDescription *string   `json:"trade_item_description"`
	}

	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	itemID, err := uuid.Parse(requestData.ItemID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}
	chatID, err := uuid.Parse(requestData.ChatID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID чата"})
	}
	if requestData.MeetLocation == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Не указано место встречи"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	// Проверяем, что объявление принадлежит продавцу
	item, err := s.catalog.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, settlement.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено"})
		}
		log.Printf("Ошибка запроса объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки объявления"})
	}
	if item.UserID != sellerID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Встречу может предложить только владелец объявления"})
	}

	// Покупатель — вторая сторона чата
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, settlement.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Чат не найден"})
		}
		log.Printf("Ошибка запроса чата: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки чата"})
	}
	if !chat.HasParty(sellerID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "У вас нет доступа к этому чату"})
	}
	buyerID := chat.OtherParty(sellerID)
	if buyerID == sellerID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Нельзя назначить встречу самому себе"})
	}

	now := s.now()
	if err := validateMeetingTime(requestData.MeetingAt, now); err != nil {
		return c.Status(settlement.StatusOf(err)).JSON(fiber.Map{"error": settlement.ClientMessage(err)})
	}
	if err := validateTerms(requestData.NegotiatedPrice, requestData.IsTrade,
		requestData.TradeItemDescription, item.IsPriceNegotiable, item.AllowTrade); err != nil {
		return c.Status(settlement.StatusOf(err)).JSON(fiber.Map{"error": settlement.ClientMessage(err)})
	}

	// Опциональный запрет второй живой встречи по одному объявлению
	if s.cfg != nil && s.cfg.StrictMeetupExclusivity {
		live, err := s.meetups.HasLive(ctx, itemID, uuid.Nil)
		if err != nil {
			log.Printf("Ошибка проверки живых встреч: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки встреч"})
		}
		if live {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "По этому объявлению уже есть живая встреча"})
		}
	}

	m := &models.MeetupRequest{
		ID:                      uuid.New(),
		ItemID:                  itemID,
		SellerID:                sellerID,
		BuyerID:                 buyerID,
		ChatID:                  chatID,
		MeetLocation:            requestData.MeetLocation,
		MeetingAt:               requestData.MeetingAt,
		Description:             requestData.Description,
		NegotiatedPrice:         requestData.NegotiatedPrice,
		IsTrade:                 requestData.IsTrade,
		TradeItemDescription:    requestData.TradeItemDescription,
		SnapshotPriceNegotiable: item.IsPriceNegotiable,
		SnapshotTradeAllowed:    item.AllowTrade,
		SnapshotMeetLocation:    item.MeetLocation,
		Status:                  models.MeetupStatusPending,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	// Генерируем код проверки; уникальность среди живых встреч обеспечивает
	// индекс, при конфликте пробуем новый код
	created := false
	for attempt := 0; attempt < codeRetryLimit; attempt++ {
		code, err := utils.GenerateMeetupCode()
		if err != nil {
			log.Printf("Ошибка генерации кода проверки: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка создания встречи"})
		}
		m.VerificationCode = code

		err = s.meetups.Create(ctx, m)
		if err == nil {
			created = true
			break
		}
		if errors.Is(err, settlement.ErrCodeInUse) {
			continue
		}
		log.Printf("Ошибка создания встречи: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка создания встречи"})
	}
	if !created {
		log.Printf("Не удалось подобрать уникальный код проверки за %d попыток", codeRetryLimit)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка создания встречи"})
	}

	// Помечаем объявление как «в процессе сделки»
	if err := s.catalog.SetStatus(ctx, itemID, models.ListingStatusActive, models.ListingStatusPending); err != nil {
		log.Printf("Ошибка пометки объявления %s: %v", itemID, err)
		// Не возвращаем ошибку, т.к. основная функциональность выполнена
	}

	s.fx.ScheduleRequested(ctx, m)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":           true,
		"request_id":        m.ID,
		"verification_code": m.VerificationCode,
		"status":            m.Status,
	})
}

// RespondMeetup фиксирует ответ покупателя на предложение встречи
func (s *MeetupService) RespondMeetup(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	buyerID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	meetupID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID встречи"})
	}

	var requestData struct {
		Action string `json:"action"` // accept, decline
	}
	if err := c.Bind().Body(&requestData); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}
	if requestData.Action != "accept" && requestData.Action != "decline" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Недопустимое действие"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	m, err := s.meetups.GetByID(ctx, meetupID)
	if err != nil {
		if errors.Is(err, settlement.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Встреча не найдена"})
		}
		log.Printf("Ошибка запроса встречи: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения встречи"})
	}

	if m.BuyerID != buyerID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Ответить может только покупатель"})
	}
	if m.Status != models.MeetupStatusPending {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Встреча уже обработана"})
	}

	to := models.MeetupStatusAccepted
	if requestData.Action == "decline" {
		to = models.MeetupStatusDeclined
	}
	now := s.now()
	res, err := s.meetups.Transition(ctx, m.ID, to, nil, &now)
	if err != nil {
		log.Printf("Ошибка перехода встречи %s: %v", m.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка обновления встречи"})
	}
	if res == settlement.AlreadyTransitioned {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Встреча уже обработана"})
	}

	m.Status = to
	m.BuyerResponseAt = &now
	s.fx.ScheduleResponded(ctx, m)

	return c.JSON(fiber.Map{
		"success": true,
		"status":  m.Status,
	})
}

// CancelMeetup отменяет встречу; доступно обеим сторонам
func (s *MeetupService) CancelMeetup(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	callerID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	meetupID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID встречи"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	m, err := s.meetups.GetByID(ctx, meetupID)
	if err != nil {
		if errors.Is(err, settlement.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Встреча не найдена"})
		}
		log.Printf("Ошибка запроса встречи: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения встречи"})
	}

	if m.SellerID != callerID && m.BuyerID != callerID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Отменить встречу может только участник сделки"})
	}
	if m.Status == models.MeetupStatusCancelled || m.Status == models.MeetupStatusDeclined {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Встреча уже завершена"})
	}

	res, err := s.meetups.Transition(ctx, m.ID, models.MeetupStatusCancelled, &callerID, nil)
	if err != nil {
		log.Printf("Ошибка отмены встречи %s: %v", m.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка отмены встречи"})
	}
	if res == settlement.AlreadyTransitioned {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Встреча уже завершена"})
	}

	m.Status = models.MeetupStatusCancelled
	m.CanceledBy = &callerID

	// Если по объявлению не осталось живых встреч, возвращаем его в продажу
	live, err := s.meetups.HasLive(ctx, m.ItemID, m.ID)
	if err != nil {
		log.Printf("Ошибка проверки живых встреч по объявлению %s: %v", m.ItemID, err)
	} else if !live {
		if err := s.catalog.SetStatus(ctx, m.ItemID, models.ListingStatusPending, models.ListingStatusActive); err != nil {
			log.Printf("Ошибка возврата объявления %s в продажу: %v", m.ItemID, err)
		}
	}

	s.fx.ScheduleCancelled(ctx, m, callerID)

	return c.JSON(fiber.Map{
		"success": true,
		"status":  m.Status,
	})
}

// CheckActive сообщает, есть ли по объявлению живые встречи
func (s *MeetupService) CheckActive(c fiber.Ctx) error {
	itemID, err := uuid.Parse(c.Params("item_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	live, err := s.meetups.HasLive(ctx, itemID, uuid.Nil)
	if err != nil {
		log.Printf("Ошибка проверки живых встреч: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки встреч"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"active":  live,
	})
}

// GetMyMeetups возвращает встречи покупателя для его кабинета
func (s *MeetupService) GetMyMeetups(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	buyerID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	meetups, err := s.meetups.ListForBuyer(ctx, buyerID)
	if err != nil {
		log.Printf("Ошибка запроса встреч покупателя: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения встреч"})
	}

	// Подгружаем объявления для отображения
	for _, m := range meetups {
		item, err := s.catalog.GetByID(ctx, m.ItemID)
		if err != nil {
			log.Printf("Ошибка получения объявления %s: %v", m.ItemID, err)
			continue
		}
		m.Item = item
	}

	return c.JSON(fiber.Map{
		"success": true,
		"meetups": meetups,
		"count":   len(meetups),
	})
}
