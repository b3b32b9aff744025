package confirm

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rmakarov/baraholka-api/internal/config"
	"github.com/rmakarov/baraholka-api/internal/db"
	"github.com/rmakarov/baraholka-api/internal/settlement"
	"github.com/rmakarov/baraholka-api/internal/utils"
)

// ConfirmService представляет сервис подтверждения сделок: продавец после
// встречи фиксирует итог, покупатель соглашается или оспаривает, по
// истечении срока ответ засчитывается автоматически.
type ConfirmService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
	engine     *settlement.Engine
}

// NewConfirmService создает новый экземпляр ConfirmService
func NewConfirmService(cfg *config.Config, engine *settlement.Engine) *ConfirmService {
	return &ConfirmService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		engine:     engine,
	}
}

func currentUserID(c fiber.Ctx) (uuid.UUID, bool) {
	raw, ok := c.Locals("userID").(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// CreateConfirm создает запрос подтверждения по состоявшейся встрече
func (s *ConfirmService) CreateConfirm(c fiber.Ctx) error {
	sellerID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	var requestData struct {
		MeetupRequestID    string  `json:"meetup_request_id"`
		ItemID             string  `json:"item_id"`
		ChatID             string  `json:"chat_id"`
		IsSuccessful       bool    `json:"is_successful"`
		FinalPrice         *int64  `json:"final_price"`
		SellerNotes        string  `json:"seller_notes"`
		FailureReason      *string `json:"failure_reason"`
		FailureReasonNotes *string `json:"failure_reason_notes"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	meetupID, err := uuid.Parse(requestData.MeetupRequestID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID встречи"})
	}
	itemID, err := uuid.Parse(requestData.ItemID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}
	chatID, err := uuid.Parse(requestData.ChatID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID чата"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	cr, err := s.engine.CreateConfirm(ctx, settlement.CreateConfirmInput{
		SellerID:           sellerID,
		MeetupRequestID:    meetupID,
		ItemID:             itemID,
		ChatID:             chatID,
		IsSuccessful:       requestData.IsSuccessful,
		FinalPrice:         requestData.FinalPrice,
		SellerNotes:        requestData.SellerNotes,
		FailureReason:      requestData.FailureReason,
		FailureReasonNotes: requestData.FailureReasonNotes,
	})
	if err != nil {
		return c.Status(settlement.StatusOf(err)).JSON(fiber.Map{"error": settlement.ClientMessage(err)})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"confirm": cr,
	})
}

// RespondConfirm фиксирует ответ покупателя на запрос подтверждения
func (s *ConfirmService) RespondConfirm(c fiber.Ctx) error {
	buyerID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	confirmID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID подтверждения"})
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

	cr, err := s.engine.RespondConfirm(ctx, buyerID, confirmID, requestData.Action == "accept")
	if err != nil {
		return c.Status(settlement.StatusOf(err)).JSON(fiber.Map{"error": settlement.ClientMessage(err)})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"confirm": cr,
	})
}

// CancelConfirm отзывает запрос подтверждения; доступно только продавцу
func (s *ConfirmService) CancelConfirm(c fiber.Ctx) error {
	sellerID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	confirmID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID подтверждения"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	cr, err := s.engine.CancelConfirm(ctx, sellerID, confirmID)
	if err != nil {
		return c.Status(settlement.StatusOf(err)).JSON(fiber.Map{"error": settlement.ClientMessage(err)})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"confirm": cr,
	})
}

// Status сообщает продавцу, можно ли отправить запрос подтверждения
func (s *ConfirmService) Status(c fiber.Ctx) error {
	sellerID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	chatID, err := uuid.Parse(c.Query("chat_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID чата"})
	}
	itemID, err := uuid.Parse(c.Query("item_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	st, err := s.engine.Status(ctx, sellerID, chatID, itemID)
	if err != nil {
		return c.Status(settlement.StatusOf(err)).JSON(fiber.Map{"error": settlement.ClientMessage(err)})
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"can_confirm": st.CanConfirm,
		"reason_code": st.ReasonCode,
		"pending":     st.Pending,
		"latest":      st.Latest,
	})
}

// Sweep принудительно закрывает просроченные запросы подтверждения.
// Обычно они дожимаются лениво при чтении, этот маршрут для крона.
func (s *ConfirmService) Sweep(c fiber.Ctx) error {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Недопустимый лимит"})
		}
		limit = n
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	processed, err := s.engine.Sweep(ctx, limit)
	if err != nil {
		log.Printf("Ошибка обработки просроченных подтверждений: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка обработки"})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"processed": processed,
	})
}
