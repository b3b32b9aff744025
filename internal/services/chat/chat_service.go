package chat

import (
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rmakarov/baraholka-api/internal/config"
	"github.com/rmakarov/baraholka-api/internal/db"
	"github.com/rmakarov/baraholka-api/internal/settlement"
	"github.com/rmakarov/baraholka-api/internal/storage"
	"github.com/rmakarov/baraholka-api/internal/utils"
)

// ChatService представляет сервис чатов между покупателем и продавцом
type ChatService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
	chats      *storage.ChatStore
}

// NewChatService создает новый экземпляр ChatService
func NewChatService(cfg *config.Config, chats *storage.ChatStore) *ChatService {
	return &ChatService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		chats:      chats,
	}
}

// CreateChat создает чат по объявлению или возвращает существующий
func (s *ChatService) CreateChat(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	senderID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	var requestData struct {
		ItemID     *string `json:"item_id"`
		ReceiverID string  `json:"receiver_id"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	receiverID, err := uuid.Parse(requestData.ReceiverID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID получателя"})
	}
	if receiverID == senderID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Нельзя создать чат с самим собой"})
	}

	var itemID *uuid.UUID
	if requestData.ItemID != nil && *requestData.ItemID != "" {
		id, err := uuid.Parse(*requestData.ItemID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
		}
		itemID = &id
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	chat, created, err := s.chats.GetOrCreate(ctx, itemID, senderID, receiverID)
	if err != nil {
		log.Printf("Ошибка создания чата: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка создания чата"})
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"chat":    chat,
		"created": created,
	})
}

// GetChats возвращает список чатов текущего пользователя
func (s *ChatService) GetChats(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	chats, err := s.chats.ListForUser(ctx, userUUID)
	if err != nil {
		log.Printf("Ошибка получения чатов: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения чатов"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"chats":   chats,
		"count":   len(chats),
	})
}

// GetChatMessages возвращает сообщения чата и помечает их прочитанными
func (s *ChatService) GetChatMessages(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID чата"})
	}

	// Пагинация: before — ID сообщения, с которого листаем назад
	var before *uuid.UUID
	if raw := c.Query("before"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат параметра before"})
		}
		before = &id
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Недопустимый лимит"})
		}
		limit = n
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, settlement.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Чат не найден"})
		}
		log.Printf("Ошибка получения чата: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения чата"})
	}
	if !chat.HasParty(userUUID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "У вас нет доступа к этому чату"})
	}

	messages, err := s.chats.Messages(ctx, chatID, before, limit)
	if err != nil {
		log.Printf("Ошибка получения сообщений: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения сообщений"})
	}

	// Сбрасываем счетчик непрочитанных у читателя
	if err := s.chats.MarkRead(ctx, chatID, userUUID); err != nil {
		log.Printf("Ошибка сброса непрочитанных в чате %s: %v", chatID, err)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"messages": messages,
		"count":    len(messages),
	})
}

// SendMessage отправляет текстовое сообщение в чат
func (s *ChatService) SendMessage(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	senderID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID чата"})
	}

	var requestData struct {
		Text string `json:"text"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}
	if requestData.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Сообщение не может быть пустым"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, settlement.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Чат не найден"})
		}
		log.Printf("Ошибка получения чата: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения чата"})
	}
	if !chat.HasParty(senderID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "У вас нет доступа к этому чату"})
	}

	message, err := s.chats.AppendText(ctx, chatID, senderID, requestData.Text)
	if err != nil {
		log.Printf("Ошибка отправки сообщения: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка отправки сообщения"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": message,
	})
}
