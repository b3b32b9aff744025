package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rmakarov/baraholka-api/internal/models"
	"github.com/rmakarov/baraholka-api/internal/settlement"
	ws "github.com/rmakarov/baraholka-api/internal/websocket"
)

// ChatStore — хранилище чатов и сообщений поверх PostgreSQL. Реализует
// settlement.Messenger: событийные карточки сделки идут через тот же
// механизм, что и обычные сообщения. Подключённым получателям события
// дублируются в WebSocket (best effort).
type ChatStore struct {
	pool *pgxpool.Pool
	hub  *ws.Manager
}

// NewChatStore создает новый экземпляр ChatStore
func NewChatStore(pool *pgxpool.Pool, hub *ws.Manager) *ChatStore {
	return &ChatStore{pool: pool, hub: hub}
}

const chatColumns = `id, item_id, sender_id, receiver_id, last_message_text, last_message_time,
       sender_unread, receiver_unread, sender_first_unread, receiver_first_unread,
       is_active, created_at, updated_at`

func scanChat(row pgx.Row) (*models.Chat, error) {
	var c models.Chat
	var lastText *string
	err := row.Scan(
		&c.ID,
		&c.ItemID,
		&c.SenderID,
		&c.ReceiverID,
		&lastText,
		&c.LastMessageTime,
		&c.SenderUnread,
		&c.ReceiverUnread,
		&c.SenderFirstUnread,
		&c.ReceiverFirstUnread,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settlement.ErrNotFound
		}
		return nil, err
	}
	if lastText != nil {
		c.LastMessageText = *lastText
	}
	return &c, nil
}

// GetByID возвращает чат по ID.
func (s *ChatStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT `+chatColumns+` FROM chats WHERE id = $1
    `, id)
	return scanChat(row)
}

// GetOrCreate возвращает чат между двумя пользователями по объявлению,
// создавая его при отсутствии.
func (s *ChatStore) GetOrCreate(ctx context.Context, itemID *uuid.UUID, senderID, receiverID uuid.UUID) (*models.Chat, bool, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT `+chatColumns+` FROM chats
        WHERE ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
          AND (item_id = $3 OR ($3::uuid IS NULL AND item_id IS NULL))
        LIMIT 1
    `, senderID, receiverID, itemID)
	chat, err := scanChat(row)
	if err == nil {
		return chat, false, nil
	}
	if !errors.Is(err, settlement.ErrNotFound) {
		return nil, false, err
	}

	now := time.Now()
	chat = &models.Chat{
		ID:         uuid.New(),
		ItemID:     itemID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = s.pool.Exec(ctx, `
        INSERT INTO chats (id, item_id, sender_id, receiver_id, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, chat.ID, chat.ItemID, chat.SenderID, chat.ReceiverID, chat.IsActive, chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		return nil, false, err
	}
	return chat, true, nil
}

// ListForUser возвращает чаты пользователя со счётчиком его непрочитанного.
func (s *ChatStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Chat, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+chatColumns+` FROM chats
        WHERE sender_id = $1 OR receiver_id = $1
        ORDER BY last_message_time DESC NULLS LAST, created_at DESC
    `, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		if c.SenderID == userID {
			c.UnreadCount = c.SenderUnread
		} else {
			c.UnreadCount = c.ReceiverUnread
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// Messages возвращает сообщения чата с пагинацией назад от указанного ID.
func (s *ChatStore) Messages(ctx context.Context, chatID uuid.UUID, before *uuid.UUID, limit int) ([]*models.Message, error) {
	var rows pgx.Rows
	var err error
	if before != nil {
		rows, err = s.pool.Query(ctx, `
            SELECT id, chat_id, sender_id, kind, text, metadata, is_read, created_at, updated_at
            FROM messages
            WHERE chat_id = $1 AND id < $2
            ORDER BY created_at DESC
            LIMIT $3
        `, chatID, before, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
            SELECT id, chat_id, sender_id, kind, text, metadata, is_read, created_at, updated_at
            FROM messages
            WHERE chat_id = $1
            ORDER BY created_at DESC
            LIMIT $2
        `, chatID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		var m models.Message
		var metadata []byte
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Kind, &m.Text, &metadata,
			&m.IsRead, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			var meta models.EventMeta
			if err := json.Unmarshal(metadata, &meta); err != nil {
				return nil, fmt.Errorf("ошибка разбора метаданных сообщения %s: %w", m.ID, err)
			}
			m.Metadata = &meta
		}
		result = append(result, &m)
	}
	return result, rows.Err()
}

// MarkRead отмечает чужие сообщения прочитанными и сбрасывает счётчик и
// указатель первого непрочитанного для читателя.
func (s *ChatStore) MarkRead(ctx context.Context, chatID, readerID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        UPDATE messages SET is_read = true
        WHERE chat_id = $1 AND sender_id != $2 AND is_read = false
    `, chatID, readerID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
        UPDATE chats
        SET sender_unread = CASE WHEN sender_id = $1 THEN 0 ELSE sender_unread END,
            sender_first_unread = CASE WHEN sender_id = $1 THEN NULL ELSE sender_first_unread END,
            receiver_unread = CASE WHEN receiver_id = $1 THEN 0 ELSE receiver_unread END,
            receiver_first_unread = CASE WHEN receiver_id = $1 THEN NULL ELSE receiver_first_unread END,
            updated_at = NOW()
        WHERE id = $2
    `, readerID, chatID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// AppendText добавляет обычное текстовое сообщение.
func (s *ChatStore) AppendText(ctx context.Context, chatID, senderID uuid.UUID, text string) (*models.Message, error) {
	return s.append(ctx, chatID, senderID, models.MessageKindText, text, nil)
}

// SendEvent добавляет событийную карточку сделки (settlement.Messenger).
func (s *ChatStore) SendEvent(ctx context.Context, chatID, senderID uuid.UUID, text string, meta models.EventMeta) error {
	_, err := s.append(ctx, chatID, senderID, meta.Kind, text, &meta)
	return err
}

// append вставляет сообщение и обновляет сводку чата одной транзакцией:
// текст и время последнего сообщения, счётчик непрочитанного получателя и,
// если он пуст, указатель первого непрочитанного.
func (s *ChatStore) append(ctx context.Context, chatID, senderID uuid.UUID, kind, text string, meta *models.EventMeta) (*models.Message, error) {
	chat, err := s.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParty(senderID) {
		return nil, settlement.ErrNotFound
	}

	var metadata []byte
	if meta != nil {
		metadata, err = json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("ошибка сериализации метаданных сообщения: %w", err)
		}
	}

	now := time.Now()
	msg := &models.Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		SenderID:  senderID,
		Kind:      kind,
		Text:      text,
		Metadata:  meta,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        INSERT INTO messages (id, chat_id, sender_id, kind, text, metadata, is_read, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8)
    `, msg.ID, msg.ChatID, msg.SenderID, msg.Kind, msg.Text, metadata, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
        UPDATE chats
        SET last_message_text = $1,
            last_message_time = $2,
            updated_at = $2,
            receiver_unread = receiver_unread + CASE WHEN sender_id = $3 THEN 1 ELSE 0 END,
            receiver_first_unread = CASE WHEN sender_id = $3 AND receiver_first_unread IS NULL THEN $4 ELSE receiver_first_unread END,
            sender_unread = sender_unread + CASE WHEN receiver_id = $3 THEN 1 ELSE 0 END,
            sender_first_unread = CASE WHEN receiver_id = $3 AND sender_first_unread IS NULL THEN $4 ELSE sender_first_unread END
        WHERE id = $5
    `, msg.Text, now, senderID, msg.ID, chatID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	// Уведомляем получателя через WebSocket, если он подключён
	if s.hub != nil {
		eventType := ws.EventNewMessage
		if meta != nil {
			eventType = ws.EventDealUpdate
		}
		recipient := chat.OtherParty(senderID)
		payload, _ := json.Marshal(msg)
		s.hub.SendToUser(recipient.String(), ws.Event{
			Type:      eventType,
			ChatID:    chatID.String(),
			MessageID: msg.ID.String(),
			Payload:   payload,
		})
	}

	return msg, nil
}
