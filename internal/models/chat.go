package models

import (
	"time"

	"github.com/google/uuid"
)

// Виды сообщений в чате
const (
	MessageKindText = "text"

	// Событийные карточки сделки
	MessageKindScheduleRequest   = "schedule_request"
	MessageKindScheduleAccepted  = "schedule_accepted"
	MessageKindScheduleDeclined  = "schedule_declined"
	MessageKindScheduleCancelled = "schedule_cancelled"
	MessageKindConfirmRequest    = "confirm_request"
	MessageKindConfirmAccepted   = "confirm_accepted"
	MessageKindConfirmDeclined   = "confirm_declined"
	MessageKindConfirmAuto       = "confirm_auto_accepted"
	MessageKindConfirmCancelled  = "confirm_cancelled"
)

// EventMetaVersion — текущая версия схемы метаданных событийной карточки.
const EventMetaVersion = 1

// EventMeta — типизированные метаданные событийного сообщения. Хранится в
// JSONB-колонке messages.metadata; версия схемы позволяет отличать старые
// записи при изменении формы.
type EventMeta struct {
	SchemaVersion int        `json:"schema_version"`
	Kind          string     `json:"kind"`
	MeetupID      *uuid.UUID `json:"meetup_id,omitempty"`
	ConfirmID     *uuid.UUID `json:"confirm_id,omitempty"`
	ItemID        uuid.UUID  `json:"item_id"`
	Amount        *int64     `json:"amount,omitempty"`
	MeetLocation  string     `json:"meet_location,omitempty"`
	MeetingAt     *time.Time `json:"meeting_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// Chat представляет чат между двумя пользователями. Счётчики непрочитанного
// и указатель на первое непрочитанное сообщение ведутся отдельно для каждого
// участника.
type Chat struct {
	ID                  uuid.UUID  `json:"id"`
	ItemID              *uuid.UUID `json:"item_id,omitempty"`
	SenderID            uuid.UUID  `json:"sender_id"`
	ReceiverID          uuid.UUID  `json:"receiver_id"`
	LastMessageText     string     `json:"last_message_text,omitempty"`
	LastMessageTime     *time.Time `json:"last_message_time,omitempty"`
	SenderUnread        int        `json:"sender_unread"`
	ReceiverUnread      int        `json:"receiver_unread"`
	SenderFirstUnread   *uuid.UUID `json:"sender_first_unread,omitempty"`
	ReceiverFirstUnread *uuid.UUID `json:"receiver_first_unread,omitempty"`
	IsActive            bool       `json:"is_active"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	// Дополнительные поля для API
	Sender      *User `json:"sender,omitempty"`
	Receiver    *User `json:"receiver,omitempty"`
	UnreadCount int   `json:"unread_count"`
}

// OtherParty возвращает собеседника указанного участника чата.
func (c *Chat) OtherParty(userID uuid.UUID) uuid.UUID {
	if c.SenderID == userID {
		return c.ReceiverID
	}
	return c.SenderID
}

// HasParty сообщает, участвует ли пользователь в чате.
func (c *Chat) HasParty(userID uuid.UUID) bool {
	return c.SenderID == userID || c.ReceiverID == userID
}

// Message представляет сообщение в чате
type Message struct {
	ID        uuid.UUID  `json:"id"`
	ChatID    uuid.UUID  `json:"chat_id"`
	SenderID  uuid.UUID  `json:"sender_id"`
	Kind      string     `json:"kind"`
	Text      string     `json:"text"`
	Metadata  *EventMeta `json:"metadata,omitempty"`
	IsRead    bool       `json:"is_read"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Дополнительные поля для API
	Sender *User `json:"sender,omitempty"`
}
