package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы запроса на подтверждение сделки
const (
	ConfirmStatusPending         = "pending"
	ConfirmStatusBuyerAccepted   = "buyer_accepted"
	ConfirmStatusBuyerDeclined   = "buyer_declined"
	ConfirmStatusAutoAccepted    = "auto_accepted"
	ConfirmStatusSellerCancelled = "seller_cancelled"
)

// Причины несостоявшейся сделки
const (
	FailureReasonBuyerNoShow       = "buyer_no_show"
	FailureReasonInsufficientFunds = "insufficient_funds"
	FailureReasonOther             = "other"
)

// ConfirmTTL — срок, в течение которого покупатель может ответить на запрос
// подтверждения. После него первый, кто коснётся записи, завершает её
// автоприёмом.
const ConfirmTTL = 24 * time.Hour

// ConfirmSnapshotVersion — текущая версия схемы снимка условий сделки.
const ConfirmSnapshotVersion = 1

// ConfirmSnapshot — снимок условий сделки в момент создания запроса на
// подтверждение. Хранится в JSONB и показывается в истории покупок
// независимо от дальнейших изменений объявления или встречи.
type ConfirmSnapshot struct {
	SchemaVersion        int       `json:"schema_version"`
	ItemID               uuid.UUID `json:"item_id"`
	ItemTitle            string    `json:"item_title"`
	ListingPrice         *int64    `json:"listing_price,omitempty"`
	NegotiatedPrice      *int64    `json:"negotiated_price,omitempty"`
	IsTrade              bool      `json:"is_trade"`
	TradeItemDescription *string   `json:"trade_item_description,omitempty"`
	MeetLocation         string    `json:"meet_location"`
	MeetingAt            time.Time `json:"meeting_at"`
	VerificationCode     string    `json:"verification_code"`
	SellerID             uuid.UUID `json:"seller_id"`
	BuyerID              uuid.UUID `json:"buyer_id"`
}

// ConfirmRequest представляет запрос подтверждения состоявшейся (или
// несостоявшейся) сделки. Ровно одна попытка урегулирования на запись;
// из pending запись выходит ровно один раз.
type ConfirmRequest struct {
	ID                 uuid.UUID       `json:"id"`
	MeetupRequestID    uuid.UUID       `json:"meetup_request_id"`
	ItemID             uuid.UUID       `json:"item_id"`
	SellerID           uuid.UUID       `json:"seller_id"`
	BuyerID            uuid.UUID       `json:"buyer_id"`
	ChatID             uuid.UUID       `json:"chat_id"`
	IsSuccessful       bool            `json:"is_successful"`
	FinalPrice         *int64          `json:"final_price,omitempty"`
	SellerNotes        string          `json:"seller_notes,omitempty"`
	FailureReason      *string         `json:"failure_reason,omitempty"`
	FailureReasonNotes *string         `json:"failure_reason_notes,omitempty"`
	Status             string          `json:"status"`
	ExpiresAt          time.Time       `json:"expires_at"`
	BuyerResponseAt    *time.Time      `json:"buyer_response_at,omitempty"`
	AutoProcessedAt    *time.Time      `json:"auto_processed_at,omitempty"`
	Payload            ConfirmSnapshot `json:"payload"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// IsTerminal сообщает, завершена ли запись. Терминальные состояния больше
// не переходят.
func (c *ConfirmRequest) IsTerminal() bool {
	return c.Status != ConfirmStatusPending
}

// Expired сообщает, истёк ли срок ответа к моменту now. Ровно на границе
// expires_at запись ещё жива.
func (c *ConfirmRequest) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Settled сообщает, зафиксирован ли исход сделки (покупателем или
// автоприёмом).
func (c *ConfirmRequest) Settled() bool {
	return c.Status == ConfirmStatusBuyerAccepted || c.Status == ConfirmStatusAutoAccepted
}
