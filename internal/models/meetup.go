package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы запроса на встречу
const (
	MeetupStatusPending   = "pending"
	MeetupStatusAccepted  = "accepted"
	MeetupStatusDeclined  = "declined"
	MeetupStatusCancelled = "cancelled"
)

// MeetupMaxAhead — максимальный горизонт планирования встречи.
const MeetupMaxAhead = 3 * 31 * 24 * time.Hour

// MeetupRequest представляет предложение личной встречи по объявлению.
// Поля snapshot_* копируются из объявления в момент создания, чтобы
// последующее редактирование объявления не меняло условия уже идущих
// переговоров.
type MeetupRequest struct {
	ID                      uuid.UUID  `json:"id"`
	ItemID                  uuid.UUID  `json:"item_id"`
	SellerID                uuid.UUID  `json:"seller_id"`
	BuyerID                 uuid.UUID  `json:"buyer_id"`
	ChatID                  uuid.UUID  `json:"chat_id"`
	MeetLocation            string     `json:"meet_location"`
	MeetingAt               time.Time  `json:"meeting_at"`
	VerificationCode        string     `json:"verification_code"`
	Description             string     `json:"description,omitempty"`
	NegotiatedPrice         *int64     `json:"negotiated_price,omitempty"`
	IsTrade                 bool       `json:"is_trade"`
	TradeItemDescription    *string    `json:"trade_item_description,omitempty"`
	SnapshotPriceNegotiable bool       `json:"snapshot_price_negotiable"`
	SnapshotTradeAllowed    bool       `json:"snapshot_trade_allowed"`
	SnapshotMeetLocation    string     `json:"snapshot_meet_location"`
	Status                  string     `json:"status"`
	BuyerResponseAt         *time.Time `json:"buyer_response_at,omitempty"`
	CanceledBy              *uuid.UUID `json:"canceled_by,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`

	// Дополнительные поля для API
	Item  *Listing `json:"item,omitempty"`
	Buyer *User    `json:"buyer,omitempty"`
}

// IsLive сообщает, удерживает ли встреча объявление (ожидает ответа или
// уже принята).
func (m *MeetupRequest) IsLive() bool {
	return m.Status == MeetupStatusPending || m.Status == MeetupStatusAccepted
}
