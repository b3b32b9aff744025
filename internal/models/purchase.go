package models

import (
	"time"

	"github.com/google/uuid"
)

// PurchaseEntry — запись журнала покупок. Журнал только дописывается;
// запись появляется исключительно при успешном урегулировании сделки
// (ручное подтверждение или автоприём). ID — ULID, чтобы журнал был
// упорядочен по времени без отдельной сортировки.
type PurchaseEntry struct {
	ID         string          `json:"id"`
	BuyerID    uuid.UUID       `json:"buyer_id"`
	ItemID     uuid.UUID       `json:"item_id"`
	RecordedAt time.Time       `json:"recorded_at"`
	Payload    ConfirmSnapshot `json:"payload"`
}

// LegacyTransaction — строка исторической таблицы transactions. Новый код
// её не пишет, но история покупок обязана показывать и старые записи.
type LegacyTransaction struct {
	ID        uuid.UUID `json:"id"`
	BuyerID   uuid.UUID `json:"buyer_id"`
	ItemID    uuid.UUID `json:"item_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// PurchaseHistoryItem — элемент объединённой истории покупок: либо запись
// журнала, либо строка исторической таблицы.
type PurchaseHistoryItem struct {
	ItemID     uuid.UUID        `json:"item_id"`
	RecordedAt time.Time        `json:"recorded_at"`
	Amount     *int64           `json:"amount,omitempty"`
	Source     string           `json:"source"` // ledger или legacy
	Payload    *ConfirmSnapshot `json:"payload,omitempty"`
}
