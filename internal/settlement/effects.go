package settlement

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/rmakarov/baraholka-api/internal/models"
)

// Effects — общий исполнитель побочных эффектов сделки: событийные карточки
// в чат, изменение объявления, запись в журнал покупок. Используется и
// менеджером встреч, и движком подтверждений.
//
// Побочные эффекты выполняются после выигранного условного обновления и не
// обёрнуты с ним в одну транзакцию: сбой между шагами оставляет переход без
// части эффектов (см. DESIGN.md). Ошибки эффектов логируются и не
// откатывают уже применённый переход.
type Effects struct {
	messenger Messenger
	catalog   Catalog
	ledger    Ledger
}

// NewEffects создает новый экземпляр Effects
func NewEffects(messenger Messenger, catalog Catalog, ledger Ledger) *Effects {
	return &Effects{messenger: messenger, catalog: catalog, ledger: ledger}
}

// ResolveFinalPrice возвращает итоговую цену сделки по приоритету:
// явная цена подтверждения → договорная цена встречи → цена объявления → 0.
func ResolveFinalPrice(c *models.ConfirmRequest) int64 {
	if c.FinalPrice != nil {
		return *c.FinalPrice
	}
	if c.Payload.NegotiatedPrice != nil {
		return *c.Payload.NegotiatedPrice
	}
	if c.Payload.ListingPrice != nil {
		return *c.Payload.ListingPrice
	}
	return 0
}

// ScheduleRequested отправляет карточку «предложена встреча» покупателю.
func (fx *Effects) ScheduleRequested(ctx context.Context, m *models.MeetupRequest) {
	meetingAt := m.MeetingAt
	meta := models.EventMeta{
		SchemaVersion: models.EventMetaVersion,
		Kind:          models.MessageKindScheduleRequest,
		MeetupID:      &m.ID,
		ItemID:        m.ItemID,
		Amount:        m.NegotiatedPrice,
		MeetLocation:  m.MeetLocation,
		MeetingAt:     &meetingAt,
	}
	if err := fx.messenger.SendEvent(ctx, m.ChatID, m.SellerID, "Продавец предложил встречу", meta); err != nil {
		log.Printf("Ошибка отправки карточки встречи %s: %v", m.ID, err)
	}
}

// ScheduleResponded отправляет карточку с ответом покупателя на встречу.
func (fx *Effects) ScheduleResponded(ctx context.Context, m *models.MeetupRequest) {
	kind := models.MessageKindScheduleAccepted
	text := "Покупатель принял встречу"
	if m.Status == models.MeetupStatusDeclined {
		kind = models.MessageKindScheduleDeclined
		text = "Покупатель отклонил встречу"
	}
	meta := models.EventMeta{
		SchemaVersion: models.EventMetaVersion,
		Kind:          kind,
		MeetupID:      &m.ID,
		ItemID:        m.ItemID,
	}
	if err := fx.messenger.SendEvent(ctx, m.ChatID, m.BuyerID, text, meta); err != nil {
		log.Printf("Ошибка отправки карточки ответа на встречу %s: %v", m.ID, err)
	}
}

// ScheduleCancelled отправляет карточку об отмене встречи.
func (fx *Effects) ScheduleCancelled(ctx context.Context, m *models.MeetupRequest, by uuid.UUID) {
	meta := models.EventMeta{
		SchemaVersion: models.EventMetaVersion,
		Kind:          models.MessageKindScheduleCancelled,
		MeetupID:      &m.ID,
		ItemID:        m.ItemID,
	}
	if err := fx.messenger.SendEvent(ctx, m.ChatID, by, "Встреча отменена", meta); err != nil {
		log.Printf("Ошибка отправки карточки отмены встречи %s: %v", m.ID, err)
	}
}

// ConfirmRequested отправляет покупателю карточку запроса подтверждения.
func (fx *Effects) ConfirmRequested(ctx context.Context, c *models.ConfirmRequest) {
	amount := ResolveFinalPrice(c)
	expiresAt := c.ExpiresAt
	meta := models.EventMeta{
		SchemaVersion: models.EventMetaVersion,
		Kind:          models.MessageKindConfirmRequest,
		ConfirmID:     &c.ID,
		MeetupID:      &c.MeetupRequestID,
		ItemID:        c.ItemID,
		Amount:        &amount,
		ExpiresAt:     &expiresAt,
	}
	if err := fx.messenger.SendEvent(ctx, c.ChatID, c.SellerID, "Продавец просит подтвердить сделку", meta); err != nil {
		log.Printf("Ошибка отправки карточки подтверждения %s: %v", c.ID, err)
	}
}

// ConfirmResolved выполняет эффекты завершённого подтверждения: карточку в
// чат и, при успешном исходе, продажу объявления и запись в журнал покупок.
// Вызывается ровно один раз — тем вызовом, чьё условное обновление
// применилось.
func (fx *Effects) ConfirmResolved(ctx context.Context, c *models.ConfirmRequest, at time.Time) {
	if c.Settled() && c.IsSuccessful {
		price := ResolveFinalPrice(c)
		if err := fx.catalog.MarkSold(ctx, c.ItemID, c.BuyerID, price, at); err != nil {
			log.Printf("Ошибка отметки продажи объявления %s: %v", c.ItemID, err)
		}
		entry := &models.PurchaseEntry{
			ID:         ulid.Make().String(),
			BuyerID:    c.BuyerID,
			ItemID:     c.ItemID,
			RecordedAt: at,
			Payload:    c.Payload,
		}
		if err := fx.ledger.Append(ctx, entry); err != nil {
			log.Printf("Ошибка записи в журнал покупок по сделке %s: %v", c.ID, err)
		}
	}

	var kind, text string
	sender := c.BuyerID
	switch c.Status {
	case models.ConfirmStatusBuyerAccepted:
		kind, text = models.MessageKindConfirmAccepted, "Покупатель подтвердил сделку"
	case models.ConfirmStatusBuyerDeclined:
		kind, text = models.MessageKindConfirmDeclined, "Покупатель оспорил сделку"
	case models.ConfirmStatusAutoAccepted:
		kind, text = models.MessageKindConfirmAuto, "Сделка подтверждена автоматически: срок ответа истёк"
	case models.ConfirmStatusSellerCancelled:
		kind, text = models.MessageKindConfirmCancelled, "Продавец отозвал запрос подтверждения"
		sender = c.SellerID
	default:
		return
	}
	meta := models.EventMeta{
		SchemaVersion: models.EventMetaVersion,
		Kind:          kind,
		ConfirmID:     &c.ID,
		MeetupID:      &c.MeetupRequestID,
		ItemID:        c.ItemID,
	}
	if err := fx.messenger.SendEvent(ctx, c.ChatID, sender, text, meta); err != nil {
		log.Printf("Ошибка отправки карточки исхода сделки %s: %v", c.ID, err)
	}
}
