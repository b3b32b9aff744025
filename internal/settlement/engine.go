package settlement

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/rmakarov/baraholka-api/internal/models"
)

// Коды причин в ответе статусной проверки, в порядке приоритета.
const (
	ReasonNotSeller        = "not_seller"
	ReasonMissingSchedule  = "missing_schedule"
	ReasonPendingRequest   = "pending_request"
	ReasonAlreadyConfirmed = "already_confirmed"
)

// Engine — движок подтверждения сделки. Вся корректность при конкурентных
// вызовах держится на условных обновлениях хранилища: переход из pending
// применяет ровно один вызов, он же выполняет побочные эффекты. Истечение
// срока обрабатывается лениво — при любом касании записи, фонового
// планировщика нет.
type Engine struct {
	confirms ConfirmStore
	meetups  MeetupStore
	catalog  Catalog
	fx       *Effects

	// Now подменяется в тестах для детерминированной проверки границы
	// срока ответа.
	Now func() time.Time
}

// NewEngine создает новый экземпляр Engine
func NewEngine(confirms ConfirmStore, meetups MeetupStore, catalog Catalog, fx *Effects) *Engine {
	return &Engine{
		confirms: confirms,
		meetups:  meetups,
		catalog:  catalog,
		fx:       fx,
		Now:      time.Now,
	}
}

// CreateConfirmInput — входные данные запроса подтверждения.
type CreateConfirmInput struct {
	SellerID           uuid.UUID
	MeetupRequestID    uuid.UUID
	ItemID             uuid.UUID
	ChatID             uuid.UUID
	IsSuccessful       bool
	FinalPrice         *int64
	SellerNotes        string
	FailureReason      *string
	FailureReasonNotes *string
}

// validateOutcome проверяет таксономию успеха/провала до любой записи.
func validateOutcome(in *CreateConfirmInput) error {
	if in.IsSuccessful {
		if in.FinalPrice != nil && *in.FinalPrice < 0 {
			return Invalid("Итоговая цена не может быть отрицательной")
		}
		// Успешный исход не несёт причин провала
		in.FailureReason = nil
		in.FailureReasonNotes = nil
		return nil
	}
	if in.FailureReason == nil {
		return Invalid("Для несостоявшейся сделки нужно указать причину")
	}
	switch *in.FailureReason {
	case models.FailureReasonBuyerNoShow, models.FailureReasonInsufficientFunds:
	case models.FailureReasonOther:
		if in.FailureReasonNotes == nil || *in.FailureReasonNotes == "" {
			return Invalid("Для причины «другое» нужно описание")
		}
	default:
		return Invalid("Неизвестная причина несостоявшейся сделки")
	}
	return nil
}

// CreateConfirm создает запрос подтверждения по принятой встрече.
func (e *Engine) CreateConfirm(ctx context.Context, in CreateConfirmInput) (*models.ConfirmRequest, error) {
	m, err := e.meetups.GetByID(ctx, in.MeetupRequestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFound("Встреча не найдена")
		}
		log.Printf("Ошибка загрузки встречи %s: %v", in.MeetupRequestID, err)
		return nil, Internal("")
	}
	if m.ItemID != in.ItemID || m.ChatID != in.ChatID {
		return nil, NotFound("Встреча не относится к этому объявлению или чату")
	}
	if m.SellerID != in.SellerID {
		return nil, Forbidden("Подтверждение может создать только продавец")
	}
	if m.Status != models.MeetupStatusAccepted {
		return nil, NotFound("По этой встрече нет согласия покупателя")
	}

	// Сначала лениво завершаем последний запрос по встрече: возможно, его
	// срок уже истёк и место освободилось.
	latest, err := e.confirms.LatestForMeetup(ctx, m.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		log.Printf("Ошибка загрузки подтверждений встречи %s: %v", m.ID, err)
		return nil, Internal("")
	}
	if latest != nil {
		if _, err := e.finalizeIfDue(ctx, latest); err != nil {
			return nil, err
		}
		if latest.Status == models.ConfirmStatusPending {
			return nil, Conflict("По этой встрече уже есть неотвеченный запрос подтверждения")
		}
		if latest.Settled() {
			return nil, Conflict("Сделка по этой встрече уже подтверждена")
		}
	}

	if err := validateOutcome(&in); err != nil {
		return nil, err
	}

	item, err := e.catalog.GetByID(ctx, m.ItemID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFound("Объявление не найдено")
		}
		log.Printf("Ошибка загрузки объявления %s: %v", m.ItemID, err)
		return nil, Internal("")
	}

	now := e.Now()
	c := &models.ConfirmRequest{
		ID:                 uuid.New(),
		MeetupRequestID:    m.ID,
		ItemID:             m.ItemID,
		SellerID:           m.SellerID,
		BuyerID:            m.BuyerID,
		ChatID:             m.ChatID,
		IsSuccessful:       in.IsSuccessful,
		FinalPrice:         in.FinalPrice,
		SellerNotes:        in.SellerNotes,
		FailureReason:      in.FailureReason,
		FailureReasonNotes: in.FailureReasonNotes,
		Status:             models.ConfirmStatusPending,
		ExpiresAt:          now.Add(models.ConfirmTTL),
		Payload: models.ConfirmSnapshot{
			SchemaVersion:        models.ConfirmSnapshotVersion,
			ItemID:               m.ItemID,
			ItemTitle:            item.Title,
			ListingPrice:         item.Price,
			NegotiatedPrice:      m.NegotiatedPrice,
			IsTrade:              m.IsTrade,
			TradeItemDescription: m.TradeItemDescription,
			MeetLocation:         m.MeetLocation,
			MeetingAt:            m.MeetingAt,
			VerificationCode:     m.VerificationCode,
			SellerID:             m.SellerID,
			BuyerID:              m.BuyerID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.confirms.Create(ctx, c); err != nil {
		log.Printf("Ошибка создания запроса подтверждения: %v", err)
		return nil, Internal("")
	}

	e.fx.ConfirmRequested(ctx, c)
	return c, nil
}

// RespondConfirm фиксирует ответ покупателя. Переход выполняется одним
// условным обновлением; нулевое число затронутых строк означает, что
// конкурирующий вызов успел раньше — возвращаем конфликт и не трогаем
// побочные эффекты.
func (e *Engine) RespondConfirm(ctx context.Context, buyerID, confirmID uuid.UUID, accept bool) (*models.ConfirmRequest, error) {
	c, err := e.confirms.GetByID(ctx, confirmID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFound("Запрос подтверждения не найден")
		}
		log.Printf("Ошибка загрузки подтверждения %s: %v", confirmID, err)
		return nil, Internal("")
	}
	if c.BuyerID != buyerID {
		return nil, Forbidden("Ответить может только покупатель")
	}

	changed, err := e.finalizeIfDue(ctx, c)
	if err != nil {
		return nil, err
	}
	if changed {
		return nil, Conflict("Срок ответа истёк, сделка подтверждена автоматически")
	}
	if c.IsTerminal() {
		return nil, Conflict("Запрос подтверждения уже обработан")
	}

	to := models.ConfirmStatusBuyerAccepted
	if !accept {
		to = models.ConfirmStatusBuyerDeclined
	}
	now := e.Now()
	res, err := e.confirms.Transition(ctx, c.ID, to, TransitionStamp{BuyerResponseAt: &now})
	if err != nil {
		log.Printf("Ошибка перехода подтверждения %s: %v", c.ID, err)
		return nil, Internal("")
	}
	if res == AlreadyTransitioned {
		return nil, Conflict("Запрос подтверждения уже обработан")
	}

	c.Status = to
	c.BuyerResponseAt = &now
	c.UpdatedAt = now
	e.fx.ConfirmResolved(ctx, c, now)
	return c, nil
}

// CancelConfirm отзывает неотвеченный запрос подтверждения. Доступно только
// продавцу; после отзыва статусная проверка снова разрешает отправку.
func (e *Engine) CancelConfirm(ctx context.Context, sellerID, confirmID uuid.UUID) (*models.ConfirmRequest, error) {
	c, err := e.confirms.GetByID(ctx, confirmID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFound("Запрос подтверждения не найден")
		}
		log.Printf("Ошибка загрузки подтверждения %s: %v", confirmID, err)
		return nil, Internal("")
	}
	if c.SellerID != sellerID {
		return nil, Forbidden("Отозвать запрос может только продавец")
	}

	changed, err := e.finalizeIfDue(ctx, c)
	if err != nil {
		return nil, err
	}
	if changed || c.IsTerminal() {
		return nil, Conflict("Запрос подтверждения уже обработан")
	}

	now := e.Now()
	res, err := e.confirms.Transition(ctx, c.ID, models.ConfirmStatusSellerCancelled, TransitionStamp{})
	if err != nil {
		log.Printf("Ошибка отзыва подтверждения %s: %v", c.ID, err)
		return nil, Internal("")
	}
	if res == AlreadyTransitioned {
		return nil, Conflict("Запрос подтверждения уже обработан")
	}

	c.Status = models.ConfirmStatusSellerCancelled
	c.UpdatedAt = now
	e.fx.ConfirmResolved(ctx, c, now)
	return c, nil
}

// finalizeIfDue — ленивый «жнец»: завершает запись автоприёмом, если срок
// ответа истёк. Вызывается из каждой точки входа, касающейся записи.
// Возвращает true, если запись вышла из pending (этим или конкурирующим
// вызовом). Побочные эффекты выполняет только вызов, чьё обновление
// применилось. Ровно на границе expires_at запись ещё жива.
func (e *Engine) finalizeIfDue(ctx context.Context, c *models.ConfirmRequest) (bool, error) {
	if c.IsTerminal() {
		return false, nil
	}
	now := e.Now()
	if !c.Expired(now) {
		return false, nil
	}

	res, err := e.confirms.Transition(ctx, c.ID, models.ConfirmStatusAutoAccepted, TransitionStamp{AutoProcessedAt: &now})
	if err != nil {
		log.Printf("Ошибка автозавершения подтверждения %s: %v", c.ID, err)
		return false, Internal("")
	}
	if res == AlreadyTransitioned {
		// Запись успел завершить кто-то другой; перечитываем её состояние,
		// эффекты не наши.
		fresh, err := e.confirms.GetByID(ctx, c.ID)
		if err == nil {
			*c = *fresh
		}
		return true, nil
	}

	c.Status = models.ConfirmStatusAutoAccepted
	c.AutoProcessedAt = &now
	c.UpdatedAt = now
	e.fx.ConfirmResolved(ctx, c, now)
	return true, nil
}

// Sweep — явная идемпотентная уборка просроченных записей. Ленивое
// завершение корректно, только если запись кто-то когда-нибудь коснётся;
// уборка закрывает этот пробел и даёт детерминированность в тестах и
// эксплуатации.
func (e *Engine) Sweep(ctx context.Context, limit int) (int, error) {
	rows, err := e.confirms.ListExpiredPending(ctx, e.Now(), limit)
	if err != nil {
		log.Printf("Ошибка выборки просроченных подтверждений: %v", err)
		return 0, Internal("")
	}
	finalized := 0
	for _, c := range rows {
		changed, err := e.finalizeIfDue(ctx, c)
		if err != nil {
			return finalized, err
		}
		if changed {
			finalized++
		}
	}
	return finalized, nil
}

// StatusResult — ответ статусной проверки «можно ли отправить новый запрос
// подтверждения».
type StatusResult struct {
	CanConfirm bool                   `json:"can_confirm"`
	ReasonCode string                 `json:"reason_code,omitempty"`
	Pending    *models.ConfirmRequest `json:"pending_request,omitempty"`
	Latest     *models.ConfirmRequest `json:"latest_confirm,omitempty"`
}

// Status — статусная проверка без мутаций состояния сделки (кроме ленивого
// завершения просроченной записи). Причины отказа в порядке приоритета:
// не продавец → нет принятой встречи → есть неотвеченный запрос → сделка
// уже подтверждена; иначе отправка разрешена.
func (e *Engine) Status(ctx context.Context, sellerID, chatID, itemID uuid.UUID) (*StatusResult, error) {
	item, err := e.catalog.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFound("Объявление не найдено")
		}
		log.Printf("Ошибка загрузки объявления %s: %v", itemID, err)
		return nil, Internal("")
	}
	if item.UserID != sellerID {
		return &StatusResult{ReasonCode: ReasonNotSeller}, nil
	}

	m, err := e.meetups.AcceptedForItem(ctx, itemID, chatID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &StatusResult{ReasonCode: ReasonMissingSchedule}, nil
		}
		log.Printf("Ошибка поиска принятой встречи по объявлению %s: %v", itemID, err)
		return nil, Internal("")
	}

	latest, err := e.confirms.LatestForMeetup(ctx, m.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &StatusResult{CanConfirm: true}, nil
		}
		log.Printf("Ошибка загрузки подтверждений встречи %s: %v", m.ID, err)
		return nil, Internal("")
	}

	if _, err := e.finalizeIfDue(ctx, latest); err != nil {
		return nil, err
	}

	switch {
	case latest.Status == models.ConfirmStatusPending:
		return &StatusResult{ReasonCode: ReasonPendingRequest, Pending: latest}, nil
	case latest.Settled():
		return &StatusResult{ReasonCode: ReasonAlreadyConfirmed, Latest: latest}, nil
	default:
		// buyer_declined или seller_cancelled: повторная отправка разрешена
		return &StatusResult{CanConfirm: true, Latest: latest}, nil
	}
}
