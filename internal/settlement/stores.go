package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rmakarov/baraholka-api/internal/models"
)

// TransitionResult — типизированный итог условного обновления статуса.
// Переход применяет ровно один вызов; остальные получают
// AlreadyTransitioned и не имеют права запускать побочные эффекты.
type TransitionResult int

const (
	Applied TransitionResult = iota
	AlreadyTransitioned
)

// TransitionStamp — отметки времени, проставляемые вместе с переходом.
type TransitionStamp struct {
	BuyerResponseAt *time.Time
	AutoProcessedAt *time.Time
}

// ConfirmStore — хранилище запросов подтверждения. Transition выполняется
// одним условным UPDATE c WHERE status = 'pending'; никаких блокировок в
// памяти, обработчики могут работать на нескольких процессах.
type ConfirmStore interface {
	Create(ctx context.Context, c *models.ConfirmRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ConfirmRequest, error)
	LatestForMeetup(ctx context.Context, meetupID uuid.UUID) (*models.ConfirmRequest, error)
	Transition(ctx context.Context, id uuid.UUID, to string, stamp TransitionStamp) (TransitionResult, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.ConfirmRequest, error)
}

// MeetupStore — хранилище запросов на встречу.
type MeetupStore interface {
	// Create возвращает ErrCodeInUse, если код проверки занят живой встречей.
	Create(ctx context.Context, m *models.MeetupRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.MeetupRequest, error)
	// AcceptedForItem возвращает последнюю принятую встречу по объявлению в
	// рамках чата либо ErrNotFound.
	AcceptedForItem(ctx context.Context, itemID, chatID uuid.UUID) (*models.MeetupRequest, error)
	// HasLive сообщает, есть ли по объявлению живые встречи (pending или
	// accepted), кроме указанной.
	HasLive(ctx context.Context, itemID uuid.UUID, exclude uuid.UUID) (bool, error)
	Transition(ctx context.Context, id uuid.UUID, to string, by *uuid.UUID, respondedAt *time.Time) (TransitionResult, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID) ([]*models.MeetupRequest, error)
}

// Catalog — доступ к объявлениям со стороны сделки.
type Catalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	// SetStatus меняет статус объявления только из ожидаемого состояния.
	SetStatus(ctx context.Context, itemID uuid.UUID, from, to string) error
	MarkSold(ctx context.Context, itemID, buyerID uuid.UUID, price int64, soldAt time.Time) error
}

// Ledger — журнал покупок (только добавление).
type Ledger interface {
	Append(ctx context.Context, e *models.PurchaseEntry) error
}

// Messenger — доставка событийной карточки в чат. Реализация увеличивает
// счётчик непрочитанного получателя и выставляет указатель первого
// непрочитанного, если он пуст.
type Messenger interface {
	SendEvent(ctx context.Context, chatID, senderID uuid.UUID, text string, meta models.EventMeta) error
}
