package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmakarov/baraholka-api/internal/models"
)

func strptr(s string) *string { return &s }

func int64ptr(v int64) *int64 { return &v }

func TestCreateConfirm_Success(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	c, err := rig.engine.CreateConfirm(ctx, rig.createInput())
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, models.ConfirmStatusPending, c.Status)
	assert.Equal(t, rig.now.Add(models.ConfirmTTL), c.ExpiresAt)
	assert.True(t, c.IsSuccessful)

	// Снимок условий заполняется из объявления и встречи
	assert.Equal(t, models.ConfirmSnapshotVersion, c.Payload.SchemaVersion)
	assert.Equal(t, "Велосипед Stels", c.Payload.ItemTitle)
	require.NotNil(t, c.Payload.ListingPrice)
	assert.Equal(t, int64(150000), *c.Payload.ListingPrice)
	assert.Equal(t, "7KQM", c.Payload.VerificationCode)
	assert.Equal(t, "м. Таганская", c.Payload.MeetLocation)

	// Покупателю ушла карточка запроса
	cards := rig.messenger.byKind(models.MessageKindConfirmRequest)
	require.Len(t, cards, 1)
	assert.Equal(t, rig.chatID, cards[0].ChatID)
	assert.Equal(t, rig.sellerID, cards[0].SenderID)
}

func TestCreateConfirm_NotSeller(t *testing.T) {
	rig := newTestRig()
	in := rig.createInput()
	in.SellerID = rig.buyerID

	_, err := rig.engine.CreateConfirm(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, 403, StatusOf(err))
}

func TestCreateConfirm_MeetupNotAccepted(t *testing.T) {
	rig := newTestRig()
	rig.meetups.rows[rig.meetupID].Status = models.MeetupStatusPending

	_, err := rig.engine.CreateConfirm(context.Background(), rig.createInput())
	require.Error(t, err)
	assert.Equal(t, 404, StatusOf(err))
}

func TestCreateConfirm_WrongChat(t *testing.T) {
	rig := newTestRig()
	in := rig.createInput()
	in.ChatID = uuid.New()

	_, err := rig.engine.CreateConfirm(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, 404, StatusOf(err))
}

func TestCreateConfirm_PendingBlocksSecond(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	_, err := rig.engine.CreateConfirm(ctx, rig.createInput())
	require.NoError(t, err)

	_, err = rig.engine.CreateConfirm(ctx, rig.createInput())
	require.Error(t, err)
	assert.Equal(t, 409, StatusOf(err))
}

func TestCreateConfirm_ExpiredSlotFreesUp(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	first, err := rig.engine.CreateConfirm(ctx, rig.createInput())
	require.NoError(t, err)

	// После истечения срока старый запрос лениво завершается автоприёмом
	// прямо из CreateConfirm; сделка считается состоявшейся, повторный
	// запрос получает конфликт, а не ошибку про занятый слот
	rig.advance(models.ConfirmTTL + time.Minute)

	_, err = rig.engine.CreateConfirm(ctx, rig.createInput())
	require.Error(t, err)
	assert.Equal(t, 409, StatusOf(err))

	stored, err := rig.confirms.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmStatusAutoAccepted, stored.Status)
	assert.Equal(t, models.ListingStatusSold, rig.catalog.rows[rig.itemID].Status)
}

func TestCreateConfirm_FailureTaxonomy(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreateConfirmInput)
		wantErr bool
	}{
		{
			name:    "провал без причины",
			mutate:  func(in *CreateConfirmInput) { in.IsSuccessful = false },
			wantErr: true,
		},
		{
			name: "неизвестная причина",
			mutate: func(in *CreateConfirmInput) {
				in.IsSuccessful = false
				in.FailureReason = strptr("alien_abduction")
			},
			wantErr: true,
		},
		{
			name: "другое без описания",
			mutate: func(in *CreateConfirmInput) {
				in.IsSuccessful = false
				in.FailureReason = strptr(models.FailureReasonOther)
			},
			wantErr: true,
		},
		{
			name: "другое с описанием",
			mutate: func(in *CreateConfirmInput) {
				in.IsSuccessful = false
				in.FailureReason = strptr(models.FailureReasonOther)
				in.FailureReasonNotes = strptr("не сошлись в цене")
			},
		},
		{
			name: "покупатель не пришёл",
			mutate: func(in *CreateConfirmInput) {
				in.IsSuccessful = false
				in.FailureReason = strptr(models.FailureReasonBuyerNoShow)
			},
		},
		{
			name:    "отрицательная итоговая цена",
			mutate:  func(in *CreateConfirmInput) { in.FinalPrice = int64ptr(-1) },
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newTestRig()
			in := rig.createInput()
			tt.mutate(&in)

			_, err := rig.engine.CreateConfirm(context.Background(), in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, 400, StatusOf(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCreateConfirm_SuccessClearsFailureFields(t *testing.T) {
	rig := newTestRig()
	in := rig.createInput()
	in.FailureReason = strptr(models.FailureReasonBuyerNoShow)
	in.FailureReasonNotes = strptr("мусор")

	c, err := rig.engine.CreateConfirm(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, c.FailureReason)
	assert.Nil(t, c.FailureReasonNotes)
}

func TestRespondConfirm_AcceptSellsItem(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	c, err := rig.engine.CreateConfirm(ctx, rig.createInput())
	require.NoError(t, err)

	got, err := rig.engine.RespondConfirm(ctx, rig.buyerID, c.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmStatusBuyerAccepted, got.Status)
	require.NotNil(t, got.BuyerResponseAt)

	// Объявление продано, покупка записана в журнал
	item := rig.catalog.rows[rig.itemID]
	assert.Equal(t, models.ListingStatusSold, item.Status)
	require.NotNil(t, item.BuyerID)
	assert.Equal(t, rig.buyerID, *item.BuyerID)

	require.Len(t, rig.ledger.entries, 1)
	entry := rig.ledger.entries[0]
	assert.Equal(t, rig.buyerID, entry.BuyerID)
	assert.Equal(t, rig.itemID, entry.ItemID)
	assert.Len(t, entry.ID, 26) // ULID

	cards := rig.messenger.byKind(models.MessageKindConfirmAccepted)
	require.Len(t, cards, 1)
	assert.Equal(t, rig.buyerID, cards[0].SenderID)
}

func TestRespondConfirm_NegotiatedPriceWins(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	// Объявление за 150000, встреча договорена на 120000, итоговая цена в
	// запросе не указана — продажа фиксируется по договорной цене
	rig.meetups.rows[rig.meetupID].NegotiatedPrice = int64ptr(120000)

	c, err := rig.engine.CreateConfirm(ctx, rig.createInput())
	require.NoError(t, err)
	require.Nil(t, c.FinalPrice)

	_, err = rig.engine.RespondConfirm(ctx, rig.buyerID, c.ID, true)
	require.NoError(t, err)

	item := rig.catalog.rows[rig.itemID]
	require.NotNil(t, item.Price)
	assert.Equal(t, int64(120000), *item.Price)
}

func TestRespondConfirm_DeclineLeavesItemUnsold(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	c, err := rig.engine.CreateConfirm(ctx, rig.createInput())
	require.NoError(t, err)

	got, err := rig.engine.RespondConfirm(ctx, rig.buyerID, c.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmStatusBuyerDeclined, got.Status)

	assert.NotEqual(t, models.ListingStatusSold, rig.catalog.rows[rig.itemID].Status)
	assert.Empty(t, rig.ledger.entries)
	assert.Len(t, rig.messenger.byKind(models.MessageKindConfirmDeclined), 1)
}

func TestRespondConfirm_WrongBuyer(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	c, err := rig.engine.CreateConfirm(ctx, rig.createInput())
	require.NoError(t, err)

	_, err = rig.engine.RespondConfirm(ctx, rig.sellerID, c.ID, true)
	require.Error(t, err)
	assert.Equal(t, 403, StatusOf(err))
}

func TestRespondConfirm_SecondResponseConflicts(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	c, err := rig.engine.CreateConfirm(ctx, rig.createInput())
	require.NoError(t, err)

	_, err = rig.engine.RespondConfirm(ctx, rig.buyerID, c.ID, false)
	require.NoError(t, err)

	_, err = rig.engine.RespondConfirm(ctx, rig.buyerID, c.ID, true)
	require.Error(t, err)
	assert.Equal(t, 409, StatusOf(err))

	// Эффекты не задвоились
	assert.Empty(t, rig.ledger.entries)
	assert.Len(t, rig.messenger.byKind(models.MessageKindConfirmDeclined), 1)
}

func TestRespondConfirm_ExactlyAtDeadlineStillAlive(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	c, err := rig.engine.CreateConfirm(ctx, rig.createInput())
	require.NoError(t, err)

	// Ровно на границе срока запись ещё жива и ответ проходит
	rig.now = c.ExpiresAt

	got, err := rig.engine.RespondConfirm(ctx, rig.buyerID, c.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmStatusBuyerDeclined, got.Status)
}

func TestRespondConfirm_AfterDeadlineAutoAccepts(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	c, err := rig.engine.CreateConfirm(ctx, rig.createInput())
	require.NoError(t, err)

	rig.now = c.ExpiresAt.Add(time.Nanosecond)

	_, err = rig.engine.RespondConfirm(ctx, rig.buyerID, c.ID, false)
	require.Error(t, err)
	assert.Equal(t, 409, StatusOf(err))

	// Автоприём считается успешной сделкой: объявление продано
	stored, err := rig.confirms.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmStatusAutoAccepted, stored.Status)
	require.NotNil(t, stored.AutoProcessedAt)

	assert.Equal(t, models.ListingStatusSold, rig.catalog.rows[rig.itemID].Status)
	require.Len(t, rig.ledger.entries, 1)
	assert.Len(t, rig.messenger.byKind(models.MessageKindConfirmAuto), 1)
}

func TestRespondConfirm_ConcurrentSingleWinner(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	c, err := rig.engine.CreateConfirm(ctx, rig.createInput())
	require.NoError(t, err)

	const workers = 32
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = rig.engine.RespondConfirm(ctx, rig.buyerID, c.ID, true)
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, err := range errs {
		if err == nil {
			applied++
		} else {
			assert.Equal(t, 409, StatusOf(err))
		}
	}
	assert.Equal(t, 1, applied, "переход должен примениться ровно один раз")

	// Побочные эффекты выполнил только победитель
	assert.Equal(t, 1, rig.catalog.markSoldCalls)
	assert.Len(t, rig.ledger.entries, 1)
	assert.Len(t, rig.messenger.byKind(models.MessageKindConfirmAccepted), 1)
}

func TestCancelConfirm(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	c, err := rig.engine.CreateConfirm(ctx, rig.createInput())
	require.NoError(t, err)

	// Покупатель отозвать не может
	_, err = rig.engine.CancelConfirm(ctx, rig.buyerID, c.ID)
	require.Error(t, err)
	assert.Equal(t, 403, StatusOf(err))

	got, err := rig.engine.CancelConfirm(ctx, rig.sellerID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmStatusSellerCancelled, got.Status)

	// Отзыв — не сделка: объявление не продано, журнал пуст
	assert.NotEqual(t, models.ListingStatusSold, rig.catalog.rows[rig.itemID].Status)
	assert.Empty(t, rig.ledger.entries)
	assert.Len(t, rig.messenger.byKind(models.MessageKindConfirmCancelled), 1)

	// После отзыва продавец может отправить новый запрос
	rig.advance(time.Minute)
	_, err = rig.engine.CreateConfirm(ctx, rig.createInput())
	require.NoError(t, err)
}

func TestSweep(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	c, err := rig.engine.CreateConfirm(ctx, rig.createInput())
	require.NoError(t, err)

	// До истечения срока уборке нечего делать
	n, err := rig.engine.Sweep(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, n)

	rig.advance(models.ConfirmTTL + time.Second)

	n, err = rig.engine.Sweep(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := rig.confirms.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmStatusAutoAccepted, stored.Status)

	// Повторная уборка идемпотентна
	n, err = rig.engine.Sweep(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, rig.catalog.markSoldCalls)
}

func TestStatus_ReasonPriority(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	// Не продавец
	st, err := rig.engine.Status(ctx, rig.buyerID, rig.chatID, rig.itemID)
	require.NoError(t, err)
	assert.False(t, st.CanConfirm)
	assert.Equal(t, ReasonNotSeller, st.ReasonCode)

	// Нет принятой встречи
	rig.meetups.rows[rig.meetupID].Status = models.MeetupStatusPending
	st, err = rig.engine.Status(ctx, rig.sellerID, rig.chatID, rig.itemID)
	require.NoError(t, err)
	assert.Equal(t, ReasonMissingSchedule, st.ReasonCode)
	rig.meetups.rows[rig.meetupID].Status = models.MeetupStatusAccepted

	// Встреча принята, запросов ещё нет — можно отправлять
	st, err = rig.engine.Status(ctx, rig.sellerID, rig.chatID, rig.itemID)
	require.NoError(t, err)
	assert.True(t, st.CanConfirm)

	// Неотвеченный запрос блокирует
	c, err := rig.engine.CreateConfirm(ctx, rig.createInput())
	require.NoError(t, err)
	st, err = rig.engine.Status(ctx, rig.sellerID, rig.chatID, rig.itemID)
	require.NoError(t, err)
	assert.Equal(t, ReasonPendingRequest, st.ReasonCode)
	require.NotNil(t, st.Pending)
	assert.Equal(t, c.ID, st.Pending.ID)

	// После отказа покупателя снова можно
	_, err = rig.engine.RespondConfirm(ctx, rig.buyerID, c.ID, false)
	require.NoError(t, err)
	st, err = rig.engine.Status(ctx, rig.sellerID, rig.chatID, rig.itemID)
	require.NoError(t, err)
	assert.True(t, st.CanConfirm)
	assert.Empty(t, st.ReasonCode)
	require.NotNil(t, st.Latest)

	// Подтверждённая сделка блокирует навсегда
	rig.advance(time.Minute)
	c2, err := rig.engine.CreateConfirm(ctx, rig.createInput())
	require.NoError(t, err)
	_, err = rig.engine.RespondConfirm(ctx, rig.buyerID, c2.ID, true)
	require.NoError(t, err)
	st, err = rig.engine.Status(ctx, rig.sellerID, rig.chatID, rig.itemID)
	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyConfirmed, st.ReasonCode)
}

func TestStatus_FinalizesExpiredPending(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	c, err := rig.engine.CreateConfirm(ctx, rig.createInput())
	require.NoError(t, err)

	rig.advance(models.ConfirmTTL + time.Hour)

	st, err := rig.engine.Status(ctx, rig.sellerID, rig.chatID, rig.itemID)
	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyConfirmed, st.ReasonCode)

	stored, err := rig.confirms.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmStatusAutoAccepted, stored.Status)

	// Эффекты автоприёма те же, что у ручного подтверждения
	assert.Equal(t, models.ListingStatusSold, rig.catalog.rows[rig.itemID].Status)
	require.Len(t, rig.ledger.entries, 1)
}

func TestResolveFinalPrice(t *testing.T) {
	base := &models.ConfirmRequest{
		Payload: models.ConfirmSnapshot{
			ListingPrice:    int64ptr(100000),
			NegotiatedPrice: int64ptr(90000),
		},
		FinalPrice: int64ptr(85000),
	}

	// Явная итоговая цена важнее всего
	assert.Equal(t, int64(85000), ResolveFinalPrice(base))

	// Без неё берём договорную цену встречи
	base.FinalPrice = nil
	assert.Equal(t, int64(90000), ResolveFinalPrice(base))

	// Потом цену объявления
	base.Payload.NegotiatedPrice = nil
	assert.Equal(t, int64(100000), ResolveFinalPrice(base))

	// Обмен без цен — ноль
	base.Payload.ListingPrice = nil
	assert.Equal(t, int64(0), ResolveFinalPrice(base))
}
