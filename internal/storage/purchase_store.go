package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rmakarov/baraholka-api/internal/models"
)

// PurchaseStore — журнал покупок поверх PostgreSQL. Запись идёт только в
// purchase_entries; чтение объединяет журнал с исторической таблицей
// transactions, которую новый код не пополняет (шов совместимости на время
// миграции, см. DESIGN.md).
type PurchaseStore struct {
	pool *pgxpool.Pool
}

// NewPurchaseStore создает новый экземпляр PurchaseStore
func NewPurchaseStore(pool *pgxpool.Pool) *PurchaseStore {
	return &PurchaseStore{pool: pool}
}

// Append дописывает запись в журнал покупок (settlement.Ledger).
func (s *PurchaseStore) Append(ctx context.Context, e *models.PurchaseEntry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации снимка покупки: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
        INSERT INTO purchase_entries (id, buyer_id, item_id, recorded_at, payload)
        VALUES ($1, $2, $3, $4, $5)
    `, e.ID, e.BuyerID, e.ItemID, e.RecordedAt, payload)
	return err
}

// History возвращает объединённую историю покупок пользователя: записи
// журнала плюс строки исторической таблицы, по убыванию времени.
func (s *PurchaseStore) History(ctx context.Context, buyerID uuid.UUID) ([]models.PurchaseHistoryItem, error) {
	var items []models.PurchaseHistoryItem

	rows, err := s.pool.Query(ctx, `
        SELECT item_id, recorded_at, payload FROM purchase_entries
        WHERE buyer_id = $1
    `, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item models.PurchaseHistoryItem
		var payload []byte
		if err := rows.Scan(&item.ItemID, &item.RecordedAt, &payload); err != nil {
			return nil, err
		}
		var snapshot models.ConfirmSnapshot
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return nil, fmt.Errorf("ошибка разбора снимка покупки: %w", err)
		}
		item.Payload = &snapshot
		item.Source = "ledger"
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	legacy, err := s.pool.Query(ctx, `
        SELECT item_id, amount, created_at FROM transactions
        WHERE buyer_id = $1
    `, buyerID)
	if err != nil {
		return nil, err
	}
	defer legacy.Close()

	for legacy.Next() {
		var item models.PurchaseHistoryItem
		var amount int64
		if err := legacy.Scan(&item.ItemID, &amount, &item.RecordedAt); err != nil {
			return nil, err
		}
		item.Amount = &amount
		item.Source = "legacy"
		items = append(items, item)
	}
	if err := legacy.Err(); err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].RecordedAt.After(items[j].RecordedAt)
	})
	return items, nil
}
