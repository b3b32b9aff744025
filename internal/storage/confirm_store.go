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
)

// ConfirmStore — хранилище запросов подтверждения поверх PostgreSQL.
type ConfirmStore struct {
	pool *pgxpool.Pool
}

// NewConfirmStore создает новый экземпляр ConfirmStore
func NewConfirmStore(pool *pgxpool.Pool) *ConfirmStore {
	return &ConfirmStore{pool: pool}
}

const confirmColumns = `id, meetup_request_id, item_id, seller_id, buyer_id, chat_id,
       is_successful, final_price, seller_notes, failure_reason, failure_reason_notes,
       status, expires_at, buyer_response_at, auto_processed_at, payload, created_at, updated_at`

func scanConfirm(row pgx.Row) (*models.ConfirmRequest, error) {
	var c models.ConfirmRequest
	var payload []byte
	err := row.Scan(
		&c.ID,
		&c.MeetupRequestID,
		&c.ItemID,
		&c.SellerID,
		&c.BuyerID,
		&c.ChatID,
		&c.IsSuccessful,
		&c.FinalPrice,
		&c.SellerNotes,
		&c.FailureReason,
		&c.FailureReasonNotes,
		&c.Status,
		&c.ExpiresAt,
		&c.BuyerResponseAt,
		&c.AutoProcessedAt,
		&payload,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settlement.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(payload, &c.Payload); err != nil {
		return nil, fmt.Errorf("ошибка разбора снимка сделки %s: %w", c.ID, err)
	}
	return &c, nil
}

// Create вставляет новый запрос подтверждения со статусом pending.
func (s *ConfirmStore) Create(ctx context.Context, c *models.ConfirmRequest) error {
	payload, err := json.Marshal(c.Payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации снимка сделки: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
        INSERT INTO confirm_requests (id, meetup_request_id, item_id, seller_id, buyer_id, chat_id,
            is_successful, final_price, seller_notes, failure_reason, failure_reason_notes,
            status, expires_at, payload, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
    `, c.ID, c.MeetupRequestID, c.ItemID, c.SellerID, c.BuyerID, c.ChatID,
		c.IsSuccessful, c.FinalPrice, c.SellerNotes, c.FailureReason, c.FailureReasonNotes,
		c.Status, c.ExpiresAt, payload, c.CreatedAt, c.UpdatedAt)
	return err
}

// GetByID возвращает запрос подтверждения по ID.
func (s *ConfirmStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ConfirmRequest, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT `+confirmColumns+` FROM confirm_requests WHERE id = $1
    `, id)
	return scanConfirm(row)
}

// LatestForMeetup возвращает последний запрос подтверждения по встрече.
func (s *ConfirmStore) LatestForMeetup(ctx context.Context, meetupID uuid.UUID) (*models.ConfirmRequest, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT `+confirmColumns+` FROM confirm_requests
        WHERE meetup_request_id = $1
        ORDER BY created_at DESC
        LIMIT 1
    `, meetupID)
	return scanConfirm(row)
}

// Transition — условное обновление статуса: применяется только если запись
// всё ещё pending. Нулевое число затронутых строк означает, что переход уже
// выполнил другой вызов.
func (s *ConfirmStore) Transition(ctx context.Context, id uuid.UUID, to string, stamp settlement.TransitionStamp) (settlement.TransitionResult, error) {
	tag, err := s.pool.Exec(ctx, `
        UPDATE confirm_requests
        SET status = $1,
            buyer_response_at = COALESCE($2, buyer_response_at),
            auto_processed_at = COALESCE($3, auto_processed_at),
            updated_at = NOW()
        WHERE id = $4 AND status = 'pending'
    `, to, stamp.BuyerResponseAt, stamp.AutoProcessedAt, id)
	if err != nil {
		return settlement.AlreadyTransitioned, err
	}
	if tag.RowsAffected() == 0 {
		return settlement.AlreadyTransitioned, nil
	}
	return settlement.Applied, nil
}

// ListExpiredPending возвращает просроченные неотвеченные запросы для уборки.
func (s *ConfirmStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.ConfirmRequest, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+confirmColumns+` FROM confirm_requests
        WHERE status = 'pending' AND expires_at < $1
        ORDER BY expires_at ASC
        LIMIT $2
    `, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.ConfirmRequest
	for rows.Next() {
		c, err := scanConfirm(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
