package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rmakarov/baraholka-api/internal/models"
	"github.com/rmakarov/baraholka-api/internal/settlement"
)

// MeetupStore — хранилище запросов на встречу поверх PostgreSQL.
type MeetupStore struct {
	pool *pgxpool.Pool
}

// NewMeetupStore создает новый экземпляр MeetupStore
func NewMeetupStore(pool *pgxpool.Pool) *MeetupStore {
	return &MeetupStore{pool: pool}
}

const meetupColumns = `id, item_id, seller_id, buyer_id, chat_id, meet_location, meeting_at,
       verification_code, description, negotiated_price, is_trade, trade_item_description,
       snapshot_price_negotiable, snapshot_trade_allowed, snapshot_meet_location,
       status, buyer_response_at, canceled_by, created_at, updated_at`

func scanMeetup(row pgx.Row) (*models.MeetupRequest, error) {
	var m models.MeetupRequest
	err := row.Scan(
		&m.ID,
		&m.ItemID,
		&m.SellerID,
		&m.BuyerID,
		&m.ChatID,
		&m.MeetLocation,
		&m.MeetingAt,
		&m.VerificationCode,
		&m.Description,
		&m.NegotiatedPrice,
		&m.IsTrade,
		&m.TradeItemDescription,
		&m.SnapshotPriceNegotiable,
		&m.SnapshotTradeAllowed,
		&m.SnapshotMeetLocation,
		&m.Status,
		&m.BuyerResponseAt,
		&m.CanceledBy,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settlement.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Create вставляет новую встречу. Уникальность кода проверки среди живых
// встреч обеспечивает частичный уникальный индекс; конфликт транслируется
// в settlement.ErrCodeInUse, чтобы вызывающая сторона повторила с новым
// кодом.
func (s *MeetupStore) Create(ctx context.Context, m *models.MeetupRequest) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO meetup_requests (id, item_id, seller_id, buyer_id, chat_id, meet_location,
            meeting_at, verification_code, description, negotiated_price, is_trade,
            trade_item_description, snapshot_price_negotiable, snapshot_trade_allowed,
            snapshot_meet_location, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
    `, m.ID, m.ItemID, m.SellerID, m.BuyerID, m.ChatID, m.MeetLocation,
		m.MeetingAt, m.VerificationCode, m.Description, m.NegotiatedPrice, m.IsTrade,
		m.TradeItemDescription, m.SnapshotPriceNegotiable, m.SnapshotTradeAllowed,
		m.SnapshotMeetLocation, m.Status, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "idx_meetup_live_code" {
			return settlement.ErrCodeInUse
		}
		return err
	}
	return nil
}

// GetByID возвращает встречу по ID.
func (s *MeetupStore) GetByID(ctx context.Context, id uuid.UUID) (*models.MeetupRequest, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT `+meetupColumns+` FROM meetup_requests WHERE id = $1
    `, id)
	return scanMeetup(row)
}

// AcceptedForItem возвращает последнюю принятую встречу по объявлению в
// рамках чата.
func (s *MeetupStore) AcceptedForItem(ctx context.Context, itemID, chatID uuid.UUID) (*models.MeetupRequest, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT `+meetupColumns+` FROM meetup_requests
        WHERE item_id = $1 AND chat_id = $2 AND status = 'accepted'
        ORDER BY created_at DESC
        LIMIT 1
    `, itemID, chatID)
	return scanMeetup(row)
}

// HasLive сообщает, есть ли по объявлению другие живые встречи.
func (s *MeetupStore) HasLive(ctx context.Context, itemID uuid.UUID, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
        SELECT EXISTS(
            SELECT 1 FROM meetup_requests
            WHERE item_id = $1 AND id != $2 AND status IN ('pending', 'accepted')
        )
    `, itemID, exclude).Scan(&exists)
	return exists, err
}

// Transition — условное обновление статуса встречи. Ответ покупателя
// возможен только из pending; отмена — из pending или accepted.
func (s *MeetupStore) Transition(ctx context.Context, id uuid.UUID, to string, by *uuid.UUID, respondedAt *time.Time) (settlement.TransitionResult, error) {
	guard := `status = 'pending'`
	if to == models.MeetupStatusCancelled {
		guard = `status IN ('pending', 'accepted')`
	}

	tag, err := s.pool.Exec(ctx, `
        UPDATE meetup_requests
        SET status = $1,
            canceled_by = COALESCE($2, canceled_by),
            buyer_response_at = COALESCE($3, buyer_response_at),
            updated_at = NOW()
        WHERE id = $4 AND `+guard+`
    `, to, by, respondedAt, id)
	if err != nil {
		return settlement.AlreadyTransitioned, err
	}
	if tag.RowsAffected() == 0 {
		return settlement.AlreadyTransitioned, nil
	}
	return settlement.Applied, nil
}

// ListForBuyer возвращает встречи покупателя для его кабинета.
func (s *MeetupStore) ListForBuyer(ctx context.Context, buyerID uuid.UUID) ([]*models.MeetupRequest, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+meetupColumns+` FROM meetup_requests
        WHERE buyer_id = $1
        ORDER BY created_at DESC
    `, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.MeetupRequest
	for rows.Next() {
		m, err := scanMeetup(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
