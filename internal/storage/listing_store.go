package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rmakarov/baraholka-api/internal/models"
	"github.com/rmakarov/baraholka-api/internal/settlement"
)

// ListingStore — хранилище объявлений поверх PostgreSQL. Служит и каталогом
// для движка сделок, и бэкендом CRUD объявлений.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore создает новый экземпляр ListingStore
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

const listingColumns = `id, user_id, title, description, price, is_price_negotiable,
       allow_trade, meet_location, status, buyer_id, sold_at, created_at, updated_at`

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(
		&l.ID,
		&l.UserID,
		&l.Title,
		&l.Description,
		&l.Price,
		&l.IsPriceNegotiable,
		&l.AllowTrade,
		&l.MeetLocation,
		&l.Status,
		&l.BuyerID,
		&l.SoldAt,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settlement.ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

// Create вставляет новое объявление.
func (s *ListingStore) Create(ctx context.Context, l *models.Listing) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO listings (id, user_id, title, description, price, is_price_negotiable,
            allow_trade, meet_location, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, l.ID, l.UserID, l.Title, l.Description, l.Price, l.IsPriceNegotiable,
		l.AllowTrade, l.MeetLocation, l.Status, l.CreatedAt, l.UpdatedAt)
	return err
}

// GetByID возвращает объявление по ID.
func (s *ListingStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT `+listingColumns+` FROM listings WHERE id = $1 AND status != 'deleted'
    `, id)
	return scanListing(row)
}

// ListForUser возвращает объявления пользователя.
func (s *ListingStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Listing, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+listingColumns+` FROM listings
        WHERE user_id = $1 AND status != 'deleted'
        ORDER BY created_at DESC
    `, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

// SetStatus меняет статус объявления только из ожидаемого состояния —
// например, снимает метку pending, не трогая уже проданное объявление.
func (s *ListingStore) SetStatus(ctx context.Context, itemID uuid.UUID, from, to string) error {
	_, err := s.pool.Exec(ctx, `
        UPDATE listings SET status = $1, updated_at = NOW()
        WHERE id = $2 AND status = $3
    `, to, itemID, from)
	return err
}

// MarkSold отмечает объявление проданным и фиксирует покупателя, итоговую
// цену и дату продажи.
func (s *ListingStore) MarkSold(ctx context.Context, itemID, buyerID uuid.UUID, price int64, soldAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
        UPDATE listings
        SET status = 'sold', buyer_id = $1, price = $2, sold_at = $3, updated_at = NOW()
        WHERE id = $4
    `, buyerID, price, soldAt, itemID)
	return err
}

// SoftDelete помечает объявление удалённым. Проданные объявления остаются
// в истории покупок, поэтому физического удаления нет.
func (s *ListingStore) SoftDelete(ctx context.Context, itemID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
        UPDATE listings SET status = 'deleted', updated_at = NOW()
        WHERE id = $1 AND user_id = $2 AND status != 'sold'
    `, itemID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return settlement.ErrNotFound
	}
	return nil
}
