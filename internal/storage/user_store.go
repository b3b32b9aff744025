package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rmakarov/baraholka-api/internal/models"
	"github.com/rmakarov/baraholka-api/internal/settlement"
)

// UserStore — хранилище пользователей поверх PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore создает новый экземпляр UserStore
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// GetByID возвращает пользователя по ID.
func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	var username, firstName, lastName, avatarURL *string
	err := s.pool.QueryRow(ctx, `
        SELECT id, username, first_name, last_name, avatar_url
        FROM users
        WHERE id = $1
    `, id).Scan(&u.ID, &username, &firstName, &lastName, &avatarURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settlement.ErrNotFound
		}
		return nil, err
	}
	if username != nil {
		u.Username = *username
	}
	if firstName != nil {
		u.FirstName = *firstName
	}
	if lastName != nil {
		u.LastName = *lastName
	}
	if avatarURL != nil {
		u.AvatarURL = *avatarURL
	}
	return &u, nil
}

// UpsertTelegramUser создает пользователя по данным Telegram или обновляет
// существующего; возвращает внутренний ID пользователя.
func (s *UserStore) UpsertTelegramUser(ctx context.Context, telegramID int64, username, firstName, lastName, photoURL string, rawData []byte) (*models.User, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID uuid.UUID
	err = tx.QueryRow(ctx, `
        SELECT user_id FROM telegram_users WHERE telegram_id = $1
    `, telegramID).Scan(&userID)

	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx, `
            INSERT INTO users (first_name, last_name, username, avatar_url, last_login_at)
            VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
            RETURNING id
        `, firstName, lastName, username, photoURL).Scan(&userID)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания пользователя: %w", err)
		}

		_, err = tx.Exec(ctx, `
            INSERT INTO telegram_users (user_id, telegram_id, username, first_name, last_name, photo_url, raw_data)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
        `, userID, telegramID, username, firstName, lastName, photoURL, rawData)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания Telegram-пользователя: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("ошибка поиска Telegram-пользователя: %w", err)
	} else {
		_, err = tx.Exec(ctx, `
            UPDATE users
            SET first_name = $1, last_name = $2, username = $3, avatar_url = $4,
                last_login_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
            WHERE id = $5
        `, firstName, lastName, username, photoURL, userID)
		if err != nil {
			return nil, fmt.Errorf("ошибка обновления пользователя: %w", err)
		}

		_, err = tx.Exec(ctx, `
            UPDATE telegram_users
            SET username = $1, first_name = $2, last_name = $3, photo_url = $4,
                raw_data = $5, updated_at = CURRENT_TIMESTAMP
            WHERE telegram_id = $6
        `, username, firstName, lastName, photoURL, rawData, telegramID)
		if err != nil {
			return nil, fmt.Errorf("ошибка обновления Telegram-пользователя: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	return &models.User{
		ID:        userID,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
		AvatarURL: photoURL,
	}, nil
}
