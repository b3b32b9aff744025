package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы объявления
const (
	ListingStatusActive  = "active"
	ListingStatusPending = "pending" // по объявлению назначена встреча
	ListingStatusSold    = "sold"
	ListingStatusDeleted = "deleted"
)

// Listing представляет объявление в системе. Цены храним в минимальных
// единицах валюты (копейки/центы), поэтому int64.
type Listing struct {
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Price             *int64     `json:"price,omitempty"`
	IsPriceNegotiable bool       `json:"is_price_negotiable"`
	AllowTrade        bool       `json:"allow_trade"`
	MeetLocation      string     `json:"meet_location"`
	Status            string     `json:"status"`
	BuyerID           *uuid.UUID `json:"buyer_id,omitempty"`
	SoldAt            *time.Time `json:"sold_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
