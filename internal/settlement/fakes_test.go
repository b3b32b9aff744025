package settlement

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rmakarov/baraholka-api/internal/models"
)

// Фейковые хранилища в памяти. Условный переход защищен мьютексом и
// повторяет семантику UPDATE ... WHERE status = 'pending': применяется
// ровно один конкурирующий вызов.

type fakeConfirmStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.ConfirmRequest
}

func newFakeConfirmStore() *fakeConfirmStore {
	return &fakeConfirmStore{rows: make(map[uuid.UUID]*models.ConfirmRequest)}
}

func (s *fakeConfirmStore) Create(ctx context.Context, c *models.ConfirmRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.rows[c.ID] = &cp
	return nil
}

func (s *fakeConfirmStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ConfirmRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeConfirmStore) LatestForMeetup(ctx context.Context, meetupID uuid.UUID) (*models.ConfirmRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.ConfirmRequest
	for _, c := range s.rows {
		if c.MeetupRequestID != meetupID {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *fakeConfirmStore) Transition(ctx context.Context, id uuid.UUID, to string, stamp TransitionStamp) (TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok || c.Status != models.ConfirmStatusPending {
		return AlreadyTransitioned, nil
	}
	c.Status = to
	if stamp.BuyerResponseAt != nil {
		c.BuyerResponseAt = stamp.BuyerResponseAt
	}
	if stamp.AutoProcessedAt != nil {
		c.AutoProcessedAt = stamp.AutoProcessedAt
	}
	c.UpdatedAt = time.Now()
	return Applied, nil
}

func (s *fakeConfirmStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.ConfirmRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ConfirmRequest
	for _, c := range s.rows {
		if c.Status == models.ConfirmStatusPending && now.After(c.ExpiresAt) {
			cp := *c
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeMeetupStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.MeetupRequest
}

func newFakeMeetupStore() *fakeMeetupStore {
	return &fakeMeetupStore{rows: make(map[uuid.UUID]*models.MeetupRequest)}
}

func (s *fakeMeetupStore) Create(ctx context.Context, m *models.MeetupRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.rows {
		if other.IsLive() && other.VerificationCode == m.VerificationCode {
			return ErrCodeInUse
		}
	}
	cp := *m
	s.rows[m.ID] = &cp
	return nil
}

func (s *fakeMeetupStore) GetByID(ctx context.Context, id uuid.UUID) (*models.MeetupRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *fakeMeetupStore) AcceptedForItem(ctx context.Context, itemID, chatID uuid.UUID) (*models.MeetupRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.MeetupRequest
	for _, m := range s.rows {
		if m.ItemID != itemID || m.ChatID != chatID || m.Status != models.MeetupStatusAccepted {
			continue
		}
		if latest == nil || m.CreatedAt.After(latest.CreatedAt) {
			latest = m
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *fakeMeetupStore) HasLive(ctx context.Context, itemID uuid.UUID, exclude uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.rows {
		if m.ItemID == itemID && m.ID != exclude && m.IsLive() {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeMeetupStore) Transition(ctx context.Context, id uuid.UUID, to string, by *uuid.UUID, respondedAt *time.Time) (TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return AlreadyTransitioned, nil
	}
	allowed := m.Status == models.MeetupStatusPending
	if to == models.MeetupStatusCancelled {
		allowed = m.IsLive()
	}
	if !allowed {
		return AlreadyTransitioned, nil
	}
	m.Status = to
	m.CanceledBy = by
	if respondedAt != nil {
		m.BuyerResponseAt = respondedAt
	}
	return Applied, nil
}

func (s *fakeMeetupStore) ListForBuyer(ctx context.Context, buyerID uuid.UUID) ([]*models.MeetupRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.MeetupRequest
	for _, m := range s.rows {
		if m.BuyerID == buyerID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeCatalog struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Listing

	markSoldCalls int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{rows: make(map[uuid.UUID]*models.Listing)}
}

func (s *fakeCatalog) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[id]
	if !ok || l.Status == models.ListingStatusDeleted {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *fakeCatalog) SetStatus(ctx context.Context, itemID uuid.UUID, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[itemID]
	if !ok || l.Status != from {
		return nil
	}
	l.Status = to
	return nil
}

func (s *fakeCatalog) MarkSold(ctx context.Context, itemID, buyerID uuid.UUID, price int64, soldAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markSoldCalls++
	l, ok := s.rows[itemID]
	if !ok {
		return ErrNotFound
	}
	l.Status = models.ListingStatusSold
	l.BuyerID = &buyerID
	l.Price = &price
	l.SoldAt = &soldAt
	return nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []*models.PurchaseEntry
}

func (s *fakeLedger) Append(ctx context.Context, e *models.PurchaseEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

type sentEvent struct {
	ChatID   uuid.UUID
	SenderID uuid.UUID
	Text     string
	Meta     models.EventMeta
}

type fakeMessenger struct {
	mu     sync.Mutex
	events []sentEvent
}

func (s *fakeMessenger) SendEvent(ctx context.Context, chatID, senderID uuid.UUID, text string, meta models.EventMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sentEvent{ChatID: chatID, SenderID: senderID, Text: text, Meta: meta})
	return nil
}

func (s *fakeMessenger) byKind(kind string) []sentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sentEvent
	for _, e := range s.events {
		if e.Meta.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// testRig — собранный движок с фейковыми хранилищами и управляемыми часами.
type testRig struct {
	engine    *Engine
	confirms  *fakeConfirmStore
	meetups   *fakeMeetupStore
	catalog   *fakeCatalog
	ledger    *fakeLedger
	messenger *fakeMessenger

	now time.Time

	sellerID uuid.UUID
	buyerID  uuid.UUID
	itemID   uuid.UUID
	chatID   uuid.UUID
	meetupID uuid.UUID
}

func newTestRig() *testRig {
	rig := &testRig{
		confirms:  newFakeConfirmStore(),
		meetups:   newFakeMeetupStore(),
		catalog:   newFakeCatalog(),
		ledger:    &fakeLedger{},
		messenger: &fakeMessenger{},

		now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),

		sellerID: uuid.New(),
		buyerID:  uuid.New(),
		itemID:   uuid.New(),
		chatID:   uuid.New(),
		meetupID: uuid.New(),
	}

	fx := NewEffects(rig.messenger, rig.catalog, rig.ledger)
	rig.engine = NewEngine(rig.confirms, rig.meetups, rig.catalog, fx)
	rig.engine.Now = func() time.Time { return rig.now }

	price := int64(150000)
	rig.catalog.rows[rig.itemID] = &models.Listing{
		ID:     rig.itemID,
		UserID: rig.sellerID,
		Title:  "Велосипед Stels",
		Price:  &price,
		Status: models.ListingStatusPending,
	}
	rig.meetups.rows[rig.meetupID] = &models.MeetupRequest{
		ID:               rig.meetupID,
		ItemID:           rig.itemID,
		SellerID:         rig.sellerID,
		BuyerID:          rig.buyerID,
		ChatID:           rig.chatID,
		MeetLocation:     "м. Таганская",
		MeetingAt:        rig.now.Add(48 * time.Hour),
		VerificationCode: "7KQM",
		Status:           models.MeetupStatusAccepted,
		CreatedAt:        rig.now.Add(-time.Hour),
	}
	return rig
}

func (r *testRig) advance(d time.Duration) {
	r.now = r.now.Add(d)
}

func (r *testRig) createInput() CreateConfirmInput {
	return CreateConfirmInput{
		SellerID:        r.sellerID,
		MeetupRequestID: r.meetupID,
		ItemID:          r.itemID,
		ChatID:          r.chatID,
		IsSuccessful:    true,
	}
}
