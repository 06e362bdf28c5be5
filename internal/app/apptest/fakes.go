// Package apptest provides in-memory implementations of the domain ports
// for tests.
package apptest

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"lodging_agent/internal/domain"
)

// Inventory is an in-memory InventoryRepository. ListUnits applies the
// structured filters with the same case-insensitive substring semantics as
// the SQL repository.
type Inventory struct {
	Properties []domain.Property
	Units      []domain.UnitRecord
	Err        error

	mu        sync.Mutex
	UnitCalls []domain.UnitFilter
	PropCalls int
}

func (f *Inventory) ListProperties(_ context.Context, pf domain.PropertyFilter) ([]domain.Property, error) {
	f.mu.Lock()
	f.PropCalls++
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []domain.Property
	for _, p := range f.Properties {
		if contains(p.Name, pf.HotelName) && contains(p.City, pf.City) && contains(p.Country, pf.Country) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *Inventory) ListUnits(_ context.Context, uf domain.UnitFilter) ([]domain.UnitRecord, error) {
	f.mu.Lock()
	f.UnitCalls = append(f.UnitCalls, uf)
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []domain.UnitRecord
	for _, u := range f.Units {
		p := u.Property
		if !contains(p.Name, uf.HotelName) || !contains(p.City, uf.City) ||
			!contains(p.Country, uf.Country) || !contains(u.Type, uf.UnitType) {
			continue
		}
		if uf.MaxPrice != nil && u.PricePerNight > *uf.MaxPrice {
			continue
		}
		if uf.MinGuests != nil && (u.MaxGuests == nil || *u.MaxGuests < *uf.MinGuests) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (f *Inventory) GetUnit(_ context.Context, id string) (domain.UnitRecord, error) {
	if f.Err != nil {
		return domain.UnitRecord{}, f.Err
	}
	for _, u := range f.Units {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.UnitRecord{}, domain.ErrNotFound
}

func (f *Inventory) FindUnitsByName(_ context.Context, name, hotel string) ([]domain.UnitRecord, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	var out []domain.UnitRecord
	for _, u := range f.Units {
		if u.Name == name && (hotel == "" || u.Property.Name == hotel) {
			out = append(out, u)
		}
	}
	return out, nil
}

func contains(field, sub string) bool {
	return sub == "" || strings.Contains(strings.ToLower(field), strings.ToLower(sub))
}

// Bookings is an in-memory BookingRepository keyed by email, optionally
// scoped per property.
type Bookings struct {
	PerProperty bool
	// Taken confirmation codes are rejected with ErrDuplicate.
	Taken map[string]bool
	// ConcurrentGuest is stored just ahead of the next InsertGuest, as if a
	// parallel booking created the same guest first.
	ConcurrentGuest *domain.Guest

	mu           sync.Mutex
	Guests       map[string]domain.Guest
	Reservations []domain.Reservation
	GuestInserts int
}

func NewBookings() *Bookings {
	return &Bookings{Taken: map[string]bool{}, Guests: map[string]domain.Guest{}}
}

func (b *Bookings) key(email, propertyID string) string {
	if b.PerProperty {
		return propertyID + "|" + email
	}
	return email
}

func (b *Bookings) FindGuestByEmail(_ context.Context, email, propertyID string) (domain.Guest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.Guests[b.key(email, propertyID)]
	if !ok {
		return domain.Guest{}, domain.ErrNotFound
	}
	return g, nil
}

func (b *Bookings) UpdateGuestContact(_ context.Context, id, name, phone string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, g := range b.Guests {
		if g.ID == id {
			g.Name, g.Phone = name, phone
			b.Guests[k] = g
			return nil
		}
	}
	return domain.ErrNotFound
}

func (b *Bookings) InsertGuest(_ context.Context, g domain.Guest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c := b.ConcurrentGuest; c != nil {
		b.ConcurrentGuest = nil
		c.ID = uuid.NewString()
		b.Guests[b.key(c.Email, c.PropertyID)] = *c
	}
	k := b.key(g.Email, g.PropertyID)
	if _, ok := b.Guests[k]; ok {
		return "", domain.ErrDuplicate
	}
	g.ID = uuid.NewString()
	b.Guests[k] = g
	b.GuestInserts++
	return g.ID, nil
}

func (b *Bookings) InsertReservation(_ context.Context, r domain.Reservation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Taken[r.ConfirmationCode] {
		return domain.ErrDuplicate
	}
	r.ID = uuid.NewString()
	b.Taken[r.ConfirmationCode] = true
	b.Reservations = append(b.Reservations, r)
	return nil
}

// Notifier records notices and returns Err.
type Notifier struct {
	Err error

	mu      sync.Mutex
	Notices []domain.BookingNotice
}

func (n *Notifier) BookingConfirmed(_ context.Context, b domain.BookingNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Notices = append(n.Notices, b)
	return n.Err
}

// Mailer fails the first FailFirst sends and records every attempt.
type Mailer struct {
	FailFirst int
	Err       error

	mu    sync.Mutex
	Calls int
	Sent  []domain.BookingNotice
}

func (m *Mailer) SendBookingConfirmation(_ context.Context, n domain.BookingNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Calls <= m.FailFirst {
		return m.Err
	}
	m.Sent = append(m.Sent, n)
	return nil
}

// Publisher records published events.
type Publisher struct {
	Err error

	mu     sync.Mutex
	Keys   []string
	Values []any
}

func (p *Publisher) PublishJSON(_ context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Keys = append(p.Keys, key)
	p.Values = append(p.Values, v)
	return nil
}
