package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"lodging_agent/internal/adapters/observability"
	"lodging_agent/internal/domain"
)

const (
	defaultGuests   = 2
	defaultCurrency = "USD"
	checkInTime     = "15:00"
	checkOutTime    = "11:00"
	maxCodeAttempts = 3
)

type BookRequest struct {
	CheckIn   string `json:"check_in"`
	CheckOut  string `json:"check_out"`
	UnitID    string `json:"unit_id"`
	UnitName  string `json:"unit_name"`
	HotelName string `json:"hotel_name"`
	Guests    int    `json:"guests"`
}

type BookingForm struct {
	UnitID        string  `json:"unit_id"`
	UnitName      string  `json:"unit_name"`
	HotelName     string  `json:"hotel_name"`
	CheckIn       string  `json:"check_in"`
	CheckOut      string  `json:"check_out"`
	Nights        int     `json:"nights"`
	Guests        int     `json:"guests"`
	PricePerNight float64 `json:"price_per_night"`
	CurrencyCode  string  `json:"currency_code"`
	TotalPrice    float64 `json:"total_price"`
	ImageURL      string  `json:"image_url"`
	Rating        *string `json:"rating"`
}

type ConfirmRequest struct {
	UnitID       string  `json:"unit_id"`
	CheckIn      string  `json:"check_in"`
	CheckOut     string  `json:"check_out"`
	Guests       int     `json:"guests"`
	GuestName    string  `json:"guest_name"`
	GuestEmail   string  `json:"guest_email"`
	GuestPhone   string  `json:"guest_phone"`
	TotalPrice   float64 `json:"total_price"`
	CurrencyCode string  `json:"currency_code"`
	UnitName     string  `json:"unit_name"`
}

type Confirmation struct {
	ConfirmationCode string  `json:"confirmation_code"`
	Status           string  `json:"status"`
	UnitName         string  `json:"unit_name"`
	HotelName        string  `json:"hotel_name"`
	CheckIn          string  `json:"check_in"`
	CheckOut         string  `json:"check_out"`
	CheckInTime      string  `json:"check_in_time"`
	CheckOutTime     string  `json:"check_out_time"`
	Nights           int     `json:"nights"`
	Guests           int     `json:"guests"`
	TotalPrice       float64 `json:"total_price"`
	CurrencyCode     string  `json:"currency_code"`
	GuestName        string  `json:"guest_name"`
	GuestEmail       string  `json:"guest_email"`
	GuestPhone       string  `json:"guest_phone"`
	ImageURL         string  `json:"image_url"`
}

type BookingEngine struct {
	units    *UnitResolver
	repo     domain.BookingRepository
	notifier domain.Notifier
	source   string
	newCode  func() string
}

func NewBookingEngine(units *UnitResolver, repo domain.BookingRepository, n domain.Notifier, source string) *BookingEngine {
	return &BookingEngine{units: units, repo: repo, notifier: n, source: source, newCode: NewConfirmationCode}
}

// WithCodeGenerator swaps the confirmation code source.
func (e *BookingEngine) WithCodeGenerator(fn func() string) *BookingEngine {
	e.newCode = fn
	return e
}

type stay struct {
	checkIn, checkOut time.Time
	nights            int
}

func parseStay(checkIn, checkOut string) (stay, error) {
	in, err := time.Parse(dateLayout, strings.TrimSpace(checkIn))
	if err != nil {
		return stay{}, fmt.Errorf("%w: check_in must be YYYY-MM-DD, got %q", domain.ErrInvalidInput, checkIn)
	}
	out, err := time.Parse(dateLayout, strings.TrimSpace(checkOut))
	if err != nil {
		return stay{}, fmt.Errorf("%w: check_out must be YYYY-MM-DD, got %q", domain.ErrInvalidInput, checkOut)
	}
	nights := int(out.Sub(in).Hours() / 24)
	if nights <= 0 {
		return stay{}, fmt.Errorf("%w: check_out %s must be after check_in %s", domain.ErrInvalidInput,
			out.Format(dateLayout), in.Format(dateLayout))
	}
	return stay{checkIn: in, checkOut: out, nights: nights}, nil
}

func roundCents(v float64) float64 { return math.Round(v*100) / 100 }

// OpenBookingForm prices a stay for the booking-form widget. It never writes.
func (e *BookingEngine) OpenBookingForm(ctx context.Context, req BookRequest) (BookingForm, error) {
	st, err := parseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		return BookingForm{}, err
	}
	guests := req.Guests
	if guests == 0 {
		guests = defaultGuests
	}
	if guests < 0 {
		return BookingForm{}, fmt.Errorf("%w: guests must be positive", domain.ErrInvalidInput)
	}

	u, err := e.units.Resolve(ctx, req.UnitID, req.UnitName, req.HotelName)
	if err != nil {
		return BookingForm{}, err
	}

	return BookingForm{
		UnitID:        u.ID,
		UnitName:      u.Name,
		HotelName:     u.Property.Name,
		CheckIn:       st.checkIn.Format(dateLayout),
		CheckOut:      st.checkOut.Format(dateLayout),
		Nights:        st.nights,
		Guests:        guests,
		PricePerNight: u.PricePerNight,
		CurrencyCode:  u.CurrencyCode,
		TotalPrice:    roundCents(u.PricePerNight * float64(st.nights)),
		ImageURL:      coverImage(u.Images),
		Rating:        u.Property.Rating,
	}, nil
}

// ConfirmBooking upserts the guest, writes the reservation and then notifies
// the guest. The guest write and the reservation insert are separate
// statements; a failure between them leaves a guest that the next attempt
// reuses. Notification failures are logged and never fail the booking.
func (e *BookingEngine) ConfirmBooking(ctx context.Context, req ConfirmRequest) (Confirmation, error) {
	st, err := parseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		return Confirmation{}, err
	}
	if req.Guests < 1 {
		return Confirmation{}, fmt.Errorf("%w: guests must be at least 1", domain.ErrInvalidInput)
	}
	name := strings.TrimSpace(req.GuestName)
	email := strings.TrimSpace(req.GuestEmail)
	if name == "" || email == "" {
		return Confirmation{}, fmt.Errorf("%w: guest_name and guest_email are required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(req.UnitID) == "" {
		return Confirmation{}, fmt.Errorf("%w: unit_id is required", domain.ErrInvalidInput)
	}
	currency := strings.TrimSpace(req.CurrencyCode)
	if currency == "" {
		currency = defaultCurrency
	}

	u, err := e.units.Resolve(ctx, req.UnitID, "", "")
	if err != nil {
		return Confirmation{}, err
	}
	if hint := strings.TrimSpace(req.UnitName); hint != "" && hint != u.Name {
		return Confirmation{}, fmt.Errorf("%w: unit name mismatch for unit_id %q: expected %q, got %q",
			domain.ErrConflict, req.UnitID, u.Name, hint)
	}

	guestID, err := e.upsertGuest(ctx, u.PropertyID, name, email, req.GuestPhone)
	if err != nil {
		return Confirmation{}, err
	}

	res := domain.Reservation{
		PropertyID:   u.PropertyID,
		UnitID:       u.ID,
		GuestID:      guestID,
		CheckIn:      st.checkIn,
		CheckOut:     st.checkOut,
		GuestsCount:  req.Guests,
		TotalPrice:   req.TotalPrice,
		CurrencyCode: currency,
		Status:       domain.StatusConfirmed,
		AIHandled:    true,
		Source:       e.source,
	}
	if err := e.insertReservation(ctx, &res); err != nil {
		return Confirmation{}, err
	}
	observability.ObserveBooking(domain.StatusConfirmed)

	out := Confirmation{
		ConfirmationCode: res.ConfirmationCode,
		Status:           domain.StatusConfirmed,
		UnitName:         u.Name,
		HotelName:        u.Property.Name,
		CheckIn:          st.checkIn.Format(dateLayout),
		CheckOut:         st.checkOut.Format(dateLayout),
		CheckInTime:      checkInTime,
		CheckOutTime:     checkOutTime,
		Nights:           st.nights,
		Guests:           req.Guests,
		TotalPrice:       req.TotalPrice,
		CurrencyCode:     currency,
		GuestName:        name,
		GuestEmail:       email,
		GuestPhone:       req.GuestPhone,
		ImageURL:         coverImage(u.Images),
	}

	e.notify(ctx, domain.BookingNotice{
		ConfirmationCode: out.ConfirmationCode,
		GuestName:        name,
		GuestEmail:       email,
		GuestPhone:       req.GuestPhone,
		HotelName:        u.Property.Name,
		UnitName:         u.Name,
		Guests:           req.Guests,
		CheckIn:          st.checkIn,
		CheckOut:         st.checkOut,
		TotalPrice:       req.TotalPrice,
		CurrencyCode:     currency,
	})
	return out, nil
}

// upsertGuest keys guests by email within the repository's scope. Name and
// phone are overwritten on repeat bookings (last write wins).
func (e *BookingEngine) upsertGuest(ctx context.Context, propertyID, name, email, phone string) (string, error) {
	g, err := e.repo.FindGuestByEmail(ctx, email, propertyID)
	switch {
	case err == nil:
		if err := e.repo.UpdateGuestContact(ctx, g.ID, name, phone); err != nil {
			return "", fmt.Errorf("%w: update guest %s: %v", domain.ErrUpstream, g.ID, err)
		}
		return g.ID, nil
	case errors.Is(err, domain.ErrNotFound):
		id, err := e.repo.InsertGuest(ctx, domain.Guest{PropertyID: propertyID, Name: name, Email: email, Phone: phone})
		if errors.Is(err, domain.ErrDuplicate) {
			// lost the race to a concurrent first booking with this email
			return e.updateExistingGuest(ctx, propertyID, name, email, phone)
		}
		if err != nil {
			return "", fmt.Errorf("%w: create guest: %v", domain.ErrUpstream, err)
		}
		if id == "" {
			return "", fmt.Errorf("%w: create guest: no id returned", domain.ErrUpstream)
		}
		return id, nil
	default:
		return "", fmt.Errorf("%w: find guest: %v", domain.ErrUpstream, err)
	}
}

func (e *BookingEngine) updateExistingGuest(ctx context.Context, propertyID, name, email, phone string) (string, error) {
	g, err := e.repo.FindGuestByEmail(ctx, email, propertyID)
	if err != nil {
		return "", fmt.Errorf("%w: reread guest: %v", domain.ErrUpstream, err)
	}
	if err := e.repo.UpdateGuestContact(ctx, g.ID, name, phone); err != nil {
		return "", fmt.Errorf("%w: update guest %s: %v", domain.ErrUpstream, g.ID, err)
	}
	return g.ID, nil
}

func (e *BookingEngine) insertReservation(ctx context.Context, res *domain.Reservation) error {
	for attempt := 1; ; attempt++ {
		res.ConfirmationCode = e.newCode()
		err := e.repo.InsertReservation(ctx, *res)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrDuplicate) && attempt < maxCodeAttempts {
			log.Warn().Str("code", res.ConfirmationCode).Int("attempt", attempt).
				Msg("confirmation code collision, regenerating")
			continue
		}
		return fmt.Errorf("%w: create reservation: %v", domain.ErrUpstream, err)
	}
}

func (e *BookingEngine) notify(ctx context.Context, n domain.BookingNotice) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.BookingConfirmed(ctx, n); err != nil {
		log.Warn().Err(err).
			Str("code", n.ConfirmationCode).
			Str("email", n.GuestEmail).
			Msg("booking confirmation notification failed")
		return
	}
	log.Info().Str("code", n.ConfirmationCode).Str("email", n.GuestEmail).
		Msg("booking confirmation notification dispatched")
}
