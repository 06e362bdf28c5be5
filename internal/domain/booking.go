package domain

import "time"

const StatusConfirmed = "confirmed"

type Guest struct {
	ID         string
	PropertyID string
	Name       string
	Email      string
	Phone      string
}

// Reservation is written once and never mutated afterwards.
type Reservation struct {
	ID               string
	ConfirmationCode string
	PropertyID       string
	UnitID           string
	GuestID          string
	CheckIn          time.Time
	CheckOut         time.Time // exclusive
	GuestsCount      int
	TotalPrice       float64
	CurrencyCode     string
	Status           string
	AIHandled        bool
	Source           string
}

// BookingNotice is everything the confirmation email needs. It is also the
// body of the booking.confirmed event when notifications are queued.
type BookingNotice struct {
	ConfirmationCode string    `json:"confirmation_code"`
	GuestName        string    `json:"guest_name"`
	GuestEmail       string    `json:"guest_email"`
	GuestPhone       string    `json:"guest_phone"`
	HotelName        string    `json:"hotel_name"`
	UnitName         string    `json:"unit_name"`
	Guests           int       `json:"guests"`
	CheckIn          time.Time `json:"check_in"`
	CheckOut         time.Time `json:"check_out"`
	TotalPrice       float64   `json:"total_price"`
	CurrencyCode     string    `json:"currency_code"`
}
