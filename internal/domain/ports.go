package domain

import "context"

type InventoryRepository interface {
	ListProperties(ctx context.Context, f PropertyFilter) ([]Property, error)
	ListUnits(ctx context.Context, f UnitFilter) ([]UnitRecord, error)
	GetUnit(ctx context.Context, id string) (UnitRecord, error)
	// FindUnitsByName matches the unit name exactly; hotel is optional.
	FindUnitsByName(ctx context.Context, name, hotel string) ([]UnitRecord, error)
}

type BookingRepository interface {
	// FindGuestByEmail returns ErrNotFound when no guest exists in scope.
	// Whether propertyID narrows the lookup depends on the schema generation.
	FindGuestByEmail(ctx context.Context, email, propertyID string) (Guest, error)
	UpdateGuestContact(ctx context.Context, id, name, phone string) error
	// InsertGuest returns ErrDuplicate when the e-mail already exists in scope.
	InsertGuest(ctx context.Context, g Guest) (string, error)
	// InsertReservation returns ErrDuplicate when the confirmation code is taken.
	InsertReservation(ctx context.Context, r Reservation) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
}

// Mailer delivers the transactional confirmation email.
type Mailer interface {
	SendBookingConfirmation(ctx context.Context, n BookingNotice) error
}

// Notifier is the post-commit notification step of a booking.
type Notifier interface {
	BookingConfirmed(ctx context.Context, n BookingNotice) error
}

type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}
