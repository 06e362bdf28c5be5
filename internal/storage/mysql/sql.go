package mysql

import (
	"fmt"
	"strings"
)

// Schema names the tables and the few columns that differ between the two
// datastore generations. Both describe the same logical model.
type Schema struct {
	Name         string
	Properties   string
	Units        string
	Guests       string
	Reservations string
	// ReservationUnitCol is the reservation column that references the unit.
	ReservationUnitCol string
	// HotelNameCol is the property column rooms report and filter as their
	// hotel name. Property search always uses p.name.
	HotelNameCol string
	// GuestsPerProperty scopes guest e-mail uniqueness to a property.
	GuestsPerProperty bool
}

var (
	Legacy = Schema{
		Name:               "legacy",
		Properties:         "properties",
		Units:              "rooms",
		Guests:             "guests",
		Reservations:       "bookings",
		ReservationUnitCol: "room_id",
		HotelNameCol:       "city",
		GuestsPerProperty:  false,
	}
	MVP = Schema{
		Name:               "mvp",
		Properties:         "mvp_accommodation",
		Units:              "mvp_unit",
		Guests:             "mvp_guest",
		Reservations:       "mvp_reservation",
		ReservationUnitCol: "unit_id",
		HotelNameCol:       "name",
		GuestsPerProperty:  true,
	}
)

// SchemaByName returns the schema for "legacy" or "mvp".
func SchemaByName(name string) (Schema, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mvp":
		return MVP, nil
	case "legacy":
		return Legacy, nil
	}
	return Schema{}, fmt.Errorf("unknown schema %q (want mvp or legacy)", name)
}

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

func (s Schema) selectProperties() string {
	return fmt.Sprintf(`
SELECT
  p.id,
  p.name,
  p.city,
  p.state,
  p.country,
  p.lat,
  p.lng,
  p.rating,
  p.image_url
FROM %s p`, s.Properties)
}

// selectUnits joins every unit with its property; column order matches scanUnit.
func (s Schema) selectUnits() string {
	return fmt.Sprintf(`
SELECT
  u.id,
  u.property_id,
  u.name,
  u.type,
  u.description,
  u.price_per_night,
  u.currency_code,
  u.max_guests,
  u.bed_config,
  u.images,
  u.amenities,
  p.id,
  p.%s,
  p.city,
  p.state,
  p.country,
  p.lat,
  p.lng,
  p.rating,
  p.image_url
FROM %s u
JOIN %s p ON p.id = u.property_id`, s.HotelNameCol, s.Units, s.Properties)
}

func (s Schema) findGuestSQL() string {
	if s.GuestsPerProperty {
		return fmt.Sprintf("SELECT id, property_id, name, email, phone FROM %s WHERE email = ? AND property_id = ? LIMIT 1", s.Guests)
	}
	return fmt.Sprintf("SELECT id, property_id, name, email, phone FROM %s WHERE email = ? LIMIT 1", s.Guests)
}

// -----------------------------------------------------------------------------
// WRITES
// -----------------------------------------------------------------------------

func (s Schema) updateGuestSQL() string {
	return fmt.Sprintf(`
UPDATE %s
SET name = ?, phone = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?`, s.Guests)
}

func (s Schema) insertGuestSQL() string {
	return fmt.Sprintf(`
INSERT INTO %s (id, property_id, name, email, phone)
VALUES (?, ?, ?, ?, ?)`, s.Guests)
}

func (s Schema) insertReservationSQL() string {
	return fmt.Sprintf(`
INSERT INTO %s
  (id, confirmation_code, property_id, %s, guest_id, check_in, check_out,
   guests_count, total_price, currency_code, status, ai_handled, source)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.Reservations, s.ReservationUnitCol)
}

// -----------------------------------------------------------------------------
// WHERE builder
// -----------------------------------------------------------------------------

type where struct {
	conds []string
	args  []any
}

// like adds a case-insensitive substring match; blank values are ignored.
func (w *where) like(col, v string) {
	if v = strings.TrimSpace(v); v == "" {
		return
	}
	w.conds = append(w.conds, "LOWER("+col+") LIKE ?")
	w.args = append(w.args, likePattern(v))
}

func (w *where) eq(col string, v any) {
	w.conds = append(w.conds, col+" = ?")
	w.args = append(w.args, v)
}

func (w *where) cmp(col, op string, v any) {
	w.conds = append(w.conds, col+" "+op+" ?")
	w.args = append(w.args, v)
}

func (w *where) between(col string, lo, hi any) {
	w.conds = append(w.conds, col+" BETWEEN ? AND ?")
	w.args = append(w.args, lo, hi)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "\nWHERE " + strings.Join(w.conds, "\n  AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(v string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(v)) + "%"
}
