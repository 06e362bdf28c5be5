package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"lodging_agent/internal/domain"
)

const geoBoxDelta = 0.5

// errDupEntry is MySQL's ER_DUP_ENTRY.
const errDupEntry = 1062

type Repo struct {
	db     *sql.DB
	schema Schema
}

func New(db *sql.DB, s Schema) *Repo { return &Repo{db: db, schema: s} }

// ---- inventory ----

func (r *Repo) ListProperties(ctx context.Context, f domain.PropertyFilter) ([]domain.Property, error) {
	var w where
	w.like("p.name", f.HotelName)
	w.like("p.city", f.City)
	w.like("p.country", f.Country)
	if f.Near != nil {
		w.between("p.lat", f.Near.Lat-geoBoxDelta, f.Near.Lat+geoBoxDelta)
		w.between("p.lng", f.Near.Lng-geoBoxDelta, f.Near.Lng+geoBoxDelta)
	}

	rows, err := r.db.QueryContext(ctx, r.schema.selectProperties()+w.String()+"\nORDER BY p.id", w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Property
	for rows.Next() {
		var p domain.Property
		var pc propertyCols
		if err := rows.Scan(pc.dest(&p.ID)...); err != nil {
			return nil, err
		}
		pc.into(&p)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) ListUnits(ctx context.Context, f domain.UnitFilter) ([]domain.UnitRecord, error) {
	var w where
	w.like("p."+r.schema.HotelNameCol, f.HotelName)
	w.like("p.city", f.City)
	w.like("p.country", f.Country)
	w.like("u.type", f.UnitType)
	if f.MaxPrice != nil {
		w.cmp("u.price_per_night", "<=", *f.MaxPrice)
	}
	if f.MinGuests != nil {
		w.cmp("u.max_guests", ">=", *f.MinGuests)
	}
	return r.queryUnits(ctx, w)
}

func (r *Repo) GetUnit(ctx context.Context, id string) (domain.UnitRecord, error) {
	var w where
	w.eq("u.id", id)
	units, err := r.queryUnits(ctx, w)
	if err != nil {
		return domain.UnitRecord{}, err
	}
	if len(units) == 0 {
		return domain.UnitRecord{}, domain.ErrNotFound
	}
	return units[0], nil
}

func (r *Repo) FindUnitsByName(ctx context.Context, name, hotel string) ([]domain.UnitRecord, error) {
	var w where
	w.eq("u.name", name)
	if hotel != "" {
		w.eq("p."+r.schema.HotelNameCol, hotel)
	}
	return r.queryUnits(ctx, w)
}

func (r *Repo) queryUnits(ctx context.Context, w where) ([]domain.UnitRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.schema.selectUnits()+w.String()+"\nORDER BY u.id", w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UnitRecord
	for rows.Next() {
		var u domain.UnitRecord
		var (
			typ, desc, currency, bed sql.NullString
			maxGuests                sql.NullInt64
			imagesRaw, amenitiesRaw  []byte
			pc                       propertyCols
		)
		dest := []any{
			&u.ID, &u.PropertyID, &u.Name, &typ, &desc, &u.PricePerNight, &currency,
			&maxGuests, &bed, &imagesRaw, &amenitiesRaw,
		}
		dest = append(dest, pc.dest(&u.Property.ID)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		u.Type, u.Description, u.CurrencyCode, u.BedConfig = typ.String, desc.String, currency.String, bed.String
		if maxGuests.Valid {
			n := int(maxGuests.Int64)
			u.MaxGuests = &n
		}
		u.Images = decodeStringList(imagesRaw)
		u.Amenities = decodeStringList(amenitiesRaw)
		pc.into(&u.Property)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// propertyCols holds the nullable property columns between Scan and copy-out.
type propertyCols struct {
	name, city, state, country, rating, image sql.NullString
	lat, lng                                  sql.NullFloat64
}

func (c *propertyCols) dest(id *string) []any {
	return []any{id, &c.name, &c.city, &c.state, &c.country, &c.lat, &c.lng, &c.rating, &c.image}
}

func (c *propertyCols) into(p *domain.Property) {
	p.Name, p.City, p.State, p.Country, p.ImageURL = c.name.String, c.city.String, c.state.String, c.country.String, c.image.String
	if c.lat.Valid {
		f := c.lat.Float64
		p.Lat = &f
	}
	if c.lng.Valid {
		f := c.lng.Float64
		p.Lng = &f
	}
	if c.rating.Valid {
		s := c.rating.String
		p.Rating = &s
	}
}

// decodeStringList accepts a JSON array, a JSON string, or bare text.
func decodeStringList(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	var items []any
	if err := json.Unmarshal(b, &items); err == nil {
		out := make([]string, 0, len(items))
		for _, it := range items {
			switch v := it.(type) {
			case nil:
			case string:
				out = append(out, v)
			default:
				if enc, err := json.Marshal(v); err == nil {
					out = append(out, string(enc))
				}
			}
		}
		return out
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	if t := strings.TrimSpace(string(b)); t != "" && t != "null" {
		return []string{t}
	}
	return nil
}

// ---- guests & reservations ----

func (r *Repo) FindGuestByEmail(ctx context.Context, email, propertyID string) (domain.Guest, error) {
	args := []any{email}
	if r.schema.GuestsPerProperty {
		args = append(args, propertyID)
	}
	var g domain.Guest
	var prop, phone sql.NullString
	err := r.db.QueryRowContext(ctx, r.schema.findGuestSQL(), args...).
		Scan(&g.ID, &prop, &g.Name, &g.Email, &phone)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Guest{}, domain.ErrNotFound
		}
		return domain.Guest{}, err
	}
	g.PropertyID, g.Phone = prop.String, phone.String
	return g, nil
}

func (r *Repo) UpdateGuestContact(ctx context.Context, id, name, phone string) error {
	_, err := r.db.ExecContext(ctx, r.schema.updateGuestSQL(), name, valStr(phone), id)
	return err
}

func (r *Repo) InsertGuest(ctx context.Context, g domain.Guest) (string, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, r.schema.insertGuestSQL(),
		g.ID, valStr(g.PropertyID), g.Name, g.Email, valStr(g.Phone))
	if err != nil {
		return "", mapWriteErr(err)
	}
	return g.ID, nil
}

func (r *Repo) InsertReservation(ctx context.Context, res domain.Reservation) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, r.schema.insertReservationSQL(),
		res.ID,
		res.ConfirmationCode,
		res.PropertyID,
		res.UnitID,
		res.GuestID,
		res.CheckIn.Format("2006-01-02"),
		res.CheckOut.Format("2006-01-02"),
		res.GuestsCount,
		res.TotalPrice,
		res.CurrencyCode,
		res.Status,
		res.AIHandled,
		valStr(res.Source),
	)
	return mapWriteErr(err)
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var me *mysqldrv.MySQLError
	if errors.As(err, &me) && me.Number == errDupEntry {
		return errors.Join(domain.ErrDuplicate, err)
	}
	return err
}

func valStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
