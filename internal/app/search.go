package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"lodging_agent/internal/adapters/observability"
	"lodging_agent/internal/domain"
)

// geoBoxDelta is the half-width, in degrees, of the box used by hotel search
// around a coordinate.
const geoBoxDelta = 0.5

type HotelSearch struct {
	HotelName string   `json:"hotel_name"`
	City      string   `json:"city"`
	Country   string   `json:"country"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
}

type HotelsResult struct {
	Hotels []HotelView `json:"hotels"`
	Count  int         `json:"count"`
}

type HotelView struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	City     string   `json:"city"`
	State    string   `json:"state"`
	Country  string   `json:"country"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	Rating   *string  `json:"rating"`
	ImageURL string   `json:"image_url"`
}

type RoomSearch struct {
	HotelName string   `json:"hotel_name"`
	City      string   `json:"city"`
	Country   string   `json:"country"`
	UnitType  string   `json:"unit_type"`
	MaxPrice  *float64 `json:"max_price"`
	MinGuests *int     `json:"min_guests"`
	Amenity   string   `json:"amenity"`
	Query     string   `json:"query"`
	CheckIn   string   `json:"check_in"`
	CheckOut  string   `json:"check_out"`
}

type RoomsResult struct {
	Units                []Listing `json:"units"`
	Count                int       `json:"count"`
	CheckIn              string    `json:"check_in"`
	CheckOut             string    `json:"check_out"`
	RelaxedCountryFilter bool      `json:"relaxed_country_filter"`
}

type SearchService struct {
	repo     domain.InventoryRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewSearchService(r domain.InventoryRepository, c domain.Cache, ttl time.Duration) *SearchService {
	return &SearchService{repo: r, cache: c, cacheTTL: ttl}
}

// SearchHotels lists properties. Property rows are reference data, so results
// are cached per filter combination.
func (s *SearchService) SearchHotels(ctx context.Context, q HotelSearch) (HotelsResult, error) {
	f := domain.PropertyFilter{
		HotelName: strings.TrimSpace(q.HotelName),
		City:      strings.TrimSpace(q.City),
		Country:   strings.TrimSpace(q.Country),
	}
	if q.Lat != nil && q.Lng != nil {
		f.Near = &domain.Coords{Lat: *q.Lat, Lng: *q.Lng}
	}

	key := hotelsCacheKey(f)
	var out HotelsResult
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &out); ok {
			return out, nil
		}
	}

	props, err := s.repo.ListProperties(ctx, f)
	if err != nil {
		return HotelsResult{}, fmt.Errorf("%w: list properties: %v", domain.ErrUpstream, err)
	}
	out = HotelsResult{Hotels: make([]HotelView, 0, len(props)), Count: len(props)}
	for _, p := range props {
		out.Hotels = append(out.Hotels, HotelView{
			ID: p.ID, Name: p.Name, City: p.City, State: p.State, Country: p.Country,
			Lat: p.Lat, Lng: p.Lng, Rating: p.Rating, ImageURL: p.ImageURL,
		})
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	}
	return out, nil
}

func hotelsCacheKey(f domain.PropertyFilter) string {
	key := fmt.Sprintf("hotels:%s|%s|%s", normalize(f.HotelName), normalize(f.City), normalize(f.Country))
	if f.Near != nil {
		key += fmt.Sprintf("|%.5f,%.5f", f.Near.Lat, f.Near.Lng)
	}
	return key
}

// SearchRooms runs the structured filters in the datastore, applies the text
// filters in process, and retries without the country filter when a
// city+country search comes back empty.
func (s *SearchService) SearchRooms(ctx context.Context, q RoomSearch) (RoomsResult, error) {
	f := domain.UnitFilter{
		HotelName: strings.TrimSpace(q.HotelName),
		City:      strings.TrimSpace(q.City),
		Country:   strings.TrimSpace(q.Country),
		UnitType:  strings.TrimSpace(q.UnitType),
		MaxPrice:  q.MaxPrice,
		MinGuests: q.MinGuests,
	}
	tf := textFilter{query: normalize(q.Query), amenity: normalize(q.Amenity)}

	units, err := s.fetch(ctx, f, tf)
	if err != nil {
		return RoomsResult{}, err
	}

	relaxed := false
	if len(units) == 0 && f.City != "" && f.Country != "" {
		rf := f
		rf.Country = ""
		alt, err := s.fetch(ctx, rf, tf)
		if err != nil {
			return RoomsResult{}, err
		}
		if len(alt) > 0 {
			units, relaxed = alt, true
			observability.ObserveSearchRelaxed()
			log.Debug().Str("city", f.City).Str("country", f.Country).Int("count", len(alt)).
				Msg("country filter relaxed")
		}
	}

	out := RoomsResult{
		Units:                make([]Listing, 0, len(units)),
		Count:                len(units),
		CheckIn:              q.CheckIn,
		CheckOut:             q.CheckOut,
		RelaxedCountryFilter: relaxed,
	}
	for _, u := range units {
		out.Units = append(out.Units, Enrich(u, q.CheckIn))
	}
	return out, nil
}

func (s *SearchService) fetch(ctx context.Context, f domain.UnitFilter, tf textFilter) ([]domain.UnitRecord, error) {
	rows, err := s.repo.ListUnits(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: list units: %v", domain.ErrUpstream, err)
	}
	out := make([]domain.UnitRecord, 0, len(rows))
	for _, u := range rows {
		if tf.matches(u) {
			out = append(out, u)
		}
	}
	return out, nil
}

// textFilter holds the already-normalized free-text filters. Amenities are
// stored as free text, so containment is checked here rather than in SQL.
type textFilter struct {
	query   string
	amenity string
}

func (tf textFilter) matches(u domain.UnitRecord) bool {
	if tf.query == "" && tf.amenity == "" {
		return true
	}
	amenities := strings.Join(u.Amenities, " ")
	if tf.amenity != "" && !strings.Contains(normalize(amenities), tf.amenity) {
		return false
	}
	if tf.query != "" {
		p := u.Property
		blob := normalize(strings.Join([]string{
			u.Name, u.Description, u.Type,
			p.Name, p.City, p.State, p.Country,
			amenities,
		}, " "))
		if !strings.Contains(blob, tf.query) {
			return false
		}
	}
	return true
}
