package app

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"lodging_agent/internal/domain"
)

const (
	dateLayout         = "2006-01-02"
	cancellationWindow = 14 * 24 * time.Hour
	superhostRating    = 4.8
)

type Listing struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Type            string        `json:"type"`
	Description     string        `json:"description"`
	PricePerNight   float64       `json:"price_per_night"`
	CurrencyCode    string        `json:"currency_code"`
	MaxGuests       *int          `json:"max_guests"`
	BedConfig       string        `json:"bed_config"`
	ImageURL        string        `json:"image_url"`
	Images          []string      `json:"images"`
	Amenities       []string      `json:"amenities"`
	HotelName       string        `json:"hotel_name"`
	HotelRating     *string       `json:"hotel_rating"`
	Location        Location      `json:"location"`
	ReviewSummary   ReviewSummary `json:"review_summary"`
	Host            Host          `json:"host"`
	ThingsToKnow    ThingsToKnow  `json:"things_to_know"`
	ExtendedReviews []string      `json:"extended_reviews"`
	Map             MapPin        `json:"map"`
}

type Location struct {
	City    string   `json:"city"`
	State   string   `json:"state"`
	Country string   `json:"country"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
}

type ReviewSummary struct {
	Rating      *float64 `json:"rating"`
	ReviewCount int      `json:"review_count"`
	Text        string   `json:"text"`
}

type Host struct {
	Name         string `json:"name"`
	YearsHosting int    `json:"years_hosting"`
	ResponseTime string `json:"response_time"`
	IsSuperhost  bool   `json:"is_superhost"`
	AvatarURL    string `json:"avatar_url"`
}

type ThingsToKnow struct {
	Cancellation string `json:"cancellation"`
	HouseRules   string `json:"house_rules"`
	Safety       string `json:"safety"`
}

type MapPin struct {
	Lat   *float64 `json:"lat"`
	Lng   *float64 `json:"lng"`
	Label string   `json:"label"`
}

// Enrich projects a unit and its property into the card shape rendered by the
// unit-card widget. checkIn is the raw YYYY-MM-DD string from the search, if any.
func Enrich(u domain.UnitRecord, checkIn string) Listing {
	p := u.Property
	rating := parseRating(p.Rating)

	summary := ReviewSummary{Rating: rating, Text: "No reviews yet"}
	if rating != nil {
		summary.Text = fmt.Sprintf("%.2f", *rating)
	}

	hostName := p.Name
	if hostName == "" {
		hostName = "Host"
	}
	avatar := p.ImageURL
	if avatar == "" {
		avatar = coverImage(u.Images)
	}

	images := u.Images
	if images == nil {
		images = []string{}
	}
	amenities := u.Amenities
	if amenities == nil {
		amenities = []string{}
	}

	return Listing{
		ID:            u.ID,
		Name:          u.Name,
		Type:          u.Type,
		Description:   u.Description,
		PricePerNight: u.PricePerNight,
		CurrencyCode:  u.CurrencyCode,
		MaxGuests:     u.MaxGuests,
		BedConfig:     u.BedConfig,
		ImageURL:      coverImage(u.Images),
		Images:        images,
		Amenities:     amenities,
		HotelName:     p.Name,
		HotelRating:   p.Rating,
		Location: Location{
			City: p.City, State: p.State, Country: p.Country,
			Lat: p.Lat, Lng: p.Lng,
		},
		ReviewSummary: summary,
		Host: Host{
			Name:         hostName,
			YearsHosting: 1,
			ResponseTime: "Responds within a few days or more",
			IsSuperhost:  rating != nil && *rating >= superhostRating,
			AvatarURL:    avatar,
		},
		ThingsToKnow: ThingsToKnow{
			Cancellation: "Free cancellation until " + cancellationDeadline(checkIn) +
				" (local time). After that, cancellation may be non-refundable depending on host rules.",
			HouseRules: houseRules(u.MaxGuests),
			Safety:     safetyNotes(u.Amenities),
		},
		ExtendedReviews: []string{},
		Map: MapPin{
			Lat:   p.Lat,
			Lng:   p.Lng,
			Label: mapLabel(p.City, p.State, p.Country),
		},
	}
}

func parseRating(raw *string) *float64 {
	if raw == nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(*raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func coverImage(images []string) string {
	if len(images) == 0 {
		return ""
	}
	return images[0]
}

func cancellationDeadline(checkIn string) string {
	d, err := time.Parse(dateLayout, strings.TrimSpace(checkIn))
	if err != nil {
		return "14 days before check-in"
	}
	return d.Add(-cancellationWindow).Format("January 2")
}

func houseRules(maxGuests *int) string {
	n := 1
	if maxGuests != nil && *maxGuests != 0 {
		n = *maxGuests
	}
	return fmt.Sprintf("Check-in after 3:00 PM\nCheckout before 11:00 AM\nMaximum guests: %d", n)
}

// safetyNotes scans the amenities in a fixed priority order. An explicit
// "not reported" smoke alarm wins over a bare mention.
func safetyNotes(amenities []string) string {
	blob := strings.ToLower(strings.Join(amenities, " "))

	var lines []string
	switch {
	case strings.Contains(blob, "smoke alarm not reported"):
		lines = append(lines, "Smoke alarm not reported")
	case strings.Contains(blob, "smoke alarm"):
		lines = append(lines, "Smoke alarm available")
	}
	if strings.Contains(blob, "carbon monoxide alarm") {
		lines = append(lines, "Carbon monoxide alarm available")
	}
	if strings.Contains(blob, "camera") {
		lines = append(lines, "Exterior security cameras on property")
	}
	if strings.Contains(blob, "fire extinguisher") {
		lines = append(lines, "Fire extinguisher available")
	}
	if strings.Contains(blob, "first aid kit") {
		lines = append(lines, "First aid kit available")
	}

	if len(lines) == 0 {
		return "No special safety notes provided by host."
	}
	return strings.Join(lines, "\n")
}

func mapLabel(city, state, country string) string {
	return joinNonEmpty(", ", city, state, country)
}
