package domain

type Property struct {
	ID       string
	Name     string
	City     string
	State    string
	Country  string
	Lat, Lng *float64
	Rating   *string // raw column text; may not parse as a number
	ImageURL string
}

type Unit struct {
	ID            string
	PropertyID    string
	Name          string
	Type          string
	Description   string
	PricePerNight float64
	CurrencyCode  string
	MaxGuests     *int
	BedConfig     string
	Images        []string // first element is the cover image
	Amenities     []string // free-text tokens, not a closed set
}

// UnitRecord is a unit joined with the property that owns it.
type UnitRecord struct {
	Unit
	Property Property
}

// Read models & queries

type PropertyFilter struct {
	HotelName, City, Country string
	Near                     *Coords
}

type Coords struct{ Lat, Lng float64 }

// UnitFilter carries the structured filters pushed to the datastore.
// Blank strings and nil pointers never narrow the result.
type UnitFilter struct {
	HotelName string
	City      string
	Country   string
	UnitType  string
	MaxPrice  *float64
	MinGuests *int
}
