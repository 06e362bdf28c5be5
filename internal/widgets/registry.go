// Package widgets serves the static HTML templates rendered by the agent
// client next to tool results.
package widgets

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sync"
)

const MimeType = "text/html;profile=mcp-app"

const (
	UnitCardURI            = "ui://widget/unit-card.html"
	BookingFormURI         = "ui://widget/booking-form.html"
	BookingConfirmationURI = "ui://widget/booking-confirmation.html"
)

// Resource describes one widget template exposed to the agent client.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Template    string `json:"template"`
	Description string `json:"description"`
}

var Resources = []Resource{
	{
		URI: UnitCardURI, Name: "Unit Card Widget", Template: "unit_card",
		Description: "Displays hotel room/unit cards with image, amenities, price, and Reserve button",
	},
	{
		URI: BookingFormURI, Name: "Booking Form Widget", Template: "booking_form",
		Description: "Booking form with guest details fields and price breakdown",
	},
	{
		URI: BookingConfirmationURI, Name: "Booking Confirmation Widget", Template: "booking_confirmation",
		Description: "Confirmation page with booking details and calendar integration",
	},
}

var ErrUnknownTemplate = errors.New("widgets: unknown template")

var templateName = regexp.MustCompile(`^[a-z0-9_]+$`)

// Registry is a read-through cache of templates keyed by name. Templates are
// immutable for the life of the process, so entries are never evicted.
type Registry struct {
	src fs.FS

	mu    sync.Mutex
	cache map[string]string
}

func NewRegistry(src fs.FS) *Registry {
	return &Registry{src: src, cache: make(map[string]string)}
}

// Load returns the template <name>.html, reading it from src on first use.
func (r *Registry) Load(name string) (string, error) {
	if !templateName.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if html, ok := r.cache[name]; ok {
		return html, nil
	}
	b, err := fs.ReadFile(r.src, name+".html")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
		}
		return "", fmt.Errorf("read widget %s: %w", name, err)
	}
	html := string(b)
	r.cache[name] = html
	return html, nil
}

// LoadURI resolves a ui://widget URI to its template.
func (r *Registry) LoadURI(uri string) (string, error) {
	for _, res := range Resources {
		if res.URI == uri {
			return r.Load(res.Template)
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, uri)
}
