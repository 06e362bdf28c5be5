// internal/adapters/monosend/client.go
package monosend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"lodging_agent/internal/adapters/observability"
	"lodging_agent/internal/domain"
)

// ErrDispatchFailed is the single failure surfaced for non-2xx answers,
// transport errors and timeouts.
var ErrDispatchFailed = errors.New("monosend: dispatch failed")

type Options struct {
	URL        string
	APIKey     string
	TemplateID string
	From       string
	Timeout    time.Duration
	RPS        int
}

type Client struct {
	url        string
	key        string
	templateID string
	from       string
	hc         *http.Client
	rl         *rate.Limiter
}

func New(o Options) (*Client, error) {
	if o.URL == "" {
		return nil, fmt.Errorf("monosend URL is required")
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.RPS <= 0 {
		o.RPS = 5
	}
	return &Client{
		url:        o.URL,
		key:        o.APIKey,
		templateID: o.TemplateID,
		from:       o.From,
		hc:         &http.Client{Timeout: o.Timeout},
		rl:         rate.NewLimiter(rate.Limit(o.RPS), o.RPS),
	}, nil
}

// ---- payload ----

type Payload struct {
	To       []string `json:"to"`
	From     string   `json:"from"`
	Subject  string   `json:"subject"`
	Template Template `json:"template"`
}

type Template struct {
	ID        string            `json:"id"`
	Variables map[string]string `json:"variables"`
}

// BuildPayload maps a booking onto the confirmation template. Every variable
// is a string; firstName is the guest name up to the first space.
func BuildPayload(from, templateID string, n domain.BookingNotice) Payload {
	return Payload{
		To:      []string{n.GuestEmail},
		From:    from,
		Subject: "Thanks! Your booking is confirmed at " + n.HotelName,
		Template: Template{
			ID: templateID,
			Variables: map[string]string{
				"hotel_unit_title": n.UnitName,
				"bookingNumber":    n.ConfirmationCode,
				"firstName":        firstName(n.GuestName),
				"email":            n.GuestEmail,
				"phoneNumber":      n.GuestPhone,
				"guestCount":       strconv.Itoa(n.Guests),
				"checkIn":          n.CheckIn.Format("2006-01-02"),
				"checkOut":         n.CheckOut.Format("2006-01-02"),
				"total":            fmt.Sprintf("%.2f %s", n.TotalPrice, n.CurrencyCode),
				"companyName":      n.HotelName,
			},
		},
	}
}

func firstName(full string) string {
	t := strings.TrimSpace(full)
	if t == "" {
		return full
	}
	first, _, _ := strings.Cut(t, " ")
	return first
}

// ---- send ----

// SendBookingConfirmation POSTs one confirmation email. It does not retry;
// callers that want retries wrap it (see app.NotificationWorker).
func (c *Client) SendBookingConfirmation(ctx context.Context, n domain.BookingNotice) error {
	body, err := json.Marshal(BuildPayload(c.from, c.templateID, n))
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", ErrDispatchFailed, err)
	}
	if err := c.rl.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "lodging-agent/1.0")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("monosend", "emails", 0, time.Since(start))
		return fmt.Errorf("%w: request failed: %v", ErrDispatchFailed, err)
	}
	defer resp.Body.Close()
	observability.ObserveExternal("monosend", "emails", resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// read a small error body for diagnostics
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return fmt.Errorf("%w: HTTP %d: %s", ErrDispatchFailed, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
