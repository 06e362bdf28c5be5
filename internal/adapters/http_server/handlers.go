package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"lodging_agent/internal/app"
	"lodging_agent/internal/domain"
	"lodging_agent/internal/widgets"
)

const maxBodyBytes = 1 << 20

const (
	toolSearchHotels = "search_hotels"
	toolSearchRooms  = "search_rooms"
	toolBook         = "book"
	toolBookConfirm  = "book_confirm"
)

// toolNames bounds the per-tool metric labels to the registered set.
var toolNames = map[string]bool{
	toolSearchHotels: true,
	toolSearchRooms:  true,
	toolBook:         true,
	toolBookConfirm:  true,
}

type Handlers struct {
	Search  *app.SearchService
	Booking *app.BookingEngine
	Widgets *widgets.Registry
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ToolResult is the envelope returned for every tool call.
type ToolResult struct {
	Content           []TextContent `json:"content"`
	StructuredContent any           `json:"structuredContent"`
	Meta              *ToolMeta     `json:"_meta,omitempty"`
}

type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ToolMeta struct {
	UI               UIMeta `json:"ui"`
	OutputTemplate   string `json:"openai/outputTemplate"`
	WidgetAccessible bool   `json:"openai/widgetAccessible"`
}

type UIMeta struct {
	ResourceURI string `json:"resourceUri"`
}

type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ResourceURI string `json:"resource_uri,omitempty"`
}

// tool decodes its own arguments and returns structured content plus the
// text shown to the model.
type tool struct {
	info ToolInfo
	call func(ctx context.Context, body []byte) (any, string, error)
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/tools", h.listTools)
	s.mux.Post("/v1/tools/{name}", h.callTool)
	s.mux.Get("/v1/resources", h.listResources)
	s.mux.Get("/v1/resources/{name}", h.getResource)
}

func (h *Handlers) tools() []tool {
	return []tool{
		{
			info: ToolInfo{Name: toolSearchHotels, Description: "Search hotels by name, city, country or coordinates."},
			call: func(ctx context.Context, body []byte) (any, string, error) {
				var q app.HotelSearch
				if err := decodeArgs(body, &q); err != nil {
					return nil, "", err
				}
				res, err := h.Search.SearchHotels(ctx, q)
				if err != nil {
					return nil, "", err
				}
				return res, fmt.Sprintf("Found %d hotel(s).", res.Count), nil
			},
		},
		{
			info: ToolInfo{
				Name:        toolSearchRooms,
				Description: "Search available rooms with filters for location, type, price, capacity, amenities and free text.",
				ResourceURI: widgets.UnitCardURI,
			},
			call: func(ctx context.Context, body []byte) (any, string, error) {
				var q app.RoomSearch
				if err := decodeArgs(body, &q); err != nil {
					return nil, "", err
				}
				res, err := h.Search.SearchRooms(ctx, q)
				if err != nil {
					return nil, "", err
				}
				return res, fmt.Sprintf("Found %d room(s). If the user asks to reserve, call the book tool with the appropriate unit and dates.", res.Count), nil
			},
		},
		{
			info: ToolInfo{
				Name:        toolBook,
				Description: "Open the booking form for a unit and date range.",
				ResourceURI: widgets.BookingFormURI,
			},
			call: func(ctx context.Context, body []byte) (any, string, error) {
				var req app.BookRequest
				if err := decodeArgs(body, &req); err != nil {
					return nil, "", err
				}
				form, err := h.Booking.OpenBookingForm(ctx, req)
				if err != nil {
					return nil, "", err
				}
				return form, "Booking form opened. User should complete details and confirm inside the widget (click Confirm or press Enter in a form field).", nil
			},
		},
		{
			info: ToolInfo{
				Name:        toolBookConfirm,
				Description: "Confirm a reservation with guest details.",
				ResourceURI: widgets.BookingConfirmationURI,
			},
			call: func(ctx context.Context, body []byte) (any, string, error) {
				var req app.ConfirmRequest
				if err := decodeArgs(body, &req); err != nil {
					return nil, "", err
				}
				c, err := h.Booking.ConfirmBooking(ctx, req)
				if err != nil {
					return nil, "", err
				}
				return c, fmt.Sprintf("Booking confirmed. Code: %s.", c.ConfirmationCode), nil
			},
		},
	}
}

func (h *Handlers) lookupTool(name string) (tool, bool) {
	for _, t := range h.tools() {
		if t.info.Name == name {
			return t, true
		}
	}
	return tool{}, false
}

func decodeArgs(body []byte, v any) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: malformed arguments: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// writeError maps domain errors onto RFC 7807 problems.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeProblem(w, http.StatusBadRequest, "Invalid Input", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, domain.ErrUpstream):
		log.Error().Err(err).Msg("upstream failure")
		writeProblem(w, http.StatusBadGateway, "Upstream Failure", "datastore unavailable")
	default:
		log.Error().Err(err).Msg("unhandled error")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handlers) listTools(w http.ResponseWriter, r *http.Request) {
	ts := h.tools()
	out := make([]ToolInfo, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

func (h *Handlers) callTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	t, ok := h.lookupTool(name)
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", fmt.Sprintf("unknown tool %q", name))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Input", "unreadable request body")
		return
	}

	structured, text, err := t.call(r.Context(), body)
	if err != nil {
		log.Warn().Err(err).Str("tool", name).Msg("tool call failed")
		writeError(w, err)
		return
	}

	res := ToolResult{
		Content:           []TextContent{{Type: "text", Text: text}},
		StructuredContent: structured,
	}
	if uri := t.info.ResourceURI; uri != "" {
		res.Meta = &ToolMeta{UI: UIMeta{ResourceURI: uri}, OutputTemplate: uri, WidgetAccessible: true}
	}
	writeJSON(w, http.StatusOK, res)
}

// listResources doubles as resources/read when ?uri= names a ui://widget URI.
func (h *Handlers) listResources(w http.ResponseWriter, r *http.Request) {
	if uri := r.URL.Query().Get("uri"); uri != "" {
		h.serveWidget(w, r, func() (string, error) { return h.Widgets.LoadURI(uri) })
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": widgets.Resources})
}

// etagFor hashes a body into a weak validator.
func etagFor(body []byte) string {
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`
}

func (h *Handlers) getResource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h.serveWidget(w, r, func() (string, error) { return h.Widgets.Load(name) })
}

func (h *Handlers) serveWidget(w http.ResponseWriter, r *http.Request, load func() (string, error)) {
	html, err := load()
	if err != nil {
		if errors.Is(err, widgets.ErrUnknownTemplate) {
			writeProblem(w, http.StatusNotFound, "Not Found", "widget not found")
			return
		}
		log.Error().Err(err).Msg("load widget failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	body := []byte(html)
	etag := etagFor(body)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", widgets.MimeType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write widget body")
	}
}
