package httpserver_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	httpserver "lodging_agent/internal/adapters/http_server"
	"lodging_agent/internal/adapters/observability"
	"lodging_agent/internal/app"
	"lodging_agent/internal/app/apptest"
	"lodging_agent/internal/domain"
	"lodging_agent/internal/widgets"
)

const unitID = "11111111-2222-3333-4444-555555555555"

func newTestServer(t *testing.T) (*httptest.Server, *apptest.Bookings) {
	t.Helper()
	mux, bookings := newTestMux(t)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, bookings
}

func newTestMux(t *testing.T) (http.Handler, *apptest.Bookings) {
	t.Helper()
	guests := 4
	inv := &apptest.Inventory{
		Units: []domain.UnitRecord{{
			Unit: domain.Unit{
				ID: unitID, PropertyID: "p1", Name: "Ocean Suite", Type: "suite",
				PricePerNight: 150, CurrencyCode: "USD", MaxGuests: &guests,
				Amenities: []string{"Hot tub", "Wifi"},
			},
			Property: domain.Property{ID: "p1", Name: "Seaside Inn", City: "Lisbon", Country: "Portugal"},
		}},
	}
	bookings := apptest.NewBookings()
	h := &httpserver.Handlers{
		Search:  app.NewSearchService(inv, nil, time.Minute),
		Booking: app.NewBookingEngine(app.NewUnitResolver(inv), bookings, &apptest.Notifier{}, "test"),
		Widgets: widgets.NewRegistry(fstest.MapFS{
			"unit_card.html": {Data: []byte("<div>unit card</div>")},
		}),
	}
	s := httpserver.New(5 * time.Second)
	s.MountHandlers(h)
	return s.Mux(), bookings
}

type envelope struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent"`
	Meta              map[string]any  `json:"_meta"`
}

func callTool(t *testing.T, ts *httptest.Server, name, body string) (*http.Response, envelope) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/tools/"+name, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", name, err)
	}
	defer resp.Body.Close()
	var env envelope
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
	}
	return resp, env
}

func TestSearchRoomsTool(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, env := callTool(t, ts, "search_rooms", `{"city":"lisbon","amenity":"hot"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(env.Content) != 1 || !strings.HasPrefix(env.Content[0].Text, "Found 1 room(s).") {
		t.Fatalf("unexpected content %+v", env.Content)
	}
	if env.Meta["openai/outputTemplate"] != widgets.UnitCardURI || env.Meta["openai/widgetAccessible"] != true {
		t.Fatalf("unexpected meta %+v", env.Meta)
	}
	var res app.RoomsResult
	if err := json.Unmarshal(env.StructuredContent, &res); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if res.Count != 1 || res.Units[0].Name != "Ocean Suite" {
		t.Fatalf("unexpected rooms %+v", res)
	}
}

func TestBookAndConfirmTools(t *testing.T) {
	ts, bookings := newTestServer(t)

	resp, env := callTool(t, ts, "book", `{"unit_name":"Ocean Suite","check_in":"2026-03-10","check_out":"2026-03-12"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("book status %d", resp.StatusCode)
	}
	var form app.BookingForm
	_ = json.Unmarshal(env.StructuredContent, &form)
	if form.Nights != 2 || form.TotalPrice != 300 || form.Guests != 2 {
		t.Fatalf("unexpected form %+v", form)
	}

	body := `{"unit_id":"` + unitID + `","check_in":"2026-03-10","check_out":"2026-03-12","guests":2,
		"guest_name":"Alice Smith","guest_email":"alice@example.com","total_price":300}`
	resp, env = callTool(t, ts, "book_confirm", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm status %d", resp.StatusCode)
	}
	var c app.Confirmation
	_ = json.Unmarshal(env.StructuredContent, &c)
	if c.Status != "confirmed" || !app.ValidConfirmationCode(c.ConfirmationCode) {
		t.Fatalf("unexpected confirmation %+v", c)
	}
	if want := "Booking confirmed. Code: " + c.ConfirmationCode + "."; env.Content[0].Text != want {
		t.Fatalf("text = %q, want %q", env.Content[0].Text, want)
	}
	if len(bookings.Reservations) != 1 {
		t.Fatalf("expected one reservation, got %d", len(bookings.Reservations))
	}
}

func TestToolErrorsMapToProblems(t *testing.T) {
	ts, _ := newTestServer(t)

	cases := []struct {
		tool, body string
		status     int
	}{
		{"book", `{"unit_name":"Ocean Suite","check_in":"2026-03-12","check_out":"2026-03-10"}`, http.StatusBadRequest},
		{"book", `{"unit_name":"Nope","check_in":"2026-03-10","check_out":"2026-03-12"}`, http.StatusNotFound},
		{"book_confirm", `{"unit_id":"` + unitID + `","unit_name":"Garden Room","check_in":"2026-03-10",
			"check_out":"2026-03-12","guests":2,"guest_name":"A","guest_email":"a@x.io"}`, http.StatusConflict},
		{"search_rooms", `{not json`, http.StatusBadRequest},
		{"missing_tool", `{}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		resp, _ := callTool(t, ts, tc.tool, tc.body)
		if resp.StatusCode != tc.status {
			t.Errorf("%s %s: status %d, want %d", tc.tool, tc.body, resp.StatusCode, tc.status)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
			t.Errorf("%s: content-type %q", tc.tool, ct)
		}
	}
}

func TestResourceServedWithETag(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/resources/unit_card")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != widgets.MimeType {
		t.Fatalf("status %d content-type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	etag := resp.Header.Get("ETag")

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/resources/unit_card", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/v1/resources/booking_form")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListTools(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/v1/tools")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out struct {
		Tools []httpserver.ToolInfo `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Tools) != 4 {
		t.Fatalf("expected 4 tools, got %+v", out.Tools)
	}
}

func TestResourceReadByURI(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/resources?uri=" + widgets.UnitCardURI)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "<div>unit card</div>" {
		t.Fatalf("status %d body %q", resp.StatusCode, body)
	}
	if resp.Header.Get("ETag") == "" {
		t.Fatal("missing ETag")
	}

	resp, err = http.Get(ts.URL + "/v1/resources?uri=ui://widget/nope.html")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUnknownToolsShareOneMetricSeries(t *testing.T) {
	// served in-process so the middleware has recorded each request before the scrape
	mux, _ := newTestMux(t)
	reg := observability.InitRegistry()

	post := func(name string) int {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/tools/"+name, strings.NewReader(`{}`)))
		return rr.Code
	}
	for _, name := range []string{"junk0", "junk1", "junk2"} {
		if code := post(name); code != http.StatusNotFound {
			t.Fatalf("%s: status %d", name, code)
		}
	}
	if code := post("search_rooms"); code != http.StatusOK {
		t.Fatalf("search_rooms: status %d", code)
	}

	rr := httptest.NewRecorder()
	observability.MetricsHandler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	out := rr.Body.String()

	if strings.Contains(out, `route="/v1/tools/junk`) {
		t.Fatalf("unknown tool names leaked into route labels:\n%s", out)
	}
	for _, want := range []string{
		`lodging_http_requests_total{method="POST",route="/v1/tools/{name}",status="404"}`,
		`lodging_http_requests_total{method="POST",route="/v1/tools/search_rooms",status="200"}`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in metrics output", want)
		}
	}
}
