//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"lodging_agent/internal/domain"
	mysqlrepo "lodging_agent/internal/storage/mysql"
)

const (
	propID  = "a0000000-0000-0000-0000-000000000001"
	suiteID = "b0000000-0000-0000-0000-000000000001"
	roomID  = "b0000000-0000-0000-0000-000000000002"
)

// ---------- small helpers ----------
func pint(i int) *int           { return &i }
func pfloat(f float64) *float64 { return &f }

func mustEnv(t *testing.T, k string) string {
	t.Helper()
	v := os.Getenv(k)
	if v == "" {
		t.Fatalf("%s not set; export it (e.g. MIGRATIONS_DIR=/path/to/sql)", k)
	}
	return v
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := mustEnv(t, "MIGRATIONS_DIR")

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

// startMySQL runs an isolated MySQL; Docker picks a free host port.
func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}

	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=lodging",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		"root", hostPort, "lodging")

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

// seed writes one property with two units into the given generation's tables.
// hotelCol receives the display name; legacy rows keep it in the city column.
func seed(t *testing.T, db *sql.DB, s mysqlrepo.Schema, hotelCol string) {
	t.Helper()
	city := "Lisbon"
	if hotelCol == "city" {
		city = "Seaside Inn"
	}
	stmts := []struct {
		q    string
		args []any
	}{
		{fmt.Sprintf(`INSERT INTO %s (id, name, city, state, country, lat, lng, rating, image_url)
			VALUES (?, ?, ?, NULL, 'Portugal', 38.72, -9.14, 4.90, 'https://img/p.jpg')`, s.Properties),
			[]any{propID, "Seaside Inn", city}},
		{fmt.Sprintf(`INSERT INTO %s (id, property_id, name, type, description, price_per_night, currency_code,
			max_guests, bed_config, images, amenities) VALUES (?, ?, 'Ocean Suite', 'suite', 'Sea view', 150.00, 'USD', 4,
			'1 king', '["https://img/1.jpg","https://img/2.jpg"]', '["Hot tub","Smoke alarm"]')`, s.Units),
			[]any{suiteID, propID}},
		{fmt.Sprintf(`INSERT INTO %s (id, property_id, name, type, price_per_night, max_guests, images, amenities)
			VALUES (?, ?, 'Garden_Room', 'double', 90.00, 2, NULL, '"Wifi, Garden view"')`, s.Units),
			[]any{roomID, propID}},
	}
	for _, st := range stmts {
		if _, err := db.Exec(st.q, st.args...); err != nil {
			t.Fatalf("seed %s: %v", s.Name, err)
		}
	}
}

// ---------- the tests ----------
func TestRepo_MySQL_Inventory(t *testing.T) {
	db := startMySQL(t)
	seed(t, db, mysqlrepo.MVP, "name")
	repo := mysqlrepo.New(db, mysqlrepo.MVP)
	ctx := context.Background()

	units, err := repo.ListUnits(ctx, domain.UnitFilter{City: "lisb", Country: "PORTUGAL"})
	if err != nil {
		t.Fatalf("ListUnits: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	u := units[0]
	if u.ID != suiteID || u.Property.Name != "Seaside Inn" || u.MaxGuests == nil || *u.MaxGuests != 4 {
		t.Fatalf("unexpected unit %+v", u)
	}
	if len(u.Images) != 2 || u.Amenities[0] != "Hot tub" || *u.Property.Rating != "4.90" {
		t.Fatalf("unexpected decoded columns %+v", u)
	}
	// bare JSON string column decodes as one token
	if a := units[1].Amenities; len(a) != 1 || a[0] != "Wifi, Garden view" || units[1].Images != nil {
		t.Fatalf("unexpected amenities %q images %q", a, units[1].Images)
	}

	units, _ = repo.ListUnits(ctx, domain.UnitFilter{MaxPrice: pfloat(100), MinGuests: pint(2)})
	if len(units) != 1 || units[0].ID != roomID {
		t.Fatalf("price/capacity filter: %+v", units)
	}
	// LIKE wildcards in user input are literal
	units, _ = repo.ListUnits(ctx, domain.UnitFilter{UnitType: "%"})
	if len(units) != 0 {
		t.Fatalf("wildcard must not match, got %d", len(units))
	}

	if _, err := repo.GetUnit(ctx, "ffffffff-0000-0000-0000-000000000000"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetUnit missing: %v", err)
	}
	byName, err := repo.FindUnitsByName(ctx, "Garden_Room", "Seaside Inn")
	if err != nil || len(byName) != 1 || byName[0].ID != roomID {
		t.Fatalf("FindUnitsByName: %+v, %v", byName, err)
	}

	props, err := repo.ListProperties(ctx, domain.PropertyFilter{Near: &domain.Coords{Lat: 38.9, Lng: -9.0}})
	if err != nil || len(props) != 1 {
		t.Fatalf("ListProperties near: %+v, %v", props, err)
	}
	props, _ = repo.ListProperties(ctx, domain.PropertyFilter{Near: &domain.Coords{Lat: 40.0, Lng: -9.0}})
	if len(props) != 0 {
		t.Fatalf("expected no property outside the box, got %d", len(props))
	}
}

func TestRepo_MySQL_GuestsAndReservations(t *testing.T) {
	db := startMySQL(t)
	seed(t, db, mysqlrepo.MVP, "name")
	repo := mysqlrepo.New(db, mysqlrepo.MVP)
	ctx := context.Background()

	if _, err := repo.FindGuestByEmail(ctx, "alice@example.com", propID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	gid, err := repo.InsertGuest(ctx, domain.Guest{PropertyID: propID, Name: "Alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("InsertGuest: %v", err)
	}
	if err := repo.UpdateGuestContact(ctx, gid, "Alice Smith", "+1 555"); err != nil {
		t.Fatalf("UpdateGuestContact: %v", err)
	}
	g, err := repo.FindGuestByEmail(ctx, "alice@example.com", propID)
	if err != nil || g.ID != gid || g.Name != "Alice Smith" || g.Phone != "+1 555" {
		t.Fatalf("FindGuestByEmail: %+v, %v", g, err)
	}
	// mvp guests are scoped per property
	if _, err := repo.FindGuestByEmail(ctx, "alice@example.com", "other"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected per-property scope, got %v", err)
	}

	res := domain.Reservation{
		ConfirmationCode: "BK-ABC123", PropertyID: propID, UnitID: suiteID, GuestID: gid,
		CheckIn:     time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		CheckOut:    time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
		GuestsCount: 2, TotalPrice: 300, CurrencyCode: "USD",
		Status: domain.StatusConfirmed, AIHandled: true, Source: "chatgpt",
	}
	if err := repo.InsertReservation(ctx, res); err != nil {
		t.Fatalf("InsertReservation: %v", err)
	}
	if err := repo.InsertReservation(ctx, res); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for a reused code, got %v", err)
	}

	var nights int
	var aiHandled bool
	if err := db.QueryRow(`SELECT DATEDIFF(check_out, check_in), ai_handled FROM mvp_reservation WHERE confirmation_code = ?`,
		"BK-ABC123").Scan(&nights, &aiHandled); err != nil {
		t.Fatal(err)
	}
	if nights != 2 || !aiHandled {
		t.Fatalf("stored nights=%d ai_handled=%v", nights, aiHandled)
	}
}

func TestRepo_MySQL_LegacySchema(t *testing.T) {
	db := startMySQL(t)
	seed(t, db, mysqlrepo.Legacy, "city")
	repo := mysqlrepo.New(db, mysqlrepo.Legacy)
	ctx := context.Background()

	units, err := repo.ListUnits(ctx, domain.UnitFilter{HotelName: "seaside"})
	if err != nil || len(units) != 2 || units[0].Property.Name != "Seaside Inn" {
		t.Fatalf("legacy ListUnits: %+v, %v", units, err)
	}

	// hotel search reads the real name column even where rooms use city
	if _, err := db.Exec(`INSERT INTO properties (id, name, city, country) VALUES (?, 'Harbor Hotel', 'Porto', 'Portugal')`,
		"a0000000-0000-0000-0000-000000000002"); err != nil {
		t.Fatal(err)
	}
	props, err := repo.ListProperties(ctx, domain.PropertyFilter{HotelName: "harbor"})
	if err != nil || len(props) != 1 || props[0].Name != "Harbor Hotel" || props[0].City != "Porto" {
		t.Fatalf("legacy ListProperties: %+v, %v", props, err)
	}
	if props, err := repo.ListProperties(ctx, domain.PropertyFilter{HotelName: "porto"}); err != nil || len(props) != 0 {
		t.Fatalf("hotel name must not match city: %+v, %v", props, err)
	}

	gid, err := repo.InsertGuest(ctx, domain.Guest{PropertyID: propID, Name: "Bob", Email: "bob@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	// legacy guests are global: any property finds the same row
	g, err := repo.FindGuestByEmail(ctx, "bob@example.com", "other")
	if err != nil || g.ID != gid {
		t.Fatalf("legacy FindGuestByEmail: %+v, %v", g, err)
	}
	if _, err := repo.InsertGuest(ctx, domain.Guest{Name: "Bob", Email: "bob@example.com"}); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on e-mail, got %v", err)
	}

	err = repo.InsertReservation(ctx, domain.Reservation{
		ConfirmationCode: "BK-000001", PropertyID: propID, UnitID: roomID, GuestID: gid,
		CheckIn: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), CheckOut: time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC),
		GuestsCount: 1, TotalPrice: 180, CurrencyCode: "USD", Status: domain.StatusConfirmed,
	})
	if err != nil {
		t.Fatalf("legacy InsertReservation: %v", err)
	}
}
