package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lodging_agent/internal/domain"
)

type UnitResolver struct {
	repo domain.InventoryRepository
}

func NewUnitResolver(r domain.InventoryRepository) *UnitResolver {
	return &UnitResolver{repo: r}
}

// looksLikeID reports whether ref has the canonical 8-4-4-4-12 shape. Only the
// length and separator count are checked; anything else is treated as a name.
func looksLikeID(ref string) bool {
	return len(ref) == 36 && strings.Count(ref, "-") == 4
}

// Resolve finds a unit by id, or by exact name when unitID is not id-shaped.
// When a name matches several units the first row wins; pass hotel to
// disambiguate.
func (r *UnitResolver) Resolve(ctx context.Context, unitID, unitName, hotel string) (domain.UnitRecord, error) {
	unitID = strings.TrimSpace(unitID)
	if looksLikeID(unitID) {
		u, err := r.repo.GetUnit(ctx, unitID)
		if err != nil {
			return domain.UnitRecord{}, lookupErr(err, fmt.Sprintf("unit %q", unitID))
		}
		return u, nil
	}

	name := strings.TrimSpace(unitName)
	if name == "" {
		name = unitID
	}
	if name == "" {
		return domain.UnitRecord{}, fmt.Errorf("%w: either unit_name or unit_id is required", domain.ErrInvalidInput)
	}
	hotel = strings.TrimSpace(hotel)

	rows, err := r.repo.FindUnitsByName(ctx, name, hotel)
	if err != nil {
		return domain.UnitRecord{}, lookupErr(err, fmt.Sprintf("unit %q", name))
	}
	if len(rows) == 0 {
		if hotel != "" {
			return domain.UnitRecord{}, fmt.Errorf("%w: unable to find unit %q at hotel %q", domain.ErrNotFound, name, hotel)
		}
		return domain.UnitRecord{}, fmt.Errorf("%w: unable to find unit %q", domain.ErrNotFound, name)
	}
	return rows[0], nil
}

func lookupErr(err error, what string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: unable to find %s", domain.ErrNotFound, what)
	}
	return fmt.Errorf("%w: lookup %s: %v", domain.ErrUpstream, what, err)
}
