package app

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	confirmationPrefix    = "BK-"
	confirmationSuffixLen = 6
)

var confirmationPattern = regexp.MustCompile(`^BK-[0-9A-Z]{6}$`)

// NewConfirmationCode returns BK- followed by six uppercase hex characters
// taken from a random UUID. Uniqueness is enforced by the reservations table,
// not here.
func NewConfirmationCode() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return confirmationPrefix + strings.ToUpper(hex[:confirmationSuffixLen])
}

func ValidConfirmationCode(code string) bool {
	return confirmationPattern.MatchString(code)
}
