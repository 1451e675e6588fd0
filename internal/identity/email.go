package identity

import (
	"fmt"
	"strings"

	"golang.org/x/text/secure/precis"
)

// NormalizeEmail folds an email address into its canonical comparison form.
// Uniqueness and lookups run against this form so "Bob@X.com" and "bob@x.com"
// are the same account. Falls back to plain lowercasing when the input is not
// PRECIS-conformant (it still has to round-trip for tombstoning).
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	normalized, err := precis.UsernameCaseMapped.String(email)
	if err != nil {
		return strings.ToLower(email)
	}
	return normalized
}

// TombstoneEmail derives the stored email for a soft-deleted principal. The
// suffix frees the unique slot for re-registration while keeping the original
// address recoverable.
func TombstoneEmail(email string, id int64) string {
	return fmt.Sprintf("%s-deleted-%d", email, id)
}

// RestoreEmail strips the tombstone marker for the given principal ID.
func RestoreEmail(email string, id int64) string {
	return strings.Replace(email, fmt.Sprintf("-deleted-%d", id), "", 1)
}
