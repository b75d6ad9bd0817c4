package bunx

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUIDv7 string for primary keys that the
// caller does not supply (admins, audit events).
//
// Panics only if the entropy source fails, in which case no id could be generated anyway.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
