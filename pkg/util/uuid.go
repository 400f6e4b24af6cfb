package util

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered uuid, panicking only if the system
// random source is broken.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
