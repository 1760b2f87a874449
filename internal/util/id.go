package util

import "github.com/google/uuid"

// NewID returns a new random identifier suitable for correlation ids,
// session ids and memory record ids.
func NewID() string {
	return uuid.NewString()
}
