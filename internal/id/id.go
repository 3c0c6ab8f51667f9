package id

import "github.com/google/uuid"

// New returns a time-ordered UUIDv7 so job rows cluster by creation time.
func New() string {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return v.String()
}
