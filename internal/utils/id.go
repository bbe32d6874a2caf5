package utils

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewClientKey returns the correlation id attached to an optimistic send
// so the confirmed row can replace the local echo deterministically.
func NewClientKey() string {
	id, err := uuid.NewRandom()
	if err != nil {
		// Fallback to timestamp if the random source is unavailable.
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return id.String()
}
