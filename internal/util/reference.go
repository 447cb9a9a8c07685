package util

import (
	"fmt"
	"time"
)

// OrderReference builds a display reference for an order that could not be persisted:
// the prefix followed by the last six digits of the Unix millisecond clock.
func OrderReference(prefix string, t time.Time) string {
	return fmt.Sprintf("%s%06d", prefix, t.UnixMilli()%1_000_000)
}
