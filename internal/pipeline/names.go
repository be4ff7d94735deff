package pipeline

import "github.com/google/uuid"

// newFileStem is the random part of attachment names the sender did not choose.
func newFileStem() string {
	return uuid.NewString()[:8]
}
