// Package handle identifies the backend instance that owns a series or
// dataframe. Values owned by different handles are never combined.
package handle

import (
	"fmt"

	"github.com/google/uuid"
)

// Handle is an opaque token naming a backend implementation and one
// concrete instance of it.
type Handle struct {
	Backend string
	ID      uuid.UUID
}

// New returns a handle for a fresh instance of the named backend.
func New(backend string) Handle {
	return Handle{Backend: backend, ID: uuid.New()}
}

// IsZero reports whether h was never assigned.
func (h Handle) IsZero() bool {
	return h.Backend == "" && h.ID == uuid.Nil
}

// Same reports whether h and other refer to the same backend instance.
func (h Handle) Same(other Handle) bool {
	return h.Backend == other.Backend && h.ID == other.ID
}

func (h Handle) String() string {
	if h.IsZero() {
		return "<unowned>"
	}
	return fmt.Sprintf("%s#%s", h.Backend, h.ID.String()[:8])
}
