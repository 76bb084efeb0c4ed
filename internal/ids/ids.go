package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// PlaceholderPrefix marks identifiers that were synthesized locally and do not
// exist in the identity service.
const PlaceholderPrefix = "placeholder_"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for document keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// RunID identifies a single seed or reset run in logs and reports.
func RunID() string {
	return uuid.NewString()
}

// Placeholder synthesizes a stand-in user key for an account that could not be
// resolved in the identity service.
func Placeholder() string {
	return PlaceholderPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsPlaceholder reports whether id was produced by Placeholder.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}
