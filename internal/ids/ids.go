package ids

import (
	"crypto/rand"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// shortAlphabet avoids characters that read ambiguously in URLs (0/O, 1/l/I).
const shortAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"

// Short returns a random identifier of the given length, used for the
// human-facing organization short id embedded in URLs.
func Short(size int) string {
	if size <= 0 {
		size = 6
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	out := make([]byte, size)
	for i, b := range buf {
		out[i] = shortAlphabet[int(b)%len(shortAlphabet)]
	}
	return string(out)
}
