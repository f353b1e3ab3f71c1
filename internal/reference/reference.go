package reference

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefixes used for operation references.
const (
	PrefixTopUp      = "TOP"
	PrefixWithdrawal = "WDR"
	PrefixTransfer   = "TRF"
	PrefixPayment    = "PAY"
	PrefixPurchase   = "MKT"
)

// Generator produces "<PREFIX>_<ULID>" correlation tokens: a millisecond
// timestamp followed by monotonic randomness, so references sort by creation
// time and stay unique under concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewGenerator returns a generator seeded from crypto/rand.
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Next returns a fresh reference for the given prefix.
func (g *Generator) Next(prefix string) string {
	g.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
	g.mu.Unlock()
	return prefix + "_" + id.String()
}

// Time extracts the creation time embedded in a reference.
func Time(ref string) (time.Time, bool) {
	if len(ref) < ulid.EncodedSize {
		return time.Time{}, false
	}
	id, err := ulid.ParseStrict(ref[len(ref)-ulid.EncodedSize:])
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(id.Time()), true
}
