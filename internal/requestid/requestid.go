// Package requestid generates the short correlation ids stamped on requests.
//
// Ids are two zero-padded four digit segments ("0042-1337"): easy to read
// back from a device log and to diff by eye. The id space is 10^8, which is
// plenty because a subject has at most one outstanding request per command.
package requestid

import (
	"fmt"
	"math/rand"
	"regexp"
	"sync"
)

// Generator produces request ids.
// Implemented by Random (production), Fixed and Sequence (tests, harness).
type Generator interface {
	Generate() string
}

var idPattern = regexp.MustCompile(`^[0-9]{4}-[0-9]{4}$`)

// Valid reports whether id has the nnnn-nnnn shape.
func Valid(id string) bool {
	return idPattern.MatchString(id)
}

func format(hi, lo int) string {
	return fmt.Sprintf("%04d-%04d", hi, lo)
}

// Random generates ids from math/rand.
//
// Thread-safety: Random is stateless and safe for concurrent use.
type Random struct{}

// Generate returns a fresh random id.
func (Random) Generate() string {
	return format(rand.Intn(10000), rand.Intn(10000))
}

// Fixed returns predetermined ids in order.
//
// Thread-safety: Fixed is safe for concurrent use via internal mutex.
type Fixed struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixed creates a generator that returns ids in order.
func NewFixed(ids ...string) *Fixed {
	return &Fixed{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics if all ids have been consumed: a test created more requests than
// it declared.
func (g *Fixed) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("requestid.Fixed: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// Sequence returns 0000-0001, 0000-0002, ... and never repeats within
// the first 10^8 calls.
type Sequence struct {
	mu sync.Mutex
	n  int
}

// NewSequence creates a sequence generator starting after zero.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Generate returns the next id in the sequence.
func (g *Sequence) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return format((g.n/10000)%10000, g.n%10000)
}
