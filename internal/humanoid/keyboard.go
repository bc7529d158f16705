// -- internal/humanoid/keyboard.go --
package humanoid

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// commonNgrams are typed faster than isolated characters.
var commonNgrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true, "co": true, "om": true,
	"the": true, "and": true, "ing": true, "ion": true, "tio": true, "com": true,
}

// Typist types text into elements one key at a time with a normally
// distributed inter-key delay.
type Typist struct {
	mu     sync.Mutex
	rng    *rand.Rand
	mean   time.Duration
	jitter float64
}

// NewTypist builds a typist whose average inter-key delay is mean. jitter is
// the standard deviation as a fraction of the mean. A nil rng is seeded from
// the clock.
func NewTypist(mean time.Duration, jitter float64, rng *rand.Rand) *Typist {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if jitter < 0 {
		jitter = 0
	}
	return &Typist{rng: rng, mean: mean, jitter: jitter}
}

// Type sends text to el, pausing between keys. It stops at the first failed
// key or when ctx is done.
func (t *Typist) Type(ctx context.Context, el schemas.Element, text string) error {
	runes := []rune(text)
	for i, r := range runes {
		if i > 0 {
			if err := Pause(ctx, t.KeyPause(runes, i)); err != nil {
				return err
			}
		}
		if err := el.TypeKey(ctx, r); err != nil {
			return fmt.Errorf("humanoid: failed to send key %q: %w", r, err)
		}
	}
	return nil
}

// KeyPause returns the flight time before typing runes[index]. Common
// digrams and trigrams are typed in a faster rhythm.
func (t *Typist) KeyPause(runes []rune, index int) time.Duration {
	if t.mean <= 0 {
		return 0
	}
	mean := float64(t.mean)
	minDelay := mean * 0.5
	factor := 1.0

	if index >= 2 && index < len(runes) && commonNgrams[strings.ToLower(string(runes[index-2:index+1]))] {
		factor = 0.55
	} else if index >= 1 && index < len(runes) && commonNgrams[strings.ToLower(string(runes[index-1:index+1]))] {
		factor = 0.7
	}
	mean *= factor
	minDelay *= factor

	t.mu.Lock()
	norm := t.rng.NormFloat64()
	t.mu.Unlock()

	delay := norm*mean*t.jitter + mean
	return time.Duration(math.Max(minDelay, delay))
}

// Pause sleeps for d, returning early with the context error if ctx ends.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
