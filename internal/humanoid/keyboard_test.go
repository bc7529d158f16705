package humanoid

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/mocks"
)

func TestTypist_Type(t *testing.T) {
	el := mocks.NewFakeElement(schemas.FieldMeta{Name: "email"})
	typist := NewTypist(time.Microsecond, 0.3, rand.New(rand.NewSource(1)))

	require.NoError(t, typist.Type(context.Background(), el, "héllo@example.com"))

	v, err := el.Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "héllo@example.com", v)
}

func TestTypist_TypeStopsOnKeyError(t *testing.T) {
	el := mocks.NewFakeElement(schemas.FieldMeta{})
	el.Errors = map[string]error{"TypeKey": errors.New("detached")}
	typist := NewTypist(0, 0, nil)

	err := typist.Type(context.Background(), el, "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send key")
}

func TestTypist_TypeHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	el := mocks.NewFakeElement(schemas.FieldMeta{})
	typist := NewTypist(time.Second, 0, nil)

	err := typist.Type(ctx, el, "abc")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTypist_KeyPause(t *testing.T) {
	typist := NewTypist(10*time.Millisecond, 0, rand.New(rand.NewSource(7)))
	runes := []rune("xqthe")

	// Without jitter the delay is exactly the scaled mean.
	assert.Equal(t, 10*time.Millisecond, typist.KeyPause(runes, 1))
	assert.InDelta(t, float64(7*time.Millisecond), float64(typist.KeyPause(runes, 3)), 1, "digram 'th'")
	assert.Equal(t, time.Duration(float64(10*time.Millisecond)*0.55), typist.KeyPause(runes, 4), "trigram 'the'")

	jittery := NewTypist(10*time.Millisecond, 5, rand.New(rand.NewSource(3)))
	for i := 0; i < 100; i++ {
		assert.GreaterOrEqual(t, jittery.KeyPause(runes, 1), 5*time.Millisecond)
	}

	assert.Zero(t, NewTypist(0, 1, nil).KeyPause(runes, 1))
}

func TestPause(t *testing.T) {
	start := time.Now()
	require.NoError(t, Pause(context.Background(), 5*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Pause(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Pause(ctx, 0), context.Canceled)
}
