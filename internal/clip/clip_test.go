package clip

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadlessBackendNeverHasText(t *testing.T) {
	t.Parallel()
	b := newHeadless()
	defer b.Close()

	assert.False(t, b.HasText())
	_, err := b.Text()
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, b.Probe(), ErrUnavailable)
	assert.NotEmpty(t, b.Name())

	select {
	case <-b.Watch():
		t.Fatal("headless backend must never signal")
	default:
	}
}

func TestOpenWithRetryGivesUpWhenClipboardStaysLocked(t *testing.T) {
	t.Parallel()
	locked := errors.New("access denied")
	opens := 0
	var slept []time.Duration

	err := openWithRetry(func() error {
		opens++
		return locked
	}, 3, 5*time.Millisecond, func(d time.Duration) { slept = append(slept, d) })

	require.ErrorIs(t, err, ErrClipboardBusy)
	require.ErrorIs(t, err, locked)
	assert.Equal(t, 3, opens)
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 5 * time.Millisecond}, slept)
}

func TestOpenWithRetrySucceedsOnceReleased(t *testing.T) {
	t.Parallel()
	opens := 0
	sleeps := 0

	err := openWithRetry(func() error {
		opens++
		if opens < 3 {
			return errors.New("access denied")
		}
		return nil
	}, openAttempts, openBackoff, func(time.Duration) { sleeps++ })

	require.NoError(t, err)
	assert.Equal(t, 3, opens)
	assert.Equal(t, 2, sleeps)
}
