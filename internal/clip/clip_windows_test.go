//go:build windows

package clip

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowsTextReportsBusyClipboard(t *testing.T) {
	t.Parallel()
	opens := 0
	b := &windowsBackend{
		watchCh: make(chan struct{}),
		open: func() error {
			opens++
			return errors.New("access is denied")
		},
		sleep: func(time.Duration) {},
	}

	text, err := b.Text()
	require.ErrorIs(t, err, ErrClipboardBusy)
	assert.Empty(t, text)
	assert.Equal(t, openAttempts, opens)

	require.ErrorIs(t, b.Probe(), ErrClipboardBusy)
}
