package clip

import (
	"fmt"
	"time"
)

// Another process may hold the clipboard open for a moment; reads give up
// after openAttempts tries rather than stalling the UI thread.
const (
	openAttempts = 10
	openBackoff  = 10 * time.Millisecond
)

// openWithRetry calls open until it succeeds, sleeping wait between tries.
// After attempts failures it returns ErrClipboardBusy wrapping the last error.
func openWithRetry(open func() error, attempts int, wait time.Duration, sleep func(time.Duration)) error {
	var err error
	for i := range attempts {
		if err = open(); err == nil {
			return nil
		}
		if i < attempts-1 {
			sleep(wait)
		}
	}
	return fmt.Errorf("%w: %w", ErrClipboardBusy, err)
}
