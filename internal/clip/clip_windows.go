//go:build windows

package clip

import (
	"fmt"
	"log/slog"
	"time"
	"unsafe"

	"golang.design/x/clipboard"
	"golang.org/x/sys/windows"
)

const cfUnicodeText = 13

var (
	user32                         = windows.NewLazySystemDLL("user32.dll")
	procIsClipboardFormatAvailable = user32.NewProc("IsClipboardFormatAvailable")
	procOpenClipboard              = user32.NewProc("OpenClipboard")
	procCloseClipboard             = user32.NewProc("CloseClipboard")
	procGetClipboardData           = user32.NewProc("GetClipboardData")

	kernel32         = windows.NewLazySystemDLL("kernel32.dll")
	procGlobalLock   = kernel32.NewProc("GlobalLock")
	procGlobalUnlock = kernel32.NewProc("GlobalUnlock")
)

type windowsBackend struct {
	watchCh chan struct{}

	open  func() error
	sleep func(time.Duration)
}

// New returns the Windows clipboard backend. Change notifications come from
// the clipboard-viewer chain, not from this backend, so Watch never fires.
// clipboard.Init is called here rather than in init() so that CLI sub-commands
// (status, reconnect) that never construct a Backend don't log spurious
// warnings.
func New() Backend {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard init failed", "err", err)
		return newHeadless()
	}
	return &windowsBackend{
		watchCh: make(chan struct{}),
		open:    openClipboard,
		sleep:   time.Sleep,
	}
}

func openClipboard() error {
	if r, _, err := procOpenClipboard.Call(0); r == 0 {
		return fmt.Errorf("OpenClipboard: %w", err)
	}
	return nil
}

func (b *windowsBackend) Name() string { return "Windows Clipboard" }

func (b *windowsBackend) HasText() bool {
	r, _, _ := procIsClipboardFormatAvailable.Call(cfUnicodeText)
	return r != 0
}

// Text reads CF_UNICODETEXT. Opening the clipboard is retried a bounded
// number of times; a clipboard that stays locked yields ErrClipboardBusy.
func (b *windowsBackend) Text() (string, error) {
	if err := openWithRetry(b.open, openAttempts, openBackoff, b.sleep); err != nil {
		return "", err
	}
	defer procCloseClipboard.Call()

	h, _, err := procGetClipboardData.Call(cfUnicodeText)
	if h == 0 {
		return "", fmt.Errorf("%w: GetClipboardData: %w", ErrClipboardBusy, err)
	}
	ptr, _, err := procGlobalLock.Call(h)
	if ptr == 0 {
		return "", fmt.Errorf("%w: GlobalLock: %w", ErrClipboardBusy, err)
	}
	defer procGlobalUnlock.Call(h)
	return windows.UTF16PtrToString((*uint16)(unsafe.Pointer(ptr))), nil
}

func (b *windowsBackend) Probe() error {
	if err := b.open(); err != nil {
		return fmt.Errorf("%w: %w", ErrClipboardBusy, err)
	}
	procCloseClipboard.Call()
	return nil
}

func (b *windowsBackend) Watch() <-chan struct{} { return b.watchCh }
func (b *windowsBackend) Close()                 {}
