//go:build windows

package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"go.klb.dev/clipwatch/internal/chain"
	"go.klb.dev/clipwatch/internal/clip"
	"go.klb.dev/clipwatch/internal/uiloop"
)

const (
	wmNull              = 0x0000
	wmDestroy           = 0x0002
	wmClose             = 0x0010
	wmContextMenu       = 0x007B
	wmPowerBroadcast    = 0x0218
	wmRButtonUp         = 0x0205
	wmWTSSessionChange  = 0x02B1
	wmDrawClipboard     = 0x0308
	wmChangeCBChain     = 0x030D
	wmApp               = 0x8000
	wmAppRun            = wmApp + 1
	wmAppTray           = wmApp + 2
	pbtAPMResumeAuto    = 0x0012
	wtsSessionUnlock    = 0x8
	notifyForThisSess   = 0
	smtoAbortIfHung     = 0x0002
	forwardTimeoutMilli = 1000

	nimAdd    = 0x0
	nimModify = 0x1
	nimDelete = 0x2
	nifMsg    = 0x1
	nifIcon   = 0x2
	nifTip    = 0x4
	nifInfo   = 0x10
	niifInfo  = 0x1

	mfString       = 0x0
	tpmRightButton = 0x0002
	tpmNoNotify    = 0x0080
	tpmReturnCmd   = 0x0100
	idiApplication = 32512

	menuAbout = 1
	menuExit  = 2

	className = "ClipwatchHiddenWindow"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")
	shell32  = windows.NewLazySystemDLL("shell32.dll")
	wtsapi32 = windows.NewLazySystemDLL("wtsapi32.dll")

	procRegisterClassExW     = user32.NewProc("RegisterClassExW")
	procUnregisterClassW     = user32.NewProc("UnregisterClassW")
	procCreateWindowExW      = user32.NewProc("CreateWindowExW")
	procDestroyWindow        = user32.NewProc("DestroyWindow")
	procDefWindowProcW       = user32.NewProc("DefWindowProcW")
	procGetMessageW          = user32.NewProc("GetMessageW")
	procTranslateMessage     = user32.NewProc("TranslateMessage")
	procDispatchMessageW     = user32.NewProc("DispatchMessageW")
	procPostMessageW         = user32.NewProc("PostMessageW")
	procPostQuitMessage      = user32.NewProc("PostQuitMessage")
	procRegisterWindowMsgW   = user32.NewProc("RegisterWindowMessageW")
	procSetClipboardViewer   = user32.NewProc("SetClipboardViewer")
	procChangeClipboardChain = user32.NewProc("ChangeClipboardChain")
	procSendMessageTimeoutW  = user32.NewProc("SendMessageTimeoutW")
	procGetClipboardViewer   = user32.NewProc("GetClipboardViewer")
	procLoadIconW            = user32.NewProc("LoadIconW")
	procCreatePopupMenu      = user32.NewProc("CreatePopupMenu")
	procAppendMenuW          = user32.NewProc("AppendMenuW")
	procTrackPopupMenu       = user32.NewProc("TrackPopupMenu")
	procDestroyMenu          = user32.NewProc("DestroyMenu")
	procGetCursorPos         = user32.NewProc("GetCursorPos")
	procSetForegroundWindow  = user32.NewProc("SetForegroundWindow")

	procGetModuleHandleW = kernel32.NewProc("GetModuleHandleW")
	procSetLastError     = kernel32.NewProc("SetLastError")

	procShellNotifyIconW = shell32.NewProc("Shell_NotifyIconW")

	procWTSRegisterSessionNotification   = wtsapi32.NewProc("WTSRegisterSessionNotification")
	procWTSUnRegisterSessionNotification = wtsapi32.NewProc("WTSUnRegisterSessionNotification")
)

type point struct{ X, Y int32 }

type winMsg struct {
	HWnd    windows.HWND
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      point
	Private uint32
}

type wndClassEx struct {
	Size       uint32
	Style      uint32
	WndProc    uintptr
	ClsExtra   int32
	WndExtra   int32
	Instance   windows.Handle
	Icon       windows.Handle
	Cursor     windows.Handle
	Background windows.Handle
	MenuName   *uint16
	ClassName  *uint16
	IconSm     windows.Handle
}

type notifyIconData struct {
	Size            uint32
	HWnd            windows.HWND
	ID              uint32
	Flags           uint32
	CallbackMessage uint32
	Icon            windows.Handle
	Tip             [128]uint16
	State           uint32
	StateMask       uint32
	Info            [256]uint16
	Timeout         uint32
	InfoTitle       [64]uint16
	InfoFlags       uint32
	GUID            windows.GUID
	BalloonIcon     windows.Handle
}

// active is the platform whose window is alive. The window procedure is a
// bare callback with no user data, so it finds its owner through here.
var active atomic.Pointer[windowsPlatform]

var wndProcCallback = windows.NewCallback(wndProc)

// taskbarCreated is the message Explorer broadcasts when the taskbar comes
// back. Zero until the window exists.
var taskbarCreated uint32

type windowsPlatform struct {
	log     *slog.Logger
	backend clip.Backend

	hwnd     windows.HWND
	instance windows.Handle
	loop     *uiloop.Loop
	host     Host

	tray   *shellTray
	events *sessionEvents
}

func newPlatform(backend clip.Backend, opts Options) (Platform, error) {
	p := &windowsPlatform{log: opts.Log, backend: backend}
	p.tray = &shellTray{p: p, notify: shellNotify}
	p.events = &sessionEvents{p: p}
	return p, nil
}

func (p *windowsPlatform) Name() string         { return "windows (" + p.backend.Name() + ")" }
func (p *windowsPlatform) Viewer() chain.Viewer { return (*clipboardViewer)(p) }
func (p *windowsPlatform) Tray() Tray           { return p.tray }
func (p *windowsPlatform) Events() Events       { return p.events }

// Run creates the hidden window on a locked OS thread and pumps its message
// queue. The window is a regular top-level window rather than a
// message-only one because message-only windows do not get
// WM_POWERBROADCAST.
func (p *windowsPlatform) Run(ctx context.Context, loop *uiloop.Loop, host Host) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if !active.CompareAndSwap(nil, p) {
		return errors.New("platform: a window is already running")
	}
	defer active.Store(nil)

	p.loop = loop
	p.host = host
	if err := p.createWindow(); err != nil {
		return err
	}
	defer p.unregisterClass()

	if err := p.tray.add(); err != nil {
		p.log.Warn("tray icon unavailable", "err", err)
	}

	hwnd := p.hwnd
	loop.SetWaker(func() { postMessage(hwnd, wmAppRun, 0, 0) })
	defer loop.SetWaker(nil)
	loop.Post(host.Started)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			postMessage(hwnd, wmClose, 0, 0)
		case <-stop:
		}
	}()

	var m winMsg
	for {
		r, _, err := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(r) {
		case -1:
			return fmt.Errorf("GetMessage: %w", err)
		case 0:
			return nil
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

func (p *windowsPlatform) createWindow() error {
	inst, _, err := procGetModuleHandleW.Call(0)
	if inst == 0 {
		return fmt.Errorf("GetModuleHandle: %w", err)
	}
	p.instance = windows.Handle(inst)

	tbName, _ := windows.UTF16PtrFromString("TaskbarCreated")
	if r, _, err := procRegisterWindowMsgW.Call(uintptr(unsafe.Pointer(tbName))); r == 0 {
		p.log.Warn("tray icon will not survive an Explorer restart", "err", err)
	} else {
		taskbarCreated = uint32(r)
	}

	name, _ := windows.UTF16PtrFromString(className)
	wc := wndClassEx{
		WndProc:   wndProcCallback,
		Instance:  p.instance,
		ClassName: name,
	}
	wc.Size = uint32(unsafe.Sizeof(wc))
	if r, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc))); r == 0 {
		return fmt.Errorf("RegisterClassEx: %w", err)
	}

	title, _ := windows.UTF16PtrFromString("clipwatch")
	hwnd, _, err := procCreateWindowExW.Call(
		0,
		uintptr(unsafe.Pointer(name)),
		uintptr(unsafe.Pointer(title)),
		0,
		0, 0, 0, 0,
		0, 0,
		uintptr(p.instance),
		0,
	)
	if hwnd == 0 {
		p.unregisterClass()
		return fmt.Errorf("CreateWindowEx: %w", err)
	}
	p.hwnd = windows.HWND(hwnd)
	p.log.Debug("hidden window created", "hwnd", chain.Link(hwnd))
	return nil
}

func (p *windowsPlatform) unregisterClass() {
	name, _ := windows.UTF16PtrFromString(className)
	procUnregisterClassW.Call(uintptr(unsafe.Pointer(name)), uintptr(p.instance))
}

func wndProc(hwnd, msg, wParam, lParam uintptr) uintptr {
	p := active.Load()
	if p == nil || p.hwnd == 0 {
		return defWindowProc(hwnd, msg, wParam, lParam)
	}
	if taskbarCreated != 0 && uint32(msg) == taskbarCreated {
		p.tray.restore()
		return 0
	}

	switch msg {
	case wmDrawClipboard:
		if p.host.Route(chain.Message{Kind: chain.KindContentChanged, Raw: uint32(msg), WParam: wParam, LParam: lParam}) {
			return 0
		}
	case wmChangeCBChain:
		if p.host.Route(chain.Message{Kind: chain.KindTopologyChanged, Raw: uint32(msg), WParam: wParam, LParam: lParam}) {
			return 0
		}
	case wmAppRun:
		p.loop.Drain()
		return 0
	case wmPowerBroadcast:
		if wParam == pbtAPMResumeAuto {
			p.events.emit(EventResume)
		}
		return 1
	case wmWTSSessionChange:
		if wParam == wtsSessionUnlock {
			p.events.emit(EventUnlock)
		}
		return 0
	case wmAppTray:
		switch lParam & 0xFFFF {
		case wmRButtonUp, wmContextMenu:
			p.showMenu()
		}
		return 0
	case wmClose:
		p.loop.Drain()
		p.host.Stopping()
		procDestroyWindow.Call(hwnd)
		return 0
	case wmDestroy:
		procPostQuitMessage.Call(0)
		return 0
	}
	return defWindowProc(hwnd, msg, wParam, lParam)
}

func defWindowProc(hwnd, msg, wParam, lParam uintptr) uintptr {
	r, _, _ := procDefWindowProcW.Call(hwnd, msg, wParam, lParam)
	return r
}

func postMessage(hwnd windows.HWND, msg uint32, wParam, lParam uintptr) {
	procPostMessageW.Call(uintptr(hwnd), uintptr(msg), wParam, lParam)
}

func (p *windowsPlatform) showMenu() {
	menu, _, _ := procCreatePopupMenu.Call()
	if menu == 0 {
		return
	}
	defer procDestroyMenu.Call(menu)

	about, _ := windows.UTF16PtrFromString("About")
	exit, _ := windows.UTF16PtrFromString("Exit")
	procAppendMenuW.Call(menu, mfString, menuAbout, uintptr(unsafe.Pointer(about)))
	procAppendMenuW.Call(menu, mfString, menuExit, uintptr(unsafe.Pointer(exit)))

	var pt point
	procGetCursorPos.Call(uintptr(unsafe.Pointer(&pt)))
	// The menu only dismisses on an outside click if we own the foreground.
	procSetForegroundWindow.Call(uintptr(p.hwnd))
	cmd, _, _ := procTrackPopupMenu.Call(menu,
		tpmRightButton|tpmNoNotify|tpmReturnCmd,
		uintptr(pt.X), uintptr(pt.Y), 0, uintptr(p.hwnd), 0)
	postMessage(p.hwnd, wmNull, 0, 0)

	switch cmd {
	case menuAbout:
		p.events.emit(EventAbout)
	case menuExit:
		p.events.emit(EventExit)
	}
}

// callErr runs proc with the thread's last error cleared so a zero result
// can be told apart from a real failure.
func callErr(proc *windows.LazyProc, args ...uintptr) (uintptr, error) {
	procSetLastError.Call(0)
	r, _, err := proc.Call(args...)
	var errno syscall.Errno
	if errors.As(err, &errno) && errno != 0 {
		return r, errno
	}
	return r, nil
}

// clipboardViewer implements chain.Viewer over the Win32 clipboard-viewer
// chain.
type clipboardViewer windowsPlatform

func (v *clipboardViewer) RegisterViewer() (chain.Link, error) {
	if v.hwnd == 0 {
		return 0, errors.New("SetClipboardViewer: no window")
	}
	next, err := callErr(procSetClipboardViewer, uintptr(v.hwnd))
	if next == 0 && err != nil {
		return 0, fmt.Errorf("SetClipboardViewer: %w", err)
	}
	return chain.Link(next), nil
}

func (v *clipboardViewer) DeregisterViewer(next chain.Link) error {
	if v.hwnd == 0 {
		return nil
	}
	// The return value reflects how the rest of the chain handled the
	// message, not whether removal worked.
	if _, err := callErr(procChangeClipboardChain, uintptr(v.hwnd), uintptr(next)); err != nil {
		return fmt.Errorf("ChangeClipboardChain: %w", err)
	}
	return nil
}

func (v *clipboardViewer) ForwardMessage(next chain.Link, msg chain.Message) error {
	var result uintptr
	r, err := callErr(procSendMessageTimeoutW,
		uintptr(next), uintptr(msg.Raw), msg.WParam, msg.LParam,
		smtoAbortIfHung, forwardTimeoutMilli, uintptr(unsafe.Pointer(&result)))
	if r == 0 {
		if err == nil {
			err = errors.New("timed out")
		}
		return fmt.Errorf("SendMessageTimeout to %v: %w", next, err)
	}
	return nil
}

func (v *clipboardViewer) CurrentViewer() (chain.Link, error) {
	head, err := callErr(procGetClipboardViewer)
	if head == 0 && err != nil {
		return 0, fmt.Errorf("GetClipboardViewer: %w", err)
	}
	return chain.Link(head), nil
}

// shellTray is the notification-area icon. Toasts are balloon tips.
type shellTray struct {
	p      *windowsPlatform
	notify func(op uintptr, nid *notifyIconData) error
	added  bool
}

func (t *shellTray) data(flags uint32) *notifyIconData {
	nid := &notifyIconData{
		HWnd:  t.p.hwnd,
		ID:    1,
		Flags: flags,
	}
	nid.Size = uint32(unsafe.Sizeof(*nid))
	return nid
}

func (t *shellTray) add() error {
	nid := t.data(nifMsg | nifIcon | nifTip)
	nid.CallbackMessage = wmAppTray
	icon, _, _ := procLoadIconW.Call(0, idiApplication)
	nid.Icon = windows.Handle(icon)
	copyUTF16(nid.Tip[:], TrayTooltip)
	if err := t.notify(nimAdd, nid); err != nil {
		return err
	}
	t.added = true
	return nil
}

// restore adds the icon again after Explorer restarts. The old icon died
// with the previous taskbar.
func (t *shellTray) restore() {
	t.added = false
	if err := t.add(); err != nil {
		t.p.log.Warn("tray icon not restored after taskbar restart", "err", err)
		return
	}
	t.p.log.Info("tray icon restored after taskbar restart")
}

func (t *shellTray) ShowToast(title, body string, hint time.Duration) error {
	if !t.added {
		return errors.New("tray icon not added")
	}
	nid := t.data(nifInfo)
	copyUTF16(nid.InfoTitle[:], title)
	copyUTF16(nid.Info[:], body)
	nid.Timeout = uint32(hint.Milliseconds())
	nid.InfoFlags = niifInfo
	return t.notify(nimModify, nid)
}

// HideToast clears the balloon by modifying it to an empty text.
func (t *shellTray) HideToast() error {
	if !t.added {
		return nil
	}
	return t.notify(nimModify, t.data(nifInfo))
}

func (t *shellTray) Dispose() error {
	if !t.added {
		return nil
	}
	t.added = false
	return t.notify(nimDelete, t.data(0))
}

func shellNotify(op uintptr, nid *notifyIconData) error {
	r, _, err := procShellNotifyIconW.Call(op, uintptr(unsafe.Pointer(nid)))
	if r == 0 {
		return fmt.Errorf("Shell_NotifyIcon(%d): %w", op, err)
	}
	return nil
}

// copyUTF16 writes s into dst, truncating to fit with a NUL terminator.
func copyUTF16(dst []uint16, s string) {
	u, err := windows.UTF16FromString(s)
	if err != nil {
		return
	}
	if len(u) > len(dst) {
		u = u[:len(dst)]
		u[len(u)-1] = 0
	}
	copy(dst, u)
}

// sessionEvents delivers power, session and tray-menu events. They all
// arrive through the window procedure, already on the UI loop.
type sessionEvents struct {
	p          *windowsPlatform
	fn         func(Event)
	registered bool
}

func (e *sessionEvents) Subscribe(fn func(Event)) error {
	e.fn = fn
	if e.registered || e.p.hwnd == 0 {
		return nil
	}
	if r, _, err := procWTSRegisterSessionNotification.Call(uintptr(e.p.hwnd), notifyForThisSess); r == 0 {
		return fmt.Errorf("WTSRegisterSessionNotification: %w", err)
	}
	e.registered = true
	return nil
}

func (e *sessionEvents) Unsubscribe() error {
	e.fn = nil
	if !e.registered {
		return nil
	}
	e.registered = false
	if r, _, err := procWTSUnRegisterSessionNotification.Call(uintptr(e.p.hwnd)); r == 0 {
		return fmt.Errorf("WTSUnRegisterSessionNotification: %w", err)
	}
	return nil
}

func (e *sessionEvents) emit(ev Event) {
	if e.fn == nil {
		return
	}
	e.p.log.Debug("session event", "event", ev)
	e.fn(ev)
}
