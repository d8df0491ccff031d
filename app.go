package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"SetScript/internal/bookmarks"
	"SetScript/internal/logger"
	"SetScript/internal/notify"
	"SetScript/internal/settings"
)

const eventOpenURL = "open-url"

// App is bound to the frontend. Every exported method becomes a promise on
// window.go.main.App.
type App struct {
	ctx context.Context
	svc *services
	log logger.Logger

	unsubscribe func()
	pendingOpen string

	ipcOnce     sync.Once
	ipcListener net.Listener
}

func NewApp(svc *services, openURL string) *App {
	return &App{
		svc:         svc,
		log:         svc.log.With(logger.String("component", "shell")),
		pendingOpen: cleanOpenArg(openURL),
	}
}

func (a *App) setIPCListener(ln net.Listener) {
	a.ipcListener = ln
}

// wailsView pushes the collection to the window as a "saved-pages" event.
type wailsView struct {
	ctx context.Context
}

func (v wailsView) Deliver(list []bookmarks.Record) error {
	if v.ctx == nil || v.ctx.Err() != nil {
		return notify.ErrViewClosed
	}
	runtime.EventsEmit(v.ctx, notify.EventSavedPages, list)
	return nil
}

// wailsSurface is the main window as seen by the settings store.
type wailsSurface struct {
	ctx context.Context
}

func (s wailsSurface) SetFullscreen(on bool) {
	if on {
		runtime.WindowFullscreen(s.ctx)
		return
	}
	runtime.WindowUnfullscreen(s.ctx)
}

func (s wailsSurface) SetAlwaysOnTop(on bool) { runtime.WindowSetAlwaysOnTop(s.ctx, on) }

func (s wailsSurface) SetSize(width, height int) { runtime.WindowSetSize(s.ctx, width, height) }

func (a *App) surface() settings.Surface {
	if a.ctx == nil {
		return nil
	}
	return wailsSurface{ctx: a.ctx}
}

// startup is called when the window exists. The context is kept for the
// runtime calls.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.unsubscribe = a.svc.hub.Subscribe("window", wailsView{ctx: ctx})

	rec := a.svc.settings.Load()
	if err := a.svc.settings.Apply(a.surface(), rec); err != nil {
		a.log.Warn("restoring window settings failed", logger.Error(err))
	}
	a.startIPCListener()
}

func (a *App) domReady(ctx context.Context) {
	if a.pendingOpen == "" {
		return
	}
	runtime.EventsEmit(ctx, eventOpenURL, a.pendingOpen)
	a.pendingOpen = ""
}

// beforeClose remembers the window size for the next launch.
func (a *App) beforeClose(ctx context.Context) (prevent bool) {
	if runtime.WindowIsFullscreen(ctx) {
		return false
	}
	w, h := runtime.WindowGetSize(ctx)
	if _, err := a.svc.settings.Update(func(r *settings.Record) {
		r.Width, r.Height = w, h
	}); err != nil {
		a.log.Warn("saving window size failed", logger.Error(err))
	}
	return false
}

func (a *App) shutdown(ctx context.Context) {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
}

func (a *App) startIPCListener() {
	if a.ipcListener == nil {
		return
	}
	a.ipcOnce.Do(func() {
		go func() {
			for {
				conn, err := a.ipcListener.Accept()
				if err != nil {
					return
				}
				go a.handleIPCConn(conn)
			}
		}()
	})
}

// handleIPCConn receives the --open argument of a second launch.
func (a *App) handleIPCConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	if a.ctx == nil {
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := readHandoff(conn)
	if err != nil {
		a.log.Warn("ignoring message from second instance", logger.Error(err))
		return
	}
	if msg.Version != Version {
		a.log.Info("second instance runs another version", logger.String("version", msg.Version))
	}
	target := msg.Open

	runtime.WindowShow(a.ctx)
	runtime.WindowUnminimise(a.ctx)
	// Toggling always-on-top is the reliable way to raise the window on
	// Windows; restore the user's choice afterwards.
	runtime.WindowSetAlwaysOnTop(a.ctx, true)
	runtime.WindowSetAlwaysOnTop(a.ctx, a.svc.settings.Load().IsAlwaysOnTop)

	if target != "" {
		a.log.Info("open forwarded from second instance", logger.String("url", target))
		runtime.EventsEmit(a.ctx, eventOpenURL, target)
	}
}

func (a *App) SavePage(in bookmarks.CreateInput) (bookmarks.Record, error) {
	return a.svc.bookmarks.Create(a.callCtx(), in)
}

func (a *App) GetSavedPages() ([]bookmarks.Record, error) {
	return a.svc.bookmarks.List(a.callCtx())
}

func (a *App) GetBookmark(id string) (bookmarks.Record, error) {
	return a.svc.bookmarks.Get(a.callCtx(), id)
}

func (a *App) EditBookmark(id string, in bookmarks.UpdateInput) (bookmarks.Record, error) {
	return a.svc.bookmarks.Update(a.callCtx(), id, in)
}

func (a *App) DeleteBookmark(id string) error {
	return a.svc.bookmarks.Delete(a.callCtx(), id)
}

func (a *App) GetSettings() settings.Record {
	return a.svc.settings.Load()
}

// SaveSettings applies rec to the window and persists it.
func (a *App) SaveSettings(rec settings.Record) (settings.Record, error) {
	if err := a.svc.settings.Apply(a.surface(), rec); err != nil {
		return settings.Record{}, err
	}
	return a.svc.settings.Load(), nil
}

func (a *App) SetFullscreen(on bool) (settings.Record, error) {
	rec, err := a.svc.settings.Update(func(r *settings.Record) { r.IsFullscreen = on })
	if err != nil {
		return settings.Record{}, err
	}
	if s := a.surface(); s != nil {
		s.SetFullscreen(on)
	}
	return rec, nil
}

func (a *App) SetAlwaysOnTop(on bool) (settings.Record, error) {
	rec, err := a.svc.settings.Update(func(r *settings.Record) { r.IsAlwaysOnTop = on })
	if err != nil {
		return settings.Record{}, err
	}
	if s := a.surface(); s != nil {
		s.SetAlwaysOnTop(on)
	}
	return rec, nil
}

// GetBookmarkQR returns a PNG data URL encoding the bookmark's address, for
// opening the page on a phone.
func (a *App) GetBookmarkQR(id string) (string, error) {
	rec, err := a.svc.bookmarks.Get(a.callCtx(), id)
	if err != nil {
		return "", err
	}
	return qrDataURL(rec.URL)
}

func qrDataURL(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// OpenDataDir shows the directory holding bookmarks.json in the OS file
// manager.
func (a *App) OpenDataDir() error {
	return openFolderInOS(a.svc.cfg.DataDir)
}

func (a *App) GetVersion() string {
	return Version
}

func (a *App) callCtx() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}
