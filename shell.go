package main

import (
	"context"
	"embed"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"SetScript/internal/assets"
	"SetScript/internal/bookmarks"
	"SetScript/internal/config"
	"SetScript/internal/logger"
	"SetScript/internal/mirror"
	"SetScript/internal/notify"
	"SetScript/internal/snapshot"
	"SetScript/internal/watch"
)

//go:embed all:frontend/dist
var frontend embed.FS

// runShell starts the desktop window, or hands openURL to the instance that
// is already running and returns.
func runShell(svc *services, openURL string) error {
	log := svc.log
	exe, _ := os.Executable()
	// `wails dev` runs a temporary wailsbindings binary to generate the JS
	// bindings. It must not take the single-instance lock.
	skipSingleInstance := strings.Contains(strings.ToLower(filepath.Base(exe)), "wailsbindings")

	primary, release, err := true, func() {}, error(nil)
	if !skipSingleInstance {
		primary, release, err = tryAcquireSingleInstance(config.AppName, svc.cfg.DataDir)
	}
	if err != nil {
		log.Warn("single-instance check failed", logger.Error(err))
	} else if !primary {
		log.Info("already running, forwarding to existing instance", logger.String("open", openURL))
		return notifyExistingInstance(svc.cfg.DataDir, openURL)
	}
	defer release()

	app := NewApp(svc, openURL)
	if primary && !skipSingleInstance {
		ln, cleanup, err := startInstanceIPC(svc.cfg.DataDir)
		if err != nil {
			log.Warn("single-instance ipc unavailable", logger.Error(err))
		} else if ln != nil {
			app.setIPCListener(ln)
			defer cleanup()
		}
	}

	views := attachViews(svc)
	defer views.stop()

	width, height := svc.cfg.WindowWidth, svc.cfg.WindowHeight
	if rec := svc.settings.Load(); rec.HasGeometry() {
		width, height = rec.Width, rec.Height
	}

	log.Info("starting shell",
		logger.String("version", Version),
		logger.String("data_dir", svc.cfg.DataDir),
		logger.Bool("offline", svc.cfg.Offline),
		logger.Bool("redis", svc.cfg.RedisAddr != ""))

	return wails.Run(&options.App{
		Title:  config.AppName,
		Width:  width,
		Height: height,
		AssetServer: &assetserver.Options{
			Assets:  frontend,
			Handler: views.assets,
		},
		BackgroundColour: &options.RGBA{R: 27, G: 38, B: 54, A: 1},
		OnStartup:        app.startup,
		OnDomReady:       app.domReady,
		OnBeforeClose:    app.beforeClose,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
}

// shellViews are the hub subscribers that live as long as the window.
type shellViews struct {
	assets  http.Handler
	stopFns []func()
}

func (v *shellViews) stop() {
	for i := len(v.stopFns) - 1; i >= 0; i-- {
		v.stopFns[i]()
	}
}

func attachViews(svc *services) *shellViews {
	log := svc.log
	views := &shellViews{}

	sse := notify.NewSSE()
	sse.Initial = func() ([]bookmarks.Record, error) {
		return svc.bookmarks.List(context.Background())
	}
	views.stopFns = append(views.stopFns, svc.hub.Subscribe("sse", sse), sse.CloseAll)

	deps := assets.Deps{
		Icons:  svc.bookmarks,
		Events: sse,
		Logger: log.With(logger.String("component", "assets")),
	}

	if svc.cfg.WatchChanges {
		w, err := watch.New(svc.bookmarks.Path(), svc.bookmarks, log.With(logger.String("component", "watch")))
		if err != nil {
			log.Warn("file watcher unavailable", logger.Error(err))
		} else if err := w.Start(); err != nil {
			log.Warn("file watcher failed to start", logger.Error(err))
		} else {
			views.stopFns = append(views.stopFns, w.Stop)
		}
	}

	if svc.cfg.Offline {
		archive := snapshot.New(svc.cfg.DataDir, snapshot.Options{
			Timeout:   svc.cfg.SnapshotTimeout,
			UserAgent: svc.cfg.SnapshotUserAgent,
			Logger:    log.With(logger.String("component", "snapshot")),
		})
		archive.Start()
		views.stopFns = append(views.stopFns, svc.hub.Subscribe("snapshot", archive), archive.Stop)
		deps.Snapshots = archive
		republish(svc)
	}

	if svc.cfg.RedisAddr != "" {
		attachMirror(svc, views)
	}

	views.assets = assets.New(deps)
	return views
}

// attachMirror connects in the background so a slow or absent Redis never
// delays the window.
func attachMirror(svc *services, views *shellViews) {
	log := svc.log.With(logger.String("component", "mirror"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var m *mirror.Mirror
	var unsubscribe func()

	go func() {
		defer close(done)
		client, err := mirror.Connect(ctx, mirror.ConnectOptions{
			Addr:           svc.cfg.RedisAddr,
			User:           svc.cfg.RedisUser,
			Password:       svc.cfg.RedisPassword,
			DB:             svc.cfg.RedisDB,
			ConnectTimeout: svc.cfg.RedisConnectTimeout,
			RetryInterval:  svc.cfg.RedisRetryInterval,
			MaxWait:        svc.cfg.RedisMaxWait,
			PingTimeout:    svc.cfg.RedisPingTimeout,
		}, log)
		if err != nil {
			return
		}
		m = mirror.New(client, svc.cfg.RedisKeyPrefix, log)
		m.Start()
		unsubscribe = svc.hub.Subscribe("redis", m)
		republish(svc)
	}()

	views.stopFns = append(views.stopFns, func() {
		cancel()
		<-done
		if m != nil {
			unsubscribe()
			m.Stop()
		}
	})
}

// republish hands newly attached views the current collection so they do
// not wait for the next change. It goes through the hub like any mutation,
// so it cannot overtake a newer list.
func republish(svc *services) {
	if err := svc.bookmarks.Republish(context.Background()); err != nil {
		svc.log.Warn("initial bookmark load failed", logger.Error(err))
	}
}
