package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/honeycombio/queuerouter/config"
	"github.com/honeycombio/queuerouter/internal/health"
	"github.com/honeycombio/queuerouter/logger"
	"github.com/honeycombio/queuerouter/metrics"
	"github.com/honeycombio/queuerouter/storage"
)

// App owns the data driver the transport layer serves from: the sharding
// driver when sharding is enabled, otherwise the single configured backend.
type App struct {
	Config  config.Config      `inject:""`
	Logger  logger.Logger      `inject:""`
	Metrics metrics.Metrics    `inject:"metrics"`
	Driver  storage.DataDriver `inject:"driver"`
	Health  health.Recorder    `inject:""`
	Clock   clockwork.Clock    `inject:""`

	// Version is the build ID, reported at startup.
	Version string

	reload chan os.Signal
	done   chan struct{}
}

const (
	storageSubsystem     = "storage"
	storageProbeInterval = 5 * time.Second
	storageProbeTimeout  = 3 * time.Second
)

func (a *App) Start() error {
	if a.Driver == nil {
		return errors.New("missing Driver injection in App")
	}
	sharded := a.Config.GetGeneralConfig().Sharding
	a.Logger.Info().WithFields(map[string]any{
		"version":  a.Version,
		"sharding": sharded,
		"catalog":  a.Config.GetCatalogConfig().Storage,
	}).Logf("starting queuerouter")

	if sharded {
		a.Metrics.Store("SHARDING", 1)
	} else {
		a.Metrics.Store("SHARDING", 0)
	}

	a.Config.RegisterReloadCallback(a.onReload)

	if a.Health != nil {
		if a.Clock == nil {
			a.Clock = clockwork.NewRealClock()
		}
		a.done = make(chan struct{})
		a.Health.Register(storageSubsystem, 3*storageProbeInterval)
		a.probeStorage()
		go a.watchStorage()
	}

	// reload configs on USR1
	a.reload = make(chan os.Signal, 1)
	signal.Notify(a.reload, syscall.SIGUSR1)
	go a.listenForReload(a.reload)
	return nil
}

func (a *App) listenForReload(sigs chan os.Signal) {
	for sig := range sigs {
		a.Logger.Debug().WithString("signal", sig.String()).Logf("reloading config")
		a.Config.Reload()
	}
}

func (a *App) watchStorage() {
	ticker := a.Clock.NewTicker(storageProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.done:
			return
		case <-ticker.Chan():
			a.probeStorage()
		}
	}
}

func (a *App) probeStorage() {
	ctx, cancel := context.WithTimeout(context.Background(), storageProbeTimeout)
	defer cancel()
	alive := a.Driver.IsAlive(ctx)
	if !alive {
		a.Logger.Warn().Logf("storage is not answering")
	}
	a.Health.Ready(storageSubsystem, alive)
}

func (a *App) onReload(hash string) {
	a.Logger.Info().WithString("hash", hash).Logf("config reloaded")
	if err := a.Logger.SetLevel(a.Config.GetLoggerLevel().String()); err != nil {
		a.Logger.Error().WithField("error", err.Error()).Logf("unable to apply reloaded log level")
	}
}

func (a *App) Stop() error {
	if a.done != nil {
		close(a.done)
		a.Health.Unregister(storageSubsystem)
	}
	if a.reload != nil {
		signal.Stop(a.reload)
		close(a.reload)
	}
	a.Logger.Debug().Logf("shutting down queuerouter")
	return nil
}
