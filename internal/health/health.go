// Package health tracks whether the parts of the router that report in are
// alive and ready to serve.
package health

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/honeycombio/queuerouter/logger"
	"github.com/honeycombio/queuerouter/metrics"
)

// Recorder is used by subsystems to report their own state.
type Recorder interface {
	Register(subsystem string, timeout time.Duration)
	Unregister(subsystem string)
	Ready(subsystem string, ready bool)
}

// Reporter reads back the state of the whole process.
type Reporter interface {
	IsAlive() bool
	IsReady() bool
}

type subsystem struct {
	timeout time.Duration
	// zero until the first report
	deadline time.Time
	ready    bool
}

// Health expects every registered subsystem to call Ready at least once per
// timeout after its first report. A subsystem that misses its deadline makes
// the process not alive; one that reports ready=false makes it not ready.
type Health struct {
	Clock   clockwork.Clock `inject:""`
	Metrics metrics.Metrics `inject:"metrics"`
	Logger  logger.Logger   `inject:""`

	mut        sync.RWMutex
	subsystems map[string]*subsystem
	// names that were unregistered; late reports from them are ignored
	retired map[string]struct{}
}

var _ Recorder = (*Health)(nil)
var _ Reporter = (*Health)(nil)

func (h *Health) Start() error {
	if h.Logger == nil {
		h.Logger = &logger.NullLogger{}
	}
	if h.Metrics == nil {
		h.Metrics = &metrics.NullMetrics{}
	}
	if h.Clock == nil {
		h.Clock = clockwork.NewRealClock()
	}
	h.Metrics.Register(metrics.Metadata{Name: "is_alive", Type: metrics.Gauge, Unit: metrics.Dimensionless, Description: "1 while every subsystem reports in on time"})
	h.Metrics.Register(metrics.Metadata{Name: "is_ready", Type: metrics.Gauge, Unit: metrics.Dimensionless, Description: "1 while every subsystem is ready"})

	h.mut.Lock()
	defer h.mut.Unlock()
	h.subsystems = make(map[string]*subsystem)
	h.retired = make(map[string]struct{})
	return nil
}

func (h *Health) Stop() error { return nil }

// Register starts tracking a subsystem. It counts as alive but not ready
// until its first report.
func (h *Health) Register(name string, timeout time.Duration) {
	h.mut.Lock()
	defer h.mut.Unlock()
	h.subsystems[name] = &subsystem{timeout: timeout}
	delete(h.retired, name)
	h.Logger.Debug().WithString("subsystem", name).WithField("timeout", timeout.String()).
		Logf("registered health subsystem")
}

func (h *Health) Unregister(name string) {
	h.mut.Lock()
	defer h.mut.Unlock()
	delete(h.subsystems, name)
	h.retired[name] = struct{}{}
}

func (h *Health) Ready(name string, ready bool) {
	h.mut.Lock()
	defer h.mut.Unlock()
	s, ok := h.subsystems[name]
	if !ok {
		if _, retired := h.retired[name]; !retired {
			h.Logger.Error().WithString("subsystem", name).Logf("health report from unregistered subsystem")
		}
		return
	}
	if s.ready != ready {
		h.Logger.Info().WithString("subsystem", name).WithField("ready", ready).
			Logf("health subsystem changed state")
	}
	s.ready = ready
	s.deadline = h.Clock.Now().Add(s.timeout)

	h.Metrics.Gauge("is_alive", h.alive())
	h.Metrics.Gauge("is_ready", h.readyLocked())
}

// IsAlive is false once any subsystem has missed its reporting deadline.
func (h *Health) IsAlive() bool {
	h.mut.RLock()
	defer h.mut.RUnlock()
	return h.alive()
}

func (h *Health) alive() bool {
	now := h.Clock.Now()
	for _, s := range h.subsystems {
		if !s.deadline.IsZero() && now.After(s.deadline) {
			return false
		}
	}
	return true
}

// IsReady is true when at least one subsystem is registered and every
// registered subsystem is alive and last reported ready.
func (h *Health) IsReady() bool {
	h.mut.RLock()
	defer h.mut.RUnlock()
	return h.readyLocked()
}

func (h *Health) readyLocked() bool {
	if len(h.subsystems) == 0 {
		return false
	}
	now := h.Clock.Now()
	for _, s := range h.subsystems {
		if s.deadline.IsZero() || now.After(s.deadline) || !s.ready {
			return false
		}
	}
	return true
}
