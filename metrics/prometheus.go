package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/honeycombio/queuerouter/config"
	"github.com/honeycombio/queuerouter/logger"
)

type PromMetrics struct {
	Config config.Config `inject:""`
	Logger logger.Logger `inject:""`
	// metrics keeps a record of all the registered metrics so we can increment
	// them by name
	metrics map[string]any
	// values mirrors counters, gauges and updowns so Get can read them back
	values map[string]float64
	lock   sync.RWMutex

	registry *prometheus.Registry
	server   *http.Server
	prefix   string
}

var _ Metrics = (*PromMetrics)(nil)

func (p *PromMetrics) Start() error {
	p.Logger.Debug().Logf("Starting PromMetrics")
	defer func() { p.Logger.Debug().Logf("Finished starting PromMetrics") }()

	p.metrics = make(map[string]any)
	p.values = make(map[string]float64)
	p.registry = prometheus.NewRegistry()
	p.prefix = "queuerouter"

	pc := p.Config.GetPrometheusMetricsConfig()
	if !pc.Enabled || pc.ListenAddr == "" {
		return nil
	}

	muxxer := mux.NewRouter()
	muxxer.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	p.server = &http.Server{
		Addr:              pc.ListenAddr,
		Handler:           muxxer,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.Logger.Error().WithString("addr", pc.ListenAddr).Logf("metrics listener stopped: %s", err)
		}
	}()
	return nil
}

func (p *PromMetrics) Stop() error {
	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.server.Shutdown(ctx)
}

// Handler serves the registered metrics in the Prometheus exposition format.
func (p *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Register creates the collector for metadata. Registering the same name twice
// is a no-op.
func (p *PromMetrics) Register(metadata Metadata) {
	p.lock.Lock()
	defer p.lock.Unlock()

	// don't attempt to add the metric again as this will cause a panic
	if _, exists := p.metrics[metadata.Name]; exists {
		return
	}

	help := metadata.Description
	if help == "" {
		help = metadata.Name
	}
	factory := promauto.With(p.registry)

	var newmet any
	switch metadata.Type {
	case Counter:
		newmet = factory.NewCounter(prometheus.CounterOpts{
			Name:      metadata.Name,
			Namespace: p.prefix,
			Help:      help,
		})
	case Gauge, UpDown:
		newmet = factory.NewGauge(prometheus.GaugeOpts{
			Name:      metadata.Name,
			Namespace: p.prefix,
			Help:      help,
		})
	case Histogram:
		newmet = factory.NewHistogram(prometheus.HistogramOpts{
			Name:      metadata.Name,
			Namespace: p.prefix,
			Help:      help,
			// 16 buckets, first upper bound of 1, each following upper bound is 4x the previous
			Buckets: prometheus.ExponentialBuckets(1, 4, 16),
		})
	default:
		return
	}

	p.metrics[metadata.Name] = newmet
	p.values[metadata.Name] = 0
}

func (p *PromMetrics) Increment(name string) {
	p.Count(name, 1)
}

func (p *PromMetrics) Count(name string, n any) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if counter, ok := p.metrics[name].(prometheus.Counter); ok {
		v := ConvertNumeric(n)
		counter.Add(v)
		p.values[name] += v
	}
}

func (p *PromMetrics) Gauge(name string, val any) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if gauge, ok := p.metrics[name].(prometheus.Gauge); ok {
		v := ConvertNumeric(val)
		gauge.Set(v)
		p.values[name] = v
	}
}

func (p *PromMetrics) Histogram(name string, obs any) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if hist, ok := p.metrics[name].(prometheus.Histogram); ok {
		hist.Observe(ConvertNumeric(obs))
	}
}

func (p *PromMetrics) Up(name string) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if gauge, ok := p.metrics[name].(prometheus.Gauge); ok {
		gauge.Inc()
		p.values[name]++
	}
}

func (p *PromMetrics) Down(name string) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if gauge, ok := p.metrics[name].(prometheus.Gauge); ok {
		gauge.Dec()
		p.values[name]--
	}
}

func (p *PromMetrics) Store(name string, val float64) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.values[name] = val
}

func (p *PromMetrics) Get(name string) (float64, bool) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	v, ok := p.values[name]
	return v, ok
}
