package metrics

import (
	"fmt"

	"github.com/honeycombio/queuerouter/config"
)

// Metrics is the recording surface every component writes through. Metrics
// must be registered before they are updated; updates to unknown names are
// dropped. Store and Get also allow keeping a rarely-changing value that is
// not exported.
type Metrics interface {
	Register(metadata Metadata)
	Increment(name string)          // for counters
	Gauge(name string, val any)     // for gauges
	Count(name string, n any)       // for counters
	Histogram(name string, obs any) // for histograms
	Up(name string)                 // for updown
	Down(name string)               // for updown
	Get(name string) (float64, bool)
	Store(name string, val float64)
}

type MetricType int

const (
	Counter MetricType = iota
	Gauge
	Histogram
	UpDown
)

func (m MetricType) String() string {
	switch m {
	case Counter:
		return "counter"
	case Gauge:
		return "gauge"
	case Histogram:
		return "histogram"
	case UpDown:
		return "updown"
	default:
		return fmt.Sprintf("metrictype(%d)", int(m))
	}
}

type Unit string

const (
	Dimensionless Unit = "1"
	Milliseconds  Unit = "ms"
)

type Metadata struct {
	Name        string
	Type        MetricType
	Unit        Unit
	Description string
}

func GetMetricsImplementation(c config.Config) Metrics {
	if c.GetPrometheusMetricsConfig().Enabled {
		return &PromMetrics{}
	}
	return &NullMetrics{}
}

func ConvertNumeric(val any) float64 {
	switch n := val.(type) {
	case int:
		return float64(n)
	case uint:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case int32:
		return float64(n)
	case uint32:
		return float64(n)
	case int16:
		return float64(n)
	case uint16:
		return float64(n)
	case int8:
		return float64(n)
	case uint8:
		return float64(n)
	case float64:
		return n
	case float32:
		return float64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 0
	}
}
