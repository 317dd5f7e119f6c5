package hooks

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/always-cache/fragment-gateway/fragment"
)

const (
	startAttribute    = "metrics.start"
	suppliedAttribute = "metrics.supplied"
)

// Metrics records fragment fetches and round trips in Prometheus.
type Metrics struct {
	fragments  *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	roundTrips *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. Collectors registered before
// by another Metrics are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		fragments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fragment_gateway_fragments_total",
			Help: "Fragment fetches by driver, status code and outcome.",
		}, []string{"driver", "code", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fragment_gateway_fragment_duration_seconds",
			Help:    "Duration of fragment fetches.",
			Buckets: prometheus.DefBuckets,
		}, []string{"driver"}),
		roundTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fragment_gateway_round_trips_total",
			Help: "Round trips to origins by method and status code.",
		}, []string{"method", "code"}),
	}
	var err error
	if m.fragments, err = register(reg, m.fragments); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.roundTrips, err = register(reg, m.roundTrips); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) PreFragment(evt *fragment.Event) fragment.Action {
	evt.Context.Set(startAttribute, time.Now())
	if evt.Response != nil {
		evt.Context.Set(suppliedAttribute, true)
	}
	return fragment.Continue
}

func (m *Metrics) PostFragment(evt *fragment.Event) fragment.Action {
	driver := evt.Request.Driver()
	code := "none"
	outcome := "fetched"
	if evt.Response != nil {
		code = strconv.Itoa(evt.Response.StatusCode)
		if evt.Response.StatusCode >= 500 {
			outcome = "failed"
		}
	}
	if supplied, _ := evt.Context.Get(suppliedAttribute); supplied == true {
		outcome = "supplied"
	}
	m.fragments.WithLabelValues(driver, code, outcome).Inc()
	if start, ok := evt.Context.Get(startAttribute); ok {
		m.duration.WithLabelValues(driver).Observe(time.Since(start.(time.Time)).Seconds())
	}
	return fragment.Continue
}

func (m *Metrics) PreFetch(evt *fragment.FetchEvent) fragment.Action {
	return fragment.Continue
}

func (m *Metrics) PostFetch(evt *fragment.FetchEvent) fragment.Action {
	if evt.HTTPResponse != nil {
		m.roundTrips.WithLabelValues(evt.HTTPRequest.Method, strconv.Itoa(evt.HTTPResponse.StatusCode)).Inc()
	}
	return fragment.Continue
}
