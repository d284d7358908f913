// Package metrics exports selection cycle outcomes as Prometheus metrics.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/markus-lassfolk/acsd/pkg/acs"
)

// Collector bundles the selection metrics and implements acs.Observer
type Collector struct {
	gatherer prometheus.Gatherer

	Cycles            *prometheus.CounterVec
	CycleDuration     *prometheus.HistogramVec
	SelectedChannel   *prometheus.GaugeVec
	SelectedBandwidth *prometheus.GaugeVec
	CandidateFactor   *prometheus.GaugeVec
	LastSuccess       *prometheus.GaugeVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	cycles, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "acsd_selection_cycles_total",
		Help: "Finished channel selection cycles, labeled by radio, result and failure reason.",
	}, []string{"radio", "result", "reason"}), "acsd_selection_cycles_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "acsd_selection_duration_seconds",
		Help:    "Duration of channel selection cycles from scan request to outcome.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"radio"}), "acsd_selection_duration_seconds")
	if err != nil {
		return nil, err
	}

	channel, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "acsd_selected_channel",
		Help: "Primary channel committed by the last successful cycle.",
	}, []string{"radio"}), "acsd_selected_channel")
	if err != nil {
		return nil, err
	}

	bandwidth, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "acsd_selected_bandwidth_mhz",
		Help: "Operating bandwidth of the last successful cycle.",
	}, []string{"radio"}), "acsd_selected_bandwidth_mhz")
	if err != nil {
		return nil, err
	}

	factor, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "acsd_candidate_interference_factor",
		Help: "Aggregate interference factor of each primary candidate in the last cycle.",
	}, []string{"radio", "channel"}), "acsd_candidate_interference_factor")
	if err != nil {
		return nil, err
	}

	lastSuccess, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "acsd_last_success_timestamp_seconds",
		Help: "Unix time the last successful cycle started.",
	}, []string{"radio"}), "acsd_last_success_timestamp_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		Cycles:            cycles,
		CycleDuration:     duration,
		SelectedChannel:   channel,
		SelectedBandwidth: bandwidth,
		CandidateFactor:   factor,
		LastSuccess:       lastSuccess,
	}, nil
}

// SelectionFinished implements acs.Observer
func (c *Collector) SelectionFinished(_ context.Context, o acs.Outcome) {
	if c == nil {
		return
	}

	result := "success"
	if !o.Success() {
		result = "failure"
	}
	c.Cycles.WithLabelValues(o.Interface, result, o.Reason).Inc()
	c.CycleDuration.WithLabelValues(o.Interface).Observe(o.Duration.Seconds())

	c.CandidateFactor.DeletePartialMatch(prometheus.Labels{"radio": o.Interface})
	for _, cand := range o.Candidates {
		c.CandidateFactor.WithLabelValues(o.Interface, strconv.Itoa(cand.Channel)).Set(cand.Factor)
	}

	if o.Success() {
		c.SelectedChannel.WithLabelValues(o.Interface).Set(float64(o.Channel))
		c.SelectedBandwidth.WithLabelValues(o.Interface).Set(float64(o.Bandwidth))
		c.LastSuccess.WithLabelValues(o.Interface).Set(float64(o.Started.Unix()))
	}
}

// Handler exposes a ready-to-use /metrics handler
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
