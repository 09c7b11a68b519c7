package emitz

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports an emitter's Metrics to Prometheus.
//
//	prometheus.MustRegister(emitz.NewCollector(emitter, "orders"))
//
// Values are read on each scrape, so registering a collector costs nothing
// between scrapes.
type Collector struct {
	emitter *Emitter

	emissions    *prometheus.Desc
	dispatched   *prometheus.Desc
	skipped      *prometheus.Desc
	rejected     *prometheus.Desc
	outcomes     *prometheus.Desc
	panics       *prometheus.Desc
	hookFailures *prometheus.Desc
	spilled      *prometheus.Desc
	inFlight     *prometheus.Desc
	queueDepth   *prometheus.Desc
	listeners    *prometheus.Desc
	afterHooks   *prometheus.Desc
}

// NewCollector returns a collector for e. A non-empty name is attached to
// every series as the "emitter" label, so several emitters can share a
// registry.
func NewCollector(e *Emitter, name string) *Collector {
	var labels prometheus.Labels
	if name != "" {
		labels = prometheus.Labels{"emitter": name}
	}

	desc := func(metric, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("emitz", "", metric), help, variable, labels)
	}

	return &Collector{
		emitter:      e,
		emissions:    desc("emissions_total", "Emissions that dispatched at least one listener."),
		dispatched:   desc("dispatched_total", "Listener tasks dispatched."),
		skipped:      desc("skipped_total", "Listener tasks skipped because the listener was removed."),
		rejected:     desc("rejected_total", "Emissions dropped because the emitter was closed."),
		outcomes:     desc("outcomes_total", "Listener outcomes by result.", "result"),
		panics:       desc("listener_panics_total", "Listener invocations that panicked."),
		hookFailures: desc("hook_failures_total", "After-hook chains aborted by a failing hook."),
		spilled:      desc("spilled_total", "Tasks run outside the worker pool because its queue was full."),
		inFlight:     desc("in_flight", "Listener tasks dispatched but not finished."),
		queueDepth:   desc("queue_depth", "Tasks waiting in the worker pool queue."),
		listeners:    desc("listeners", "Registered listeners across all events."),
		afterHooks:   desc("after_hooks", "Registered after-hooks."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.emissions
	ch <- c.dispatched
	ch <- c.skipped
	ch <- c.rejected
	ch <- c.outcomes
	ch <- c.panics
	ch <- c.hookFailures
	ch <- c.spilled
	ch <- c.inFlight
	ch <- c.queueDepth
	ch <- c.listeners
	ch <- c.afterHooks
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.emitter.Metrics()

	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}

	counter(c.emissions, m.Emissions)
	counter(c.dispatched, m.Dispatched)
	counter(c.skipped, m.Skipped)
	counter(c.rejected, m.Rejected)
	counter(c.outcomes, m.Succeeded, "success")
	counter(c.outcomes, m.Failed, "error")
	counter(c.panics, m.Panicked)
	counter(c.hookFailures, m.HookFailures)
	counter(c.spilled, m.Spilled)
	gauge(c.inFlight, m.InFlight)
	gauge(c.queueDepth, m.QueueDepth)
	gauge(c.listeners, m.RegisteredListeners)
	gauge(c.afterHooks, m.AfterHooks)
}
