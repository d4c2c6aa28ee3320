package sessionkit

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes counters for the session runtime. Register one per
// process; a nil *Collector is safe to call and records nothing.
type Collector struct {
	refreshOK      prometheus.Counter
	refreshSkipped prometheus.Counter
	refreshFailed  prometheus.Counter
	forcedLogouts  prometheus.Counter
	eventsEmitted  *prometheus.CounterVec
	eventsDropped  prometheus.Counter
	streamEvents   *prometheus.CounterVec
	rollbacks      *prometheus.CounterVec
	snapshotLoads  prometheus.Counter
}

// NewCollector builds the counters and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		refreshOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessionkit_refresh_success_total",
			Help: "Completed proactive session refreshes.",
		}),
		refreshSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessionkit_refresh_skipped_total",
			Help: "SmartRefresh passes skipped by rate limit, mutual exclusion, or a token not yet due.",
		}),
		refreshFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessionkit_refresh_failed_total",
			Help: "Failed platform refresh attempts.",
		}),
		forcedLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessionkit_forced_logout_total",
			Help: "Logouts forced by the refresh retry ceiling.",
		}),
		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionkit_auth_events_total",
			Help: "Auth events delivered to listeners.",
		}, []string{"kind"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessionkit_auth_events_dropped_total",
			Help: "Auth events dropped by the emission rate gate.",
		}),
		streamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionkit_stream_events_total",
			Help: "Realtime channel events applied to the inbox mirror.",
		}, []string{"kind"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionkit_optimistic_rollback_total",
			Help: "Optimistic inbox mutations reverted after remote rejection.",
		}, []string{"mutation"}),
		snapshotLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessionkit_snapshot_fallback_total",
			Help: "Inbox loads served from the local snapshot after a fetch failure.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			c.refreshOK, c.refreshSkipped, c.refreshFailed, c.forcedLogouts,
			c.eventsEmitted, c.eventsDropped, c.streamEvents, c.rollbacks,
			c.snapshotLoads,
		)
	}
	return c
}

func (c *Collector) refreshSuccess() {
	if c != nil {
		c.refreshOK.Inc()
	}
}

func (c *Collector) refreshSkip() {
	if c != nil {
		c.refreshSkipped.Inc()
	}
}

func (c *Collector) refreshFailure() {
	if c != nil {
		c.refreshFailed.Inc()
	}
}

func (c *Collector) forcedLogout() {
	if c != nil {
		c.forcedLogouts.Inc()
	}
}

func (c *Collector) eventEmitted(kind AuthEventKind) {
	if c != nil {
		c.eventsEmitted.WithLabelValues(string(kind)).Inc()
	}
}

func (c *Collector) eventDropped() {
	if c != nil {
		c.eventsDropped.Inc()
	}
}

func (c *Collector) streamEvent(kind ChangeKind) {
	if c != nil {
		c.streamEvents.WithLabelValues(string(kind)).Inc()
	}
}

func (c *Collector) rollback(mutation string) {
	if c != nil {
		c.rollbacks.WithLabelValues(mutation).Inc()
	}
}

func (c *Collector) snapshotFallback() {
	if c != nil {
		c.snapshotLoads.Inc()
	}
}
