package telemetry

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/timeutil"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "aroosi_chat"

var (
	opDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "op_duration_seconds",
			Help:      "Latency of tracked core and store operations.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"op"},
	)

	MessagesSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_submitted_total",
			Help:      "Messages accepted by the pipeline, by type.",
		},
		[]string{"type"},
	)

	DuplicateSubmissions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "duplicate_submissions_total",
		Help:      "Submissions answered from an idempotency token.",
	})

	SequencerRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sequencer_retries_total",
		Help:      "Compare-and-append conflicts retried by the sequencer.",
	})

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events handed to attached sessions, by event type.",
		},
		[]string{"type"},
	)

	SessionOverflows = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_overflows_total",
		Help:      "Sessions dropped to reconnecting because their outbound buffer was full.",
	})

	ReactionToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaction_toggles_total",
			Help:      "Reaction toggles by resulting state.",
		},
		[]string{"state"},
	)

	NotificationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Notification records created, by kind.",
		},
		[]string{"kind"},
	)

	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Store operations that failed, by operation.",
		},
		[]string{"op"},
	)

	ActiveActors = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "actors_active",
		Help:      "Conversation actors currently running.",
	})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Sessions in the connecting, connected or reconnecting state.",
	})

	ActiveTypers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "typing_indicators_active",
		Help:      "Live typing indicators.",
	})

	DiskUsedPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "disk_used_percent",
		Help:      "Used space on the filesystem holding the database.",
	})

	heapAlloc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_heap_alloc_bytes",
			Help: "Current heap allocation in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapAlloc)
		},
	)
)

// Registry holds every collector above plus the Go runtime collector.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		opDuration,
		MessagesSubmitted,
		DuplicateSubmissions,
		SequencerRetries,
		EventsPublished,
		SessionOverflows,
		ReactionToggles,
		NotificationsCreated,
		StoreErrors,
		ActiveActors,
		ActiveSessions,
		ActiveTypers,
		DiskUsedPercent,
		heapAlloc,
	)
}

type Step struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration_ms"`
}

// Trace times one operation; Mark splits it into named steps.
type Trace struct {
	Name     string
	Start    time.Time
	Steps    []Step
	lastMark time.Time
	done     bool
}

// slowNanos is the threshold above which a finished trace is logged.
var slowNanos atomic.Int64

// SetSlowThreshold enables slow operation logging; zero disables it.
func SetSlowThreshold(d time.Duration) {
	slowNanos.Store(int64(d))
}

// Track starts a trace for op.
func Track(name string) *Trace {
	now := timeutil.Now()
	return &Trace{Name: name, Start: now, lastMark: now}
}

// Mark records the elapsed duration since the last mark.
func (tr *Trace) Mark(label string) {
	now := timeutil.Now()
	tr.Steps = append(tr.Steps, Step{Name: label, Duration: now.Sub(tr.lastMark).Seconds() * 1000})
	tr.lastMark = now
}

// Finish observes the trace. Safe to call multiple times or via defer.
func (tr *Trace) Finish() {
	if tr == nil || tr.done {
		return
	}
	tr.done = true
	elapsed := timeutil.Now().Sub(tr.Start)
	opDuration.WithLabelValues(tr.Name).Observe(elapsed.Seconds())

	if slow := time.Duration(slowNanos.Load()); slow > 0 && elapsed >= slow {
		logger.Warn("slow_operation", "op", tr.Name, "elapsed", elapsed, "steps", tr.Steps)
	}
}
