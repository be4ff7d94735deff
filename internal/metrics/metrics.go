// Package metrics exposes bridge counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "memobridge"

// Recorder holds the bridge's metrics on a private registry. A nil *Recorder
// is valid and records nothing.
type Recorder struct {
	registry    *prometheus.Registry
	updates     *prometheus.CounterVec
	notes       prometheus.Counter
	attachments *prometheus.CounterVec
	callbacks   *prometheus.CounterVec
	albums      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// New registers the bridge metrics plus Go runtime and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Inbound updates by kind.",
		}, []string{"kind"}),
		notes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notes_created_total",
			Help:      "Notes created in the note service.",
		}),
		attachments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachments_total",
			Help:      "Attachment uploads by result.",
		}, []string{"result"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Inline keyboard actions by action and result.",
		}, []string{"action", "result"}),
		albums: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "album_lookups_total",
			Help:      "Album tracker lookups by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_duration_seconds",
			Help:      "Time spent handling one update.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
	}
	r.registry.MustRegister(
		r.updates, r.notes, r.attachments, r.callbacks, r.albums, r.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Update counts one inbound update and its handling time.
func (r *Recorder) Update(kind string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.updates.WithLabelValues(kind).Inc()
	r.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (r *Recorder) NoteCreated() {
	if r == nil {
		return
	}
	r.notes.Inc()
}

// Attachment counts an upload attempt: stored, too_large or failed.
func (r *Recorder) Attachment(result string) {
	if r == nil {
		return
	}
	r.attachments.WithLabelValues(result).Inc()
}

func (r *Recorder) Callback(action, result string) {
	if r == nil {
		return
	}
	r.callbacks.WithLabelValues(action, result).Inc()
}

// AlbumLookup counts a tracker outcome: new, reused or stale.
func (r *Recorder) AlbumLookup(outcome string) {
	if r == nil {
		return
	}
	r.albums.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
